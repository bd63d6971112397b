package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintOf(t *testing.T) {
	a := FingerprintOf(Message{Source: "telegram", ExternalID: "42", Text: "hola"})
	b := FingerprintOf(Message{Source: "telegram", ExternalID: "42", Text: "different text"})
	c := FingerprintOf(Message{Source: "telegram_voz", ExternalID: "42"})
	d := FingerprintOf(Message{Source: "telegram", ExternalID: "43"})

	assert.Equal(t, a, b, "fingerprint depends on source and external id only")
	assert.NotEqual(t, a, c, "different sources must not collide")
	assert.NotEqual(t, a, d, "different message ids must not collide")
	assert.Len(t, string(a), 64)
}

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in   string
		want Priority
		ok   bool
	}{
		{"alta", PriorityAlta, true},
		{"MEDIA", PriorityMedia, true},
		{" baja ", PriorityBaja, true},
		{"urgente", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParsePriority(tc.in)
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestParseKind(t *testing.T) {
	for _, valid := range []string{"tarea", "idea", "seguimiento", "referencia", "nota"} {
		_, ok := ParseKind(valid)
		assert.True(t, ok, "input %q", valid)
	}
	for _, invalid := range []string{"task", "recordatorio", ""} {
		_, ok := ParseKind(invalid)
		assert.False(t, ok, "input %q", invalid)
	}
}

func TestMatchProject(t *testing.T) {
	got, ok := MatchProject("nomadic")
	assert.True(t, ok)
	assert.Equal(t, "Nomadic", got, "matching returns the canonical spelling")

	got, ok = MatchProject("  MARCA PERSONAL ")
	assert.True(t, ok)
	assert.Equal(t, "Marca personal", got)

	_, ok = MatchProject("Inbox")
	assert.False(t, ok)
}

func TestValidProjects(t *testing.T) {
	want := []string{
		"Speaker",
		"Automatización",
		"Marca personal",
		"Nomadic",
		"Adquisición",
		"Docencia",
		"Personal",
	}
	assert.Equal(t, want, ValidProjects)

	// A routing hint in the prompt, never a field option on the board.
	_, ok := MatchProject("Investigar")
	assert.False(t, ok)
}

func TestSection(t *testing.T) {
	assert.Equal(t, "Hoy", Classification{Priority: PriorityAlta}.Section())
	assert.Equal(t, "Semana", Classification{Priority: PriorityMedia}.Section())
	assert.Equal(t, "Backlog", Classification{Priority: PriorityBaja}.Section())
}

func TestTruncateSummary(t *testing.T) {
	short := "Preparar propuesta"
	assert.Equal(t, short, TruncateSummary(short))

	exact := strings.Repeat("a", SummaryMaxLen)
	assert.Equal(t, exact, TruncateSummary(exact))

	long := strings.Repeat("a", SummaryMaxLen+10)
	got := TruncateSummary(long)
	assert.Len(t, []rune(got), SummaryMaxLen)
	assert.True(t, strings.HasSuffix(got, "..."))

	// Multibyte runes count as one character, not several bytes.
	accents := strings.Repeat("é", SummaryMaxLen+5)
	got = TruncateSummary(accents)
	assert.Len(t, []rune(got), SummaryMaxLen)
}

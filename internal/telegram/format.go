package telegram

import (
	"fmt"
	"sort"
	"strings"

	"jarvis/internal/agenda"
	"jarvis/internal/capture"
)

var priorityEmoji = map[capture.Priority]string{
	capture.PriorityAlta:  "🔥",
	capture.PriorityMedia: "📌",
	capture.PriorityBaja:  "💤",
}

var kindEmoji = map[capture.Kind]string{
	capture.KindTarea:       "✅",
	capture.KindIdea:        "💡",
	capture.KindSeguimiento: "🔄",
	capture.KindReferencia:  "📎",
	capture.KindNota:        "📝",
}

// FormatConfirmation renders a capture result for the chat.
func FormatConfirmation(c capture.Confirmation) string {
	if c.Duplicate {
		return "⏭️ Este mensaje ya fue procesado anteriormente."
	}
	pe := priorityEmoji[c.Priority]
	if pe == "" {
		pe = "📌"
	}
	ke := kindEmoji[c.Kind]
	if ke == "" {
		ke = "📝"
	}
	return fmt.Sprintf(
		"✅ Capturado en Asana\n📁 Proyecto: %s\n%s Prioridad: %s → %s\n%s %q",
		c.Project, pe, c.Priority, c.Section, ke, c.Summary,
	)
}

// FormatTranscribedConfirmation prepends the transcription to a capture
// result.
func FormatTranscribedConfirmation(text string, c capture.Confirmation) string {
	if c.Duplicate {
		return "⏭️ Este audio ya fue procesado anteriormente."
	}
	return fmt.Sprintf("🎤 Transcripción:\n%q\n\n%s", text, FormatConfirmation(c))
}

// FormatSectionListing renders the tasks of one section.
func FormatSectionListing(section string, items []agenda.Item) string {
	if len(items) == 0 {
		switch section {
		case "Hoy":
			return "🎉 No tenés tareas pendientes para hoy"
		case "Semana":
			return "🎉 No tenés tareas pendientes para esta semana"
		default:
			return "🎉 No tenés tareas pendientes"
		}
	}

	var title string
	switch section {
	case "Hoy":
		title = "📋 Tareas para hoy"
	case "Semana":
		title = "📋 Tareas para esta semana"
	default:
		title = "📋 Tareas pendientes"
	}

	lines := []string{fmt.Sprintf("%s (%d)", title, len(items))}
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%s %s — %s", item.PriorityMarker, item.Project, item.Name))
	}
	return strings.Join(lines, "\n")
}

// FormatDoneListing renders the numbered selection list for /done.
func FormatDoneListing(items []agenda.Item) string {
	lines := []string{"📋 ¿Cuál completaste?", ""}
	for i, item := range items {
		lines = append(lines, fmt.Sprintf("%d. %s %s — %s", i+1, item.PriorityMarker, item.Section, item.Name))
	}
	return strings.Join(lines, "\n")
}

// FormatWeeklySummary renders the /resumen report.
func FormatWeeklySummary(s *agenda.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Resumen semanal (%s a %s)\n",
		s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))

	if len(s.Completed) == 0 {
		b.WriteString("\nSin tareas completadas esta semana.\n")
	} else {
		fmt.Fprintf(&b, "\n✅ Completadas (%d):\n", len(s.Completed))
		for _, item := range s.Completed {
			fmt.Fprintf(&b, "• %s — %s\n", item.Project, item.Name)
		}
		b.WriteString("\nPor proyecto:\n")
		for _, project := range sortedKeys(s.ByProject) {
			fmt.Fprintf(&b, "• %s: %d\n", project, s.ByProject[project])
		}
	}

	if len(s.Overdue) > 0 {
		fmt.Fprintf(&b, "\n⚠️ Vencidas (%d):\n", len(s.Overdue))
		for _, item := range s.Overdue {
			fmt.Fprintf(&b, "• %s — %s (vencía %s)\n",
				item.Project, item.Name, item.DueOn.Format("2006-01-02"))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

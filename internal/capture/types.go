// Package capture implements the message capture pipeline: a short personal
// message (text or transcribed voice) is classified, resolved against the
// Asana category directory, created as a task exactly once, and acknowledged.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Message is a single inbound message from the chat transport.
// It is immutable once ingested.
type Message struct {
	// Source identifies the delivery channel ("telegram", "telegram_voz", ...).
	Source string

	// ExternalID is the transport's message identifier.
	ExternalID string

	// Text is the raw transcript. Empty when AudioRef is set and the
	// message has not been transcribed yet.
	Text string

	// AudioRef is the transport's file reference for voice/audio messages.
	AudioRef string

	ReceivedAt time.Time
}

// Fingerprint is the deterministic dedupe key for a Message.
type Fingerprint string

// FingerprintOf computes the ledger key for a message. The same
// source/external-id pair always yields the same fingerprint.
func FingerprintOf(msg Message) Fingerprint {
	sum := sha256.Sum256([]byte(msg.Source + "|" + msg.ExternalID))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// Priority is the urgency bucket assigned by the classifier.
type Priority string

const (
	PriorityAlta  Priority = "alta"
	PriorityMedia Priority = "media"
	PriorityBaja  Priority = "baja"
)

// Kind describes what sort of item a message is.
type Kind string

const (
	KindTarea       Kind = "tarea"
	KindIdea        Kind = "idea"
	KindSeguimiento Kind = "seguimiento"
	KindReferencia  Kind = "referencia"
	KindNota        Kind = "nota"
)

// ValidProjects lists the allowed values of the "Proyecto" custom field.
var ValidProjects = []string{
	"Speaker",
	"Automatización",
	"Marca personal",
	"Nomadic",
	"Adquisición",
	"Docencia",
	"Personal",
}

// SectionForPriority maps a priority to the board section that holds it.
var SectionForPriority = map[Priority]string{
	PriorityAlta:  "Hoy",
	PriorityMedia: "Semana",
	PriorityBaja:  "Backlog",
}

// SummaryMaxLen is the hard cap on classification summaries.
const SummaryMaxLen = 80

// ParsePriority matches a priority value case-insensitively.
func ParsePriority(s string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(PriorityAlta):
		return PriorityAlta, true
	case string(PriorityMedia):
		return PriorityMedia, true
	case string(PriorityBaja):
		return PriorityBaja, true
	}
	return "", false
}

// ParseKind matches a kind value case-insensitively.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(KindTarea):
		return KindTarea, true
	case string(KindIdea):
		return KindIdea, true
	case string(KindSeguimiento):
		return KindSeguimiento, true
	case string(KindReferencia):
		return KindReferencia, true
	case string(KindNota):
		return KindNota, true
	}
	return "", false
}

// MatchProject matches a project name against ValidProjects,
// case-insensitively. Returns the canonical spelling.
func MatchProject(s string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, p := range ValidProjects {
		if strings.ToLower(p) == needle {
			return p, true
		}
	}
	return "", false
}

// Classification is the validated output of the classifier for one message.
// It is never mutated after creation.
type Classification struct {
	Project  string
	Priority Priority
	Summary  string
	Kind     Kind

	// DueDate is a YYYY-MM-DD deadline extracted from the message,
	// or empty when none was mentioned.
	DueDate string
}

// Section returns the board section this classification files into.
func (c Classification) Section() string {
	return SectionForPriority[c.Priority]
}

// TruncateSummary enforces SummaryMaxLen the way the board expects:
// overlong summaries are cut at 77 runes with an ellipsis.
func TruncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= SummaryMaxLen {
		return s
	}
	return string(runes[:SummaryMaxLen-3]) + "..."
}

// Confirmation is the terminal outcome payload handed to the reply
// collaborator. Exactly one is produced per captured message.
type Confirmation struct {
	Project  string
	Priority Priority
	Summary  string
	Section  string
	Kind     Kind

	// TaskID is the Asana GID of the created task. Empty for duplicates.
	TaskID string

	// Duplicate marks a message that was already captured earlier.
	Duplicate bool
}

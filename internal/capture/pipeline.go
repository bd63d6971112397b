package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the durable dedupe store guarding at-most-once task creation.
type Ledger interface {
	// TryClaim atomically reserves a fingerprint. False means the
	// fingerprint is already claimed or committed.
	TryClaim(ctx context.Context, fp Fingerprint) (bool, error)

	// Commit finalizes a reservation with the created task reference.
	// Idempotent for repeated calls with the same arguments.
	Commit(ctx context.Context, fp Fingerprint, taskID string) error

	// Release drops a reservation that never committed so the message
	// can be retried end to end.
	Release(ctx context.Context, fp Fingerprint) error
}

// Classifier turns a raw transcript into a validated Classification.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Directory resolves human-readable category names to Asana GIDs.
type Directory interface {
	// ResolveSection maps a short section name ("Hoy") to its GID.
	ResolveSection(ctx context.Context, name string) (string, error)

	// ResolveProjectOption maps a "Proyecto" custom-field value to the
	// field GID and the option GID.
	ResolveProjectOption(ctx context.Context, project string) (fieldGID, optionGID string, err error)
}

// TaskSpec carries everything needed to create one remote task.
type TaskSpec struct {
	Title      string
	Notes      string
	SectionGID string
	FieldGID   string
	OptionGID  string
	DueOn      string // YYYY-MM-DD, optional
}

// TaskCreator creates a task in the external tracking system and returns
// its opaque identifier.
type TaskCreator interface {
	CreateTask(ctx context.Context, spec TaskSpec) (string, error)
}

// Pipeline composes ledger, classifier, directory and task creation into
// the end-to-end capture flow. Each message runs independently; the only
// shared state is behind the collaborators themselves.
type Pipeline struct {
	ledger     Ledger
	classifier Classifier
	directory  Directory
	tasks      TaskCreator
	logger     *zap.Logger
}

// NewPipeline wires a capture pipeline.
func NewPipeline(ledger Ledger, classifier Classifier, directory Directory, tasks TaskCreator, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		ledger:     ledger,
		classifier: classifier,
		directory:  directory,
		tasks:      tasks,
		logger:     logger,
	}
}

// Capture runs one message through the pipeline. It returns exactly one
// terminal outcome: a Confirmation (Duplicate=true for redelivery) or an
// error wrapping one member of the failure taxonomy. Any reservation taken
// for a failed message is released before returning.
func (p *Pipeline) Capture(ctx context.Context, msg Message) (*Confirmation, error) {
	attempt := uuid.NewString()
	log := p.logger.With(
		zap.String("attempt", attempt),
		zap.String("source", msg.Source),
		zap.String("external_id", msg.ExternalID),
	)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		log.Warn("rejecting empty transcript")
		return nil, fmt.Errorf("message %s: %w", msg.ExternalID, ErrEmptyInput)
	}

	fp := FingerprintOf(msg)
	claimed, err := p.ledger.TryClaim(ctx, fp)
	if err != nil {
		return nil, fmt.Errorf("ledger claim: %w", err)
	}
	if !claimed {
		log.Info("duplicate message, skipping")
		return &Confirmation{Duplicate: true}, nil
	}

	conf, err := p.process(ctx, log, fp, msg, text)
	if err != nil {
		if relErr := p.ledger.Release(ctx, fp); relErr != nil {
			log.Error("failed to release reservation", zap.Error(relErr))
		}
		return nil, err
	}
	return conf, nil
}

// process runs the claimed portion of the flow. The caller owns releasing
// the reservation when an error comes back.
func (p *Pipeline) process(ctx context.Context, log *zap.Logger, fp Fingerprint, msg Message, text string) (*Confirmation, error) {
	cls, err := p.classifier.Classify(ctx, text)
	if err != nil {
		log.Warn("classification failed", zap.Error(err))
		return nil, err
	}
	log.Info("message classified",
		zap.String("project", cls.Project),
		zap.String("priority", string(cls.Priority)),
		zap.String("kind", string(cls.Kind)),
		zap.String("summary", cls.Summary),
	)

	section := cls.Section()
	sectionGID, err := p.directory.ResolveSection(ctx, section)
	if err != nil {
		return nil, err
	}
	fieldGID, optionGID, err := p.directory.ResolveProjectOption(ctx, cls.Project)
	if err != nil {
		return nil, err
	}

	taskID, err := p.tasks.CreateTask(ctx, TaskSpec{
		Title:      cls.Summary,
		Notes:      buildNotes(msg, cls),
		SectionGID: sectionGID,
		FieldGID:   fieldGID,
		OptionGID:  optionGID,
		DueOn:      cls.DueDate,
	})
	if err != nil {
		log.Error("task creation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRemoteCreation, err)
	}

	if err := p.ledger.Commit(ctx, fp, taskID); err != nil {
		log.Error("ledger commit failed", zap.Error(err), zap.String("task", taskID))
		return nil, fmt.Errorf("ledger commit: %w", err)
	}

	log.Info("message captured", zap.String("task", taskID), zap.String("section", section))
	return &Confirmation{
		Project:  cls.Project,
		Priority: cls.Priority,
		Summary:  cls.Summary,
		Section:  section,
		Kind:     cls.Kind,
		TaskID:   taskID,
	}, nil
}

var priorityMarker = map[Priority]string{
	PriorityAlta:  "🔴",
	PriorityMedia: "🟡",
	PriorityBaja:  "🟢",
}

// buildNotes renders the task description body: provenance first, then the
// original transcript.
func buildNotes(msg Message, cls Classification) string {
	marker, ok := priorityMarker[cls.Priority]
	if !ok {
		marker = "⚪"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Fuente: %s\n", msg.Source)
	fmt.Fprintf(&b, "Tipo: %s\n", cls.Kind)
	fmt.Fprintf(&b, "Prioridad: %s %s\n", marker, cls.Priority)
	fmt.Fprintf(&b, "Proyecto: %s\n", cls.Project)
	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Texto original:\n%s", msg.Text)
	return b.String()
}

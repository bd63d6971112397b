package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure taxonomy. Every terminal
// failure wraps exactly one of these so callers can render a useful
// acknowledgment and decide whether a resend makes sense.
var (
	// ErrEmptyInput rejects messages whose transcript is empty or
	// whitespace-only. Raised before the classifier is ever called.
	ErrEmptyInput = errors.New("empty input")

	// ErrClassification marks model-unavailable or persistently
	// malformed classifier output (after the strict retry).
	ErrClassification = errors.New("classification failed")

	// ErrRemoteCreation marks a task-system API failure.
	ErrRemoteCreation = errors.New("remote task creation failed")

	// ErrTransport marks a collaborator failure (transcription,
	// message delivery) that this pipeline reports but does not own.
	ErrTransport = errors.New("transport failure")
)

// UnknownCategoryError reports a category name that the directory could not
// resolve even after a forced refresh. It signals configuration drift in
// Asana (a renamed section or field option), not a transient fault.
type UnknownCategoryError struct {
	Kind string // "section" or "field option"
	Name string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown %s %q after refresh", e.Kind, e.Name)
}

// IsUnknownCategory reports whether err is an UnknownCategoryError.
func IsUnknownCategory(err error) bool {
	var uc *UnknownCategoryError
	return errors.As(err, &uc)
}

package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownTarget is returned for a target state outside every category.
	ErrUnknownTarget = errors.New("unknown target state")
	// ErrNoteRequired is returned when a target demands a note and none was given.
	ErrNoteRequired = errors.New("note is required")
	// ErrInvalidStage is returned when a stage-only operation gets a non-stage value.
	ErrInvalidStage = errors.New("invalid stage")
)

// ValidationError reports a caller error detected before any mutation.
type ValidationError struct {
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: %v: %q", e.Err, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

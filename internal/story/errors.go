package story

import (
	"errors"
	"fmt"

	"github.com/zulandar/storytree/internal/workflow"
)

// Validation failures. Each is detected before any row is touched.
var (
	ErrNotFound   = errors.New("story: not found")
	ErrExists     = errors.New("story: already exists")
	ErrAtCapacity = errors.New("story: parent at capacity")
	ErrInvalid    = errors.New("story: invalid input")
)

// StoreError wraps a database failure so callers can tell it apart from a
// validation error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("story: %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error { return &StoreError{Op: op, Err: err} }

func notFound(id string) error { return fmt.Errorf("%w: %s", ErrNotFound, id) }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a caller error rather than a store failure.
func IsValidation(err error) bool {
	return workflow.IsValidation(err) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExists) ||
		errors.Is(err, ErrAtCapacity) ||
		errors.Is(err, ErrInvalid)
}

// IsStore reports whether err came from the database layer.
func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

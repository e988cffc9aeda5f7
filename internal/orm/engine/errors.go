package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrMutation is matched by every MutationError
	ErrMutation = errors.New("schema mutation failed")

	// ErrHasInstances is returned when a type holding instances is renumbered
	ErrHasInstances = errors.New("object type has instances")
)

// MutationError wraps the failure of the primary step of a schema mutation.
// Work committed before the failure is left in place.
type MutationError struct {
	Op      string
	Subject string
	Err     error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
}

// Unwrap returns the underlying error
func (e *MutationError) Unwrap() error {
	return e.Err
}

// Is matches ErrMutation
func (e *MutationError) Is(target error) bool {
	return target == ErrMutation
}

// IsMutationError returns true if the error is a MutationError
func IsMutationError(err error) bool {
	return errors.Is(err, ErrMutation)
}

func typeSubject(typeID int) string {
	return fmt.Sprintf("object type %d", typeID)
}

func attributeSubject(typeID int, name string) string {
	return fmt.Sprintf("attribute %s of object type %d", name, typeID)
}

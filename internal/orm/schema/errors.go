package schema

import (
	"errors"
	"fmt"
)

// ErrInconsistent is matched by every consistency violation of an attribute type
var ErrInconsistent = errors.New("inconsistent attribute definition")

// ConsistencyError reports an attribute combining mutually exclusive flags
type ConsistencyError struct {
	Attribute string
	Reason    string
}

// Error implements the error interface
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("attribute %s: %s", e.Attribute, e.Reason)
}

// Is makes errors.Is(err, ErrInconsistent) match
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

// IsInconsistent returns true if the error is a consistency violation
func IsInconsistent(err error) bool {
	return errors.Is(err, ErrInconsistent)
}

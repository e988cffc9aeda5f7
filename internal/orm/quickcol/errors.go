package quickcol

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStructureChangeForbidden is matched by every StructureChangeError
var ErrStructureChangeForbidden = errors.New("structure change forbidden")

// StructureChangeError reports the structural changes a synchronization
// needed but was not allowed to make
type StructureChangeError struct {
	Attribute string
	Changes   []string
}

func (e *StructureChangeError) Error() string {
	return fmt.Sprintf("quick column of %s needs structure changes that were not allowed: %s",
		e.Attribute, strings.Join(e.Changes, "; "))
}

// Is matches ErrStructureChangeForbidden
func (e *StructureChangeError) Is(target error) bool {
	return target == ErrStructureChangeForbidden
}

// IsStructureChangeForbidden returns true if the error is a StructureChangeError
func IsStructureChangeForbidden(err error) bool {
	return errors.Is(err, ErrStructureChangeForbidden)
}

package hypothesis

import (
	"errors"
	"fmt"
)

var (
	// ErrStructure marks malformed input: bad records, duplicate identifiers,
	// feature length mismatches.
	ErrStructure = errors.New("hypothesis: structural integrity error")
	// ErrDanglingReference is returned when a link or division names a
	// detection that was never ingested.
	ErrDanglingReference = fmt.Errorf("%w: dangling reference", ErrStructure)
	// ErrInvalidState is returned when a Model operation is called out of order.
	ErrInvalidState = errors.New("hypothesis: operation not allowed in current model state")
	// ErrAlreadySolved is returned when infer or learn is called on a consumed Model.
	ErrAlreadySolved = fmt.Errorf("%w: model already solved, build a new one", ErrInvalidState)
	// ErrNotInProblem is returned when a variable is queried before it was added to a problem.
	ErrNotInProblem = errors.New("hypothesis: variable not added to a problem")
)

// RecordError identifies the input record that failed validation.
type RecordError struct {
	Section string
	Index   int
	Field   string
	Err     error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s[%d]: %v", e.Section, e.Index, e.Err)
	}
	return fmt.Sprintf("%s[%d].%s: %v", e.Section, e.Index, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// structuralf builds an error wrapping ErrStructure.
func structuralf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStructure, fmt.Sprintf(format, args...))
}

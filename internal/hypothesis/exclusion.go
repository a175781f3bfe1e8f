package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// ExclusionConstraint is a group of detections of which at most one may be
// active. It carries no features.
type ExclusionConstraint struct {
	members []ID
}

// NewExclusionConstraint creates an exclusion group.
func NewExclusionConstraint(members []ID) *ExclusionConstraint {
	return &ExclusionConstraint{members: append([]ID(nil), members...)}
}

// Members returns the detection identifiers in the group.
func (e *ExclusionConstraint) Members() []ID { return e.members }

// AddToProblem emits sum(active(member)) <= 1. Member detections must
// already have their variables in p.
func (e *ExclusionConstraint) AddToProblem(p *solver.Problem, detections *Detections) error {
	var terms []solver.Term
	for _, id := range e.members {
		h, ok := detections.Get(id)
		if !ok {
			return fmt.Errorf("%w: exclusion %v: unknown detection %d", ErrDanglingReference, e.members, id)
		}
		v := h.DetectionVariable()
		if v.ID() < 0 {
			return fmt.Errorf("exclusion %v: detection %d: %w", e.members, id, ErrNotInProblem)
		}
		terms = append(terms, v.activeTerms(1)...)
	}
	return p.AddConstraint(solver.LinearConstraint{
		Name:     fmt.Sprintf("exclusion %v", e.members),
		Terms:    terms,
		Relation: solver.LessEqual,
		Bound:    1,
	})
}

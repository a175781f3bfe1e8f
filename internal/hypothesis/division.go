package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// DivisionHypothesis is a candidate split of a parent detection into two
// children in the next frame. Exclusivity between dividing and continuing
// through a link is a cross-entity constraint added by the Model.
type DivisionHypothesis struct {
	parent   ID
	children [2]ID
	features StateFeatures
	variable Variable
}

// NewDivisionHypothesis creates a division with per-state features (2 states).
// NewDivisionHypothesis creates a division of parent into two children
// with per-state features (2 states).
func NewDivisionHypothesis(parent ID, children [2]ID, features StateFeatures) *DivisionHypothesis {
	return &DivisionHypothesis{parent: parent, children: children, features: features}
}

// Parent, Children and Key identify the division; Variable is its
// decision variable once added to a problem.
func (d *DivisionHypothesis) Parent() ID         { return d.parent }
func (d *DivisionHypothesis) Children() [2]ID    { return d.children }
func (d *DivisionHypothesis) Key() DivisionKey   { return NewDivisionKey(d.parent, d.children) }
func (d *DivisionHypothesis) Variable() Variable { return d.variable }

// RegisterWithSegmentations attaches division index self to the parent as
// division-out and to both children as division-in.
func (d *DivisionHypothesis) RegisterWithSegmentations(self int, detections *Detections) error {
	parent, ok := detections.Get(d.parent)
	if !ok {
		return fmt.Errorf("%w: division of %d: unknown parent detection %d", ErrDanglingReference, d.parent, d.parent)
	}
	var children [2]*SegmentationHypothesis
	for i, id := range d.children {
		child, ok := detections.Get(id)
		if !ok {
			return fmt.Errorf("%w: division of %d: unknown child detection %d", ErrDanglingReference, d.parent, id)
		}
		children[i] = child
	}
	parent.AddAsParentOfDivision(self)
	for _, child := range children {
		child.AddAsChildOfDivision(self)
	}
	return nil
}

// AddToProblem allocates the binary division variable and its learnable unary.
func (d *DivisionHypothesis) AddToProblem(p *solver.Problem, weightIDs [][]int) error {
	if err := d.variable.add(p, 2); err != nil {
		return fmt.Errorf("division %d -> %v: %w", d.parent, d.children, err)
	}
	if d.features.NumFeatures() == 0 {
		return nil
	}
	if err := d.variable.addUnary(p, d.features, weightIDs); err != nil {
		return fmt.Errorf("division %d -> %v: %w", d.parent, d.children, err)
	}
	return nil
}

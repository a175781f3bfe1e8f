package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// LinkingHypothesis is a candidate association of detection Src in frame t
// with detection Dest in frame t+1.
type LinkingHypothesis struct {
	src, dest ID
	features  StateFeatures
	variable  Variable
}

// NewLinkingHypothesis creates a link with per-state features (2 states).
func NewLinkingHypothesis(src, dest ID, features StateFeatures) *LinkingHypothesis {
	return &LinkingHypothesis{src: src, dest: dest, features: features}
}

// Src, Dest and Key identify the link; Variable is its decision variable
// once added to a problem.
func (l *LinkingHypothesis) Src() ID            { return l.src }
func (l *LinkingHypothesis) Dest() ID           { return l.dest }
func (l *LinkingHypothesis) Key() LinkKey       { return LinkKey{Src: l.src, Dest: l.dest} }
func (l *LinkingHypothesis) Variable() Variable { return l.variable }

// RegisterWithSegmentations attaches link index self as an outgoing edge of
// the source and an incoming edge of the destination. Both endpoints must
// exist; nothing is modified otherwise.
func (l *LinkingHypothesis) RegisterWithSegmentations(self int, detections *Detections) error {
	src, ok := detections.Get(l.src)
	if !ok {
		return fmt.Errorf("%w: link %d -> %d: unknown source detection %d", ErrDanglingReference, l.src, l.dest, l.src)
	}
	dest, ok := detections.Get(l.dest)
	if !ok {
		return fmt.Errorf("%w: link %d -> %d: unknown destination detection %d", ErrDanglingReference, l.src, l.dest, l.dest)
	}
	src.AddOutgoingLink(self)
	dest.AddIncomingLink(self)
	return nil
}

// AddToProblem allocates the binary link variable and its learnable unary.
func (l *LinkingHypothesis) AddToProblem(p *solver.Problem, weightIDs [][]int) error {
	if err := l.variable.add(p, 2); err != nil {
		return fmt.Errorf("link %d -> %d: %w", l.src, l.dest, err)
	}
	if l.features.NumFeatures() == 0 {
		return nil
	}
	if err := l.variable.addUnary(p, l.features, weightIDs); err != nil {
		return fmt.Errorf("link %d -> %d: %w", l.src, l.dest, err)
	}
	return nil
}

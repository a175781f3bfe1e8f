package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// SegmentationHypothesis is one candidate detection in one frame. It owns
// three variables: detection (active, and with how many objects),
// appearance (a trajectory starts here) and disappearance (a trajectory
// ends here). Incident links and divisions are kept as indices into the
// Model's containers.
type SegmentationHypothesis struct {
	id       ID
	timestep int

	detectionFeatures     StateFeatures
	appearanceFeatures    StateFeatures
	disappearanceFeatures StateFeatures

	incomingLinks     []int
	outgoingLinks     []int
	parentOfDivisions []int
	childOfDivisions  []int

	detection     Variable
	appearance    Variable
	disappearance Variable
}

// NewSegmentationHypothesis creates a detection hypothesis. Feature values
// must already be expanded to one vector per state.
func NewSegmentationHypothesis(id ID, timestep int, detection, appearance, disappearance StateFeatures) *SegmentationHypothesis {
	return &SegmentationHypothesis{
		id:                    id,
		timestep:              timestep,
		detectionFeatures:     detection,
		appearanceFeatures:    appearance,
		disappearanceFeatures: disappearance,
	}
}

// ID returns the detection label.
func (h *SegmentationHypothesis) ID() ID { return h.id }

// Timestep returns the frame index, UnknownTimestep when not given.
func (h *SegmentationHypothesis) Timestep() int { return h.timestep }

// DetectionVariable, AppearanceVariable and DisappearanceVariable return
// the variables owned by the hypothesis once added to a problem.
func (h *SegmentationHypothesis) DetectionVariable() Variable     { return h.detection }
func (h *SegmentationHypothesis) AppearanceVariable() Variable    { return h.appearance }
func (h *SegmentationHypothesis) DisappearanceVariable() Variable { return h.disappearance }

// IncomingLinks returns the indices of links ending at this detection.
func (h *SegmentationHypothesis) IncomingLinks() []int { return h.incomingLinks }

// OutgoingLinks returns the indices of links starting at this detection.
func (h *SegmentationHypothesis) OutgoingLinks() []int { return h.outgoingLinks }

// ParentOfDivisions returns the indices of divisions this detection parents.
func (h *SegmentationHypothesis) ParentOfDivisions() []int { return h.parentOfDivisions }

// ChildOfDivisions returns the indices of divisions producing this detection.
func (h *SegmentationHypothesis) ChildOfDivisions() []int { return h.childOfDivisions }

// AddIncomingLink records link index i. Adding the same link twice is a caller error.
func (h *SegmentationHypothesis) AddIncomingLink(i int) { h.incomingLinks = append(h.incomingLinks, i) }

// AddOutgoingLink records link index i.
func (h *SegmentationHypothesis) AddOutgoingLink(i int) { h.outgoingLinks = append(h.outgoingLinks, i) }

// AddAsParentOfDivision records division index i.
func (h *SegmentationHypothesis) AddAsParentOfDivision(i int) {
	h.parentOfDivisions = append(h.parentOfDivisions, i)
}

// AddAsChildOfDivision records division index i.
func (h *SegmentationHypothesis) AddAsChildOfDivision(i int) {
	h.childOfDivisions = append(h.childOfDivisions, i)
}

// AddToProblem creates the detection, appearance and disappearance
// variables with numStates states each and their learnable unaries.
// The weight-id slices come from the Model's WeightLayout and must match
// the feature shapes.
func (h *SegmentationHypothesis) AddToProblem(p *solver.Problem, numStates int, detectionIDs, appearanceIDs, disappearanceIDs [][]int) error {
	parts := []struct {
		name     string
		v        *Variable
		features StateFeatures
		ids      [][]int
	}{
		{"detection", &h.detection, h.detectionFeatures, detectionIDs},
		{"appearance", &h.appearance, h.appearanceFeatures, appearanceIDs},
		{"disappearance", &h.disappearance, h.disappearanceFeatures, disappearanceIDs},
	}
	for _, part := range parts {
		if len(part.features) != numStates {
			return structuralf("detection %d: %s has %d per-state feature vectors, want %d", h.id, part.name, len(part.features), numStates)
		}
		if err := part.v.add(p, numStates); err != nil {
			return fmt.Errorf("detection %d %s: %w", h.id, part.name, err)
		}
		if part.features.NumFeatures() == 0 {
			continue
		}
		if err := part.v.addUnary(p, part.features, part.ids); err != nil {
			return fmt.Errorf("detection %d %s: %w", h.id, part.name, err)
		}
	}
	return nil
}

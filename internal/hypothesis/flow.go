package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// addFlowConstraints emits, for every detection,
//
//	value(det) = value(app) + sum active(in-link) + sum active(division-in)
//	value(det) = value(dis) + sum active(out-link) + sum active(division-out)
//
// plus the division rules for parents: at most one division-out, and no
// outgoing link active together with a division.
func (m *Model) addFlowConstraints(p *solver.Problem) error {
	for i := 0; i < m.detections.Len(); i++ {
		h := m.detections.At(i)
		det := h.DetectionVariable()

		in := det.valueTerms(1)
		in = append(in, h.AppearanceVariable().valueTerms(-1)...)
		for _, li := range h.incomingLinks {
			in = append(in, m.links[li].Variable().activeTerms(-1)...)
		}
		for _, di := range h.childOfDivisions {
			in = append(in, m.divisions[di].Variable().activeTerms(-1)...)
		}
		if err := p.AddConstraint(solver.LinearConstraint{
			Name:     fmt.Sprintf("incoming flow of detection %d", h.id),
			Terms:    in,
			Relation: solver.Equal,
		}); err != nil {
			return fmt.Errorf("detection %d: %w", h.id, err)
		}

		out := det.valueTerms(1)
		out = append(out, h.DisappearanceVariable().valueTerms(-1)...)
		for _, li := range h.outgoingLinks {
			out = append(out, m.links[li].Variable().activeTerms(-1)...)
		}
		for _, di := range h.parentOfDivisions {
			out = append(out, m.divisions[di].Variable().activeTerms(-1)...)
		}
		if err := p.AddConstraint(solver.LinearConstraint{
			Name:     fmt.Sprintf("outgoing flow of detection %d", h.id),
			Terms:    out,
			Relation: solver.Equal,
		}); err != nil {
			return fmt.Errorf("detection %d: %w", h.id, err)
		}

		if len(h.parentOfDivisions) == 0 {
			continue
		}
		var divs []solver.Term
		for _, di := range h.parentOfDivisions {
			divs = append(divs, m.divisions[di].Variable().activeTerms(1)...)
		}
		if len(h.parentOfDivisions) > 1 {
			if err := p.AddConstraint(solver.LinearConstraint{
				Name:     fmt.Sprintf("single division of detection %d", h.id),
				Terms:    divs,
				Relation: solver.LessEqual,
				Bound:    1,
			}); err != nil {
				return fmt.Errorf("detection %d: %w", h.id, err)
			}
		}
		for _, li := range h.outgoingLinks {
			l := m.links[li]
			terms := append(l.Variable().activeTerms(1), divs...)
			if err := p.AddConstraint(solver.LinearConstraint{
				Name:     fmt.Sprintf("division of %d excludes link %d -> %d", h.id, l.src, l.dest),
				Terms:    terms,
				Relation: solver.LessEqual,
				Bound:    1,
			}); err != nil {
				return fmt.Errorf("detection %d: %w", h.id, err)
			}
		}
	}
	return nil
}

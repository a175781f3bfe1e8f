package hypothesis

import (
	"fmt"
	"sort"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// DetectionResult is the solved state of one detection. State carries the
// object count when detections can represent more than one object.
type DetectionResult struct {
	ID    ID   `json:"id"`
	Value bool `json:"value"`
	State int  `json:"state,omitempty"`
}

func (r DetectionResult) state() int {
	if r.State > 0 {
		return r.State
	}
	return boolState(r.Value)
}

// LinkResult is the solved state of one link.
type LinkResult struct {
	Src   ID   `json:"src"`
	Dest  ID   `json:"dest"`
	Value bool `json:"value"`
}

// DivisionResult is the solved state of one division.
type DivisionResult struct {
	Parent   ID    `json:"parent"`
	Children [2]ID `json:"children"`
	Value    bool  `json:"value"`
}

// Result is a labeling keyed by hypothesis identifiers. It is both the
// solution output and the ground-truth input.
type Result struct {
	Detections []DetectionResult `json:"detectionResults,omitempty"`
	Links      []LinkResult      `json:"linkingResults,omitempty"`
	Divisions  []DivisionResult  `json:"divisionResults,omitempty"`
}

// Sort orders every record list by identifier.
func (r *Result) Sort() {
	sort.Slice(r.Detections, func(i, j int) bool { return r.Detections[i].ID < r.Detections[j].ID })
	sort.Slice(r.Links, func(i, j int) bool {
		a, b := r.Links[i], r.Links[j]
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		return a.Dest < b.Dest
	})
	sort.Slice(r.Divisions, func(i, j int) bool {
		a := NewDivisionKey(r.Divisions[i].Parent, r.Divisions[i].Children)
		b := NewDivisionKey(r.Divisions[j].Parent, r.Divisions[j].Children)
		if a.Parent != b.Parent {
			return a.Parent < b.Parent
		}
		if a.Children[0] != b.Children[0] {
			return a.Children[0] < b.Children[0]
		}
		return a.Children[1] < b.Children[1]
	})
}

// Export maps sol onto hypothesis identifiers. Every hypothesis appears
// once and the lists are sorted, so equal labelings export equally.
func (m *Model) Export(sol solver.Labeling) (Result, error) {
	if m.problem == nil {
		return Result{}, fmt.Errorf("export in state %s: %w", m.state, ErrInvalidState)
	}
	if len(sol) != m.problem.NumVariables() {
		return Result{}, structuralf("solution has %d entries, problem has %d variables", len(sol), m.problem.NumVariables())
	}

	res := Result{
		Detections: make([]DetectionResult, 0, m.detections.Len()),
		Links:      make([]LinkResult, 0, len(m.links)),
		Divisions:  make([]DivisionResult, 0, len(m.divisions)),
	}
	multi := m.settings.detectionStates() > 2
	for i := 0; i < m.detections.Len(); i++ {
		h := m.detections.At(i)
		s, err := h.detection.State(sol)
		if err != nil {
			return Result{}, fmt.Errorf("detection %d: %w", h.id, err)
		}
		r := DetectionResult{ID: h.id, Value: s > 0}
		if multi {
			r.State = s
		}
		res.Detections = append(res.Detections, r)
	}
	for _, l := range m.links {
		s, err := l.variable.State(sol)
		if err != nil {
			return Result{}, fmt.Errorf("link %d -> %d: %w", l.src, l.dest, err)
		}
		res.Links = append(res.Links, LinkResult{Src: l.src, Dest: l.dest, Value: s > 0})
	}
	for _, d := range m.divisions {
		s, err := d.variable.State(sol)
		if err != nil {
			return Result{}, fmt.Errorf("division %d -> %v: %w", d.parent, d.children, err)
		}
		key := d.Key()
		res.Divisions = append(res.Divisions, DivisionResult{Parent: key.Parent, Children: key.Children, Value: s > 0})
	}
	res.Sort()
	return res, nil
}

// Labeling converts a Result back into a solver labeling. Hypotheses not
// listed in r are left at state 0. Appearance and disappearance variables
// are not part of a Result; they take whatever value balances the flow of
// their detection, or 0 when no state can.
func (m *Model) Labeling(r Result) (solver.Labeling, error) {
	labels, err := m.GroundTruthLabeling(r)
	if err != nil {
		return nil, err
	}
	sol := make(solver.Labeling, m.problem.NumVariables())
	for v, s := range labels {
		sol[v] = s
	}
	for i := 0; i < m.detections.Len(); i++ {
		h := m.detections.At(i)
		det := sol[h.detection.ID()]
		in, out := 0, 0
		for _, li := range h.incomingLinks {
			in += sol[m.links[li].variable.ID()]
		}
		for _, di := range h.childOfDivisions {
			in += sol[m.divisions[di].variable.ID()]
		}
		for _, li := range h.outgoingLinks {
			out += sol[m.links[li].variable.ID()]
		}
		for _, di := range h.parentOfDivisions {
			out += sol[m.divisions[di].variable.ID()]
		}
		if app := det - in; app >= 0 && app < h.appearance.NumStates() {
			sol[h.appearance.ID()] = app
		}
		if dis := det - out; dis >= 0 && dis < h.disappearance.NumStates() {
			sol[h.disappearance.ID()] = dis
		}
	}
	return sol, nil
}

package hypothesis

import (
	"fmt"
	"strings"

	"github.com/banshee-data/hypotrack/internal/monitoring"
	"github.com/banshee-data/hypotrack/internal/solver"
)

// ViolationKind classifies a VerificationReport finding.
type ViolationKind int

const (
	ViolationNotBuilt ViolationKind = iota
	ViolationMalformed
	ViolationIncomingFlow
	ViolationOutgoingFlow
	ViolationMultipleDivisions
	ViolationDivisionAndLink
	ViolationExclusion
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationNotBuilt:
		return "not-built"
	case ViolationMalformed:
		return "malformed"
	case ViolationIncomingFlow:
		return "incoming-flow"
	case ViolationOutgoingFlow:
		return "outgoing-flow"
	case ViolationMultipleDivisions:
		return "multiple-divisions"
	case ViolationDivisionAndLink:
		return "division-and-link"
	case ViolationExclusion:
		return "exclusion"
	}
	return fmt.Sprintf("ViolationKind(%d)", int(k))
}

// Violation is one failed structural check.
type Violation struct {
	Kind    ViolationKind
	IDs     []ID
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %v: %s", v.Kind, v.IDs, v.Message)
}

// VerificationReport lists every violation found in a solution.
type VerificationReport struct {
	Violations []Violation
}

// Valid reports whether no violation was found.
func (r VerificationReport) Valid() bool { return len(r.Violations) == 0 }

func (r VerificationReport) String() string {
	if r.Valid() {
		return "solution is valid"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d violation(s):", len(r.Violations))
	for _, v := range r.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

func (r *VerificationReport) add(kind ViolationKind, ids []ID, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{Kind: kind, IDs: ids, Message: fmt.Sprintf(format, args...)})
}

// VerifySolution re-checks flow conservation, the division rules and every
// exclusion group against sol, recomputing them from the hypotheses rather
// than from the solver's constraint list. Findings are reported, never
// returned as errors.
func (m *Model) VerifySolution(sol solver.Labeling) VerificationReport {
	var r VerificationReport
	defer func() {
		if r.Valid() {
			monitoring.Debugf("model: solution verified")
		} else {
			monitoring.Logf("model: %s", r)
		}
	}()

	if m.problem == nil {
		r.add(ViolationNotBuilt, nil, "model in state %s has no problem to verify against", m.state)
		return r
	}
	if len(sol) != m.problem.NumVariables() {
		r.add(ViolationMalformed, nil, "solution has %d entries, problem has %d variables", len(sol), m.problem.NumVariables())
		return r
	}
	for v, s := range sol {
		if s < 0 || s >= m.problem.NumStates(v) {
			r.add(ViolationMalformed, nil, "variable %d has state %d outside [0,%d)", v, s, m.problem.NumStates(v))
		}
	}
	if !r.Valid() {
		return r
	}

	state := func(v Variable) int { return sol[v.ID()] }
	active := func(v Variable) int {
		if sol[v.ID()] > 0 {
			return 1
		}
		return 0
	}

	for i := 0; i < m.detections.Len(); i++ {
		h := m.detections.At(i)
		det := state(h.detection)

		in := state(h.appearance)
		for _, li := range h.incomingLinks {
			in += active(m.links[li].variable)
		}
		for _, di := range h.childOfDivisions {
			in += active(m.divisions[di].variable)
		}
		if in != det {
			r.add(ViolationIncomingFlow, []ID{h.id}, "detection state %d, incoming flow %d", det, in)
		}

		out := state(h.disappearance)
		divs := 0
		for _, li := range h.outgoingLinks {
			out += active(m.links[li].variable)
		}
		for _, di := range h.parentOfDivisions {
			divs += active(m.divisions[di].variable)
		}
		out += divs
		if out != det {
			r.add(ViolationOutgoingFlow, []ID{h.id}, "detection state %d, outgoing flow %d", det, out)
		}
		if divs > 1 {
			r.add(ViolationMultipleDivisions, []ID{h.id}, "%d active divisions", divs)
		}
		if divs > 0 {
			for _, li := range h.outgoingLinks {
				l := m.links[li]
				if active(l.variable) == 1 {
					r.add(ViolationDivisionAndLink, []ID{l.src, l.dest}, "detection %d divides and continues", h.id)
				}
			}
		}
	}

	for _, e := range m.exclusions {
		var on []ID
		for _, id := range e.members {
			h, _ := m.detections.Get(id)
			if active(h.detection) == 1 {
				on = append(on, id)
			}
		}
		if len(on) > 1 {
			r.add(ViolationExclusion, on, "%d members of exclusion group %v are active", len(on), e.members)
		}
	}
	return r
}

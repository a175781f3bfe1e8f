package hypothesis

import (
	"fmt"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// Variable wraps one decision variable registered with a solver.Problem.
// The zero value is not yet registered.
type Variable struct {
	id        int
	numStates int
	added     bool
}

func (v *Variable) add(p *solver.Problem, numStates int) error {
	if v.added {
		return fmt.Errorf("%w: variable already added as %d", ErrInvalidState, v.id)
	}
	id, err := p.AddVariable(numStates)
	if err != nil {
		return err
	}
	v.id, v.numStates, v.added = id, numStates, true
	return nil
}

// ID returns the solver variable index, or -1 before the variable was added.
func (v Variable) ID() int {
	if !v.added {
		return -1
	}
	return v.id
}

// NumStates returns the number of states, 0 before the variable was added.
func (v Variable) NumStates() int { return v.numStates }

// State returns the variable's state in sol.
func (v Variable) State(sol solver.Labeling) (int, error) {
	if !v.added {
		return 0, ErrNotInProblem
	}
	if v.id >= len(sol) {
		return 0, fmt.Errorf("solution has %d entries, variable index is %d", len(sol), v.id)
	}
	s := sol[v.id]
	if s < 0 || s >= v.numStates {
		return 0, fmt.Errorf("variable %d has state %d outside [0,%d)", v.id, s, v.numStates)
	}
	return s, nil
}

// Active reports whether the variable is in a non-zero state in sol.
// Unregistered variables and malformed solutions count as inactive.
func (v Variable) Active(sol solver.Labeling) bool {
	s, err := v.State(sol)
	return err == nil && s > 0
}

// valueTerms returns terms summing to sign*state.
func (v Variable) valueTerms(sign float64) []solver.Term {
	terms := make([]solver.Term, 0, v.numStates-1)
	for s := 1; s < v.numStates; s++ {
		terms = append(terms, solver.Term{Var: v.id, State: s, Coef: sign * float64(s)})
	}
	return terms
}

// activeTerms returns terms summing to sign when the variable is non-zero.
func (v Variable) activeTerms(sign float64) []solver.Term {
	terms := make([]solver.Term, 0, v.numStates-1)
	for s := 1; s < v.numStates; s++ {
		terms = append(terms, solver.Term{Var: v.id, State: s, Coef: sign})
	}
	return terms
}

// addUnary attaches a learnable unary to v.
func (v Variable) addUnary(p *solver.Problem, features StateFeatures, weightIDs [][]int) error {
	if len(features) != len(weightIDs) {
		return structuralf("%d per-state feature vectors but %d per-state weight-id vectors", len(features), len(weightIDs))
	}
	for s := range features {
		if len(features[s]) != len(weightIDs[s]) {
			return structuralf("state %d has %d features but %d weight ids", s, len(features[s]), len(weightIDs[s]))
		}
	}
	return p.AddUnary(solver.Unary{Var: v.id, Features: features, WeightIDs: weightIDs})
}

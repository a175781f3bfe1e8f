package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrInfeasible is returned when no labeling satisfies every constraint.
	ErrInfeasible = errors.New("solver: problem is infeasible")
	// ErrTooLarge is returned by BruteForce when the problem exceeds its variable budget.
	ErrTooLarge = errors.New("solver: problem too large for exhaustive search")
	// ErrNodeLimit is returned by ILP when the node budget ran out before any feasible labeling was found.
	ErrNodeLimit = errors.New("solver: branch-and-bound node limit reached")
	// ErrWeightCount is returned when a weight vector does not match the problem.
	ErrWeightCount = errors.New("solver: weight vector length mismatch")
	// ErrInvalidProblem is returned for malformed variables, unaries or constraints.
	ErrInvalidProblem = errors.New("solver: invalid problem")
)

// feasibilityTol is the slack allowed when checking a labeling against a constraint.
const feasibilityTol = 1e-7

// Labeling assigns a state to every variable, indexed by variable id.
type Labeling []int

// Clone returns a copy of y.
func (y Labeling) Clone() Labeling {
	out := make(Labeling, len(y))
	copy(out, y)
	return out
}

// PartialLabeling assigns states to a subset of variables.
type PartialLabeling map[int]int

// Relation is the comparison used by a LinearConstraint.
type Relation int

const (
	LessEqual Relation = iota
	Equal
	GreaterEqual
)

func (r Relation) String() string {
	switch r {
	case LessEqual:
		return "<="
	case Equal:
		return "=="
	case GreaterEqual:
		return ">="
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

// Term contributes Coef to the left-hand side when variable Var takes State.
type Term struct {
	Var   int
	State int
	Coef  float64
}

// LinearConstraint is sum(terms) <relation> Bound over label indicators.
type LinearConstraint struct {
	Name     string
	Terms    []Term
	Relation Relation
	Bound    float64
}

// LHS evaluates the left-hand side under labeling y.
func (c LinearConstraint) LHS(y Labeling) float64 {
	var sum float64
	for _, t := range c.Terms {
		if y[t.Var] == t.State {
			sum += t.Coef
		}
	}
	return sum
}

// Satisfied reports whether lhs fulfils the constraint within tol.
func (c LinearConstraint) Satisfied(lhs, tol float64) bool {
	switch c.Relation {
	case LessEqual:
		return lhs <= c.Bound+tol
	case GreaterEqual:
		return lhs >= c.Bound-tol
	default:
		return math.Abs(lhs-c.Bound) <= tol
	}
}

// Unary is a learnable energy on one variable. For state s the energy is
// sum_i w[WeightIDs[s][i]] * Features[s][i].
type Unary struct {
	Var       int
	Features  [][]float64
	WeightIDs [][]int
}

// Problem is the optimization problem handed to an Engine. Variables are
// numbered in the order they are added.
type Problem struct {
	numWeights  int
	numStates   []int
	unaries     []Unary
	byVar       [][]int
	constraints []LinearConstraint
	offsets     map[int][]float64
	fixed       map[int]int
}

// NewProblem creates an empty problem over a weight vector of numWeights entries.
func NewProblem(numWeights int) *Problem {
	return &Problem{
		numWeights: numWeights,
		offsets:    make(map[int][]float64),
		fixed:      make(map[int]int),
	}
}

// AddVariable appends a variable with states 0..numStates-1 and returns its id.
func (p *Problem) AddVariable(numStates int) (int, error) {
	if numStates < 1 {
		return -1, fmt.Errorf("%w: variable needs at least one state, got %d", ErrInvalidProblem, numStates)
	}
	p.numStates = append(p.numStates, numStates)
	p.byVar = append(p.byVar, nil)
	return len(p.numStates) - 1, nil
}

// AddUnary registers a learnable unary energy term.
func (p *Problem) AddUnary(u Unary) error {
	if err := p.checkVar(u.Var); err != nil {
		return err
	}
	if len(u.Features) != p.numStates[u.Var] || len(u.WeightIDs) != p.numStates[u.Var] {
		return fmt.Errorf("%w: unary on variable %d has %d feature and %d weight-id vectors, want %d",
			ErrInvalidProblem, u.Var, len(u.Features), len(u.WeightIDs), p.numStates[u.Var])
	}
	for s := range u.Features {
		if len(u.Features[s]) != len(u.WeightIDs[s]) {
			return fmt.Errorf("%w: unary on variable %d state %d has %d features but %d weight ids",
				ErrInvalidProblem, u.Var, s, len(u.Features[s]), len(u.WeightIDs[s]))
		}
		for _, id := range u.WeightIDs[s] {
			if id < 0 || id >= p.numWeights {
				return fmt.Errorf("%w: weight id %d out of range [0,%d)", ErrInvalidProblem, id, p.numWeights)
			}
		}
	}
	p.unaries = append(p.unaries, u)
	p.byVar[u.Var] = append(p.byVar[u.Var], len(p.unaries)-1)
	return nil
}

// AddConstraint registers a linear constraint over label indicators.
func (p *Problem) AddConstraint(c LinearConstraint) error {
	if len(c.Terms) == 0 {
		return fmt.Errorf("%w: constraint %q has no terms", ErrInvalidProblem, c.Name)
	}
	for _, t := range c.Terms {
		if err := p.checkVar(t.Var); err != nil {
			return fmt.Errorf("constraint %q: %w", c.Name, err)
		}
		if t.State < 0 || t.State >= p.numStates[t.Var] {
			return fmt.Errorf("%w: constraint %q references state %d of variable %d with %d states",
				ErrInvalidProblem, c.Name, t.State, t.Var, p.numStates[t.Var])
		}
	}
	p.constraints = append(p.constraints, c)
	return nil
}

// Fix restricts variable v to state s.
func (p *Problem) Fix(v, s int) error {
	if err := p.checkVar(v); err != nil {
		return err
	}
	if s < 0 || s >= p.numStates[v] {
		return fmt.Errorf("%w: cannot fix variable %d to state %d", ErrInvalidProblem, v, s)
	}
	if prev, ok := p.fixed[v]; ok && prev != s {
		return fmt.Errorf("%w: variable %d already fixed to %d", ErrInfeasible, v, prev)
	}
	p.fixed[v] = s
	return nil
}

// AddOffset adds a constant, non-learnable energy to state s of variable v.
func (p *Problem) AddOffset(v, s int, value float64) error {
	if err := p.checkVar(v); err != nil {
		return err
	}
	if s < 0 || s >= p.numStates[v] {
		return fmt.Errorf("%w: offset for state %d of variable %d", ErrInvalidProblem, s, v)
	}
	off, ok := p.offsets[v]
	if !ok {
		off = make([]float64, p.numStates[v])
		p.offsets[v] = off
	}
	off[s] += value
	return nil
}

// Clone returns a copy that can be fixed or offset without touching p.
func (p *Problem) Clone() *Problem {
	q := &Problem{
		numWeights:  p.numWeights,
		numStates:   p.numStates[:len(p.numStates):len(p.numStates)],
		unaries:     p.unaries[:len(p.unaries):len(p.unaries)],
		byVar:       make([][]int, len(p.byVar)),
		constraints: p.constraints[:len(p.constraints):len(p.constraints)],
		offsets:     make(map[int][]float64, len(p.offsets)),
		fixed:       make(map[int]int, len(p.fixed)),
	}
	for v, ids := range p.byVar {
		q.byVar[v] = ids[:len(ids):len(ids)]
	}
	for v, off := range p.offsets {
		q.offsets[v] = append([]float64(nil), off...)
	}
	for v, s := range p.fixed {
		q.fixed[v] = s
	}
	return q
}

// NumVariables returns the number of variables.
func (p *Problem) NumVariables() int { return len(p.numStates) }

// NumStates returns the number of states of variable v.
func (p *Problem) NumStates(v int) int { return p.numStates[v] }

// NumWeights returns the expected weight vector length.
func (p *Problem) NumWeights() int { return p.numWeights }

// Constraints returns the registered constraints.
func (p *Problem) Constraints() []LinearConstraint { return p.constraints }

// Fixed returns the state v is fixed to, if any.
func (p *Problem) Fixed(v int) (int, bool) {
	s, ok := p.fixed[v]
	return s, ok
}

// StateEnergy returns the energy of variable v in state s under weights w,
// including any constant offset.
func (p *Problem) StateEnergy(v, s int, w []float64) float64 {
	var e float64
	for _, ui := range p.byVar[v] {
		u := p.unaries[ui]
		for i, f := range u.Features[s] {
			e += w[u.WeightIDs[s][i]] * f
		}
	}
	if off, ok := p.offsets[v]; ok {
		e += off[s]
	}
	return e
}

// Energy returns the total energy of labeling y under weights w.
func (p *Problem) Energy(y Labeling, w []float64) float64 {
	var e float64
	for v, s := range y {
		e += p.StateEnergy(v, s, w)
	}
	return e
}

// JointFeatures returns the vector phi(y) with Energy(y, w) = w . phi(y),
// ignoring constant offsets.
func (p *Problem) JointFeatures(y Labeling) []float64 {
	phi := make([]float64, p.numWeights)
	for _, u := range p.unaries {
		s := y[u.Var]
		for i, f := range u.Features[s] {
			phi[u.WeightIDs[s][i]] += f
		}
	}
	return phi
}

// Violations returns the indices of the constraints y does not satisfy,
// in ascending order. Fixed variables set to another state are reported
// as ErrInfeasible by CheckLabeling, not here.
func (p *Problem) Violations(y Labeling) []int {
	var out []int
	for i, c := range p.constraints {
		if !c.Satisfied(c.LHS(y), feasibilityTol) {
			out = append(out, i)
		}
	}
	return out
}

// CheckLabeling validates shape, state ranges and fixed variables of y.
func (p *Problem) CheckLabeling(y Labeling) error {
	if len(y) != len(p.numStates) {
		return fmt.Errorf("%w: labeling has %d entries, problem has %d variables", ErrInvalidProblem, len(y), len(p.numStates))
	}
	for v, s := range y {
		if s < 0 || s >= p.numStates[v] {
			return fmt.Errorf("%w: variable %d has state %d outside [0,%d)", ErrInvalidProblem, v, s, p.numStates[v])
		}
	}
	vars := make([]int, 0, len(p.fixed))
	for v := range p.fixed {
		vars = append(vars, v)
	}
	sort.Ints(vars)
	for _, v := range vars {
		if y[v] != p.fixed[v] {
			return fmt.Errorf("%w: variable %d fixed to %d but labeled %d", ErrInfeasible, v, p.fixed[v], y[v])
		}
	}
	return nil
}

// Feasible reports whether y is a valid, constraint-satisfying labeling.
func (p *Problem) Feasible(y Labeling) bool {
	return p.CheckLabeling(y) == nil && len(p.Violations(y)) == 0
}

func (p *Problem) checkVar(v int) error {
	if v < 0 || v >= len(p.numStates) {
		return fmt.Errorf("%w: unknown variable %d", ErrInvalidProblem, v)
	}
	return nil
}

func (p *Problem) checkWeights(w []float64) error {
	if len(w) != p.numWeights {
		return fmt.Errorf("%w: got %d, want %d", ErrWeightCount, len(w), p.numWeights)
	}
	return nil
}

// lowestLabeling is the all-lowest-state labeling honouring fixed variables.
// Engines seed their incumbent with it so that ties resolve towards state 0.
func (p *Problem) lowestLabeling() Labeling {
	y := make(Labeling, len(p.numStates))
	for v, s := range p.fixed {
		y[v] = s
	}
	return y
}

package solver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// binaryUnary gives variable v energy w[ids[0]] in state 0 and w[ids[1]] in state 1.
func binaryUnary(v int, ids [2]int) Unary {
	return Unary{
		Var:       v,
		Features:  [][]float64{{1}, {1}},
		WeightIDs: [][]int{{ids[0]}, {ids[1]}},
	}
}

// pickOneProblem has two binary variables, at most one of which may be on.
func pickOneProblem(t *testing.T) *Problem {
	t.Helper()
	p := NewProblem(4)
	a, err := p.AddVariable(2)
	require.NoError(t, err)
	b, err := p.AddVariable(2)
	require.NoError(t, err)
	require.NoError(t, p.AddUnary(binaryUnary(a, [2]int{0, 1})))
	require.NoError(t, p.AddUnary(binaryUnary(b, [2]int{2, 3})))
	require.NoError(t, p.AddConstraint(LinearConstraint{
		Name:     "at most one",
		Terms:    []Term{{Var: a, State: 1, Coef: 1}, {Var: b, State: 1, Coef: 1}},
		Relation: LessEqual,
		Bound:    1,
	}))
	return p
}

// chainProblem models a two-frame flow: detection d0 feeds link l into d1.
// value(d0) == app0 ... simplified to d0 == l and d1 == l.
func chainProblem(t *testing.T) *Problem {
	t.Helper()
	p := NewProblem(6)
	d0, _ := p.AddVariable(2)
	l, _ := p.AddVariable(2)
	d1, _ := p.AddVariable(2)
	require.NoError(t, p.AddUnary(binaryUnary(d0, [2]int{0, 1})))
	require.NoError(t, p.AddUnary(binaryUnary(l, [2]int{2, 3})))
	require.NoError(t, p.AddUnary(binaryUnary(d1, [2]int{4, 5})))
	for _, d := range []int{d0, d1} {
		require.NoError(t, p.AddConstraint(LinearConstraint{
			Terms:    []Term{{Var: d, State: 1, Coef: 1}, {Var: l, State: 1, Coef: -1}},
			Relation: Equal,
		}))
	}
	return p
}

func engines() map[string]Inferer {
	return map[string]Inferer{
		"bruteforce": BruteForce{},
		"ilp":        ILP{},
	}
}

func TestProblem_Validation(t *testing.T) {
	p := NewProblem(2)
	_, err := p.AddVariable(0)
	assert.ErrorIs(t, err, ErrInvalidProblem)

	v, err := p.AddVariable(2)
	require.NoError(t, err)

	err = p.AddUnary(Unary{Var: v, Features: [][]float64{{1}}, WeightIDs: [][]int{{0}}})
	assert.ErrorIs(t, err, ErrInvalidProblem, "one feature vector for a two-state variable")

	err = p.AddUnary(Unary{Var: v, Features: [][]float64{{1, 2}, {1}}, WeightIDs: [][]int{{0}, {1}}})
	assert.ErrorIs(t, err, ErrInvalidProblem, "feature/weight-id length mismatch")

	err = p.AddUnary(Unary{Var: v, Features: [][]float64{{1}, {1}}, WeightIDs: [][]int{{0}, {5}}})
	assert.ErrorIs(t, err, ErrInvalidProblem, "weight id out of range")

	err = p.AddConstraint(LinearConstraint{Terms: []Term{{Var: v, State: 2, Coef: 1}}})
	assert.ErrorIs(t, err, ErrInvalidProblem)

	err = p.AddConstraint(LinearConstraint{Name: "empty"})
	assert.ErrorIs(t, err, ErrInvalidProblem)

	require.NoError(t, p.Fix(v, 1))
	assert.ErrorIs(t, p.Fix(v, 0), ErrInfeasible)
}

func TestProblem_EnergyAndFeatures(t *testing.T) {
	p := pickOneProblem(t)
	w := []float64{0.5, -1, 0, 2}
	y := Labeling{1, 0}

	assert.InDelta(t, -1.0, p.Energy(y, w), 1e-12)
	assert.Equal(t, []float64{0, 1, 1, 0}, p.JointFeatures(y))
	assert.True(t, p.Feasible(y))
	assert.False(t, p.Feasible(Labeling{1, 1}))
	assert.Equal(t, []int{0}, p.Violations(Labeling{1, 1}))
}

func TestProblem_CloneIsolation(t *testing.T) {
	p := pickOneProblem(t)
	q := p.Clone()
	require.NoError(t, q.Fix(0, 1))
	require.NoError(t, q.AddOffset(1, 1, -5))

	_, fixed := p.Fixed(0)
	assert.False(t, fixed, "fixing a clone must not fix the original")
	w := make([]float64, 4)
	assert.Zero(t, p.StateEnergy(1, 1, w))
	assert.Equal(t, -5.0, q.StateEnergy(1, 1, w))
}

func TestInfer_PicksCheapestFeasible(t *testing.T) {
	// Both variables want to be on; a is cheaper, so b stays off.
	w := []float64{0, -2, 0, -1}
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			y, err := inf.Infer(context.Background(), pickOneProblem(t), w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{1, 0}, y)
		})
	}
}

func TestInfer_TiesResolveToZero(t *testing.T) {
	w := make([]float64, 6)
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			y, err := inf.Infer(context.Background(), chainProblem(t), w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{0, 0, 0}, y)
		})
	}
}

func TestInfer_FlowCoupling(t *testing.T) {
	// The link alone is attractive enough to switch on both endpoints.
	w := []float64{0, 1, 0, -5, 0, 1}
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			y, err := inf.Infer(context.Background(), chainProblem(t), w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{1, 1, 1}, y)
		})
	}

	// Too expensive: everything stays off.
	w = []float64{0, 3, 0, -5, 0, 3}
	for name, inf := range engines() {
		t.Run(name+"/expensive", func(t *testing.T) {
			y, err := inf.Infer(context.Background(), chainProblem(t), w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{0, 0, 0}, y)
		})
	}
}

func TestInfer_MultiState(t *testing.T) {
	// A three-state variable whose value must equal the number of active
	// binaries; the binaries are cheap, the counter is free.
	p := NewProblem(3)
	count, _ := p.AddVariable(3)
	a, _ := p.AddVariable(2)
	b, _ := p.AddVariable(2)
	require.NoError(t, p.AddUnary(binaryUnary(a, [2]int{0, 1})))
	require.NoError(t, p.AddUnary(binaryUnary(b, [2]int{0, 2})))
	require.NoError(t, p.AddConstraint(LinearConstraint{
		Terms: []Term{
			{Var: count, State: 1, Coef: 1}, {Var: count, State: 2, Coef: 2},
			{Var: a, State: 1, Coef: -1}, {Var: b, State: 1, Coef: -1},
		},
		Relation: Equal,
	}))

	w := []float64{0, -1, -0.5}
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			y, err := inf.Infer(context.Background(), p, w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{2, 1, 1}, y)
		})
	}
}

func TestInfer_FixedAndInfeasible(t *testing.T) {
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			p := chainProblem(t)
			require.NoError(t, p.Fix(0, 1))
			y, err := inf.Infer(context.Background(), p, make([]float64, 6))
			require.NoError(t, err)
			assert.Equal(t, Labeling{1, 1, 1}, y, "fixing d0 forces the chain on")

			require.NoError(t, p.Fix(2, 0))
			_, err = inf.Infer(context.Background(), p, make([]float64, 6))
			assert.True(t, errors.Is(err, ErrInfeasible), "got %v", err)
		})
	}
}

func TestInfer_WeightCount(t *testing.T) {
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			_, err := inf.Infer(context.Background(), pickOneProblem(t), []float64{1})
			assert.ErrorIs(t, err, ErrWeightCount)
		})
	}
}

func TestBruteForce_TooLarge(t *testing.T) {
	p := NewProblem(0)
	for i := 0; i < 5; i++ {
		_, err := p.AddVariable(2)
		require.NoError(t, err)
	}
	_, err := BruteForce{MaxVariables: 4}.Infer(context.Background(), p, nil)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestInfer_EmptyProblem(t *testing.T) {
	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			y, err := inf.Infer(context.Background(), NewProblem(0), nil)
			require.NoError(t, err)
			assert.Empty(t, y)
		})
	}
}

func TestILP_MatchesBruteForce(t *testing.T) {
	weightSets := [][]float64{
		{0.3, -0.2, 0.1, -0.7, 0.4, -0.1},
		{-1, 2, 0.5, -3, 1, -0.25},
		{0, -0.5, 0, -0.5, 0, -0.5},
	}
	for i, w := range weightSets {
		p := chainProblem(t)
		want, err := BruteForce{}.Infer(context.Background(), p, w)
		require.NoError(t, err)
		got, err := ILP{}.Infer(context.Background(), p, w)
		require.NoError(t, err)
		assert.InDelta(t, p.Energy(want, w), p.Energy(got, w), 1e-9, "weight set %d", i)
	}
}

func TestInfer_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ILP{}.Infer(ctx, chainProblem(t), make([]float64, 6))
	assert.ErrorIs(t, err, context.Canceled)
}

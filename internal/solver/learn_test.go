package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearner_SingleVariable(t *testing.T) {
	p := NewProblem(2)
	v, err := p.AddVariable(2)
	require.NoError(t, err)
	require.NoError(t, p.AddUnary(binaryUnary(v, [2]int{0, 1})))

	var objectives []float64
	l := DefaultLearner()
	l.OnEpoch = func(_ int, obj float64) { objectives = append(objectives, obj) }

	engine := NewEngine(BruteForce{}, l)
	w, err := engine.Learn(context.Background(), p, PartialLabeling{v: 1}, []float64{0, 0})
	require.NoError(t, err)
	require.Len(t, w, 2)

	assert.Greater(t, w[0], w[1], "state 1 must become cheaper than state 0")
	assert.NotEmpty(t, objectives)
	assert.Less(t, len(objectives), l.Epochs, "learning should converge early")

	y, err := engine.Infer(context.Background(), p, w)
	require.NoError(t, err)
	assert.Equal(t, Labeling{1}, y)
}

func TestLearner_PartialGroundTruthOnChain(t *testing.T) {
	// Only the link is labeled; the detections are latent and must be
	// completed through the flow constraints.
	p := chainProblem(t)
	init := make([]float64, p.NumWeights())

	for name, inf := range engines() {
		t.Run(name, func(t *testing.T) {
			engine := NewEngine(inf, DefaultLearner())
			w, err := engine.Learn(context.Background(), p, PartialLabeling{1: 1}, init)
			require.NoError(t, err)

			y, err := engine.Infer(context.Background(), p, w)
			require.NoError(t, err)
			assert.Equal(t, Labeling{1, 1, 1}, y)
			assert.True(t, p.Feasible(y))
		})
	}
}

func TestLearner_InfeasibleGroundTruth(t *testing.T) {
	p := pickOneProblem(t)
	engine := NewEngine(BruteForce{}, DefaultLearner())
	_, err := engine.Learn(context.Background(), p, PartialLabeling{0: 1, 1: 1}, make([]float64, 4))
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestLearner_Rejects(t *testing.T) {
	p := pickOneProblem(t)
	engine := NewEngine(BruteForce{}, nil)

	_, err := engine.Learn(context.Background(), p, PartialLabeling{}, make([]float64, 4))
	assert.ErrorIs(t, err, ErrInvalidProblem)

	_, err = engine.Learn(context.Background(), p, PartialLabeling{0: 1}, make([]float64, 3))
	assert.ErrorIs(t, err, ErrWeightCount)

	_, err = engine.Learn(context.Background(), p, PartialLabeling{7: 1}, make([]float64, 4))
	assert.ErrorIs(t, err, ErrInvalidProblem)
}

package hypothesis

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hypotrack/internal/solver"
)

// perState builds one single-feature vector per state: 0 when inactive, 1 otherwise.
func perState(numStates int) StateFeatures {
	f := make(StateFeatures, numStates)
	for s := range f {
		if s > 0 {
			f[s] = []float64{1}
		} else {
			f[s] = []float64{0}
		}
	}
	return f
}

// scenarioGraph: A (frame 0), B and C (frame 1), link A -> B, exclusion {B, C}.
func scenarioGraph() Graph {
	return Graph{
		Detections: []DetectionRecord{
			{ID: 1, Timestep: 0, Features: StateFeatures{{0.5}}},
			{ID: 2, Timestep: 1, Features: StateFeatures{{0.5}}},
			{ID: 3, Timestep: 1, Features: StateFeatures{{0.5}}},
		},
		Links:      []LinkRecord{{Src: 1, Dest: 2, Features: StateFeatures{{0.2, 0.7}}}},
		Exclusions: []ExclusionRecord{{Members: []ID{2, 3}}},
	}
}

// divisionGraph: parent 1 with children 2 and 3, links 1 -> 2 and 1 -> 3.
func divisionGraph() Graph {
	det := func(id ID, t int) DetectionRecord {
		return DetectionRecord{ID: id, Timestep: t, Features: perState(2), AppearanceFeatures: perState(2), DisappearanceFeatures: perState(2)}
	}
	return Graph{
		Detections: []DetectionRecord{det(1, 0), det(2, 1), det(3, 1)},
		Links: []LinkRecord{
			{Src: 1, Dest: 2, Features: perState(2)},
			{Src: 1, Dest: 3, Features: perState(2)},
		},
		Divisions: []DivisionRecord{{Parent: 1, Children: [2]ID{2, 3}, Features: perState(2)}},
	}
}

func divisionTruth() Result {
	return Result{
		Detections: []DetectionResult{{ID: 1, Value: true}, {ID: 2, Value: true}, {ID: 3, Value: true}},
		Links:      []LinkResult{{Src: 1, Dest: 2}, {Src: 1, Dest: 3}},
		Divisions:  []DivisionResult{{Parent: 1, Children: [2]ID{2, 3}, Value: true}},
	}
}

func sharedSettings() Settings {
	s := DefaultSettings()
	s.StatesShareWeights = true
	return s
}

func newLinkedModel(t *testing.T, settings Settings, g Graph) *Model {
	t.Helper()
	m := NewModel(settings)
	require.NoError(t, m.Ingest(g))
	require.NoError(t, m.Link())
	return m
}

func newBuiltModel(t *testing.T, settings Settings, g Graph) *Model {
	t.Helper()
	m := newLinkedModel(t, settings, g)
	require.NoError(t, m.BuildProblem())
	return m
}

func detection(t *testing.T, m *Model, id ID) *SegmentationHypothesis {
	t.Helper()
	h, ok := m.Detections().Get(id)
	require.True(t, ok, "detection %d", id)
	return h
}

func engines() map[string]solver.Inferer {
	return map[string]solver.Inferer{
		"bruteforce": solver.BruteForce{},
		"ilp":        solver.ILP{},
	}
}

func TestScenarioZeroWeightsLeavesEverythingInactive(t *testing.T) {
	for name, engine := range engines() {
		t.Run(name, func(t *testing.T) {
			m := newLinkedModel(t, DefaultSettings(), scenarioGraph())
			n, err := m.NumWeights()
			require.NoError(t, err)
			assert.Equal(t, 6, n)

			sol, err := m.Infer(context.Background(), engine, make([]float64, n))
			require.NoError(t, err)
			assert.Equal(t, StateSolved, m.State())
			for v, s := range sol {
				assert.Equal(t, 0, s, "variable %d", v)
			}

			report := m.VerifySolution(sol)
			assert.True(t, report.Valid(), report.String())
		})
	}
}

func TestForcedDivisionActivatesChildren(t *testing.T) {
	for name, engine := range engines() {
		t.Run(name, func(t *testing.T) {
			g := divisionGraph()
			g.Links = nil
			m := newBuiltModel(t, sharedSettings(), g)
			div, ok := m.DivisionByKey(NewDivisionKey(1, [2]ID{3, 2}))
			require.True(t, ok)

			p := m.Problem()
			require.NoError(t, p.Fix(detection(t, m, 1).DetectionVariable().ID(), 1))
			require.NoError(t, p.Fix(div.Variable().ID(), 1))

			sol, err := m.Infer(context.Background(), engine, make([]float64, p.NumWeights()))
			require.NoError(t, err)
			assert.True(t, detection(t, m, 2).DetectionVariable().Active(sol))
			assert.True(t, detection(t, m, 3).DetectionVariable().Active(sol))
			assert.True(t, m.VerifySolution(sol).Valid())
		})
	}
}

func TestInferredSolutionsSatisfyConstraints(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		var energies []float64
		var w []float64
		for _, name := range []string{"bruteforce", "ilp"} {
			m := newLinkedModel(t, DefaultSettings(), divisionGraph())
			if w == nil {
				n, err := m.NumWeights()
				require.NoError(t, err)
				w = make([]float64, n)
				for i := range w {
					w[i] = rng.NormFloat64()
				}
			}
			sol, err := m.Infer(context.Background(), engines()[name], w)
			require.NoError(t, err, "trial %d %s", trial, name)
			report := m.VerifySolution(sol)
			require.True(t, report.Valid(), "trial %d %s: %s", trial, name, report)
			energies = append(energies, m.Problem().Energy(sol, w))
		}
		assert.InDelta(t, energies[0], energies[1], 1e-6, "trial %d", trial)
	}
}

func TestLearnThenInferIsFeasible(t *testing.T) {
	learner := &solver.Learner{Epochs: 60, LearningRate: 0.5, Regularization: 0.01, LossWeight: 1, Tolerance: 1e-6}
	var objectives []float64
	learner.OnEpoch = func(_ int, obj float64) { objectives = append(objectives, obj) }

	m := newLinkedModel(t, sharedSettings(), divisionGraph())
	w, err := m.Learn(context.Background(), solver.NewEngine(solver.BruteForce{}, learner), divisionTruth())
	require.NoError(t, err)
	require.Len(t, w, 5)
	assert.NotEmpty(t, objectives)
	assert.Equal(t, StateSolved, m.State())

	replay := newLinkedModel(t, sharedSettings(), divisionGraph())
	sol, err := replay.Infer(context.Background(), solver.ILP{}, w)
	require.NoError(t, err)
	report := replay.VerifySolution(sol)
	assert.True(t, report.Valid(), report.String())
}

func TestLearnRejectsBadTruth(t *testing.T) {
	engine := solver.NewEngine(solver.BruteForce{}, nil)

	m := newLinkedModel(t, sharedSettings(), divisionGraph())
	_, err := m.Learn(context.Background(), engine, Result{Links: []LinkResult{{Src: 2, Dest: 3, Value: true}}})
	assert.ErrorIs(t, err, ErrDanglingReference)

	m = newLinkedModel(t, sharedSettings(), divisionGraph())
	_, err = m.Learn(context.Background(), engine, Result{})
	assert.ErrorIs(t, err, ErrStructure)

	m = newLinkedModel(t, sharedSettings(), divisionGraph())
	_, err = m.Learn(context.Background(), engine, Result{Detections: []DetectionResult{{ID: 1, State: 5}}})
	assert.ErrorIs(t, err, ErrStructure)
}

func TestModelIsSingleUse(t *testing.T) {
	m := newLinkedModel(t, DefaultSettings(), scenarioGraph())
	w := make([]float64, 6)
	_, err := m.Infer(context.Background(), solver.BruteForce{}, w)
	require.NoError(t, err)

	_, err = m.Infer(context.Background(), solver.BruteForce{}, w)
	assert.ErrorIs(t, err, ErrAlreadySolved)
	_, err = m.Learn(context.Background(), solver.NewEngine(solver.BruteForce{}, nil), divisionTruth())
	assert.ErrorIs(t, err, ErrAlreadySolved)
	assert.ErrorIs(t, m.BuildProblem(), ErrAlreadySolved)
	assert.ErrorIs(t, m.Link(), ErrAlreadySolved)
}

func TestModelRejectsOutOfOrderCalls(t *testing.T) {
	m := NewModel(DefaultSettings())
	err := m.Link()
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.False(t, errors.Is(err, ErrAlreadySolved))
	assert.ErrorIs(t, m.BuildProblem(), ErrInvalidState)
	_, err = m.Infer(context.Background(), solver.BruteForce{}, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = m.ComputeWeightLayout()
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, m.Ingest(scenarioGraph()))
	assert.ErrorIs(t, m.Ingest(scenarioGraph()), ErrInvalidState)
	assert.ErrorIs(t, m.BuildProblem(), ErrInvalidState)
	require.NoError(t, m.Link())
	assert.ErrorIs(t, m.Link(), ErrInvalidState)
	assert.Equal(t, StateRegistered, m.State())
}

func TestInferFailures(t *testing.T) {
	m := newLinkedModel(t, DefaultSettings(), scenarioGraph())
	_, err := m.Infer(context.Background(), solver.BruteForce{}, []float64{1})
	assert.ErrorIs(t, err, ErrStructure)
	assert.Equal(t, StateSolved, m.State())

	m = newBuiltModel(t, DefaultSettings(), scenarioGraph())
	p := m.Problem()
	require.NoError(t, p.Fix(detection(t, m, 2).DetectionVariable().ID(), 1))
	require.NoError(t, p.Fix(detection(t, m, 3).DetectionVariable().ID(), 1))
	_, err = m.Infer(context.Background(), solver.BruteForce{}, make([]float64, 6))
	assert.ErrorIs(t, err, solver.ErrInfeasible)
}

func TestIngestRejectsMalformedGraphs(t *testing.T) {
	dets := func() []DetectionRecord {
		return []DetectionRecord{
			{ID: 1, Timestep: 0},
			{ID: 2, Timestep: 1},
			{ID: 3, Timestep: 1},
			{ID: 4, Timestep: 2},
		}
	}
	tests := []struct {
		name    string
		graph   Graph
		section string
		index   int
		dangle  bool
	}{
		{
			name:    "duplicate detection",
			graph:   Graph{Detections: append(dets(), DetectionRecord{ID: 2, Timestep: 1})},
			section: SectionDetections, index: 4,
		},
		{
			name:    "too many per-state features",
			graph:   Graph{Detections: []DetectionRecord{{ID: 1, Features: StateFeatures{{1}, {1}, {1}}}}},
			section: SectionDetections, index: 0,
		},
		{
			name:    "ragged per-state features",
			graph:   Graph{Detections: []DetectionRecord{{ID: 1, AppearanceFeatures: StateFeatures{{1}, {1, 2}}}}},
			section: SectionDetections, index: 0,
		},
		{
			name:    "dangling link",
			graph:   Graph{Detections: dets(), Links: []LinkRecord{{Src: 1, Dest: 9}}},
			section: SectionLinks, index: 0, dangle: true,
		},
		{
			name:    "self link",
			graph:   Graph{Detections: dets(), Links: []LinkRecord{{Src: 1, Dest: 1}}},
			section: SectionLinks, index: 0,
		},
		{
			name:    "link skips a frame",
			graph:   Graph{Detections: dets(), Links: []LinkRecord{{Src: 1, Dest: 2}, {Src: 1, Dest: 4}}},
			section: SectionLinks, index: 1,
		},
		{
			name:    "duplicate link",
			graph:   Graph{Detections: dets(), Links: []LinkRecord{{Src: 1, Dest: 2}, {Src: 1, Dest: 2}}},
			section: SectionLinks, index: 1,
		},
		{
			name:    "division with identical children",
			graph:   Graph{Detections: dets(), Divisions: []DivisionRecord{{Parent: 1, Children: [2]ID{2, 2}}}},
			section: SectionDivisions, index: 0,
		},
		{
			name:    "dangling division child",
			graph:   Graph{Detections: dets(), Divisions: []DivisionRecord{{Parent: 1, Children: [2]ID{2, 8}}}},
			section: SectionDivisions, index: 0, dangle: true,
		},
		{
			name: "duplicate division with swapped children",
			graph: Graph{Detections: dets(), Divisions: []DivisionRecord{
				{Parent: 1, Children: [2]ID{2, 3}},
				{Parent: 1, Children: [2]ID{3, 2}},
			}},
			section: SectionDivisions, index: 1,
		},
		{
			name:    "empty exclusion",
			graph:   Graph{Detections: dets(), Exclusions: []ExclusionRecord{{}}},
			section: SectionExclusions, index: 0,
		},
		{
			name:    "unknown exclusion member",
			graph:   Graph{Detections: dets(), Exclusions: []ExclusionRecord{{Members: []ID{2, 3}}, {Members: []ID{2, 7}}}},
			section: SectionExclusions, index: 1, dangle: true,
		},
		{
			name:    "repeated exclusion member",
			graph:   Graph{Detections: dets(), Exclusions: []ExclusionRecord{{Members: []ID{2, 2}}}},
			section: SectionExclusions, index: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(DefaultSettings())
			err := m.Ingest(tt.graph)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrStructure)
			if tt.dangle {
				assert.ErrorIs(t, err, ErrDanglingReference)
			}
			var rec *RecordError
			require.ErrorAs(t, err, &rec)
			assert.Equal(t, tt.section, rec.Section)
			assert.Equal(t, tt.index, rec.Index)
			assert.Equal(t, StateEmpty, m.State())
			assert.Equal(t, 0, m.Detections().Len())
		})
	}
}

func TestIngestAllowsUnknownTimesteps(t *testing.T) {
	m := NewModel(DefaultSettings())
	require.NoError(t, m.Ingest(Graph{
		Detections: []DetectionRecord{{ID: 1, Timestep: UnknownTimestep}, {ID: 2, Timestep: 5}},
		Links:      []LinkRecord{{Src: 1, Dest: 2}},
	}))
	require.NoError(t, m.Link())
	assert.Equal(t, []int{0}, detection(t, m, 1).OutgoingLinks())
	assert.Equal(t, []int{0}, detection(t, m, 2).IncomingLinks())
}

func TestLinkRegistersIncidence(t *testing.T) {
	m := newLinkedModel(t, DefaultSettings(), divisionGraph())

	parent := detection(t, m, 1)
	assert.Equal(t, []int{0, 1}, parent.OutgoingLinks())
	assert.Equal(t, []int{0}, parent.ParentOfDivisions())
	assert.Empty(t, parent.IncomingLinks())
	for _, id := range []ID{2, 3} {
		child := detection(t, m, id)
		assert.Len(t, child.IncomingLinks(), 1)
		assert.Equal(t, []int{0}, child.ChildOfDivisions())
	}
}

func TestBuildProblemVariableOrder(t *testing.T) {
	m := newBuiltModel(t, DefaultSettings(), divisionGraph())
	p := m.Problem()

	// 3 detections x (detection, appearance, disappearance), 2 links, 1 division.
	assert.Equal(t, 12, p.NumVariables())
	h := detection(t, m, 2)
	assert.Equal(t, 3, h.DetectionVariable().ID())
	assert.Equal(t, 4, h.AppearanceVariable().ID())
	assert.Equal(t, 5, h.DisappearanceVariable().ID())
	assert.Equal(t, 9, m.Links()[0].Variable().ID())
	assert.Equal(t, 11, m.Divisions()[0].Variable().ID())

	// two flow constraints per detection, one division/link exclusivity per outgoing link of the parent.
	assert.Len(t, p.Constraints(), 3*2+2)
}

func TestGroundTruthLabeling(t *testing.T) {
	m := newBuiltModel(t, sharedSettings(), divisionGraph())
	labels, err := m.GroundTruthLabeling(divisionTruth())
	require.NoError(t, err)

	want := solver.PartialLabeling{0: 1, 3: 1, 6: 1, 9: 0, 10: 0, 11: 1}
	if diff := cmp.Diff(want, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	conflicting := divisionTruth()
	conflicting.Links = append(conflicting.Links, LinkResult{Src: 1, Dest: 2, Value: true})
	_, err = m.GroundTruthLabeling(conflicting)
	assert.ErrorIs(t, err, ErrStructure)
}

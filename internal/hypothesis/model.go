package hypothesis

import (
	"context"
	"fmt"

	"github.com/banshee-data/hypotrack/internal/monitoring"
	"github.com/banshee-data/hypotrack/internal/solver"
)

// State is the lifecycle stage of a Model.
type State int

const (
	StateEmpty State = iota
	StateIngested
	StateRegistered
	StateProblemBuilt
	StateSolved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateIngested:
		return "ingested"
	case StateRegistered:
		return "registered"
	case StateProblemBuilt:
		return "problem-built"
	case StateSolved:
		return "solved"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Model owns all hypotheses and the optimization problem built from them.
// It is not safe for concurrent use and may be solved only once.
type Model struct {
	settings Settings
	state    State

	detections    *Detections
	links         []*LinkingHypothesis
	linkIndex     map[LinkKey]int
	divisions     []*DivisionHypothesis
	divisionIndex map[DivisionKey]int
	exclusions    []*ExclusionConstraint

	layout  *WeightLayout
	problem *solver.Problem
}

// NewModel creates an empty Model.
func NewModel(settings Settings) *Model {
	return &Model{
		settings:      settings,
		detections:    NewDetections(),
		linkIndex:     make(map[LinkKey]int),
		divisionIndex: make(map[DivisionKey]int),
	}
}

// State returns the current lifecycle state.
func (m *Model) State() State { return m.state }

// Settings returns the settings the Model was created with.
func (m *Model) Settings() Settings { return m.settings }

// Detections returns the ingested segmentation hypotheses.
func (m *Model) Detections() *Detections { return m.detections }

// Links returns the linking hypotheses in ingestion order.
func (m *Model) Links() []*LinkingHypothesis { return m.links }

// Divisions returns the division hypotheses in ingestion order.
func (m *Model) Divisions() []*DivisionHypothesis { return m.divisions }

// Exclusions returns the exclusion constraints in ingestion order.
func (m *Model) Exclusions() []*ExclusionConstraint { return m.exclusions }

// Problem returns the optimization problem, nil before BuildProblem.
func (m *Model) Problem() *solver.Problem { return m.problem }

// LinkByKey returns the linking hypothesis with key k.
func (m *Model) LinkByKey(k LinkKey) (*LinkingHypothesis, bool) {
	i, ok := m.linkIndex[k]
	if !ok {
		return nil, false
	}
	return m.links[i], true
}

// DivisionByKey returns the division hypothesis with key k.
func (m *Model) DivisionByKey(k DivisionKey) (*DivisionHypothesis, bool) {
	i, ok := m.divisionIndex[NewDivisionKey(k.Parent, k.Children)]
	if !ok {
		return nil, false
	}
	return m.divisions[i], true
}

func (m *Model) require(op string, allowed ...State) error {
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	if m.state == StateSolved {
		return fmt.Errorf("%s: %w", op, ErrAlreadySolved)
	}
	return fmt.Errorf("%s in state %s: %w", op, m.state, ErrInvalidState)
}

// Ingest validates g and fills the typed containers. Detection identifiers
// must be unique and every link, division and exclusion must reference
// ingested detections. On error the Model stays empty.
func (m *Model) Ingest(g Graph) error {
	if err := m.require("ingest", StateEmpty); err != nil {
		return err
	}

	detections := NewDetections()
	detStates := m.settings.detectionStates()
	for i, rec := range g.Detections {
		det, err := rec.Features.expand(detStates)
		if err != nil {
			return &RecordError{Section: SectionDetections, Index: i, Field: "features", Err: structuralf("%v", err)}
		}
		app, err := rec.AppearanceFeatures.expand(detStates)
		if err != nil {
			return &RecordError{Section: SectionDetections, Index: i, Field: "appearanceFeatures", Err: structuralf("%v", err)}
		}
		dis, err := rec.DisappearanceFeatures.expand(detStates)
		if err != nil {
			return &RecordError{Section: SectionDetections, Index: i, Field: "disappearanceFeatures", Err: structuralf("%v", err)}
		}
		if err := detections.Add(NewSegmentationHypothesis(rec.ID, rec.Timestep, det, app, dis)); err != nil {
			return &RecordError{Section: SectionDetections, Index: i, Field: "id", Err: err}
		}
	}

	links := make([]*LinkingHypothesis, 0, len(g.Links))
	linkIndex := make(map[LinkKey]int, len(g.Links))
	for i, rec := range g.Links {
		if err := checkSuccessor(detections, rec.Src, rec.Dest); err != nil {
			return &RecordError{Section: SectionLinks, Index: i, Err: err}
		}
		key := LinkKey{Src: rec.Src, Dest: rec.Dest}
		if _, dup := linkIndex[key]; dup {
			return &RecordError{Section: SectionLinks, Index: i, Err: structuralf("duplicate link %d -> %d", rec.Src, rec.Dest)}
		}
		features, err := rec.Features.expand(2)
		if err != nil {
			return &RecordError{Section: SectionLinks, Index: i, Field: "features", Err: structuralf("%v", err)}
		}
		linkIndex[key] = len(links)
		links = append(links, NewLinkingHypothesis(rec.Src, rec.Dest, features))
	}

	divisions := make([]*DivisionHypothesis, 0, len(g.Divisions))
	divisionIndex := make(map[DivisionKey]int, len(g.Divisions))
	for i, rec := range g.Divisions {
		if rec.Children[0] == rec.Children[1] {
			return &RecordError{Section: SectionDivisions, Index: i, Field: "children", Err: structuralf("both children are detection %d", rec.Children[0])}
		}
		for _, child := range rec.Children {
			if err := checkSuccessor(detections, rec.Parent, child); err != nil {
				return &RecordError{Section: SectionDivisions, Index: i, Err: err}
			}
		}
		key := NewDivisionKey(rec.Parent, rec.Children)
		if _, dup := divisionIndex[key]; dup {
			return &RecordError{Section: SectionDivisions, Index: i, Err: structuralf("duplicate division %d -> %v", rec.Parent, rec.Children)}
		}
		features, err := rec.Features.expand(2)
		if err != nil {
			return &RecordError{Section: SectionDivisions, Index: i, Field: "features", Err: structuralf("%v", err)}
		}
		divisionIndex[key] = len(divisions)
		divisions = append(divisions, NewDivisionHypothesis(rec.Parent, rec.Children, features))
	}

	exclusions := make([]*ExclusionConstraint, 0, len(g.Exclusions))
	for i, rec := range g.Exclusions {
		if len(rec.Members) == 0 {
			return &RecordError{Section: SectionExclusions, Index: i, Err: structuralf("empty exclusion group")}
		}
		seen := make(map[ID]bool, len(rec.Members))
		for _, id := range rec.Members {
			if _, ok := detections.Get(id); !ok {
				return &RecordError{Section: SectionExclusions, Index: i, Err: fmt.Errorf("%w: unknown detection %d", ErrDanglingReference, id)}
			}
			if seen[id] {
				return &RecordError{Section: SectionExclusions, Index: i, Err: structuralf("detection %d listed twice", id)}
			}
			seen[id] = true
		}
		exclusions = append(exclusions, NewExclusionConstraint(rec.Members))
	}

	m.detections = detections
	m.links, m.linkIndex = links, linkIndex
	m.divisions, m.divisionIndex = divisions, divisionIndex
	m.exclusions = exclusions
	m.state = StateIngested
	monitoring.Logf("model: ingested %d detections, %d links, %d divisions, %d exclusions",
		detections.Len(), len(links), len(divisions), len(exclusions))
	return nil
}

// checkSuccessor verifies that both detections exist and, when frames are
// known, that next lies in the frame after prev.
func checkSuccessor(detections *Detections, prev, next ID) error {
	p, ok := detections.Get(prev)
	if !ok {
		return fmt.Errorf("%w: unknown detection %d", ErrDanglingReference, prev)
	}
	n, ok := detections.Get(next)
	if !ok {
		return fmt.Errorf("%w: unknown detection %d", ErrDanglingReference, next)
	}
	if prev == next {
		return structuralf("detection %d cannot follow itself", prev)
	}
	if p.Timestep() != UnknownTimestep && n.Timestep() != UnknownTimestep && n.Timestep() != p.Timestep()+1 {
		return structuralf("detection %d (frame %d) is not in the frame after detection %d (frame %d)",
			next, n.Timestep(), prev, p.Timestep())
	}
	return nil
}

// Link wires every link and division into the incidence lists of the
// detections it touches. It runs exactly once per Model.
func (m *Model) Link() error {
	if err := m.require("link", StateIngested); err != nil {
		return err
	}
	for i, l := range m.links {
		if err := l.RegisterWithSegmentations(i, m.detections); err != nil {
			return &RecordError{Section: SectionLinks, Index: i, Err: err}
		}
	}
	for i, d := range m.divisions {
		if err := d.RegisterWithSegmentations(i, m.detections); err != nil {
			return &RecordError{Section: SectionDivisions, Index: i, Err: err}
		}
	}
	m.state = StateRegistered
	return nil
}

// ComputeWeightLayout derives the weight vector layout from the feature
// lengths of the ingested hypotheses. It is a pure function of those
// lengths and the settings, so repeated calls return identical layouts.
func (m *Model) ComputeWeightLayout() (WeightLayout, error) {
	if m.state == StateEmpty {
		return WeightLayout{}, fmt.Errorf("compute weight layout in state %s: %w", m.state, ErrInvalidState)
	}
	if m.layout != nil {
		return cloneLayout(*m.layout), nil
	}

	var in layoutInput
	for i := 0; i < m.detections.Len(); i++ {
		h := m.detections.At(i)
		in.observe(KindDetection, h.detectionFeatures.NumFeatures())
		in.observe(KindAppearance, h.appearanceFeatures.NumFeatures())
		in.observe(KindDisappearance, h.disappearanceFeatures.NumFeatures())
	}
	for _, d := range m.divisions {
		in.observe(KindDivision, d.features.NumFeatures())
	}
	for _, l := range m.links {
		in.observe(KindLink, l.features.NumFeatures())
	}

	var numStates [numKinds]int
	det := m.settings.detectionStates()
	numStates[KindDetection], numStates[KindAppearance], numStates[KindDisappearance] = det, det, det
	numStates[KindDivision], numStates[KindLink] = 2, 2

	layout, err := newWeightLayout(in, numStates, m.settings.StatesShareWeights)
	if err != nil {
		return WeightLayout{}, err
	}
	m.layout = &layout
	return cloneLayout(layout), nil
}

func cloneLayout(l WeightLayout) WeightLayout {
	return WeightLayout{Blocks: append([]WeightBlock(nil), l.Blocks...)}
}

// NumWeights returns the weight vector length.
func (m *Model) NumWeights() (int, error) {
	layout, err := m.ComputeWeightLayout()
	if err != nil {
		return 0, err
	}
	return layout.NumWeights(), nil
}

// WeightDescriptions labels every entry of the weight vector.
func (m *Model) WeightDescriptions() ([]string, error) {
	layout, err := m.ComputeWeightLayout()
	if err != nil {
		return nil, err
	}
	return layout.Descriptions(), nil
}

// BuildProblem adds every variable and unary, then every flow, division
// and exclusion constraint, to a fresh solver.Problem. Variables are
// numbered in insertion order: detections (detection, appearance,
// disappearance each), then links, then divisions.
func (m *Model) BuildProblem() error {
	if err := m.require("build problem", StateRegistered); err != nil {
		return err
	}
	layout, err := m.ComputeWeightLayout()
	if err != nil {
		return err
	}

	p := solver.NewProblem(layout.NumWeights())
	detStates := m.settings.detectionStates()
	detIDs := layout.Block(KindDetection).IDs()
	appIDs := layout.Block(KindAppearance).IDs()
	disIDs := layout.Block(KindDisappearance).IDs()
	for i := 0; i < m.detections.Len(); i++ {
		if err := m.detections.At(i).AddToProblem(p, detStates, detIDs, appIDs, disIDs); err != nil {
			return err
		}
	}
	linkIDs := layout.Block(KindLink).IDs()
	for _, l := range m.links {
		if err := l.AddToProblem(p, linkIDs); err != nil {
			return err
		}
	}
	divIDs := layout.Block(KindDivision).IDs()
	for _, d := range m.divisions {
		if err := d.AddToProblem(p, divIDs); err != nil {
			return err
		}
	}

	if err := m.addFlowConstraints(p); err != nil {
		return err
	}
	for _, e := range m.exclusions {
		if err := e.AddToProblem(p, m.detections); err != nil {
			return err
		}
	}

	m.problem = p
	m.state = StateProblemBuilt
	monitoring.Logf("model: problem has %d variables, %d constraints, %d weights",
		p.NumVariables(), len(p.Constraints()), p.NumWeights())
	return nil
}

// prepareSolve moves the Model to ProblemBuilt if needed and marks it solved.
func (m *Model) prepareSolve(op string) error {
	if err := m.require(op, StateRegistered, StateProblemBuilt); err != nil {
		return err
	}
	if m.state == StateRegistered {
		if err := m.BuildProblem(); err != nil {
			return err
		}
	}
	m.state = StateSolved
	return nil
}

// Infer computes the minimum-energy labeling for fixed weights. The result
// is indexed by solver variable id; query it through hypothesis variables
// or Export. The Model is consumed even if the engine fails.
func (m *Model) Infer(ctx context.Context, engine solver.Inferer, weights []float64) (solver.Labeling, error) {
	if err := m.prepareSolve("infer"); err != nil {
		return nil, err
	}
	if len(weights) != m.problem.NumWeights() {
		return nil, structuralf("weight vector has %d entries, model needs %d", len(weights), m.problem.NumWeights())
	}
	sol, err := engine.Infer(ctx, m.problem, weights)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	monitoring.Logf("model: inference energy %g", m.problem.Energy(sol, weights))
	return sol, nil
}

// Learn estimates weights from a partial ground truth. Hypotheses missing
// from gt stay latent.
func (m *Model) Learn(ctx context.Context, engine solver.Engine, gt Result) ([]float64, error) {
	if err := m.prepareSolve("learn"); err != nil {
		return nil, err
	}
	labels, err := m.GroundTruthLabeling(gt)
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		return nil, structuralf("ground truth does not label any hypothesis")
	}
	init := make([]float64, m.problem.NumWeights())
	for i := range init {
		init[i] = m.settings.InitialWeight
	}
	monitoring.Logf("model: learning %d weights from %d labeled variables", len(init), len(labels))
	w, err := engine.Learn(ctx, m.problem, labels, init)
	if err != nil {
		return nil, fmt.Errorf("learning failed: %w", err)
	}
	return w, nil
}

// GroundTruthLabeling maps ground-truth records onto solver variables.
// Records naming unknown hypotheses are structural errors.
func (m *Model) GroundTruthLabeling(gt Result) (solver.PartialLabeling, error) {
	if m.problem == nil {
		return nil, fmt.Errorf("ground truth labeling in state %s: %w", m.state, ErrInvalidState)
	}
	labels := make(solver.PartialLabeling)
	set := func(v Variable, state int) error {
		if prev, ok := labels[v.ID()]; ok && prev != state {
			return structuralf("conflicting labels %d and %d", prev, state)
		}
		if state < 0 || state >= v.NumStates() {
			return structuralf("state %d outside [0,%d)", state, v.NumStates())
		}
		labels[v.ID()] = state
		return nil
	}

	for i, r := range gt.Detections {
		h, ok := m.detections.Get(r.ID)
		if !ok {
			return nil, &RecordError{Section: SectionDetectionResults, Index: i, Err: fmt.Errorf("%w: unknown detection %d", ErrDanglingReference, r.ID)}
		}
		if err := set(h.DetectionVariable(), r.state()); err != nil {
			return nil, &RecordError{Section: SectionDetectionResults, Index: i, Err: err}
		}
	}
	for i, r := range gt.Links {
		l, ok := m.LinkByKey(LinkKey{Src: r.Src, Dest: r.Dest})
		if !ok {
			return nil, &RecordError{Section: SectionLinkResults, Index: i, Err: fmt.Errorf("%w: unknown link %d -> %d", ErrDanglingReference, r.Src, r.Dest)}
		}
		if err := set(l.Variable(), boolState(r.Value)); err != nil {
			return nil, &RecordError{Section: SectionLinkResults, Index: i, Err: err}
		}
	}
	for i, r := range gt.Divisions {
		d, ok := m.DivisionByKey(DivisionKey{Parent: r.Parent, Children: r.Children})
		if !ok {
			return nil, &RecordError{Section: SectionDivisionResults, Index: i, Err: fmt.Errorf("%w: unknown division %d -> %v", ErrDanglingReference, r.Parent, r.Children)}
		}
		if err := set(d.Variable(), boolState(r.Value)); err != nil {
			return nil, &RecordError{Section: SectionDivisionResults, Index: i, Err: err}
		}
	}
	return labels, nil
}

func boolState(b bool) int {
	if b {
		return 1
	}
	return 0
}

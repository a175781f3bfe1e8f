package solver

import "context"

// Inferer computes the minimum-energy feasible labeling of a problem.
type Inferer interface {
	Infer(ctx context.Context, p *Problem, w []float64) (Labeling, error)
}

// Engine is the optimization engine consumed by the hypothesis model:
// inference under fixed weights and structured learning from a partial
// ground truth.
type Engine interface {
	Inferer
	Learn(ctx context.Context, p *Problem, gt PartialLabeling, init []float64) ([]float64, error)
}

type engine struct {
	Inferer
	learner *Learner
}

// NewEngine combines an inference backend with a learner. Learning calls
// back into inf for loss-augmented and ground-truth-constrained inference.
func NewEngine(inf Inferer, learner *Learner) Engine {
	if learner == nil {
		learner = DefaultLearner()
	}
	return &engine{Inferer: inf, learner: learner}
}

func (e *engine) Learn(ctx context.Context, p *Problem, gt PartialLabeling, init []float64) ([]float64, error) {
	return e.learner.Learn(ctx, e.Inferer, p, gt, init)
}

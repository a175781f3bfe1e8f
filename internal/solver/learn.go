package solver

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/hypotrack/internal/monitoring"
)

// Learner estimates weights with a subgradient structured SVM. The ground
// truth may be partial: unlabeled variables are completed by inference
// constrained to agree with the labeled ones, and the Hamming loss only
// counts labeled variables.
type Learner struct {
	Epochs         int
	LearningRate   float64
	Regularization float64
	LossWeight     float64
	Tolerance      float64

	// OnEpoch, if set, is called after every epoch with the regularised
	// hinge objective at the weights used in that epoch.
	OnEpoch func(epoch int, objective float64)
}

// DefaultLearner returns a Learner with the stock parameters.
func DefaultLearner() *Learner {
	return &Learner{
		Epochs:         200,
		LearningRate:   0.1,
		Regularization: 0.01,
		LossWeight:     1,
		Tolerance:      1e-6,
	}
}

// Learn runs structured learning and returns the weights with the lowest
// objective seen.
func (l *Learner) Learn(ctx context.Context, inf Inferer, p *Problem, gt PartialLabeling, init []float64) ([]float64, error) {
	if err := p.checkWeights(init); err != nil {
		return nil, err
	}
	if len(gt) == 0 {
		return nil, fmt.Errorf("%w: empty ground truth", ErrInvalidProblem)
	}

	gtVars := make([]int, 0, len(gt))
	for v := range gt {
		gtVars = append(gtVars, v)
	}
	sort.Ints(gtVars)

	constrained := p.Clone()
	augmented := p.Clone()
	for _, v := range gtVars {
		s := gt[v]
		if err := constrained.Fix(v, s); err != nil {
			return nil, fmt.Errorf("ground truth for variable %d: %w", v, err)
		}
		for other := 0; other < p.NumStates(v); other++ {
			if other != s {
				if err := augmented.AddOffset(v, other, -l.LossWeight); err != nil {
					return nil, err
				}
			}
		}
	}

	w := append([]float64(nil), init...)
	best := append([]float64(nil), init...)
	bestObj := math.Inf(1)

	for epoch := 0; epoch < l.Epochs; epoch++ {
		truth, err := inf.Infer(ctx, constrained, w)
		if err != nil {
			return nil, fmt.Errorf("ground truth completion: %w", err)
		}
		violator, err := inf.Infer(ctx, augmented, w)
		if err != nil {
			return nil, fmt.Errorf("loss-augmented inference: %w", err)
		}

		loss := l.LossWeight * hamming(violator, gt)
		hinge := math.Max(0, loss+p.Energy(truth, w)-p.Energy(violator, w))
		obj := 0.5*l.Regularization*floats.Dot(w, w) + hinge
		if l.OnEpoch != nil {
			l.OnEpoch(epoch, obj)
		}
		monitoring.Debugf("learn: epoch %d objective %g hinge %g loss %g", epoch, obj, hinge, loss)

		if obj < bestObj {
			bestObj = obj
			copy(best, w)
		}
		if hinge <= l.Tolerance {
			monitoring.Logf("learn: converged after %d epochs (objective %g)", epoch+1, obj)
			break
		}

		grad := p.JointFeatures(truth)
		floats.Sub(grad, p.JointFeatures(violator))
		floats.AddScaled(grad, l.Regularization, w)
		step := l.LearningRate / math.Sqrt(float64(epoch+1))
		floats.AddScaled(w, -step, grad)
	}
	return best, nil
}

func hamming(y Labeling, gt PartialLabeling) float64 {
	var d float64
	for v, s := range gt {
		if y[v] != s {
			d++
		}
	}
	return d
}

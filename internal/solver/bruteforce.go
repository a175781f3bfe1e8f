package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/hypotrack/internal/monitoring"
)

// DefaultBruteForceMaxVariables bounds the problem size BruteForce accepts.
const DefaultBruteForceMaxVariables = 24

// BruteForce enumerates labelings depth-first in variable order, pruning
// partial assignments that cannot satisfy a constraint or cannot beat the
// incumbent energy. It is exact and intended for small instances and tests.
type BruteForce struct {
	MaxVariables int
}

// varTerm is the per-state contribution of one variable to one constraint.
type varTerm struct {
	constraint int
	contrib    []float64
	min, max   float64
}

type bruteForceSearch struct {
	p      *Problem
	ctx    context.Context
	energy [][]float64
	domain [][]int
	terms  [][]varTerm

	partial []float64
	remMin  []float64
	remMax  []float64

	// suffixMin[v] is the lowest achievable energy of variables v..n-1.
	suffixMin []float64

	current Labeling
	best    Labeling
	bestE   float64
	nodes   int
	err     error
}

// Infer implements Inferer.
func (b BruteForce) Infer(ctx context.Context, p *Problem, w []float64) (Labeling, error) {
	if err := p.checkWeights(w); err != nil {
		return nil, err
	}
	limit := b.MaxVariables
	if limit <= 0 {
		limit = DefaultBruteForceMaxVariables
	}
	n := p.NumVariables()
	if n > limit {
		return nil, fmt.Errorf("%w: %d variables, limit %d", ErrTooLarge, n, limit)
	}

	s := newBruteForceSearch(ctx, p, w)
	s.search(0, 0)
	if s.err != nil {
		return nil, s.err
	}
	if s.best == nil {
		return nil, ErrInfeasible
	}
	monitoring.Debugf("bruteforce: %d nodes, energy %g", s.nodes, s.bestE)
	return s.best, nil
}

func newBruteForceSearch(ctx context.Context, p *Problem, w []float64) *bruteForceSearch {
	n := p.NumVariables()
	s := &bruteForceSearch{
		p:         p,
		ctx:       ctx,
		energy:    make([][]float64, n),
		domain:    make([][]int, n),
		terms:     make([][]varTerm, n),
		partial:   make([]float64, len(p.constraints)),
		remMin:    make([]float64, len(p.constraints)),
		remMax:    make([]float64, len(p.constraints)),
		suffixMin: make([]float64, n+1),
		current:   make(Labeling, n),
		bestE:     math.Inf(1),
	}

	for v := 0; v < n; v++ {
		s.energy[v] = make([]float64, p.NumStates(v))
		for st := range s.energy[v] {
			s.energy[v][st] = p.StateEnergy(v, st, w)
		}
		if fixed, ok := p.Fixed(v); ok {
			s.domain[v] = []int{fixed}
		} else {
			s.domain[v] = make([]int, p.NumStates(v))
			for st := range s.domain[v] {
				s.domain[v][st] = st
			}
		}
	}

	for ci, c := range p.constraints {
		byVar := make(map[int][]float64)
		var order []int
		for _, t := range c.Terms {
			contrib, ok := byVar[t.Var]
			if !ok {
				contrib = make([]float64, p.NumStates(t.Var))
				byVar[t.Var] = contrib
				order = append(order, t.Var)
			}
			contrib[t.State] += t.Coef
		}
		for _, v := range order {
			vt := varTerm{constraint: ci, contrib: byVar[v], min: math.Inf(1), max: math.Inf(-1)}
			for _, st := range s.domain[v] {
				vt.min = math.Min(vt.min, vt.contrib[st])
				vt.max = math.Max(vt.max, vt.contrib[st])
			}
			s.terms[v] = append(s.terms[v], vt)
			s.remMin[ci] += vt.min
			s.remMax[ci] += vt.max
		}
	}

	for v := n - 1; v >= 0; v-- {
		lowest := math.Inf(1)
		for _, st := range s.domain[v] {
			lowest = math.Min(lowest, s.energy[v][st])
		}
		s.suffixMin[v] = s.suffixMin[v+1] + lowest
	}
	return s
}

func (s *bruteForceSearch) search(v int, energy float64) {
	if s.err != nil {
		return
	}
	s.nodes++
	if s.nodes%4096 == 0 {
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return
		}
	}
	if energy+s.suffixMin[v] >= s.bestE-1e-12 {
		return
	}
	if v == len(s.current) {
		s.bestE = energy
		s.best = s.current.Clone()
		return
	}

	for _, st := range s.domain[v] {
		s.assign(v, st)
		if s.consistent(v) {
			s.current[v] = st
			s.search(v+1, energy+s.energy[v][st])
		}
		s.unassign(v, st)
	}
}

func (s *bruteForceSearch) assign(v, st int) {
	for _, vt := range s.terms[v] {
		s.partial[vt.constraint] += vt.contrib[st]
		s.remMin[vt.constraint] -= vt.min
		s.remMax[vt.constraint] -= vt.max
	}
}

func (s *bruteForceSearch) unassign(v, st int) {
	for _, vt := range s.terms[v] {
		s.partial[vt.constraint] -= vt.contrib[st]
		s.remMin[vt.constraint] += vt.min
		s.remMax[vt.constraint] += vt.max
	}
}

// consistent checks the constraints touched by v after assigning it.
func (s *bruteForceSearch) consistent(v int) bool {
	for _, vt := range s.terms[v] {
		c := s.p.constraints[vt.constraint]
		lo := s.partial[vt.constraint] + s.remMin[vt.constraint]
		hi := s.partial[vt.constraint] + s.remMax[vt.constraint]
		switch c.Relation {
		case LessEqual:
			if lo > c.Bound+feasibilityTol {
				return false
			}
		case GreaterEqual:
			if hi < c.Bound-feasibilityTol {
				return false
			}
		default:
			if lo > c.Bound+feasibilityTol || hi < c.Bound-feasibilityTol {
				return false
			}
		}
	}
	return true
}

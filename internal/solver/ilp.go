package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/banshee-data/hypotrack/internal/monitoring"
)

// Defaults for ILP.
const (
	DefaultILPTolerance = 1e-9
	DefaultILPMaxNodes  = 100000
)

// integralTol is how close an indicator must be to 0 or 1 to count as integral.
const integralTol = 1e-6

// ILP solves the problem as an integer linear program over one-hot label
// indicators x(v,s) by branch and bound. Each node solves the LP relaxation
// with gonum's simplex; nodes whose relaxation fails numerically are split
// on their first free variable without a bound.
type ILP struct {
	Tolerance float64
	MaxNodes  int
}

type ilpNode struct {
	states []int // -1 means free
}

func (n ilpNode) with(v, s int) ilpNode {
	states := append([]int(nil), n.states...)
	states[v] = s
	return ilpNode{states: states}
}

// Infer implements Inferer.
func (e ILP) Infer(ctx context.Context, p *Problem, w []float64) (Labeling, error) {
	if err := p.checkWeights(w); err != nil {
		return nil, err
	}
	tol := e.Tolerance
	if tol <= 0 {
		tol = DefaultILPTolerance
	}
	maxNodes := e.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultILPMaxNodes
	}

	n := p.NumVariables()
	cost := make([][]float64, n)
	for v := range cost {
		cost[v] = make([]float64, p.NumStates(v))
		for s := range cost[v] {
			cost[v][s] = p.StateEnergy(v, s, w)
		}
	}

	var best Labeling
	bestE := math.Inf(1)
	if y := p.lowestLabeling(); p.Feasible(y) {
		best, bestE = y, p.Energy(y, w)
	}

	root := ilpNode{states: make([]int, n)}
	for v := range root.states {
		root.states[v] = -1
		if s, ok := p.Fixed(v); ok {
			root.states[v] = s
		}
	}

	stack := []ilpNode{root}
	nodes := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if nodes >= maxNodes {
			if best == nil {
				return nil, fmt.Errorf("%w: %d nodes", ErrNodeLimit, nodes)
			}
			monitoring.Logf("ilp: node limit %d reached, returning incumbent with energy %g", maxNodes, bestE)
			return best, nil
		}
		nodes++

		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		free := firstFree(node.states)
		if free < 0 {
			y := Labeling(node.states)
			if len(p.Violations(y)) == 0 {
				if en := p.Energy(y, w); en < bestE-tol {
					best, bestE = y.Clone(), en
				}
			}
			continue
		}

		bound, x, err := relax(p, cost, node.states, tol)
		switch {
		case errors.Is(err, ErrInfeasible):
			continue
		case err != nil:
			monitoring.Debugf("ilp: relaxation failed (%v), splitting on variable %d", err, free)
			stack = pushChildren(stack, node, free, p.NumStates(free), nil)
			continue
		}
		if bound >= bestE-tol {
			continue
		}

		branchVar, integral := mostFractional(x, node.states)
		if integral {
			y := make(Labeling, n)
			for v, s := range node.states {
				if s >= 0 {
					y[v] = s
				} else {
					y[v] = argmax(x[v])
				}
			}
			if len(p.Violations(y)) == 0 {
				if en := p.Energy(y, w); en < bestE-tol {
					best, bestE = y, en
				}
				continue
			}
			branchVar = free
		}
		stack = pushChildren(stack, node, branchVar, p.NumStates(branchVar), x[branchVar])
	}

	monitoring.Debugf("ilp: %d nodes, energy %g", nodes, bestE)
	if best == nil {
		return nil, ErrInfeasible
	}
	return best, nil
}

// pushChildren branches on v. Children are pushed so that the state with
// the largest relaxed value is explored first, ties going to the lower
// state; without a relaxation the lowest state goes first.
func pushChildren(stack []ilpNode, node ilpNode, v, numStates int, relaxed []float64) []ilpNode {
	order := make([]int, numStates)
	for s := range order {
		order[s] = numStates - 1 - s
	}
	if relaxed != nil {
		sort.SliceStable(order, func(i, j int) bool {
			return relaxed[order[i]] < relaxed[order[j]]-integralTol
		})
	}
	for _, s := range order {
		stack = append(stack, node.with(v, s))
	}
	return stack
}

func firstFree(states []int) int {
	for v, s := range states {
		if s < 0 {
			return v
		}
	}
	return -1
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

// mostFractional returns the free variable whose largest indicator is
// furthest from 1, and whether every free variable is integral.
func mostFractional(x [][]float64, states []int) (int, bool) {
	branch := -1
	worst := 1.0
	for v, s := range states {
		if s >= 0 {
			continue
		}
		top := x[v][argmax(x[v])]
		if top < 1-integralTol && top < worst {
			worst = top
			branch = v
		}
	}
	return branch, branch < 0
}

// relax solves the LP relaxation of p with the given variables fixed.
// It returns the objective and, for every free variable, its indicator values.
func relax(p *Problem, cost [][]float64, states []int, tol float64) (float64, [][]float64, error) {
	n := len(states)
	col := make([][]int, n)
	numCols := 0
	var constant float64
	for v, s := range states {
		if s >= 0 {
			constant += cost[v][s]
			continue
		}
		col[v] = make([]int, p.NumStates(v))
		for st := range col[v] {
			col[v][st] = numCols
			numCols++
		}
	}

	type row struct {
		coef  map[int]float64
		b     float64
		slack float64 // 0 for equality rows
	}
	var rows []row

	for v, s := range states {
		if s >= 0 {
			continue
		}
		r := row{coef: make(map[int]float64), b: 1}
		for _, c := range col[v] {
			r.coef[c] = 1
		}
		rows = append(rows, r)
	}

	for _, c := range p.constraints {
		r := row{coef: make(map[int]float64), b: c.Bound}
		for _, t := range c.Terms {
			if fixed := states[t.Var]; fixed >= 0 {
				if fixed == t.State {
					r.b -= t.Coef
				}
				continue
			}
			r.coef[col[t.Var][t.State]] += t.Coef
		}
		empty := true
		for _, v := range r.coef {
			if v != 0 {
				empty = false
				break
			}
		}
		if empty {
			if !(LinearConstraint{Relation: c.Relation, Bound: r.b}).Satisfied(0, feasibilityTol) {
				return 0, nil, ErrInfeasible
			}
			continue
		}
		switch c.Relation {
		case LessEqual:
			r.slack = 1
		case GreaterEqual:
			r.slack = -1
		}
		rows = append(rows, r)
	}

	// Drop linearly dependent equality rows; an inconsistent one means infeasible.
	var basis, augBasis [][]float64
	kept := rows[:0]
	for _, r := range rows {
		if r.slack != 0 {
			kept = append(kept, r)
			continue
		}
		a := make([]float64, numCols)
		for c, v := range r.coef {
			a[c] = v
		}
		aug := append(append([]float64(nil), a...), r.b)
		resA := residual(a, basis)
		resAug := residual(aug, augBasis)
		scale := math.Max(1, floats.Norm(aug, 2))
		if floats.Norm(resA, 2) <= 1e-9*scale {
			if floats.Norm(resAug, 2) > 1e-7*scale {
				return 0, nil, ErrInfeasible
			}
			continue
		}
		basis = append(basis, normalize(resA))
		augBasis = append(augBasis, normalize(resAug))
		kept = append(kept, r)
	}
	rows = kept

	numSlack := 0
	for _, r := range rows {
		if r.slack != 0 {
			numSlack++
		}
	}
	m, cols := len(rows), numCols+numSlack
	A := mat.NewDense(m, cols, nil)
	b := make([]float64, m)
	c := make([]float64, cols)
	for v, s := range states {
		if s >= 0 {
			continue
		}
		for st, ci := range col[v] {
			c[ci] = cost[v][st]
		}
	}
	slackCol := numCols
	for i, r := range rows {
		for ci, v := range r.coef {
			A.Set(i, ci, v)
		}
		if r.slack != 0 {
			A.Set(i, slackCol, r.slack)
			slackCol++
		}
		b[i] = r.b
	}

	opt, xs, err := lp.Simplex(c, A, b, tol, nil)
	if err != nil {
		if errors.Is(err, lp.ErrInfeasible) {
			return 0, nil, ErrInfeasible
		}
		return 0, nil, err
	}

	x := make([][]float64, n)
	for v, s := range states {
		if s >= 0 {
			continue
		}
		x[v] = make([]float64, len(col[v]))
		for st, ci := range col[v] {
			x[v][st] = xs[ci]
		}
	}
	return opt + constant, x, nil
}

// residual returns a minus its projection onto the orthonormal basis,
// orthogonalised twice for stability.
func residual(a []float64, basis [][]float64) []float64 {
	r := append([]float64(nil), a...)
	for pass := 0; pass < 2; pass++ {
		for _, q := range basis {
			floats.AddScaled(r, -floats.Dot(r, q), q)
		}
	}
	return r
}

func normalize(v []float64) []float64 {
	floats.Scale(1/floats.Norm(v, 2), v)
	return v
}

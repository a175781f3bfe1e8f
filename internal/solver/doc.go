// Package solver is the discrete optimization engine behind the hypothesis
// model.
//
// A Problem is a set of integer-domain variables, learnable unary energies
// (feature vectors combined with slices of a global weight vector) and
// linear constraints over label indicators. An Engine computes the
// minimum-energy feasible labeling for fixed weights (Infer) and estimates
// weights from a partial ground-truth labeling (Learn).
//
// Two inference backends are provided: BruteForce, an exact depth-first
// enumeration with constraint and energy pruning for small instances, and
// ILP, a branch-and-bound search over LP relaxations solved with gonum's
// simplex. Learning is a subgradient structured SVM that calls back into
// either backend for loss-augmented inference.
package solver

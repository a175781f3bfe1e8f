// Package hypothesis holds the hypothesis graph model for multi-target
// tracking: detections (segmentation hypotheses), links between detections
// in consecutive frames, divisions of one detection into two, and exclusion
// groups of mutually incompatible detections.
//
// The Model ingests hypothesis records, wires them into an incidence
// structure, lays out the global weight vector, and turns everything into a
// solver.Problem whose constraints encode flow conservation, division and
// exclusion semantics. Inference and learning are delegated to a
// solver.Engine; solutions are mapped back onto hypothesis identifiers for
// verification and export.
//
// A Model is single-use. It moves through Empty, Ingested, Registered,
// ProblemBuilt and Solved, and rejects out-of-order or repeated calls.
package hypothesis

// Package jsonio reads and writes the hypotrack file formats: hypothesis
// graphs, ground-truth and result labelings, and weight vectors.
//
// Graph records are decoded one at a time so that a malformed record is
// reported as a hypothesis.RecordError naming its section, index and field.
package jsonio

package hypothesis

import "fmt"

// ID labels a detection. It is unique across all frames.
type ID int

// StateFeatures holds one feature vector per state of a variable.
type StateFeatures [][]float64

// NumFeatures returns the length of the per-state vectors.
func (f StateFeatures) NumFeatures() int {
	if len(f) == 0 {
		return 0
	}
	return len(f[0])
}

// expand returns per-state features for numStates states. A single vector
// is replicated for every state; an empty value yields zero-length vectors.
func (f StateFeatures) expand(numStates int) (StateFeatures, error) {
	switch len(f) {
	case 0:
		return make(StateFeatures, numStates), nil
	case numStates:
	case 1:
		out := make(StateFeatures, numStates)
		for s := range out {
			out[s] = append([]float64(nil), f[0]...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %d per-state feature vectors, want 1 or %d", len(f), numStates)
	}
	for s := 1; s < len(f); s++ {
		if len(f[s]) != len(f[0]) {
			return nil, fmt.Errorf("state %d has %d features, state 0 has %d", s, len(f[s]), len(f[0]))
		}
	}
	out := make(StateFeatures, numStates)
	for s := range f {
		out[s] = append([]float64(nil), f[s]...)
	}
	return out, nil
}

// LinkKey identifies a linking hypothesis.
type LinkKey struct {
	Src, Dest ID
}

// DivisionKey identifies a division hypothesis. Children are kept in
// ascending order so that (p, a, b) and (p, b, a) name the same division.
type DivisionKey struct {
	Parent   ID
	Children [2]ID
}

// NewDivisionKey builds a key with normalized child order.
func NewDivisionKey(parent ID, children [2]ID) DivisionKey {
	if children[1] < children[0] {
		children[0], children[1] = children[1], children[0]
	}
	return DivisionKey{Parent: parent, Children: children}
}

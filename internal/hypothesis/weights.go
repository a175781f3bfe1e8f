package hypothesis

import (
	"fmt"
	"sort"
)

// Kind names a hypothesis type that owns a block of the weight vector.
type Kind int

// Block order in the weight vector.
const (
	KindDetection Kind = iota
	KindDivision
	KindAppearance
	KindDisappearance
	KindLink
	numKinds
)

func (k Kind) String() string {
	switch k {
	case KindDetection:
		return "Detection"
	case KindDivision:
		return "Division"
	case KindAppearance:
		return "Appearance"
	case KindDisappearance:
		return "Disappearance"
	case KindLink:
		return "Link"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// WeightBlock is the contiguous slice of the weight vector used by one kind.
type WeightBlock struct {
	Kind        Kind
	Offset      int
	NumFeatures int
	NumStates   int
	Shared      bool
}

// Size is NumFeatures, times NumStates unless the states share weights.
func (b WeightBlock) Size() int {
	if b.Shared {
		return b.NumFeatures
	}
	return b.NumFeatures * b.NumStates
}

// IDs returns the weight index of every (state, feature) pair.
func (b WeightBlock) IDs() [][]int {
	ids := make([][]int, b.NumStates)
	for s := range ids {
		ids[s] = make([]int, b.NumFeatures)
		base := b.Offset
		if !b.Shared {
			base += s * b.NumFeatures
		}
		for i := range ids[s] {
			ids[s][i] = base + i
		}
	}
	return ids
}

// WeightLayout partitions the global weight vector into one block per kind.
type WeightLayout struct {
	Blocks []WeightBlock
}

// NumWeights returns the total weight vector length.
func (l WeightLayout) NumWeights() int {
	n := 0
	for _, b := range l.Blocks {
		n += b.Size()
	}
	return n
}

// Block returns the block for kind k.
func (l WeightLayout) Block(k Kind) WeightBlock {
	return l.Blocks[k]
}

// Descriptions labels every entry of the weight vector.
func (l WeightLayout) Descriptions() []string {
	out := make([]string, 0, l.NumWeights())
	for _, b := range l.Blocks {
		if b.Shared {
			for i := 0; i < b.NumFeatures; i++ {
				out = append(out, fmt.Sprintf("%s - feature %d", b.Kind, i))
			}
			continue
		}
		for s := 0; s < b.NumStates; s++ {
			for i := 0; i < b.NumFeatures; i++ {
				out = append(out, fmt.Sprintf("%s state %d - feature %d", b.Kind, s, i))
			}
		}
	}
	return out
}

// layoutInput collects the distinct feature lengths seen per kind.
type layoutInput [numKinds]map[int]struct{}

func (in *layoutInput) observe(k Kind, length int) {
	if in[k] == nil {
		in[k] = make(map[int]struct{})
	}
	in[k][length] = struct{}{}
}

// newWeightLayout derives the layout from the distinct feature lengths per
// kind. More than one length for a kind is a structural error.
func newWeightLayout(in layoutInput, numStates [numKinds]int, shared bool) (WeightLayout, error) {
	layout := WeightLayout{Blocks: make([]WeightBlock, numKinds)}
	offset := 0
	for k := Kind(0); k < numKinds; k++ {
		numFeatures := 0
		switch len(in[k]) {
		case 0:
		case 1:
			for n := range in[k] {
				numFeatures = n
			}
		default:
			lengths := make([]int, 0, len(in[k]))
			for n := range in[k] {
				lengths = append(lengths, n)
			}
			sort.Ints(lengths)
			return WeightLayout{}, structuralf("%s hypotheses have differing feature lengths %v", k, lengths)
		}
		b := WeightBlock{Kind: k, Offset: offset, NumFeatures: numFeatures, NumStates: numStates[k], Shared: shared}
		layout.Blocks[k] = b
		offset += b.Size()
	}
	return layout, nil
}

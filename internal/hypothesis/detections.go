package hypothesis

// Detections is the authoritative arena of segmentation hypotheses,
// addressed by identifier and by stable insertion index.
type Detections struct {
	hyps  []*SegmentationHypothesis
	index map[ID]int
}

// NewDetections returns an empty arena.
func NewDetections() *Detections {
	return &Detections{index: make(map[ID]int)}
}

// Add inserts h. Identifiers must be unique.
func (d *Detections) Add(h *SegmentationHypothesis) error {
	if _, dup := d.index[h.ID()]; dup {
		return structuralf("duplicate detection id %d", h.ID())
	}
	d.index[h.ID()] = len(d.hyps)
	d.hyps = append(d.hyps, h)
	return nil
}

// Get returns the hypothesis with identifier id.
func (d *Detections) Get(id ID) (*SegmentationHypothesis, bool) {
	i, ok := d.index[id]
	if !ok {
		return nil, false
	}
	return d.hyps[i], true
}

// Index returns the insertion index of id.
func (d *Detections) Index(id ID) (int, bool) {
	i, ok := d.index[id]
	return i, ok
}

// Len returns the number of detections.
func (d *Detections) Len() int { return len(d.hyps) }

// At returns the detection at insertion index i.
func (d *Detections) At(i int) *SegmentationHypothesis { return d.hyps[i] }

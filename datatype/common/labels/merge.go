package labels

import (
	"fmt"
	"sync"

	"github.com/janelia-flyem/clump/dvid"
)

// RecodeTable maps a label to its current canonical label within one merge pass.
type RecodeTable []uint64

// NewRecodeTable returns the identity mapping for labels 0 through maxLabel.
func NewRecodeTable(maxLabel uint64) RecodeTable {
	recode := make(RecodeTable, maxLabel+1)
	for i := range recode {
		recode[i] = uint64(i)
	}
	return recode
}

// Apply returns a copy of lbls with every label passed through the table.
func (recode RecodeTable) Apply(lbls []uint64) ([]uint64, error) {
	out := make([]uint64, len(lbls))
	for i, label := range lbls {
		if label >= uint64(len(recode)) {
			return nil, fmt.Errorf("%w: label %d, table has %d entries", ErrLabelOutOfRange, label, len(recode))
		}
		out[i] = recode[label]
	}
	return out, nil
}

// DontRecodeSet flags labels already used as a merge target during the current
// pass.  A flagged label is canonical and must not be redirected until the next pass.
type DontRecodeSet []bool

// Count returns the number of flagged labels.
func (s DontRecodeSet) Count() int {
	var n int
	for _, locked := range s {
		if locked {
			n++
		}
	}
	return n
}

// MergeState is the shared state of one merge pass.  It is created fresh for every
// pass and serializes all merge decisions.  A label recoded through a bottom or
// right halo reaches the neighbor tile only through the table, so tiles must be
// merged in row-major order for a pass without locks to mean convergence.
type MergeState struct {
	mu         sync.Mutex
	recode     RecodeTable
	dontRecode DontRecodeSet
	failed     int
	tiles      int
}

// NewMergeState returns an identity recode table and an empty DontRecodeSet able
// to hold labels up to maxLabel.
func NewMergeState(maxLabel uint64) *MergeState {
	return &MergeState{
		recode:     NewRecodeTable(maxLabel),
		dontRecode: make(DontRecodeSet, maxLabel+1),
	}
}

// Merge recodes a tile's labels through the table as it currently stands, then
// resolves merges along its bottom and right seams.  raw holds the tile's samples
// and entry its labels as read at the start of the pass, both including any halo.
// The returned labels cover the same window.
func (s *MergeState) Merge(raw *dvid.Raster, entry []uint64, hasBottom, hasRight bool) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.recode.Apply(entry)
	if err != nil {
		return nil, err
	}
	failed, err := MergeBoundaries(raw, current, s.recode, s.dontRecode, hasBottom, hasRight)
	if err != nil {
		return nil, err
	}
	s.failed += failed
	s.tiles++
	return current, nil
}

// Locked returns the number of labels used as merge targets so far this pass.
// Zero after a full pass means the labeling is globally consistent.
func (s *MergeState) Locked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dontRecode.Count()
}

// Failed returns the number of merges deferred to a later pass because both
// labels were already locked.
func (s *MergeState) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Tiles returns the number of tiles merged so far.
func (s *MergeState) Tiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tiles
}

// MergeBoundaries compares the tile's last row against the bottom halo row (if
// hasBottom) and its last column against the right halo column (if hasRight).
// Wherever the raw samples across the seam are equal but the current labels differ
// and neither is 0, the labels denote one clump and are merged:
//
//  1. if the other label is not locked, it is recoded to this label, which is locked;
//  2. else if this label is not locked, it is recoded to the other label, which is locked;
//  3. else both are locked and the merge is deferred, counting as a failed merge.
//
// current must already be passed through recode and is rewritten in place so every
// occurrence of a recoded label in the tile takes its new value.
func MergeBoundaries(raw *dvid.Raster, current []uint64, recode RecodeTable, dontRecode DontRecodeSet,
	hasBottom, hasRight bool) (failed int, err error) {

	if err = raw.Validate(); err != nil {
		return
	}
	if len(current) != raw.NumPixels() {
		err = fmt.Errorf("%w: raw tile %s has %d pixels, labels have %d",
			ErrShapeMismatch, raw.Size, raw.NumPixels(), len(current))
		return
	}
	if len(dontRecode) != len(recode) {
		err = fmt.Errorf("%w: recode table has %d entries, dont-recode set %d",
			ErrShapeMismatch, len(recode), len(dontRecode))
		return
	}
	width, height := int(raw.Size[0]), int(raw.Size[1])
	if (hasBottom && height < 2) || (hasRight && width < 2) {
		err = fmt.Errorf("%w: tile %s too small to hold a halo", ErrShapeMismatch, raw.Size)
		return
	}
	m := tileMerger{raw: raw, current: current, recode: recode, dontRecode: dontRecode}

	if hasBottom {
		thisY, otherY := height-2, height-1
		xEnd := width
		if hasRight {
			xEnd--
		}
		for x := 0; x < xEnd; x++ {
			ok, err := m.merge(thisY*width+x, otherY*width+x)
			if err != nil {
				return failed, err
			}
			if !ok {
				failed++
			}
		}
	}
	if hasRight {
		thisX, otherX := width-2, width-1
		yEnd := height
		if hasBottom {
			yEnd--
		}
		for y := 0; y < yEnd; y++ {
			ok, err := m.merge(y*width+thisX, y*width+otherX)
			if err != nil {
				return failed, err
			}
			if !ok {
				failed++
			}
		}
	}
	return failed, nil
}

type tileMerger struct {
	raw        *dvid.Raster
	current    []uint64
	recode     RecodeTable
	dontRecode DontRecodeSet

	// positions of labels as they were on entry, built on first rewrite.
	entry *ValueIndexes

	// current label -> entry labels whose pixels now carry it.  A present key with
	// an empty list marks a label that has been rewritten away.
	members map[uint64][]uint64
}

// merge handles one aligned pixel pair across a seam and returns false only if the
// merge had to be deferred.
func (m *tileMerger) merge(this, other int) (bool, error) {
	if !m.raw.SameValue(this, other) {
		return true, nil
	}
	thisID, otherID := m.current[this], m.current[other]
	if thisID == otherID || thisID == 0 || otherID == 0 {
		return true, nil
	}
	if thisID >= uint64(len(m.recode)) || otherID >= uint64(len(m.recode)) {
		return false, fmt.Errorf("%w: merge of %d and %d, table has %d entries",
			ErrLabelOutOfRange, thisID, otherID, len(m.recode))
	}
	switch {
	case !m.dontRecode[otherID]:
		m.recode[otherID] = m.recode[thisID]
		if err := m.rewrite(otherID, thisID); err != nil {
			return false, err
		}
		m.dontRecode[thisID] = true
	case !m.dontRecode[thisID]:
		m.recode[thisID] = m.recode[otherID]
		if err := m.rewrite(thisID, otherID); err != nil {
			return false, err
		}
		m.dontRecode[otherID] = true
	default:
		return false, nil
	}
	return true, nil
}

// rewrite replaces every occurrence of label from in the tile with label to.
func (m *tileMerger) rewrite(from, to uint64) error {
	if m.entry == nil {
		var err error
		if m.entry, err = NewValueIndexes(m.current, 0); err != nil {
			return err
		}
		m.members = make(map[uint64][]uint64)
	}
	fromMembers := m.membersOf(from)
	for _, label := range fromMembers {
		for _, i := range m.entry.Indexes(int64(label)) {
			m.current[i] = to
		}
	}
	m.members[to] = append(m.membersOf(to), fromMembers...)
	m.members[from] = []uint64{}
	return nil
}

func (m *tileMerger) membersOf(label uint64) []uint64 {
	if members, found := m.members[label]; found {
		return members
	}
	return []uint64{label}
}

package labels

import (
	"fmt"
	"sort"

	"github.com/janelia-flyem/clump/dvid"
)

// denseSlack bounds how sparse a value range may be, relative to the number of
// elements, before the lookup switches from a slice to a map.
const denseSlack = 4096

// ValueIndexes holds, for every distinct value in a buffer, the positions at
// which that value occurs.  It is built with a counting sort: one pass counts
// occurrences per value and a second pass scatters positions into pre-sized
// slots of a single packed array.
type ValueIndexes struct {
	width int // row length for 2d coordinates, or 0 for flat buffers

	values  []int64 // distinct indexed values, ascending
	counts  []int
	start   []int // offset into indexes for each value
	indexes []int

	minVal int64
	dense  []int32 // value - minVal -> slot, -1 if absent
	sparse map[int64]int
}

// NewValueIndexes indexes a flat buffer of integer-like values.  Accepted buffers
// are []uint8, []int8, []uint16, []int16, []uint32, []int32, []uint64, []int64,
// []bool and *dvid.Raster with an integer data type.  Any nullVals are not indexed.
// Floating point data returns ErrInvalidInputType.
func NewValueIndexes(data interface{}, nullVals ...int64) (*ValueIndexes, error) {
	var n, width int
	var at func(int) int64
	switch d := data.(type) {
	case []uint8:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []int8:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []uint16:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []int16:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []uint32:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []int32:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []uint64:
		n, at = len(d), func(i int) int64 { return int64(d[i]) }
	case []int64:
		n, at = len(d), func(i int) int64 { return d[i] }
	case []bool:
		n, at = len(d), func(i int) int64 {
			if d[i] {
				return 1
			}
			return 0
		}
	case *dvid.Raster:
		if d == nil || !d.Type.IsInteger() {
			return nil, ErrInvalidInputType
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		n, at, width = d.NumPixels(), d.Int64, int(d.Size[0])
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidInputType, data)
	}
	vi := &ValueIndexes{width: width}
	vi.build(n, at, nullVals)
	return vi, nil
}

func isNull(v int64, nullVals []int64) bool {
	for _, nv := range nullVals {
		if v == nv {
			return true
		}
	}
	return false
}

func (vi *ValueIndexes) build(n int, at func(int) int64, nullVals []int64) {
	var found bool
	var minVal, maxVal int64
	for i := 0; i < n; i++ {
		v := at(i)
		if isNull(v, nullVals) {
			continue
		}
		if !found {
			minVal, maxVal, found = v, v, true
			continue
		}
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if !found {
		return
	}
	vi.minVal = minVal

	span := uint64(maxVal - minVal)
	if span < uint64(4*n+denseSlack) {
		counts := make([]int, span+1)
		for i := 0; i < n; i++ {
			v := at(i)
			if !isNull(v, nullVals) {
				counts[v-minVal]++
			}
		}
		vi.dense = make([]int32, span+1)
		for off, count := range counts {
			if count == 0 {
				vi.dense[off] = -1
				continue
			}
			vi.dense[off] = int32(len(vi.values))
			vi.values = append(vi.values, minVal+int64(off))
			vi.counts = append(vi.counts, count)
		}
	} else {
		counts := make(map[int64]int)
		for i := 0; i < n; i++ {
			v := at(i)
			if !isNull(v, nullVals) {
				counts[v]++
			}
		}
		vi.values = make([]int64, 0, len(counts))
		for v := range counts {
			vi.values = append(vi.values, v)
		}
		sort.Slice(vi.values, func(i, j int) bool { return vi.values[i] < vi.values[j] })
		vi.sparse = make(map[int64]int, len(counts))
		vi.counts = make([]int, len(vi.values))
		for slot, v := range vi.values {
			vi.sparse[v] = slot
			vi.counts[slot] = counts[v]
		}
	}

	vi.start = make([]int, len(vi.values))
	var total int
	for slot, count := range vi.counts {
		vi.start[slot] = total
		total += count
	}
	vi.indexes = make([]int, total)
	next := make([]int, len(vi.start))
	copy(next, vi.start)
	for i := 0; i < n; i++ {
		slot, ok := vi.slot(at(i))
		if !ok {
			continue
		}
		vi.indexes[next[slot]] = i
		next[slot]++
	}
}

func (vi *ValueIndexes) slot(v int64) (int, bool) {
	if vi.sparse != nil {
		slot, found := vi.sparse[v]
		return slot, found
	}
	if vi.dense == nil || v < vi.minVal || uint64(v-vi.minVal) >= uint64(len(vi.dense)) {
		return 0, false
	}
	slot := vi.dense[v-vi.minVal]
	return int(slot), slot >= 0
}

// Values returns the distinct indexed values in ascending order.
func (vi *ValueIndexes) Values() []int64 {
	return vi.values
}

// Counts returns the number of occurrences of each value, parallel to Values().
func (vi *ValueIndexes) Counts() []int {
	return vi.counts
}

// NumValues returns the number of distinct indexed values.
func (vi *ValueIndexes) NumValues() int {
	return len(vi.values)
}

// Count returns the number of occurrences of v.
func (vi *ValueIndexes) Count(v int64) int {
	slot, ok := vi.slot(v)
	if !ok {
		return 0
	}
	return vi.counts[slot]
}

// Indexes returns the flat, ascending positions holding v.  An absent or null
// value returns an empty slice.  The returned slice must not be modified.
func (vi *ValueIndexes) Indexes(v int64) []int {
	slot, ok := vi.slot(v)
	if !ok {
		return []int{}
	}
	beg := vi.start[slot]
	return vi.indexes[beg : beg+vi.counts[slot]]
}

// Coords returns the (x, y) positions holding v.  It is only meaningful for
// indexes built from a *dvid.Raster; flat buffers are treated as a single row.
func (vi *ValueIndexes) Coords(v int64) []dvid.Point2d {
	idx := vi.Indexes(v)
	pts := make([]dvid.Point2d, len(idx))
	for i, pos := range idx {
		if vi.width == 0 {
			pts[i] = dvid.Point2d{int32(pos), 0}
		} else {
			pts[i] = dvid.Point2d{int32(pos % vi.width), int32(pos / vi.width)}
		}
	}
	return pts
}

package labels

import (
	"fmt"

	"github.com/janelia-flyem/clump/dvid"
)

// ValidMask returns a mask that is true wherever the tile holds data, i.e., is not
// equal to the tile's no-data sentinel.  Tiles without a sentinel are fully valid.
func ValidMask(tile *dvid.Raster) []bool {
	n := tile.NumPixels()
	valid := make([]bool, n)
	for i := 0; i < n; i++ {
		valid[i] = !tile.IsNoData(i)
	}
	return valid
}

// LabelTile assigns a label to every maximal 4-connected region of equal-valued,
// valid pixels in the tile.  Labels are numbered from startID in the order regions
// are first met in a row-major scan, and the returned nextID is the smallest label
// not used, so threading it into the next tile's startID keeps labels unique across
// tiles.  Invalid pixels get label 0.
//
// The flood fill uses an explicit work-list sized to the tile so large uniform
// regions do not grow the goroutine stack.
func LabelTile(tile *dvid.Raster, valid []bool, startID uint64) (lbls []uint64, nextID uint64, err error) {
	if err = tile.Validate(); err != nil {
		return nil, startID, err
	}
	n := tile.NumPixels()
	if len(valid) != n {
		return nil, startID, fmt.Errorf("%w: tile %s has %d pixels, mask has %d",
			ErrShapeMismatch, tile.Size, n, len(valid))
	}
	if startID == 0 {
		return nil, startID, fmt.Errorf("label 0 is reserved, cannot start labeling at 0")
	}
	width, height := int(tile.Size[0]), int(tile.Size[1])
	lbls = make([]uint64, n)
	nextID = startID

	// each pixel is pushed at most once since it is labeled when pushed.
	stack := make([]int, 0, n)
	for start := 0; start < n; start++ {
		if !valid[start] || lbls[start] != 0 {
			continue
		}
		lbls[start] = nextID
		stack = append(stack, start)
		for len(stack) != 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%width, i/width
			if y > 0 {
				stack = visit(tile, valid, lbls, stack, i, i-width, nextID)
			}
			if y < height-1 {
				stack = visit(tile, valid, lbls, stack, i, i+width, nextID)
			}
			if x > 0 {
				stack = visit(tile, valid, lbls, stack, i, i-1, nextID)
			}
			if x < width-1 {
				stack = visit(tile, valid, lbls, stack, i, i+1, nextID)
			}
		}
		nextID++
	}
	return lbls, nextID, nil
}

func visit(tile *dvid.Raster, valid []bool, lbls []uint64, stack []int, from, to int, label uint64) []int {
	if lbls[to] != 0 || !valid[to] || !tile.SameValue(from, to) {
		return stack
	}
	lbls[to] = label
	return append(stack, to)
}

// Counter is the global label counter threaded through sequential LabelTile calls.
// It starts at 1 and never decreases.
type Counter struct {
	next uint64
}

// NewCounter returns a counter whose first label is 1.
func NewCounter() *Counter {
	return &Counter{next: 1}
}

// Next returns the smallest label not yet handed out.
func (c *Counter) Next() uint64 {
	return c.next
}

// MaxLabel returns the largest label handed out so far, or 0 if none.
func (c *Counter) MaxLabel() uint64 {
	return c.next - 1
}

// Label labels the tile starting at the counter's next label and advances the
// counter past every label the tile used.
func (c *Counter) Label(tile *dvid.Raster, valid []bool) ([]uint64, error) {
	lbls, nextID, err := LabelTile(tile, valid, c.next)
	if err != nil {
		return nil, err
	}
	if nextID < c.next {
		return nil, fmt.Errorf("label counter would move backwards from %d to %d", c.next, nextID)
	}
	c.next = nextID
	return lbls, nil
}

// ClumpSizes returns the number of pixels carrying each non-zero label.
func ClumpSizes(lbls []uint64) map[uint64]int {
	sizes := make(map[uint64]int)
	for _, label := range lbls {
		if label != 0 {
			sizes[label]++
		}
	}
	return sizes
}

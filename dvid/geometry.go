package dvid

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Point2d is a 2d point or size given as (x, y).
type Point2d [2]int32

// RectSize returns the size of a rectangle as a Point2d.
func RectSize(rect image.Rectangle) Point2d {
	return Point2d{int32(rect.Dx()), int32(rect.Dy())}
}

// StringToPoint2d parses a string of format "%d<sep>%d" into a Point2d.
func StringToPoint2d(str, separator string) (Point2d, error) {
	elems := strings.Split(str, separator)
	if len(elems) != 2 {
		return Point2d{}, fmt.Errorf("cannot convert %q into a 2d point", str)
	}
	var p Point2d
	for i, elem := range elems {
		v, err := strconv.ParseInt(strings.TrimSpace(elem), 10, 32)
		if err != nil {
			return Point2d{}, fmt.Errorf("cannot parse %q as 2d point: %v", str, err)
		}
		p[i] = int32(v)
	}
	return p, nil
}

// X returns the x coordinate.
func (p Point2d) X() int32 { return p[0] }

// Y returns the y coordinate.
func (p Point2d) Y() int32 { return p[1] }

// Prod returns the product of the point's elements, i.e., the number of pixels
// when the point is a size.
func (p Point2d) Prod() int64 {
	return int64(p[0]) * int64(p[1])
}

func (p Point2d) Add(p2 Point2d) Point2d {
	return Point2d{p[0] + p2[0], p[1] + p2[1]}
}

func (p Point2d) Sub(p2 Point2d) Point2d {
	return Point2d{p[0] - p2[0], p[1] - p2[1]}
}

// Min returns the element-wise minimum of the two points.
func (p Point2d) Min(p2 Point2d) Point2d {
	m := p
	if p2[0] < m[0] {
		m[0] = p2[0]
	}
	if p2[1] < m[1] {
		m[1] = p2[1]
	}
	return m
}

func (p Point2d) String() string {
	return fmt.Sprintf("(%d,%d)", p[0], p[1])
}

// Extents2d is a rectangular region given by an inclusive start point and an
// exclusive end point.
type Extents2d struct {
	MinPoint Point2d
	MaxPoint Point2d
}

// NewExtents2d returns the extents of a region with the given offset and size.
func NewExtents2d(offset, size Point2d) Extents2d {
	return Extents2d{offset, offset.Add(size)}
}

// Size returns the width and height of the extents.
func (ext Extents2d) Size() Point2d {
	return ext.MaxPoint.Sub(ext.MinPoint)
}

// Empty returns true if the extents contain no pixels.
func (ext Extents2d) Empty() bool {
	return ext.MaxPoint[0] <= ext.MinPoint[0] || ext.MaxPoint[1] <= ext.MinPoint[1]
}

// Contains returns true if the point falls within the extents.
func (ext Extents2d) Contains(p Point2d) bool {
	return p[0] >= ext.MinPoint[0] && p[0] < ext.MaxPoint[0] &&
		p[1] >= ext.MinPoint[1] && p[1] < ext.MaxPoint[1]
}

// Intersect returns the overlap of two extents, which may be empty.
func (ext Extents2d) Intersect(ext2 Extents2d) Extents2d {
	var out Extents2d
	for i := 0; i < 2; i++ {
		out.MinPoint[i] = ext.MinPoint[i]
		if ext2.MinPoint[i] > out.MinPoint[i] {
			out.MinPoint[i] = ext2.MinPoint[i]
		}
		out.MaxPoint[i] = ext.MaxPoint[i]
		if ext2.MaxPoint[i] < out.MaxPoint[i] {
			out.MaxPoint[i] = ext2.MaxPoint[i]
		}
	}
	return out
}

func (ext Extents2d) String() string {
	return fmt.Sprintf("%s -> %s", ext.MinPoint, ext.MaxPoint)
}

// ChunkPoint2d is the index of a tile within a tiled 2d raster, given as
// (tile column, tile row).
type ChunkPoint2d [2]int32

// Bytes returns a key-sortable encoding with rows before columns, so
// iteration in key order is row-major tile order.
func (c ChunkPoint2d) Bytes() []byte {
	b := make([]byte, 8)
	putSortableInt32(b[0:4], c[1])
	putSortableInt32(b[4:8], c[0])
	return b
}

// ChunkPoint2dFromBytes decodes the output of ChunkPoint2d.Bytes.
func ChunkPoint2dFromBytes(b []byte) (ChunkPoint2d, error) {
	if len(b) != 8 {
		return ChunkPoint2d{}, fmt.Errorf("chunk point encoding must be 8 bytes, got %d", len(b))
	}
	return ChunkPoint2d{sortableInt32(b[4:8]), sortableInt32(b[0:4])}, nil
}

func (c ChunkPoint2d) String() string {
	return fmt.Sprintf("(%d,%d)", c[0], c[1])
}

// flip the sign bit so big-endian byte order sorts like the signed integers.
func putSortableInt32(b []byte, v int32) {
	u := uint32(v) ^ 0x80000000
	b[0] = byte(u >> 24)
	b[1] = byte(u >> 16)
	b[2] = byte(u >> 8)
	b[3] = byte(u)
}

func sortableInt32(b []byte) int32 {
	u := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	return int32(u ^ 0x80000000)
}

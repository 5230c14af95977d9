package dvid

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Raster is a single-band 2d grid of elements stored row-major as little-endian
// bytes.  An optional NoData element marks pixels that carry no value.
type Raster struct {
	Size Point2d
	Type DataType
	Data []byte

	// NoData is the encoded no-data sentinel or nil if every pixel is valid.
	NoData []byte
}

// NewRaster returns a zeroed raster of the given size and type.
func NewRaster(size Point2d, t DataType) *Raster {
	n := size.Prod() * int64(DataTypeBytes(t))
	return &Raster{
		Size: size,
		Type: t,
		Data: make([]byte, n),
	}
}

// SetNoData sets the no-data sentinel from a numeric value.
func (r *Raster) SetNoData(v float64) {
	r.NoData = r.Type.EncodeValue(v)
}

// NoDataValue returns the no-data sentinel as a float64 and whether one is set.
func (r *Raster) NoDataValue() (float64, bool) {
	if r.NoData == nil {
		return 0, false
	}
	return r.Type.Float64(r.NoData), true
}

// Validate checks that the data length matches size and type.
func (r *Raster) Validate() error {
	if r == nil {
		return fmt.Errorf("nil raster")
	}
	if !r.Type.Valid() {
		return fmt.Errorf("raster has unknown data type %d", r.Type)
	}
	if r.Size[0] < 0 || r.Size[1] < 0 {
		return fmt.Errorf("raster has negative size %s", r.Size)
	}
	expected := r.Size.Prod() * int64(DataTypeBytes(r.Type))
	if int64(len(r.Data)) != expected {
		return fmt.Errorf("raster of size %s and type %s should have %d bytes, has %d",
			r.Size, r.Type, expected, len(r.Data))
	}
	if r.NoData != nil && int32(len(r.NoData)) != DataTypeBytes(r.Type) {
		return fmt.Errorf("no-data sentinel has %d bytes, expected %d", len(r.NoData), DataTypeBytes(r.Type))
	}
	return nil
}

// NumPixels returns the number of elements in the raster.
func (r *Raster) NumPixels() int {
	return int(r.Size.Prod())
}

// BytesPerPixel returns the number of bytes per element.
func (r *Raster) BytesPerPixel() int {
	return int(DataTypeBytes(r.Type))
}

// Element returns the bytes of the i-th element in row-major order.
func (r *Raster) Element(i int) []byte {
	n := r.BytesPerPixel()
	return r.Data[i*n : (i+1)*n]
}

// SameValue returns true if elements i and j hold equal values.  Floating point
// samples compare numerically, so -0 equals +0 and NaN equals nothing.
func (r *Raster) SameValue(i, j int) bool {
	if !r.Type.IsInteger() {
		return r.Float64(i) == r.Float64(j)
	}
	return bytes.Equal(r.Element(i), r.Element(j))
}

// IsNoData returns true if the i-th element equals the no-data sentinel.  A NaN
// sentinel matches every NaN sample.
func (r *Raster) IsNoData(i int) bool {
	if r.NoData == nil {
		return false
	}
	if !r.Type.IsInteger() {
		v, nd := r.Float64(i), r.Type.Float64(r.NoData)
		return v == nd || (math.IsNaN(v) && math.IsNaN(nd))
	}
	return bytes.Equal(r.Element(i), r.NoData)
}

// Int64 returns the i-th element as an int64.
func (r *Raster) Int64(i int) int64 {
	return r.Type.Int64(r.Element(i))
}

// Float64 returns the i-th element as a float64.
func (r *Raster) Float64(i int) float64 {
	return r.Type.Float64(r.Element(i))
}

// SetFloat64 stores v into the i-th element.
func (r *Raster) SetFloat64(i int, v float64) {
	r.Type.PutFloat64(r.Element(i), v)
}

// SubRaster returns a copy of the pixels within ext, which is given in this
// raster's coordinates and must lie within it.
func (r *Raster) SubRaster(ext Extents2d) (*Raster, error) {
	full := Extents2d{MaxPoint: r.Size}
	if ext.Intersect(full) != ext {
		return nil, fmt.Errorf("window %s falls outside raster of size %s", ext, r.Size)
	}
	size := ext.Size()
	sub := NewRaster(size, r.Type)
	sub.NoData = r.NoData
	bpp := r.BytesPerPixel()
	rowBytes := int(size[0]) * bpp
	for y := int32(0); y < size[1]; y++ {
		src := (int(ext.MinPoint[1]+y)*int(r.Size[0]) + int(ext.MinPoint[0])) * bpp
		dst := int(y) * rowBytes
		copy(sub.Data[dst:dst+rowBytes], r.Data[src:src+rowBytes])
	}
	return sub, nil
}

// Paste copies src into this raster with its top-left corner at offset.
// Pixels of src falling outside this raster are ignored.
func (r *Raster) Paste(src *Raster, offset Point2d) error {
	if src.Type != r.Type {
		return fmt.Errorf("cannot paste %s raster into %s raster", src.Type, r.Type)
	}
	dstExt := Extents2d{MaxPoint: r.Size}.Intersect(NewExtents2d(offset, src.Size))
	if dstExt.Empty() {
		return nil
	}
	bpp := r.BytesPerPixel()
	rowBytes := int(dstExt.Size()[0]) * bpp
	for y := dstExt.MinPoint[1]; y < dstExt.MaxPoint[1]; y++ {
		sx, sy := dstExt.MinPoint[0]-offset[0], y-offset[1]
		si := (int(sy)*int(src.Size[0]) + int(sx)) * bpp
		di := (int(y)*int(r.Size[0]) + int(dstExt.MinPoint[0])) * bpp
		copy(r.Data[di:di+rowBytes], src.Data[si:si+rowBytes])
	}
	return nil
}

// Labels returns the raster contents as labels.  The raster must hold
// non-negative integers.
func (r *Raster) Labels() ([]uint64, error) {
	if !r.Type.IsInteger() {
		return nil, fmt.Errorf("cannot read labels from %s raster", r.Type)
	}
	n := r.NumPixels()
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		v := r.Int64(i)
		if v < 0 && r.Type != T_uint64 {
			return nil, fmt.Errorf("negative label %d at element %d", v, i)
		}
		out[i] = uint64(v)
	}
	return out, nil
}

// MaxLabel returns the largest label representable by an integer data type.
func MaxLabel(t DataType) uint64 {
	switch t {
	case T_uint8:
		return math.MaxUint8
	case T_int8:
		return math.MaxInt8
	case T_uint16:
		return math.MaxUint16
	case T_int16:
		return math.MaxInt16
	case T_uint32:
		return math.MaxUint32
	case T_int32:
		return math.MaxInt32
	case T_uint64:
		return math.MaxUint64
	case T_int64:
		return math.MaxInt64
	}
	return 0
}

// RasterFromLabels packs labels into a raster of the given integer type.
func RasterFromLabels(lbls []uint64, size Point2d, t DataType) (*Raster, error) {
	if int64(len(lbls)) != size.Prod() {
		return nil, fmt.Errorf("got %d labels for raster of size %s", len(lbls), size)
	}
	if !t.IsInteger() {
		return nil, fmt.Errorf("labels cannot be stored as %s", t)
	}
	r := NewRaster(size, t)
	maxLabel := MaxLabel(t)
	n := r.BytesPerPixel()
	for i, label := range lbls {
		if label > maxLabel {
			return nil, fmt.Errorf("label %d exceeds maximum %d for %s", label, maxLabel, t)
		}
		b := r.Data[i*n : (i+1)*n]
		switch n {
		case 1:
			b[0] = uint8(label)
		case 2:
			binary.LittleEndian.PutUint16(b, uint16(label))
		case 4:
			binary.LittleEndian.PutUint32(b, uint32(label))
		case 8:
			binary.LittleEndian.PutUint64(b, label)
		}
	}
	return r, nil
}

const rasterHeaderSize = 11

// MarshalBinary encodes the raster as:
//
//	byte      data type
//	byte      1 if a no-data sentinel follows the header
//	int32     width (little-endian)
//	int32     height
//	byte      reserved
//	[]byte    no-data element, if present
//	[]byte    data
func (r *Raster) MarshalBinary() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, rasterHeaderSize, rasterHeaderSize+len(r.NoData)+len(r.Data))
	buf[0] = byte(r.Type)
	if r.NoData != nil {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint32(buf[2:6], uint32(r.Size[0]))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(r.Size[1]))
	buf = append(buf, r.NoData...)
	buf = append(buf, r.Data...)
	return buf, nil
}

// UnmarshalBinary decodes the output of MarshalBinary.
func (r *Raster) UnmarshalBinary(b []byte) error {
	if len(b) < rasterHeaderSize {
		return fmt.Errorf("raster encoding too short: %d bytes", len(b))
	}
	r.Type = DataType(b[0])
	if !r.Type.Valid() {
		return fmt.Errorf("raster encoding has unknown data type %d", b[0])
	}
	r.Size = Point2d{
		int32(binary.LittleEndian.Uint32(b[2:6])),
		int32(binary.LittleEndian.Uint32(b[6:10])),
	}
	pos := rasterHeaderSize
	r.NoData = nil
	if b[1] == 1 {
		n := int(DataTypeBytes(r.Type))
		if len(b) < pos+n {
			return fmt.Errorf("raster encoding truncated in no-data sentinel")
		}
		r.NoData = make([]byte, n)
		copy(r.NoData, b[pos:pos+n])
		pos += n
	}
	r.Data = make([]byte, len(b)-pos)
	copy(r.Data, b[pos:])
	return r.Validate()
}

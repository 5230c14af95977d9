/*
   This file handles layout of data for an element, e.g., a pixel, and routines that
   extract data from a slice of bytes.
*/

package dvid

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// DataType is a unique ID for each type of data, e.g., a uint8 or a float32.
type DataType uint8

const (
	T_uint8 DataType = iota
	T_int8
	T_uint16
	T_int16
	T_uint32
	T_int32
	T_uint64
	T_int64
	T_float32
	T_float64
)

var typeBytes = map[DataType]int32{
	T_uint8:   1,
	T_int8:    1,
	T_uint16:  2,
	T_int16:   2,
	T_uint32:  4,
	T_int32:   4,
	T_uint64:  8,
	T_int64:   8,
	T_float32: 4,
	T_float64: 8,
}

var typeNames = map[DataType]string{
	T_uint8:   "uint8",
	T_int8:    "int8",
	T_uint16:  "uint16",
	T_int16:   "int16",
	T_uint32:  "uint32",
	T_int32:   "int32",
	T_uint64:  "uint64",
	T_int64:   "int64",
	T_float32: "float32",
	T_float64: "float64",
}

// DataTypeBytes returns the # of bytes for a given type.
// For example, T_uint16 is 2 bytes.  Unknown types return 0.
func DataTypeBytes(t DataType) int32 {
	return typeBytes[t]
}

// ParseDataType returns the DataType for a name like "uint16".
func ParseDataType(name string) (DataType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", name)
}

func (t DataType) String() string {
	if name, found := typeNames[t]; found {
		return name
	}
	return fmt.Sprintf("unknown data type (%d)", uint8(t))
}

// Valid returns true if the data type is one of the known types.
func (t DataType) Valid() bool {
	_, found := typeBytes[t]
	return found
}

// IsInteger returns true for integer-like data types.
func (t DataType) IsInteger() bool {
	return t.Valid() && t != T_float32 && t != T_float64
}

// Int64 decodes a single little-endian element of type t.  Values of uint64
// elements above math.MaxInt64 wrap.
func (t DataType) Int64(b []byte) int64 {
	switch t {
	case T_uint8:
		return int64(b[0])
	case T_int8:
		return int64(int8(b[0]))
	case T_uint16:
		return int64(binary.LittleEndian.Uint16(b))
	case T_int16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case T_uint32:
		return int64(binary.LittleEndian.Uint32(b))
	case T_int32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case T_uint64, T_int64:
		return int64(binary.LittleEndian.Uint64(b))
	case T_float32:
		return int64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case T_float64:
		return int64(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	return 0
}

// Float64 decodes a single little-endian element of type t.
func (t DataType) Float64(b []byte) float64 {
	switch t {
	case T_float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case T_float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case T_uint64:
		return float64(binary.LittleEndian.Uint64(b))
	}
	return float64(t.Int64(b))
}

// PutFloat64 encodes v as a single little-endian element of type t into b.
// Integer types truncate toward zero.
func (t DataType) PutFloat64(b []byte, v float64) {
	switch t {
	case T_uint8:
		b[0] = uint8(v)
	case T_int8:
		b[0] = uint8(int8(v))
	case T_uint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case T_int16:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case T_uint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case T_int32:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case T_uint64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	case T_int64:
		binary.LittleEndian.PutUint64(b, uint64(int64(v)))
	case T_float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case T_float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

// EncodeValue returns a freshly allocated element of type t holding v.
func (t DataType) EncodeValue(v float64) []byte {
	b := make([]byte, DataTypeBytes(t))
	t.PutFloat64(b, v)
	return b
}

package dvid

import (
	. "github.com/janelia-flyem/go/gocheck"
)

func (s *DataSuite) TestDataTypeRoundTrip(c *C) {
	values := map[DataType]float64{
		T_uint8:   200,
		T_int8:    -100,
		T_uint16:  60000,
		T_int16:   -30000,
		T_uint32:  4000000000,
		T_int32:   -2000000000,
		T_uint64:  1 << 40,
		T_int64:   -(1 << 40),
		T_float32: 1.5,
		T_float64: -2.25,
	}
	for t, v := range values {
		b := t.EncodeValue(v)
		c.Assert(len(b), Equals, int(DataTypeBytes(t)))
		c.Assert(t.Float64(b), Equals, v)
	}
	c.Assert(T_int16.Int64(T_int16.EncodeValue(-3)), Equals, int64(-3))
	c.Assert(T_uint32.Int64(T_uint32.EncodeValue(4000000000)), Equals, int64(4000000000))
}

func (s *DataSuite) TestDataTypeNames(c *C) {
	for _, name := range []string{"uint8", "int16", "UINT32", " float64 "} {
		t, err := ParseDataType(name)
		c.Assert(err, IsNil)
		c.Assert(t.Valid(), Equals, true)
	}
	_, err := ParseDataType("complex64")
	c.Assert(err, NotNil)

	c.Assert(T_uint16.IsInteger(), Equals, true)
	c.Assert(T_float32.IsInteger(), Equals, false)
	c.Assert(DataType(99).Valid(), Equals, false)
	c.Assert(DataType(99).IsInteger(), Equals, false)
	c.Assert(T_uint16.String(), Equals, "uint16")
}

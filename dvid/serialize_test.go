package dvid

import (
	"bytes"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

func (suite *DataSuite) TestSerializeData(c *C) {
	data := bytes.Repeat([]byte("clumps of equal pixels "), 200)

	for _, compression := range []Compression{Uncompressed, Snappy, LZ4, Zstd} {
		for _, checksum := range []Checksum{NoChecksum, CRC32} {
			s, err := SerializeData(data, compression, checksum)
			c.Assert(err, IsNil)
			if len(s) == 0 {
				c.Errorf("Bad SerializeData() - output length 0")
			}
			if compression != Uncompressed && len(s) >= len(data) {
				c.Errorf("%s did not shrink repetitive data: %d -> %d bytes", compression, len(data), len(s))
			}

			returned, compress, err := DeserializeData(s, true)
			c.Assert(err, IsNil)
			c.Assert(compress, Equals, compression)
			c.Assert(bytes.Equal(returned, data), Equals, true)

			if checksum != NoChecksum {
				s[len(s)-1] ^= 0x04 // Flip a bit
				_, _, err = DeserializeData(s, true)
				c.Assert(err, NotNil)
			}
		}
	}
}

func (suite *DataSuite) TestParseCompression(c *C) {
	for name, expected := range map[string]Compression{
		"":       Uncompressed,
		"none":   Uncompressed,
		"Snappy": Snappy,
		"lz4":    LZ4,
		"zstd":   Zstd,
	} {
		compress, err := ParseCompression(name)
		c.Assert(err, IsNil)
		c.Assert(compress, Equals, expected)
	}
	_, err := ParseCompression("gzip")
	c.Assert(err, NotNil)
}

func (suite *DataSuite) TestRasterSerialization(c *C) {
	r := NewRaster(Point2d{3, 2}, T_int16)
	for i := 0; i < r.NumPixels(); i++ {
		r.SetFloat64(i, float64(i-3))
	}
	r.SetNoData(-1)

	b, err := r.MarshalBinary()
	c.Assert(err, IsNil)

	var r2 Raster
	c.Assert(r2.UnmarshalBinary(b), IsNil)
	c.Assert(r2.Size, Equals, r.Size)
	c.Assert(r2.Type, Equals, T_int16)
	c.Assert(r2.Data, DeepEquals, r.Data)
	nodata, ok := r2.NoDataValue()
	c.Assert(ok, Equals, true)
	c.Assert(nodata, Equals, -1.0)
	c.Assert(r2.IsNoData(2), Equals, true)
	c.Assert(r2.IsNoData(3), Equals, false)

	c.Assert(r2.UnmarshalBinary(b[:5]), NotNil)
	c.Assert(r2.UnmarshalBinary(b[:len(b)-1]), NotNil)
}

func BenchmarkSnappyTile(b *testing.B) {
	data := bytes.Repeat([]byte{1, 0, 0, 0, 2, 0, 0, 0}, 64*1024)
	for i := 0; i < b.N; i++ {
		if _, err := SerializeData(data, Snappy, CRC32); err != nil {
			b.Fatal(err)
		}
	}
}

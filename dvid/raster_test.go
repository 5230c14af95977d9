package dvid

import (
	"math"

	. "github.com/janelia-flyem/go/gocheck"
)

func makeSequenceRaster(size Point2d, t DataType) *Raster {
	r := NewRaster(size, t)
	for i := 0; i < r.NumPixels(); i++ {
		r.SetFloat64(i, float64(i))
	}
	return r
}

func (s *DataSuite) TestSubRasterAndPaste(c *C) {
	r := makeSequenceRaster(Point2d{5, 4}, T_uint16)
	c.Assert(r.Validate(), IsNil)

	sub, err := r.SubRaster(NewExtents2d(Point2d{1, 1}, Point2d{3, 2}))
	c.Assert(err, IsNil)
	c.Assert(sub.Size, Equals, Point2d{3, 2})
	expected := []int64{6, 7, 8, 11, 12, 13}
	for i, v := range expected {
		c.Assert(sub.Int64(i), Equals, v)
	}

	_, err = r.SubRaster(NewExtents2d(Point2d{4, 0}, Point2d{2, 1}))
	c.Assert(err, NotNil)

	dst := NewRaster(Point2d{4, 3}, T_uint16)
	c.Assert(dst.Paste(sub, Point2d{2, 2}), IsNil)
	// only the top-left 2x1 of sub lands inside dst
	c.Assert(dst.Int64(2*4+2), Equals, int64(6))
	c.Assert(dst.Int64(2*4+3), Equals, int64(7))
	c.Assert(dst.Int64(0), Equals, int64(0))

	c.Assert(dst.Paste(NewRaster(Point2d{1, 1}, T_uint8), Point2d{}), NotNil)
}

func (s *DataSuite) TestRasterLabels(c *C) {
	lbls := []uint64{0, 1, 2, 70000, 3, 0}
	r, err := RasterFromLabels(lbls, Point2d{3, 2}, T_uint32)
	c.Assert(err, IsNil)
	c.Assert(r.SameValue(0, 5), Equals, true)
	c.Assert(r.SameValue(0, 1), Equals, false)

	got, err := r.Labels()
	c.Assert(err, IsNil)
	c.Assert(got, DeepEquals, lbls)

	_, err = RasterFromLabels(lbls, Point2d{3, 2}, T_uint16)
	c.Assert(err, NotNil)
	_, err = RasterFromLabels(lbls, Point2d{2, 2}, T_uint32)
	c.Assert(err, NotNil)

	_, err = NewRaster(Point2d{2, 2}, T_float32).Labels()
	c.Assert(err, NotNil)

	neg := NewRaster(Point2d{1, 1}, T_int8)
	neg.SetFloat64(0, -4)
	_, err = neg.Labels()
	c.Assert(err, NotNil)
}

func (s *DataSuite) TestFloatSameValue(c *C) {
	r := NewRaster(Point2d{4, 1}, T_float64)
	r.SetFloat64(0, math.Copysign(0, -1))
	r.SetFloat64(1, 0)
	r.SetFloat64(2, math.NaN())
	r.SetFloat64(3, math.NaN())
	c.Assert(r.SameValue(0, 1), Equals, true)
	c.Assert(r.SameValue(2, 3), Equals, false)
	c.Assert(r.SameValue(1, 2), Equals, false)

	c.Assert(r.IsNoData(2), Equals, false)
	r.SetNoData(math.NaN())
	c.Assert(r.IsNoData(2), Equals, true)
	c.Assert(r.IsNoData(3), Equals, true)
	c.Assert(r.IsNoData(0), Equals, false)

	r.SetNoData(0)
	c.Assert(r.IsNoData(0), Equals, true)
	c.Assert(r.IsNoData(1), Equals, true)
}

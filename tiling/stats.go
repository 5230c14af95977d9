package tiling

import (
	"context"
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"
	"gonum.org/v1/gonum/stat"

	"github.com/janelia-flyem/clump/datatype/common/labels"
	"github.com/janelia-flyem/clump/dvid"
)

// Stats summarizes the valid pixels of an integer dataset.  For thematic layers
// the region statistics describe the number of pixels per distinct value, e.g.
// clump sizes for a label dataset.
type Stats struct {
	Min, Max     int64
	Mean, StdDev float64

	ValidPixels int64
	NumValues   int

	MeanRegion, StdDevRegion float64
	LargestRegion            int64
}

func (s *Stats) String() string {
	return fmt.Sprintf("min %d, max %d, mean %.3f, stddev %.3f, %d valid pixels, %d distinct values (region size mean %.1f, stddev %.1f, largest %d)",
		s.Min, s.Max, s.Mean, s.StdDev, s.ValidPixels, s.NumValues, s.MeanRegion, s.StdDevRegion, s.LargestRegion)
}

const statsSize = msgp.ArrayHeaderSize + 4*msgp.Int64Size + msgp.IntSize + 4*msgp.Float64Size

func (s *Stats) appendMsg(b []byte) []byte {
	b = msgp.AppendArrayHeader(b, 9)
	b = msgp.AppendInt64(b, s.Min)
	b = msgp.AppendInt64(b, s.Max)
	b = msgp.AppendFloat64(b, s.Mean)
	b = msgp.AppendFloat64(b, s.StdDev)
	b = msgp.AppendInt64(b, s.ValidPixels)
	b = msgp.AppendInt(b, s.NumValues)
	b = msgp.AppendFloat64(b, s.MeanRegion)
	b = msgp.AppendFloat64(b, s.StdDevRegion)
	return msgp.AppendInt64(b, s.LargestRegion)
}

func (s *Stats) readMsg(bts []byte) (o []byte, err error) {
	var sz uint32
	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	if sz != 9 {
		err = msgp.ArrayError{Wanted: 9, Got: sz}
		return
	}
	if s.Min, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
		return
	}
	if s.Max, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
		return
	}
	if s.Mean, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
		return
	}
	if s.StdDev, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
		return
	}
	if s.ValidPixels, bts, err = msgp.ReadInt64Bytes(bts); err != nil {
		return
	}
	if s.NumValues, bts, err = msgp.ReadIntBytes(bts); err != nil {
		return
	}
	if s.MeanRegion, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
		return
	}
	if s.StdDevRegion, bts, err = msgp.ReadFloat64Bytes(bts); err != nil {
		return
	}
	s.LargestRegion, o, err = msgp.ReadInt64Bytes(bts)
	return
}

// StatsAccumulator builds a histogram over tiles so statistics can be computed
// without holding the dataset in memory.
type StatsAccumulator struct {
	ignore []int64
	counts map[int64]int64
}

// NewStatsAccumulator returns an accumulator that skips the given values in
// addition to each tile's no-data sentinel.
func NewStatsAccumulator(ignore ...int64) *StatsAccumulator {
	return &StatsAccumulator{
		ignore: ignore,
		counts: make(map[int64]int64),
	}
}

// Add folds the valid pixels of a tile into the histogram.
func (sa *StatsAccumulator) Add(tile *dvid.Raster) error {
	nulls := sa.ignore
	if tile.NoData != nil {
		nulls = append(append([]int64{}, sa.ignore...), tile.Type.Int64(tile.NoData))
	}
	vi, err := labels.NewValueIndexes(tile, nulls...)
	if err != nil {
		return err
	}
	counts := vi.Counts()
	for i, v := range vi.Values() {
		sa.counts[v] += int64(counts[i])
	}
	return nil
}

// Stats returns statistics over everything added so far, or nil if no valid pixel
// was seen.
func (sa *StatsAccumulator) Stats() *Stats {
	if len(sa.counts) == 0 {
		return nil
	}
	s := &Stats{
		Min:       math.MaxInt64,
		Max:       math.MinInt64,
		NumValues: len(sa.counts),
	}
	values := make([]float64, 0, len(sa.counts))
	weights := make([]float64, 0, len(sa.counts))
	for v, count := range sa.counts {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		if count > s.LargestRegion {
			s.LargestRegion = count
		}
		s.ValidPixels += count
		values = append(values, float64(v))
		weights = append(weights, float64(count))
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, weights)
	s.MeanRegion, s.StdDevRegion = stat.MeanStdDev(weights, nil)
	if len(values) == 1 {
		s.StdDev, s.StdDevRegion = 0, 0
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

// ComputeStats walks every tile of an integer dataset.  If ignoreZero is set,
// value 0 is treated as background and excluded.
func ComputeStats(ctx context.Context, ds *Dataset, ignoreZero bool) (*Stats, error) {
	if !ds.meta.Type.IsInteger() {
		return nil, fmt.Errorf("statistics require an integer dataset, have %s", ds.meta.Type)
	}
	var sa *StatsAccumulator
	if ignoreZero {
		sa = NewStatsAccumulator(0)
	} else {
		sa = NewStatsAccumulator()
	}
	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		for col := int32(0); col < numTiles[0]; col++ {
			tile, err := ds.ReadTile(ctx, dvid.ChunkPoint2d{col, row})
			if err != nil {
				return nil, err
			}
			if err := sa.Add(tile); err != nil {
				return nil, err
			}
		}
	}
	return sa.Stats(), nil
}

package tiling

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/janelia-flyem/clump/dvid"
)

// TileInfo describes the tile being processed by an Applier.
type TileInfo struct {
	Tile     dvid.ChunkPoint2d
	NumTiles dvid.Point2d

	// Extents is the tile proper in dataset coordinates.
	Extents dvid.Extents2d

	// Window is Extents plus any halo borrowed from the neighbors.
	Window dvid.Extents2d

	// HasRight and HasBottom are true if the window includes a halo from the
	// right or bottom neighbor.  Tiles on the last column or row get none.
	HasRight, HasBottom bool
}

// Index returns the row-major position of the tile.
func (ti *TileInfo) Index() int {
	return int(ti.Tile[1])*int(ti.NumTiles[0]) + int(ti.Tile[0])
}

// Last returns true for the final tile in row-major order.
func (ti *TileInfo) Last() bool {
	return ti.Index() == int(ti.NumTiles.Prod())-1
}

// ProperInWindow returns the tile proper in window coordinates.
func (ti *TileInfo) ProperInWindow() dvid.Extents2d {
	return dvid.NewExtents2d(ti.Extents.MinPoint.Sub(ti.Window.MinPoint), ti.Extents.Size())
}

func (ti *TileInfo) String() string {
	return fmt.Sprintf("tile %s of %s, window %s", ti.Tile, ti.NumTiles, ti.Window)
}

// NewTileInfo returns the description of a tile with the given overlap.
func NewTileInfo(ds *Dataset, tile dvid.ChunkPoint2d, overlap int) *TileInfo {
	numTiles := ds.NumTiles()
	ext := ds.TileExtents(tile)
	info := &TileInfo{
		Tile:      tile,
		NumTiles:  numTiles,
		Extents:   ext,
		Window:    ext,
		HasRight:  overlap > 0 && tile[0] < numTiles[0]-1,
		HasBottom: overlap > 0 && tile[1] < numTiles[1]-1,
	}
	if info.HasRight {
		info.Window.MaxPoint[0] += int32(overlap)
	}
	if info.HasBottom {
		info.Window.MaxPoint[1] += int32(overlap)
	}
	info.Window = info.Window.Intersect(dvid.Extents2d{MaxPoint: ds.Size()})
	return info
}

// TileFunc processes one window of every input.  The returned raster, if any,
// covers either the window or just the tile proper; any halo is cropped before
// it is written to the output.
type TileFunc func(ctx context.Context, info *TileInfo, in []*dvid.Raster) (*dvid.Raster, error)

// Applier walks the tiles of one or more aligned datasets.
type Applier struct {
	// Overlap is the width of the halo read from right and bottom neighbors.
	Overlap int

	// Workers is the number of tiles processed at once.  With one worker tiles are
	// handled strictly in row-major order.
	Workers int

	// Ordered keeps fn and the output writes in row-major order when Workers > 1.
	// Only the reading and decoding of input windows runs ahead on the workers.
	Ordered bool
}

func (a Applier) read(ctx context.Context, inputs []*Dataset, info *TileInfo) ([]*dvid.Raster, error) {
	in := make([]*dvid.Raster, len(inputs))
	for i, ds := range inputs {
		r, err := ds.ReadWindow(ctx, info.Window)
		if err != nil {
			return nil, err
		}
		in[i] = r
	}
	return in, nil
}

// finish runs fn on prepared windows and writes the cropped result.
func (a Applier) finish(ctx context.Context, info *TileInfo, in []*dvid.Raster, out *Dataset, fn TileFunc) error {
	result, err := fn(ctx, info, in)
	if err != nil {
		return fmt.Errorf("%s: %w", info, err)
	}
	if out == nil || result == nil {
		return nil
	}
	switch result.Size {
	case info.Extents.Size():
	case info.Window.Size():
		if result, err = result.SubRaster(info.ProperInWindow()); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: result of size %s fits neither tile nor window", info, result.Size)
	}
	return out.WriteTile(ctx, info.Tile, result)
}

// Apply calls fn on every tile and writes its results to out, which may be nil
// if fn is run only for its side effects.
func (a Applier) Apply(ctx context.Context, inputs []*Dataset, out *Dataset, fn TileFunc) error {
	if len(inputs) == 0 {
		return fmt.Errorf("applier needs at least one input dataset")
	}
	ref := inputs[0]
	aligned := make([]*Dataset, 0, len(inputs))
	aligned = append(aligned, inputs[1:]...)
	if out != nil {
		aligned = append(aligned, out)
	}
	for _, ds := range aligned {
		if ds.Size() != ref.Size() || ds.TileSize() != ref.TileSize() {
			return fmt.Errorf("datasets are not aligned: %s %s vs %s %s",
				ds.Size(), ds.TileSize(), ref.Size(), ref.TileSize())
		}
	}
	if a.Overlap < 0 {
		return fmt.Errorf("negative overlap %d", a.Overlap)
	}

	numTiles := ref.NumTiles()
	if a.Workers <= 1 {
		for row := int32(0); row < numTiles[1]; row++ {
			for col := int32(0); col < numTiles[0]; col++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				info := NewTileInfo(ref, dvid.ChunkPoint2d{col, row}, a.Overlap)
				in, err := a.read(ctx, inputs, info)
				if err != nil {
					return err
				}
				if err := a.finish(ctx, info, in, out, fn); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if a.Ordered {
		return a.applyOrdered(ctx, inputs, out, fn)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Workers)
	for row := int32(0); row < numTiles[1]; row++ {
		for col := int32(0); col < numTiles[0]; col++ {
			if gctx.Err() != nil {
				break
			}
			info := NewTileInfo(ref, dvid.ChunkPoint2d{col, row}, a.Overlap)
			g.Go(func() error {
				in, err := a.read(gctx, inputs, info)
				if err != nil {
					return err
				}
				return a.finish(gctx, info, in, out, fn)
			})
		}
	}
	return g.Wait()
}

// applyOrdered reads windows on up to Workers goroutines, at most 2*Workers tiles
// ahead, and hands them to fn one at a time in row-major order.
func (a Applier) applyOrdered(ctx context.Context, inputs []*Dataset, out *Dataset, fn TileFunc) error {
	ref := inputs[0]
	numTiles := ref.NumTiles()
	n := int(numTiles.Prod())
	tileAt := func(i int) dvid.ChunkPoint2d {
		return dvid.ChunkPoint2d{int32(i % int(numTiles[0])), int32(i / int(numTiles[0]))}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	ready := make([]chan []*dvid.Raster, n)
	for i := range ready {
		ready[i] = make(chan []*dvid.Raster, 1)
	}
	ahead := make(chan struct{}, 2*a.Workers)
	readers := make(chan struct{}, a.Workers)

	g.Go(func() error {
		for i := 0; i < n; i++ {
			select {
			case ahead <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			select {
			case readers <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			i := i
			g.Go(func() error {
				defer func() { <-readers }()
				in, err := a.read(gctx, inputs, NewTileInfo(ref, tileAt(i), a.Overlap))
				if err != nil {
					return err
				}
				ready[i] <- in
				return nil
			})
		}
		return nil
	})

	var err error
tiles:
	for i := 0; i < n; i++ {
		var in []*dvid.Raster
		select {
		case in = <-ready[i]:
		case <-gctx.Done():
			// a failed read is reported by Wait.
			break tiles
		}
		if err = a.finish(gctx, NewTileInfo(ref, tileAt(i), a.Overlap), in, out, fn); err != nil {
			break
		}
		<-ahead
	}
	if err != nil {
		cancel()
	}
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err == nil {
		err = ctx.Err()
	}
	return err
}

/*
	Package tiling stores single-band rasters as grids of independently compressed
	tiles in a key-value store and walks them a tile at a time, optionally with a
	one-pixel halo borrowed from the right and bottom neighbors.
*/
package tiling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
)

// ErrNotDataset is returned when a store holds no dataset metadata.
var ErrNotDataset = errors.New("tiling: store does not hold a tiled dataset")

const (
	keyMetadata byte = 0x00
	keyTile     byte = 0x01
)

func metadataKey() []byte {
	return []byte{keyMetadata}
}

func tileKey(tile dvid.ChunkPoint2d) []byte {
	return append([]byte{keyTile}, tile.Bytes()...)
}

// Dataset is a tiled raster persisted in a store.  Tiles may be read and written
// concurrently.
type Dataset struct {
	store storage.Store

	mu   sync.RWMutex
	meta Metadata
}

// Create writes the metadata for a new, empty dataset into the store.  Unwritten
// tiles read back as no-data, or zero if there is no sentinel.
func Create(ctx context.Context, store storage.Store, meta Metadata) (*Dataset, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	ds := &Dataset{store: store, meta: meta}
	if err := ds.putMetadata(ctx); err != nil {
		return nil, err
	}
	return ds, nil
}

// Open reads an existing dataset from the store.
func Open(ctx context.Context, store storage.Store) (*Dataset, error) {
	b, err := store.Get(ctx, metadataKey())
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotDataset, store)
	}
	ds := &Dataset{store: store}
	if _, err := ds.meta.UnmarshalMsg(b); err != nil {
		return nil, fmt.Errorf("bad metadata in %s: %v", store, err)
	}
	if err := ds.meta.Validate(); err != nil {
		return nil, fmt.Errorf("bad metadata in %s: %v", store, err)
	}
	return ds, nil
}

func (ds *Dataset) putMetadata(ctx context.Context) error {
	ds.mu.RLock()
	b, err := ds.meta.MarshalMsg(nil)
	ds.mu.RUnlock()
	if err != nil {
		return err
	}
	return ds.store.Put(ctx, metadataKey(), b)
}

func (ds *Dataset) String() string {
	return fmt.Sprintf("%s in %s", &ds.meta, ds.store)
}

// Metadata returns a copy of the dataset's metadata.
func (ds *Dataset) Metadata() Metadata {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.meta
}

// Size returns the dataset size in pixels.
func (ds *Dataset) Size() dvid.Point2d { return ds.meta.Size }

// TileSize returns the nominal tile size.  Tiles in the last column and row may
// be smaller.
func (ds *Dataset) TileSize() dvid.Point2d { return ds.meta.TileSize }

// NumTiles returns the number of tile columns and rows.
func (ds *Dataset) NumTiles() dvid.Point2d { return ds.meta.NumTiles() }

// Store returns the underlying store.
func (ds *Dataset) Store() storage.Store { return ds.store }

// TileExtents returns the pixel extents of a tile, clipped to the dataset.
func (ds *Dataset) TileExtents(tile dvid.ChunkPoint2d) dvid.Extents2d {
	offset := dvid.Point2d{tile[0] * ds.meta.TileSize[0], tile[1] * ds.meta.TileSize[1]}
	ext := dvid.NewExtents2d(offset, ds.meta.TileSize)
	return ext.Intersect(dvid.Extents2d{MaxPoint: ds.meta.Size})
}

func (ds *Dataset) validTile(tile dvid.ChunkPoint2d) error {
	n := ds.NumTiles()
	if tile[0] < 0 || tile[1] < 0 || tile[0] >= n[0] || tile[1] >= n[1] {
		return fmt.Errorf("tile %s outside dataset of %s tiles", tile, n)
	}
	return nil
}

func (ds *Dataset) emptyRaster(size dvid.Point2d) *dvid.Raster {
	r := dvid.NewRaster(size, ds.meta.Type)
	if ds.meta.NoData != nil {
		r.NoData = ds.meta.NoData
		n := r.BytesPerPixel()
		for i := 0; i < r.NumPixels(); i++ {
			copy(r.Data[i*n:], ds.meta.NoData)
		}
	}
	return r
}

// ReadTile returns a tile's pixels with the dataset's no-data sentinel attached.
func (ds *Dataset) ReadTile(ctx context.Context, tile dvid.ChunkPoint2d) (*dvid.Raster, error) {
	if err := ds.validTile(tile); err != nil {
		return nil, err
	}
	size := ds.TileExtents(tile).Size()
	s, err := ds.store.Get(ctx, tileKey(tile))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return ds.emptyRaster(size), nil
	}
	data, _, err := dvid.DeserializeData(s, true)
	if err != nil {
		return nil, fmt.Errorf("tile %s: %v", tile, err)
	}
	r := new(dvid.Raster)
	if err := r.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("tile %s: %v", tile, err)
	}
	if r.Size != size || r.Type != ds.meta.Type {
		return nil, fmt.Errorf("tile %s holds %s %s, expected %s %s", tile, r.Type, r.Size, ds.meta.Type, size)
	}
	r.NoData = ds.meta.NoData
	return r, nil
}

// WriteTile stores a tile, which must exactly cover the tile's extents.
func (ds *Dataset) WriteTile(ctx context.Context, tile dvid.ChunkPoint2d, r *dvid.Raster) error {
	if err := ds.validTile(tile); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	size := ds.TileExtents(tile).Size()
	if r.Size != size || r.Type != ds.meta.Type {
		return fmt.Errorf("can't write %s %s raster into %s tile %s of size %s", r.Type, r.Size, ds.meta.Type, tile, size)
	}
	bare := *r
	bare.NoData = nil
	data, err := bare.MarshalBinary()
	if err != nil {
		return err
	}
	s, err := dvid.SerializeData(data, ds.meta.Compression, dvid.CRC32)
	if err != nil {
		return err
	}
	return ds.store.Put(ctx, tileKey(tile), s)
}

// ReadWindow assembles the pixels within ext, which must lie inside the dataset,
// from every tile it overlaps.
func (ds *Dataset) ReadWindow(ctx context.Context, ext dvid.Extents2d) (*dvid.Raster, error) {
	full := dvid.Extents2d{MaxPoint: ds.meta.Size}
	if ext.Empty() || ext.Intersect(full) != ext {
		return nil, fmt.Errorf("window %s not within dataset %s", ext, ds.meta.Size)
	}
	out := dvid.NewRaster(ext.Size(), ds.meta.Type)
	out.NoData = ds.meta.NoData
	ts := ds.meta.TileSize
	last := ext.MaxPoint.Sub(dvid.Point2d{1, 1})
	for row := ext.MinPoint[1] / ts[1]; row <= last[1]/ts[1]; row++ {
		for col := ext.MinPoint[0] / ts[0]; col <= last[0]/ts[0]; col++ {
			tile := dvid.ChunkPoint2d{col, row}
			r, err := ds.ReadTile(ctx, tile)
			if err != nil {
				return nil, err
			}
			if err := out.Paste(r, ds.TileExtents(tile).MinPoint.Sub(ext.MinPoint)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// SetStats records statistics in the dataset's metadata.
func (ds *Dataset) SetStats(ctx context.Context, stats *Stats, thematic bool) error {
	ds.mu.Lock()
	ds.meta.Stats = stats
	ds.meta.Thematic = thematic
	ds.mu.Unlock()
	return ds.putMetadata(ctx)
}

// Flush commits buffered writes.
func (ds *Dataset) Flush() error {
	return storage.Flush(ds.store)
}

// Close flushes and closes the underlying store.
func (ds *Dataset) Close() error {
	if err := ds.Flush(); err != nil {
		ds.store.Close()
		return err
	}
	return ds.store.Close()
}

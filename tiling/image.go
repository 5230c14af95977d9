package tiling

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"io"

	_ "golang.org/x/image/tiff"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
)

// ImportOptions control how a raster is split into a new dataset.
type ImportOptions struct {
	TileSize    dvid.Point2d
	Compression dvid.Compression

	// NoData, if set, is the sentinel value marking pixels without data.
	NoData *float64
}

func (opts ImportOptions) metadata(size dvid.Point2d, t dvid.DataType) Metadata {
	meta := Metadata{
		Size:        size,
		TileSize:    opts.TileSize,
		Type:        t,
		Compression: opts.Compression,
	}
	if opts.NoData != nil {
		meta.NoData = t.EncodeValue(*opts.NoData)
	}
	return meta
}

// ImageToRaster converts a single-band image into a raster.  Gray and Gray16
// images keep their values, paletted images give their palette indices and any
// other image is converted to 8-bit gray.
func ImageToRaster(img image.Image) *dvid.Raster {
	bounds := img.Bounds()
	size := dvid.RectSize(bounds)
	width, height := bounds.Dx(), bounds.Dy()
	switch im := img.(type) {
	case *image.Gray:
		r := dvid.NewRaster(size, dvid.T_uint8)
		for y := 0; y < height; y++ {
			copy(r.Data[y*width:(y+1)*width], im.Pix[im.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
		}
		return r
	case *image.Paletted:
		r := dvid.NewRaster(size, dvid.T_uint8)
		for y := 0; y < height; y++ {
			copy(r.Data[y*width:(y+1)*width], im.Pix[im.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
		}
		return r
	case *image.Gray16:
		r := dvid.NewRaster(size, dvid.T_uint16)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				i := im.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
				binary.LittleEndian.PutUint16(r.Data[2*(y*width+x):], uint16(im.Pix[i])<<8|uint16(im.Pix[i+1]))
			}
		}
		return r
	default:
		r := dvid.NewRaster(size, dvid.T_uint8)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
				r.Data[y*width+x] = g.Y
			}
		}
		return r
	}
}

// ImportRaster writes an in-memory raster into a new dataset.
func ImportRaster(ctx context.Context, r *dvid.Raster, store storage.Store, opts ImportOptions) (*Dataset, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ds, err := Create(ctx, store, opts.metadata(r.Size, r.Type))
	if err != nil {
		return nil, err
	}
	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		for col := int32(0); col < numTiles[0]; col++ {
			tile := dvid.ChunkPoint2d{col, row}
			sub, err := r.SubRaster(ds.TileExtents(tile))
			if err != nil {
				return nil, err
			}
			if err := ds.WriteTile(ctx, tile, sub); err != nil {
				return nil, err
			}
		}
	}
	return ds, ds.Flush()
}

// ImportImage decodes a PNG or TIFF image and writes it into a new dataset.
func ImportImage(ctx context.Context, in io.Reader, store storage.Store, opts ImportOptions) (*Dataset, error) {
	img, format, err := image.Decode(in)
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %v", err)
	}
	r := ImageToRaster(img)
	dvid.Debugf("Decoded %s image of size %s as %s\n", format, r.Size, r.Type)
	return ImportRaster(ctx, r, store, opts)
}

// ImportRaw reads headerless row-major little-endian samples into a new dataset,
// holding only one row of tiles in memory at a time.
func ImportRaw(ctx context.Context, in io.Reader, size dvid.Point2d, t dvid.DataType, store storage.Store, opts ImportOptions) (*Dataset, error) {
	ds, err := Create(ctx, store, opts.metadata(size, t))
	if err != nil {
		return nil, err
	}
	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		first := ds.TileExtents(dvid.ChunkPoint2d{0, row})
		band := dvid.NewRaster(dvid.Point2d{size[0], first.Size()[1]}, t)
		if _, err := io.ReadFull(in, band.Data); err != nil {
			return nil, fmt.Errorf("reading tile row %d: %v", row, err)
		}
		for col := int32(0); col < numTiles[0]; col++ {
			tile := dvid.ChunkPoint2d{col, row}
			ext := ds.TileExtents(tile)
			sub, err := band.SubRaster(dvid.NewExtents2d(dvid.Point2d{ext.MinPoint[0], 0}, ext.Size()))
			if err != nil {
				return nil, err
			}
			if err := ds.WriteTile(ctx, tile, sub); err != nil {
				return nil, err
			}
		}
	}
	return ds, ds.Flush()
}

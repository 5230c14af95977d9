package tiling

import (
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/janelia-flyem/clump/dvid"
)

// readBand returns the full-width pixels of one row of tiles.
func (ds *Dataset) readBand(ctx context.Context, row int32) (*dvid.Raster, dvid.Extents2d, error) {
	ext := ds.TileExtents(dvid.ChunkPoint2d{0, row})
	ext.MaxPoint[0] = ds.Size()[0]
	band, err := ds.ReadWindow(ctx, ext)
	return band, ext, err
}

// ExportRaw writes the dataset as headerless row-major little-endian samples,
// holding only one row of tiles in memory at a time.
func ExportRaw(ctx context.Context, ds *Dataset, w io.Writer) error {
	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		band, _, err := ds.readBand(ctx, row)
		if err != nil {
			return err
		}
		if _, err := w.Write(band.Data); err != nil {
			return err
		}
	}
	return nil
}

// ExportPNG writes an 8 or 16-bit unsigned dataset as a grayscale PNG.
func ExportPNG(ctx context.Context, ds *Dataset, w io.Writer) error {
	size := ds.Size()
	rect := image.Rect(0, 0, int(size[0]), int(size[1]))
	var img image.Image
	switch ds.meta.Type {
	case dvid.T_uint8:
		gray := image.NewGray(rect)
		if err := ds.fillImage(ctx, func(band *dvid.Raster, y0 int) {
			copy(gray.Pix[y0*gray.Stride:], band.Data)
		}); err != nil {
			return err
		}
		img = gray
	case dvid.T_uint16:
		gray := image.NewGray16(rect)
		if err := ds.fillImage(ctx, func(band *dvid.Raster, y0 int) {
			for i := 0; i < band.NumPixels(); i++ {
				v := binary.LittleEndian.Uint16(band.Data[2*i:])
				j := y0*gray.Stride + 2*i
				gray.Pix[j], gray.Pix[j+1] = uint8(v>>8), uint8(v)
			}
		}); err != nil {
			return err
		}
		img = gray
	default:
		return fmt.Errorf("can't export %s dataset as PNG, only uint8 and uint16", ds.meta.Type)
	}
	return png.Encode(w, img)
}

func (ds *Dataset) fillImage(ctx context.Context, fill func(band *dvid.Raster, y0 int)) error {
	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		band, ext, err := ds.readBand(ctx, row)
		if err != nil {
			return err
		}
		fill(band, int(ext.MinPoint[1]))
	}
	return nil
}

// goldenAngle spreads consecutive labels around the hue circle.
const goldenAngle = 137.50776405003785

// LabelColor returns a stable, distinct color for a label.  Label 0 is black.
func LabelColor(label uint64) color.Color {
	if label == 0 {
		return color.Black
	}
	hue := math.Mod(float64(label%(1<<32))*goldenAngle, 360)
	sat := 0.55 + 0.4*float64(label%3)/2
	return colorful.Hsv(hue, sat, 0.95)
}

// RenderPreview writes a colorized PNG of an integer dataset, e.g. clump labels,
// subsampled to the given width.  A width of 0 renders at full resolution.
func RenderPreview(ctx context.Context, ds *Dataset, w io.Writer, width int) error {
	if !ds.meta.Type.IsInteger() {
		return fmt.Errorf("preview requires an integer dataset, have %s", ds.meta.Type)
	}
	size := ds.Size()
	stride := 1
	if width > 0 && int(size[0]) > width {
		stride = int(size[0]) / width
	}
	pw := (int(size[0]) + stride - 1) / stride
	ph := (int(size[1]) + stride - 1) / stride
	img := image.NewNRGBA(image.Rect(0, 0, pw, ph))

	numTiles := ds.NumTiles()
	for row := int32(0); row < numTiles[1]; row++ {
		band, ext, err := ds.readBand(ctx, row)
		if err != nil {
			return err
		}
		bw := int(band.Size[0])
		for y := int(ext.MinPoint[1]); y < int(ext.MaxPoint[1]); y++ {
			if y%stride != 0 {
				continue
			}
			by := y - int(ext.MinPoint[1])
			for x := 0; x < bw; x += stride {
				i := by*bw + x
				c := color.Color(color.Black)
				if !band.IsNoData(i) {
					c = LabelColor(uint64(band.Int64(i)))
				}
				img.Set(x/stride, y/stride, c)
			}
		}
	}
	var out image.Image = img
	if width > 0 && pw != width {
		out = imaging.Resize(img, width, 0, imaging.NearestNeighbor)
	}
	return png.Encode(w, out)
}

package tiling

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"sync"
	"testing"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
	_ "github.com/janelia-flyem/clump/storage/badger"
)

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	config := dvid.StoreConfig{Config: dvid.Config{"inmemory": true, "lowmem": true}, Engine: "badger"}
	store, _, err := storage.NewStore(config)
	if err != nil {
		t.Fatalf("unable to create in-memory store: %v\n", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// rampRaster returns a raster whose pixel (x, y) holds y*width+x.
func rampRaster(width, height int32, dtype dvid.DataType) *dvid.Raster {
	r := dvid.NewRaster(dvid.Point2d{width, height}, dtype)
	for i := 0; i < r.NumPixels(); i++ {
		r.SetFloat64(i, float64(i))
	}
	return r
}

func TestMetadataRoundTrip(t *testing.T) {
	meta := Metadata{
		Size:        dvid.Point2d{1000, 700},
		TileSize:    dvid.Point2d{256, 128},
		Type:        dvid.T_int16,
		NoData:      dvid.T_int16.EncodeValue(-1),
		Thematic:    true,
		Compression: dvid.LZ4,
		Stats:       &Stats{Min: 1, Max: 99, Mean: 4.5, StdDev: 2, ValidPixels: 10, NumValues: 3, LargestRegion: 7},
	}
	b, err := meta.MarshalMsg(nil)
	if err != nil {
		t.Fatalf("unable to marshal metadata: %v\n", err)
	}
	var got Metadata
	rest, err := got.UnmarshalMsg(b)
	if err != nil {
		t.Fatalf("unable to unmarshal metadata: %v\n", err)
	}
	if len(rest) != 0 {
		t.Errorf("expected no trailing bytes, got %d\n", len(rest))
	}
	if !reflect.DeepEqual(got, meta) {
		t.Errorf("metadata round trip failed:\nexpected %+v\ngot      %+v\n", meta, got)
	}
	if n := meta.NumTiles(); n != (dvid.Point2d{4, 6}) {
		t.Errorf("expected 4x6 tiles, got %s\n", n)
	}

	meta.NoData, meta.Stats = nil, nil
	b, _ = meta.MarshalMsg(nil)
	got = Metadata{}
	if _, err := got.UnmarshalMsg(b); err != nil {
		t.Fatalf("unable to unmarshal metadata: %v\n", err)
	}
	if got.NoData != nil || got.Stats != nil {
		t.Errorf("expected nil no-data and stats, got %v and %v\n", got.NoData, got.Stats)
	}
}

func TestDatasetTiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	r := rampRaster(10, 7, dvid.T_uint16)
	ds, err := ImportRaster(ctx, r, store, ImportOptions{TileSize: dvid.Point2d{4, 3}, Compression: dvid.Snappy})
	if err != nil {
		t.Fatalf("unable to import raster: %v\n", err)
	}
	if n := ds.NumTiles(); n != (dvid.Point2d{3, 3}) {
		t.Fatalf("expected 3x3 tiles, got %s\n", n)
	}
	ext := ds.TileExtents(dvid.ChunkPoint2d{2, 2})
	if ext.MinPoint != (dvid.Point2d{8, 6}) || ext.MaxPoint != (dvid.Point2d{10, 7}) {
		t.Errorf("bad clipped extents for last tile: %s\n", ext)
	}
	tile, err := ds.ReadTile(ctx, dvid.ChunkPoint2d{1, 1})
	if err != nil {
		t.Fatalf("unable to read tile: %v\n", err)
	}
	if tile.Size != (dvid.Point2d{4, 3}) || tile.Int64(0) != 34 || tile.Int64(5) != 45 {
		t.Errorf("bad tile contents: size %s, first %d\n", tile.Size, tile.Int64(0))
	}
	if _, err := ds.ReadTile(ctx, dvid.ChunkPoint2d{3, 0}); err == nil {
		t.Errorf("expected error reading tile outside dataset\n")
	}
	if err := ds.WriteTile(ctx, dvid.ChunkPoint2d{0, 0}, rampRaster(3, 3, dvid.T_uint16)); err == nil {
		t.Errorf("expected error writing wrong-sized tile\n")
	}

	// window spanning four tiles
	win, err := ds.ReadWindow(ctx, dvid.Extents2d{MinPoint: dvid.Point2d{3, 2}, MaxPoint: dvid.Point2d{6, 5}})
	if err != nil {
		t.Fatalf("unable to read window: %v\n", err)
	}
	expected := []int64{23, 24, 25, 33, 34, 35, 43, 44, 45}
	for i, v := range expected {
		if win.Int64(i) != v {
			t.Fatalf("bad window pixel %d: expected %d, got %d\n", i, v, win.Int64(i))
		}
	}
	if _, err := ds.ReadWindow(ctx, dvid.Extents2d{MaxPoint: dvid.Point2d{11, 1}}); err == nil {
		t.Errorf("expected error reading window outside dataset\n")
	}

	reopened, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("unable to reopen dataset: %v\n", err)
	}
	if reopened.Metadata().Compression != dvid.Snappy || reopened.Size() != r.Size {
		t.Errorf("bad reopened metadata: %s\n", reopened)
	}

	var buf bytes.Buffer
	if err := ExportRaw(ctx, ds, &buf); err != nil {
		t.Fatalf("unable to export raw: %v\n", err)
	}
	if !bytes.Equal(buf.Bytes(), r.Data) {
		t.Errorf("raw export does not match imported raster\n")
	}
}

func TestOpenEmptyStore(t *testing.T) {
	if _, err := Open(context.Background(), newTestStore(t)); err == nil {
		t.Fatalf("expected error opening store without dataset\n")
	}
}

func TestUnwrittenTilesAreNoData(t *testing.T) {
	ctx := context.Background()
	meta := Metadata{
		Size:     dvid.Point2d{5, 5},
		TileSize: dvid.Point2d{2, 2},
		Type:     dvid.T_int32,
		NoData:   dvid.T_int32.EncodeValue(-9),
	}
	ds, err := Create(ctx, newTestStore(t), meta)
	if err != nil {
		t.Fatalf("unable to create dataset: %v\n", err)
	}
	tile, err := ds.ReadTile(ctx, dvid.ChunkPoint2d{2, 2})
	if err != nil {
		t.Fatalf("unable to read tile: %v\n", err)
	}
	if tile.NumPixels() != 1 || !tile.IsNoData(0) || tile.Int64(0) != -9 {
		t.Errorf("expected single no-data pixel, got %v\n", tile.Data)
	}
}

func TestApplierHalo(t *testing.T) {
	ctx := context.Background()
	in, err := ImportRaster(ctx, rampRaster(5, 4, dvid.T_uint8), newTestStore(t),
		ImportOptions{TileSize: dvid.Point2d{2, 2}})
	if err != nil {
		t.Fatalf("unable to import raster: %v\n", err)
	}
	out, err := Create(ctx, newTestStore(t), in.Metadata())
	if err != nil {
		t.Fatalf("unable to create output: %v\n", err)
	}

	var order []int
	fn := func(ctx context.Context, info *TileInfo, rasters []*dvid.Raster) (*dvid.Raster, error) {
		order = append(order, info.Index())
		r := rasters[0]
		expectRight := info.Tile[0] < 2
		expectBottom := info.Tile[1] < 1
		if info.HasRight != expectRight || info.HasBottom != expectBottom {
			t.Errorf("%s: bad halo flags right %t bottom %t\n", info, info.HasRight, info.HasBottom)
		}
		want := info.Extents.Size()
		if info.HasRight {
			want[0]++
		}
		if info.HasBottom {
			want[1]++
		}
		if r.Size != want {
			t.Errorf("%s: window size %s, expected %s\n", info, r.Size, want)
		}
		// the corner of the window is the diagonal neighbor's first pixel.
		last := r.NumPixels() - 1
		corner := info.Window.MaxPoint.Sub(dvid.Point2d{1, 1})
		if r.Int64(last) != int64(corner[1]*5+corner[0]) {
			t.Errorf("%s: bad corner pixel %d\n", info, r.Int64(last))
		}
		// return the window plus one everywhere so cropping is visible.
		res := dvid.NewRaster(r.Size, r.Type)
		for i := 0; i < r.NumPixels(); i++ {
			res.SetFloat64(i, r.Float64(i)+1)
		}
		return res, nil
	}
	if err := (Applier{Overlap: 1, Workers: 1}).Apply(ctx, []*Dataset{in}, out, fn); err != nil {
		t.Fatalf("apply failed: %v\n", err)
	}
	if !reflect.DeepEqual(order, []int{0, 1, 2, 3, 4, 5}) {
		t.Errorf("tiles not processed in row-major order: %v\n", order)
	}
	var buf bytes.Buffer
	if err := ExportRaw(ctx, out, &buf); err != nil {
		t.Fatalf("unable to export: %v\n", err)
	}
	for i, b := range buf.Bytes() {
		if int(b) != i+1 {
			t.Fatalf("output pixel %d is %d, expected %d\n", i, b, i+1)
		}
	}
}

func TestApplierConcurrent(t *testing.T) {
	ctx := context.Background()
	in, err := ImportRaster(ctx, rampRaster(33, 17, dvid.T_uint32), newTestStore(t),
		ImportOptions{TileSize: dvid.Point2d{8, 4}, Compression: dvid.Zstd})
	if err != nil {
		t.Fatalf("unable to import raster: %v\n", err)
	}
	var mu sync.Mutex
	seen := make(map[int]bool)
	fn := func(ctx context.Context, info *TileInfo, rasters []*dvid.Raster) (*dvid.Raster, error) {
		mu.Lock()
		seen[info.Index()] = true
		mu.Unlock()
		return nil, nil
	}
	if err := (Applier{Overlap: 1, Workers: 4}).Apply(ctx, []*Dataset{in}, nil, fn); err != nil {
		t.Fatalf("apply failed: %v\n", err)
	}
	if len(seen) != int(in.NumTiles().Prod()) {
		t.Errorf("expected %d tiles visited, got %d\n", in.NumTiles().Prod(), len(seen))
	}
}

func TestApplierOrdered(t *testing.T) {
	ctx := context.Background()
	in, err := ImportRaster(ctx, rampRaster(9, 7, dvid.T_uint16), newTestStore(t),
		ImportOptions{TileSize: dvid.Point2d{2, 2}})
	if err != nil {
		t.Fatalf("unable to import raster: %v\n", err)
	}
	out, err := Create(ctx, newTestStore(t), in.Metadata())
	if err != nil {
		t.Fatalf("unable to create output: %v\n", err)
	}
	var order []int
	fn := func(ctx context.Context, info *TileInfo, rasters []*dvid.Raster) (*dvid.Raster, error) {
		order = append(order, info.Index())
		return rasters[0], nil
	}
	applier := Applier{Overlap: 1, Workers: 3, Ordered: true}
	if err := applier.Apply(ctx, []*Dataset{in}, out, fn); err != nil {
		t.Fatalf("apply failed: %v\n", err)
	}
	if len(order) != int(in.NumTiles().Prod()) {
		t.Fatalf("expected %d tiles, got %d\n", in.NumTiles().Prod(), len(order))
	}
	for i, index := range order {
		if index != i {
			t.Fatalf("tiles not handled in row-major order: %v\n", order)
		}
	}
	var buf bytes.Buffer
	if err := ExportRaw(ctx, out, &buf); err != nil {
		t.Fatalf("unable to export: %v\n", err)
	}
	var want bytes.Buffer
	if err := ExportRaw(ctx, in, &want); err != nil {
		t.Fatalf("unable to export: %v\n", err)
	}
	if !bytes.Equal(buf.Bytes(), want.Bytes()) {
		t.Errorf("ordered copy differs from input\n")
	}

	order = nil
	failing := func(ctx context.Context, info *TileInfo, rasters []*dvid.Raster) (*dvid.Raster, error) {
		if info.Index() == 3 {
			return nil, fmt.Errorf("tile rejected")
		}
		order = append(order, info.Index())
		return nil, nil
	}
	if err := applier.Apply(ctx, []*Dataset{in}, nil, failing); err == nil {
		t.Errorf("expected error from tile 3\n")
	}
	if !reflect.DeepEqual(order, []int{0, 1, 2}) {
		t.Errorf("expected tiles 0-2 before the failure, got %v\n", order)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	r := dvid.NewRaster(dvid.Point2d{4, 2}, dvid.T_uint32)
	for i, v := range []float64{0, 1, 1, 2, 2, 2, 0, 5} {
		r.SetFloat64(i, v)
	}
	ds, err := ImportRaster(ctx, r, newTestStore(t), ImportOptions{TileSize: dvid.Point2d{3, 1}})
	if err != nil {
		t.Fatalf("unable to import raster: %v\n", err)
	}
	stats, err := ComputeStats(ctx, ds, true)
	if err != nil {
		t.Fatalf("unable to compute stats: %v\n", err)
	}
	if stats.Min != 1 || stats.Max != 5 || stats.ValidPixels != 6 || stats.NumValues != 3 || stats.LargestRegion != 3 {
		t.Errorf("bad stats: %s\n", stats)
	}
	if stats.Mean < 2.16 || stats.Mean > 2.17 {
		t.Errorf("expected mean 13/6, got %f\n", stats.Mean)
	}
	if stats.MeanRegion != 2 {
		t.Errorf("expected mean region size 2, got %f\n", stats.MeanRegion)
	}
	if err := ds.SetStats(ctx, stats, true); err != nil {
		t.Fatalf("unable to store stats: %v\n", err)
	}
	reopened, err := Open(ctx, ds.Store())
	if err != nil {
		t.Fatalf("unable to reopen: %v\n", err)
	}
	if meta := reopened.Metadata(); !meta.Thematic || meta.Stats == nil || *meta.Stats != *stats {
		t.Errorf("stats not persisted: %+v\n", meta)
	}
}

func TestImportImageAndPreview(t *testing.T) {
	ctx := context.Background()
	img := image.NewGray16(image.Rect(0, 0, 6, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(1000 * (x / 3))})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("unable to encode test image: %v\n", err)
	}
	ds, err := ImportImage(ctx, &buf, newTestStore(t), ImportOptions{TileSize: dvid.Point2d{4, 4}})
	if err != nil {
		t.Fatalf("unable to import image: %v\n", err)
	}
	if meta := ds.Metadata(); meta.Type != dvid.T_uint16 || meta.Size != (dvid.Point2d{6, 4}) {
		t.Fatalf("bad imported metadata: %s\n", &meta)
	}
	win, err := ds.ReadWindow(ctx, dvid.Extents2d{MaxPoint: dvid.Point2d{6, 1}})
	if err != nil {
		t.Fatalf("unable to read window: %v\n", err)
	}
	if win.Int64(2) != 0 || win.Int64(3) != 1000 {
		t.Errorf("bad imported values %d %d\n", win.Int64(2), win.Int64(3))
	}

	buf.Reset()
	if err := ExportPNG(ctx, ds, &buf); err != nil {
		t.Fatalf("unable to export PNG: %v\n", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("unable to decode exported PNG: %v\n", err)
	}
	if g, ok := decoded.(*image.Gray16); !ok || !bytes.Equal(g.Pix, img.Pix) {
		t.Errorf("exported PNG differs from original\n")
	}

	buf.Reset()
	if err := RenderPreview(ctx, ds, &buf, 4); err != nil {
		t.Fatalf("unable to render preview: %v\n", err)
	}
	preview, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("unable to decode preview: %v\n", err)
	}
	if preview.Bounds().Dx() != 4 {
		t.Errorf("expected preview width 4, got %d\n", preview.Bounds().Dx())
	}
	if LabelColor(0) != color.Black || LabelColor(7) == LabelColor(8) {
		t.Errorf("bad label colors\n")
	}
}

func TestImportRaw(t *testing.T) {
	ctx := context.Background()
	r := rampRaster(7, 5, dvid.T_int16)
	ds, err := ImportRaw(ctx, bytes.NewReader(r.Data), r.Size, r.Type, newTestStore(t),
		ImportOptions{TileSize: dvid.Point2d{3, 2}, Compression: dvid.Uncompressed})
	if err != nil {
		t.Fatalf("unable to import raw: %v\n", err)
	}
	var buf bytes.Buffer
	if err := ExportRaw(ctx, ds, &buf); err != nil {
		t.Fatalf("unable to export raw: %v\n", err)
	}
	if !bytes.Equal(buf.Bytes(), r.Data) {
		t.Errorf("raw round trip failed\n")
	}
	if _, err := ImportRaw(ctx, bytes.NewReader(r.Data[:10]), r.Size, r.Type, newTestStore(t),
		ImportOptions{TileSize: dvid.Point2d{3, 2}}); err == nil {
		t.Errorf("expected error on short input\n")
	}
}

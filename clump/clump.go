/*
	Package clump labels connected regions of equal-valued pixels in rasters too
	large to hold in memory.  Tiles are labeled one at a time with globally unique
	labels, then repeated merge passes reconcile labels across tile seams until a
	pass makes no merges.
*/
package clump

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"

	"github.com/janelia-flyem/clump/datatype/common/labels"
	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
	"github.com/janelia-flyem/clump/tiling"
)

// ErrNonConvergence is returned when merge passes are still locking labels after
// the configured maximum number of passes.
var ErrNonConvergence = errors.New("clump: merge passes did not converge")

// State is the phase of a clumping run.
type State int

const (
	Labeling State = iota
	Merging
	Converged
)

func (s State) String() string {
	switch s {
	case Labeling:
		return "labeling"
	case Merging:
		return "merging"
	case Converged:
		return "converged"
	}
	return fmt.Sprintf("state %d", int(s))
}

// PassStats reports one merge pass.
type PassStats struct {
	Locked int // labels used as merge targets
	Failed int // merges deferred to a later pass
}

// Result summarizes a clumping run.
type Result struct {
	// NumLabels is the number of tile-local clumps found by labeling.
	NumLabels uint64

	Passes []PassStats

	// Stats describes the final labels, with 0 excluded.
	Stats *tiling.Stats
}

// Driver runs the labeling and merging phases over an input dataset.  Intermediate
// label datasets live in scratch stores under a working directory and are deleted
// once superseded.
type Driver struct {
	cfg     Config
	workDir string
	runID   string

	input *tiling.Dataset
	cache *storage.TileCache

	state   State
	counter *labels.Counter

	current       *tiling.Dataset
	currentConfig dvid.StoreConfig
	numPasses     int

	passes []PassStats
}

// NewDriver prepares a run over input.  An empty workDir uses the system
// temporary directory.
func NewDriver(input *tiling.Dataset, workDir string, cfg Config) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Driver{
		cfg:     cfg,
		workDir: workDir,
		runID:   uuid.NewV4().String(),
		input:   input,
		cache:   storage.NewTileCache(cfg.CacheMB),
		state:   Labeling,
		counter: labels.NewCounter(),
	}, nil
}

// State returns the current phase.
func (d *Driver) State() State {
	return d.state
}

// NumLabels returns the number of labels assigned during labeling.
func (d *Driver) NumLabels() uint64 {
	return d.counter.MaxLabel()
}

// Labels returns the most recent label dataset, or nil before labeling.
func (d *Driver) Labels() *tiling.Dataset {
	return d.current
}

func (d *Driver) newScratch(ctx context.Context, name string) (*tiling.Dataset, dvid.StoreConfig, error) {
	config, err := storage.ScratchConfig(d.cfg.Store, d.workDir, fmt.Sprintf("clump-%s-%s", d.runID, name))
	if err != nil {
		return nil, config, err
	}
	store, _, err := storage.NewStore(config)
	if err != nil {
		return nil, config, err
	}
	meta := tiling.Metadata{
		Size:        d.input.Size(),
		TileSize:    d.input.TileSize(),
		Type:        d.cfg.LabelType,
		Thematic:    true,
		Compression: d.cfg.Compression,
	}
	ds, err := tiling.Create(ctx, d.cache.Wrap(store), meta)
	if err != nil {
		store.Close()
		storage.DeleteStore(config)
		return nil, config, err
	}
	return ds, config, nil
}

func (d *Driver) retire(ds *tiling.Dataset, config dvid.StoreConfig) {
	if ds == nil {
		return
	}
	if err := ds.Close(); err != nil {
		dvid.Errorf("Error closing %s: %v\n", ds, err)
	}
	if err := storage.DeleteStore(config); err != nil {
		dvid.Errorf("Error deleting scratch store: %v\n", err)
	}
}

// commit replaces the current label dataset after making sure every tile of the
// new one has been written.
func (d *Driver) commit(ds *tiling.Dataset, config dvid.StoreConfig) error {
	if err := ds.Flush(); err != nil {
		return err
	}
	d.retire(d.current, d.currentConfig)
	d.current, d.currentConfig = ds, config
	return nil
}

// Label assigns tile-unique labels to every tile in row-major order.
func (d *Driver) Label(ctx context.Context) error {
	if d.state != Labeling {
		return fmt.Errorf("can't label in %s state", d.state)
	}
	timedLog := dvid.NewTimeLog()
	out, config, err := d.newScratch(ctx, "labels")
	if err != nil {
		return err
	}
	applier := tiling.Applier{Workers: 1}
	err = applier.Apply(ctx, []*tiling.Dataset{d.input}, out,
		func(ctx context.Context, info *tiling.TileInfo, in []*dvid.Raster) (*dvid.Raster, error) {
			lbls, err := d.counter.Label(in[0], labels.ValidMask(in[0]))
			if err != nil {
				return nil, err
			}
			return dvid.RasterFromLabels(lbls, in[0].Size, d.cfg.LabelType)
		})
	if err == nil {
		err = d.commit(out, config)
	}
	if err != nil {
		d.retire(out, config)
		return err
	}
	d.state = Merging
	timedLog.Infof("Labeled %d tiles of %s with %d labels", d.input.NumTiles().Prod(), d.input, d.counter.MaxLabel())
	return nil
}

// MergePass runs one merge pass over the current labels and makes its output the
// current labels.  The driver moves to Converged once a pass locks no labels.
func (d *Driver) MergePass(ctx context.Context) (PassStats, error) {
	var stats PassStats
	if d.state == Labeling {
		return stats, fmt.Errorf("can't merge before labeling")
	}
	timedLog := dvid.NewTimeLog()
	maxLabel := d.counter.MaxLabel()
	state := labels.NewMergeState(maxLabel)
	dvid.Debugf("Merge pass %d tracking %d labels in %s\n", d.numPasses+1, maxLabel,
		humanize.Bytes(9*(maxLabel+1)))

	out, config, err := d.newScratch(ctx, fmt.Sprintf("pass%d", d.numPasses+1))
	if err != nil {
		return stats, err
	}
	applier := tiling.Applier{Overlap: 1, Workers: d.cfg.Workers, Ordered: true}
	err = applier.Apply(ctx, []*tiling.Dataset{d.input, d.current}, out,
		func(ctx context.Context, info *tiling.TileInfo, in []*dvid.Raster) (*dvid.Raster, error) {
			entry, err := in[1].Labels()
			if err != nil {
				return nil, err
			}
			merged, err := state.Merge(in[0], entry, info.HasBottom, info.HasRight)
			if err != nil {
				return nil, err
			}
			return dvid.RasterFromLabels(merged, in[0].Size, d.cfg.LabelType)
		})
	if err == nil {
		err = d.commit(out, config)
	}
	if err != nil {
		d.retire(out, config)
		return stats, err
	}
	d.numPasses++
	stats = PassStats{Locked: state.Locked(), Failed: state.Failed()}
	d.passes = append(d.passes, stats)
	if stats.Locked == 0 {
		d.state = Converged
	} else {
		d.state = Merging
	}
	timedLog.Infof("Merge pass %d: %d labels locked, %d merges deferred", d.numPasses, stats.Locked, stats.Failed)
	return stats, nil
}

// Finish copies the converged labels into a new dataset in the output store and
// records their statistics.
func (d *Driver) Finish(ctx context.Context, output storage.Store) (*tiling.Dataset, *tiling.Stats, error) {
	if d.state != Converged {
		return nil, nil, fmt.Errorf("can't finish in %s state", d.state)
	}
	meta := d.current.Metadata()
	meta.Stats = nil
	out, err := tiling.Create(ctx, output, meta)
	if err != nil {
		return nil, nil, err
	}
	acc := tiling.NewStatsAccumulator(0)
	applier := tiling.Applier{Workers: 1}
	err = applier.Apply(ctx, []*tiling.Dataset{d.current}, out,
		func(ctx context.Context, info *tiling.TileInfo, in []*dvid.Raster) (*dvid.Raster, error) {
			if err := acc.Add(in[0]); err != nil {
				return nil, err
			}
			return in[0], nil
		})
	if err != nil {
		return nil, nil, err
	}
	stats := acc.Stats()
	if err := out.SetStats(ctx, stats, true); err != nil {
		return nil, nil, err
	}
	if err := out.Flush(); err != nil {
		return nil, nil, err
	}
	return out, stats, nil
}

// Run labels, merges until convergence and writes the final labels to output.
func (d *Driver) Run(ctx context.Context, output storage.Store) (*Result, error) {
	timedLog := dvid.NewTimeLog()
	if err := d.Label(ctx); err != nil {
		return nil, err
	}
	for d.state == Merging {
		if d.numPasses >= d.cfg.MaxPasses {
			return nil, fmt.Errorf("%w after %d passes, last locked %d labels",
				ErrNonConvergence, d.numPasses, d.passes[len(d.passes)-1].Locked)
		}
		if _, err := d.MergePass(ctx); err != nil {
			return nil, err
		}
	}
	_, stats, err := d.Finish(ctx, output)
	if err != nil {
		return nil, err
	}
	result := &Result{
		NumLabels: d.counter.MaxLabel(),
		Passes:    d.passes,
		Stats:     stats,
	}
	var numClumps int
	if stats != nil {
		numClumps = stats.NumValues
	}
	hits, misses := d.cache.Stats()
	timedLog.Infof("Clumped %s into %s clumps in %d merge passes (cache hits %d, misses %d)",
		d.input, humanize.Comma(int64(numClumps)), len(d.passes), hits, misses)
	return result, nil
}

// Close deletes any remaining scratch dataset.
func (d *Driver) Close() {
	d.retire(d.current, d.currentConfig)
	d.current = nil
}

// Clump labels the connected regions of input and writes them as a new dataset
// into output, using workDir for intermediate datasets.
func Clump(ctx context.Context, input *tiling.Dataset, output storage.Store, workDir string, cfg Config) (*Result, error) {
	d, err := NewDriver(input, workDir, cfg)
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return d.Run(ctx, output)
}

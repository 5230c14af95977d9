// Command-line interface for clumping large rasters tile by tile.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/clump/clump"
	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
	"github.com/janelia-flyem/clump/tiling"

	_ "github.com/janelia-flyem/clump/storage/badger"
	_ "github.com/janelia-flyem/clump/storage/blob"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to TOML configuration file.
	configFile = flag.String("config", "", "")

	// Directory for intermediate pass datasets.
	tempDir = flag.String("tempdir", "", "")

	// Tile size "w,h" for imported rasters.
	tileSize = flag.String("tile", "", "")

	// Maximum number of merge passes.
	maxPasses = flag.Int("passes", 0, "")

	// Storage engine for datasets.
	engine = flag.String("engine", "", "")

	// Tile compression for new datasets.
	compression = flag.String("compress", "", "")

	// Number of goroutines preparing tiles during merge passes.
	numWorkers = flag.Int("workers", 0, "")

	// Size of tile read cache in MB, negative to disable.
	cacheMB = flag.Int("cache", 0, "")
)

const helpMessage = `
clump labels connected regions of equal-valued pixels in rasters too large for memory

Usage: clump [options] <command>

      -config     =string   Path to TOML configuration file.
      -tempdir    =string   Directory for intermediate datasets (default: system temp).
      -tile       =string   Tile size "w,h" used when importing (default: 256,256).
      -passes     =number   Maximum number of merge passes (default: 64).
      -engine     =string   Storage engine for datasets: %s
      -compress   =string   Tile compression: none, snappy, lz4, zstd.
      -workers    =number   Goroutines preparing tiles during merge passes.
      -cache      =number   Tile read cache in MB, negative to disable.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Datasets are given as a directory path or, with the blob engine, a bucket URL
such as "mem://" or "file:///data/labels".

Commands:

	run    <input dataset> <output dataset>
	import <image or raw file> <dataset> [size=w,h type=uint16 nodata=0]
	export <dataset> <file> [format=raw|png|preview width=512]
	info   <dataset>
	engines
`

var usage = func() {
	fmt.Printf(helpMessage, storage.EnginesAvailable())
}

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}

	if *runVerbose {
		dvid.SetLogMode(dvid.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	// Capture ctrl+c and other interrupts so intermediate datasets are removed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := dvid.Command(flag.Args())
	if err := DoCommand(ctx, cmd); err != nil {
		if errors.Is(err, clump.ErrNonConvergence) {
			dvid.Criticalf("Labels are not consistent across tiles, raise -passes: %v\n", err)
		}
		fmt.Fprintf(os.Stderr, "%s\n", err)
		dvid.Shutdown()
		os.Exit(1)
	}
	dvid.Shutdown()
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd dvid.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Logging.SetLogger()

	switch cmd.Name() {
	case "run":
		return doRun(ctx, cmd, cfg)
	case "import":
		return doImport(ctx, cmd, cfg)
	case "export":
		return doExport(ctx, cmd, cfg)
	case "info":
		return doInfo(ctx, cmd, cfg)
	case "engines":
		fmt.Printf("Available storage engines: %s\n", storage.EnginesAvailable())
		return nil
	default:
		return fmt.Errorf("unknown command: %q", cmd)
	}
}

// loadConfig reads the optional TOML file and applies command-line overrides.
func loadConfig() (cfg clump.Config, err error) {
	if *configFile != "" {
		if cfg, err = clump.LoadConfig(*configFile); err != nil {
			return
		}
	} else {
		cfg = clump.DefaultConfig()
	}
	if *tileSize != "" {
		if cfg.TileSize, err = dvid.PointStr(*tileSize).Point2d(); err != nil {
			return
		}
	}
	if *maxPasses != 0 {
		cfg.MaxPasses = *maxPasses
	}
	if *engine != "" {
		cfg.Store.Engine = *engine
	}
	if *compression != "" {
		if cfg.Compression, err = dvid.ParseCompression(*compression); err != nil {
			return
		}
	}
	if *numWorkers != 0 {
		cfg.Workers = *numWorkers
	} else if *configFile == "" {
		cfg.Workers = runtime.NumCPU()
	}
	if *cacheMB < 0 {
		cfg.CacheMB = 0
	} else if *cacheMB > 0 {
		cfg.CacheMB = *cacheMB
	}
	err = cfg.Validate()
	return
}

// datasetStore opens the store holding a dataset at a path or bucket URL.
func datasetStore(cfg clump.Config, location string) (storage.Store, dvid.StoreConfig, error) {
	config := storage.CopyConfig(cfg.Store)
	if strings.Contains(location, "://") {
		config.Engine = "blob"
		delete(config.Config, "path")
		config.Set("url", location)
	} else {
		path, err := filepath.Abs(location)
		if err != nil {
			return nil, config, err
		}
		delete(config.Config, "url")
		config.Set("path", path)
	}
	store, _, err := storage.NewStore(config)
	if err != nil {
		return nil, config, fmt.Errorf("could not open dataset %q: %v", location, err)
	}
	return store, config, nil
}

func openDataset(ctx context.Context, cfg clump.Config, location string) (*tiling.Dataset, error) {
	store, _, err := datasetStore(cfg, location)
	if err != nil {
		return nil, err
	}
	ds, err := tiling.Open(ctx, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("%q: %v", location, err)
	}
	return ds, nil
}

func doRun(ctx context.Context, cmd dvid.Command, cfg clump.Config) error {
	var inputName, outputName string
	cmd.CommandArgs(&inputName, &outputName)
	if outputName == "" {
		return fmt.Errorf("run needs an input and an output dataset")
	}
	input, err := openDataset(ctx, cfg, inputName)
	if err != nil {
		return err
	}
	defer input.Close()

	output, _, err := datasetStore(cfg, outputName)
	if err != nil {
		return err
	}
	defer output.Close()

	timedLog := dvid.NewTimeLog()
	result, err := clump.Clump(ctx, input, output, *tempDir, cfg)
	if err != nil {
		return err
	}
	timedLog.Infof("Clumped %s into %s after %d merge passes", inputName, outputName, len(result.Passes))
	var numClumps int
	if result.Stats != nil {
		numClumps = result.Stats.NumValues
	}
	fmt.Printf("%s tile clumps merged into %s clumps in %d passes\n",
		humanize.Comma(int64(result.NumLabels)), humanize.Comma(int64(numClumps)), len(result.Passes))
	return nil
}

func doImport(ctx context.Context, cmd dvid.Command, cfg clump.Config) error {
	var filename, outputName string
	cmd.CommandArgs(&filename, &outputName)
	if outputName == "" {
		return fmt.Errorf("import needs an input file and an output dataset")
	}
	opts := tiling.ImportOptions{
		TileSize:    cfg.TileSize,
		Compression: cfg.Compression,
	}
	if s, found := cmd.Parameter(dvid.KeyNoData); found {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("bad nodata setting %q: %v", s, err)
		}
		opts.NoData = &v
	}

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	store, _, err := datasetStore(cfg, outputName)
	if err != nil {
		return err
	}
	defer store.Close()

	var ds *tiling.Dataset
	size, rawInput, err := cmd.PointParameter(dvid.KeySize)
	if err != nil {
		return err
	}
	if rawInput {
		t := dvid.T_uint8
		if s, found := cmd.Parameter(dvid.KeyType); found {
			if t, err = dvid.ParseDataType(s); err != nil {
				return err
			}
		}
		ds, err = tiling.ImportRaw(ctx, f, size, t, store, opts)
	} else {
		ds, err = tiling.ImportImage(ctx, f, store, opts)
	}
	if err != nil {
		return fmt.Errorf("could not import %q: %v", filename, err)
	}
	fmt.Printf("Imported %s into %s\n", filename, ds)
	return storage.Flush(store)
}

func doExport(ctx context.Context, cmd dvid.Command, cfg clump.Config) error {
	var inputName, filename string
	cmd.CommandArgs(&inputName, &filename)
	if filename == "" {
		return fmt.Errorf("export needs a dataset and an output file")
	}
	format, found := cmd.Parameter(dvid.KeyFormat)
	if !found {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".png":
			format = "png"
		default:
			format = "raw"
		}
	}
	width, found, err := cmd.IntParameter(dvid.KeyWidth)
	if err != nil {
		return err
	}
	if !found {
		width = 512
	}

	ds, err := openDataset(ctx, cfg, inputName)
	if err != nil {
		return err
	}
	defer ds.Close()

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	switch format {
	case "raw":
		err = tiling.ExportRaw(ctx, ds, f)
	case "png":
		err = tiling.ExportPNG(ctx, ds, f)
	case "preview":
		err = tiling.RenderPreview(ctx, ds, f, width)
	default:
		err = fmt.Errorf("unknown export format %q", format)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(filename)
		return err
	}
	dvid.Infof("Exported %s as %s to %s\n", inputName, format, filename)
	return nil
}

func doInfo(ctx context.Context, cmd dvid.Command, cfg clump.Config) error {
	var inputName string
	cmd.CommandArgs(&inputName)
	if inputName == "" {
		return fmt.Errorf("info needs a dataset")
	}
	ds, err := openDataset(ctx, cfg, inputName)
	if err != nil {
		return err
	}
	defer ds.Close()

	meta := ds.Metadata()
	fmt.Printf("%s\n", meta.String())
	stats := meta.Stats
	if stats == nil && meta.Type.IsInteger() {
		if stats, err = tiling.ComputeStats(ctx, ds, meta.Thematic); err != nil {
			return err
		}
	}
	if stats != nil {
		fmt.Printf("Statistics: %s\n", stats)
	}
	return nil
}

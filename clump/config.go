package clump

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/janelia-flyem/clump/dvid"
)

const (
	DefaultTileSize  = 256
	DefaultMaxPasses = 64
	DefaultCacheMB   = 64
)

// Config holds the settings of a clumping run.
type Config struct {
	// TileSize is the size of tiles when rasters are imported.  Intermediate and
	// output datasets always use the input dataset's tiling.
	TileSize dvid.Point2d

	// MaxPasses bounds the number of merge passes before ErrNonConvergence.
	MaxPasses int

	// Workers is the number of tiles read and decoded at once during merge passes.
	// Merge decisions and writes still follow row-major tile order, and labeling
	// always runs on a single goroutine.
	Workers int

	Compression dvid.Compression

	// LabelType is the integer type used to store labels.  It must be able to hold
	// the number of clumps before merging.
	LabelType dvid.DataType

	// CacheMB is the size of the shared tile read cache; 0 disables it.
	CacheMB int

	// Store describes the engine used for intermediate pass datasets.
	Store dvid.StoreConfig

	Logging dvid.LogConfig
}

// DefaultConfig returns settings suitable for most rasters.
func DefaultConfig() Config {
	return Config{
		TileSize:    dvid.Point2d{DefaultTileSize, DefaultTileSize},
		MaxPasses:   DefaultMaxPasses,
		Workers:     1,
		Compression: dvid.Snappy,
		LabelType:   dvid.T_uint32,
		CacheMB:     DefaultCacheMB,
		Store:       dvid.StoreConfig{Config: dvid.Config{}, Engine: "badger"},
	}
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.TileSize[0] <= 0 || c.TileSize[1] <= 0 {
		return fmt.Errorf("tile size must be positive, got %s", c.TileSize)
	}
	if c.MaxPasses <= 0 {
		return fmt.Errorf("max passes must be positive, got %d", c.MaxPasses)
	}
	if !c.LabelType.IsInteger() {
		return fmt.Errorf("labels must be stored as integers, got %s", c.LabelType)
	}
	if c.Store.Engine == "" {
		return fmt.Errorf("no storage engine given for intermediate datasets")
	}
	return nil
}

type clumpConfig struct {
	TileWidth   int32  `toml:"tile_width"`
	TileHeight  int32  `toml:"tile_height"`
	MaxPasses   int    `toml:"max_passes"`
	Workers     int    `toml:"workers"`
	Compression string `toml:"compression"`
	LabelType   string `toml:"label_type"`
	CacheMB     *int   `toml:"cache_mb"`
}

type tomlConfig struct {
	Clump   clumpConfig
	Store   map[string]interface{}
	Logging dvid.LogConfig
}

// Some settings in the TOML can be given as relative paths.
// This function converts them in-place to absolute paths,
// assuming the given paths were relative to the TOML file's own directory.
func (tc *tomlConfig) convertPathsToAbsolute(configPath string) error {
	var err error
	configDir := filepath.Dir(configPath)

	// [logging].logfile
	if tc.Logging.Logfile != "" {
		tc.Logging.Logfile, err = dvid.ConvertToAbsolute(tc.Logging.Logfile, configDir)
		if err != nil {
			return fmt.Errorf("error converting logfile setting to absolute path")
		}
	}

	// [store].path
	if p, found := tc.Store["path"]; found {
		path, ok := p.(string)
		if !ok {
			return fmt.Errorf("don't understand path setting %v for store", p)
		}
		if tc.Store["path"], err = dvid.ConvertToAbsolute(path, configDir); err != nil {
			return fmt.Errorf("error converting store path %q to absolute path", path)
		}
	}
	return nil
}

// LoadConfig reads settings from a TOML file, starting from DefaultConfig.
//
//	[clump]
//	tile_width = 512
//	tile_height = 512
//	max_passes = 64
//	workers = 4
//	compression = "lz4"
//	label_type = "uint32"
//	cache_mb = 128
//
//	[store]
//	engine = "badger"
//	lowmem = true
//
//	[logging]
//	logfile = "clump.log"
//	max_log_size = 500
//	max_log_age = 30
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	var tc tomlConfig
	if _, err := toml.DecodeFile(filename, &tc); err != nil {
		return cfg, fmt.Errorf("could not decode TOML config: %v", err)
	}
	if err := tc.convertPathsToAbsolute(filename); err != nil {
		return cfg, err
	}

	if tc.Clump.TileWidth != 0 {
		cfg.TileSize[0] = tc.Clump.TileWidth
	}
	if tc.Clump.TileHeight != 0 {
		cfg.TileSize[1] = tc.Clump.TileHeight
	}
	if tc.Clump.MaxPasses != 0 {
		cfg.MaxPasses = tc.Clump.MaxPasses
	}
	if tc.Clump.Workers != 0 {
		cfg.Workers = tc.Clump.Workers
	}
	if tc.Clump.CacheMB != nil {
		cfg.CacheMB = *tc.Clump.CacheMB
	}
	var err error
	if tc.Clump.Compression != "" {
		if cfg.Compression, err = dvid.ParseCompression(tc.Clump.Compression); err != nil {
			return cfg, err
		}
	}
	if tc.Clump.LabelType != "" {
		if cfg.LabelType, err = dvid.ParseDataType(tc.Clump.LabelType); err != nil {
			return cfg, err
		}
	}
	if len(tc.Store) != 0 {
		store := dvid.StoreConfig{Config: dvid.Config{}, Engine: cfg.Store.Engine}
		for k, v := range tc.Store {
			if strings.ToLower(k) == "engine" {
				engine, ok := v.(string)
				if !ok {
					return cfg, fmt.Errorf("store engine must be a string, got %v", v)
				}
				store.Engine = engine
				continue
			}
			store.Set(k, v)
		}
		cfg.Store = store
	}
	cfg.Logging = tc.Logging
	return cfg, cfg.Validate()
}

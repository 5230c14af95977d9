/*
	Package storage provides a unified interface to the key-value engines that hold
	tiled raster datasets.  Engines register themselves on import and are selected
	by name through a dvid.StoreConfig, so callers never depend on a concrete
	backend.  Values are simply []byte at this level; serialization and compression
	happen above the storage level.
*/
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/blang/semver"

	"github.com/janelia-flyem/clump/dvid"
)

// ErrUnknownEngine is returned when a store configuration names an engine that
// has not been registered.
var ErrUnknownEngine = errors.New("storage: unknown engine")

// Store is a simple key-value store.  Get returns a nil value and nil error when
// the key is not present.
type Store interface {
	fmt.Stringer

	Get(ctx context.Context, k []byte) ([]byte, error)
	Put(ctx context.Context, k, v []byte) error
	Delete(ctx context.Context, k []byte) error
	Close() error
}

// Flusher is implemented by stores that buffer writes and can commit them on
// demand.
type Flusher interface {
	Flush() error
}

// Engine is a storage backend that can create stores.
type Engine interface {
	fmt.Stringer

	GetName() string
	GetDescription() string
	GetSemVer() semver.Version

	// NewStore opens the store given by config, creating it if necessary.  The
	// returned bool is true if a new store was created.
	NewStore(config dvid.StoreConfig) (Store, bool, error)

	// Delete removes any persisted store described by config.
	Delete(config dvid.StoreConfig) error

	// ScratchConfig returns a config for a new store named name, derived from
	// base and placed under dir if the engine is file-backed.
	ScratchConfig(base dvid.StoreConfig, dir, name string) dvid.StoreConfig
}

var (
	enginesMu    sync.RWMutex
	availEngines = make(map[string]Engine)
)

// RegisterEngine makes an engine available by its name.  Registering the same name
// twice replaces the earlier engine.
func RegisterEngine(e Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	if _, found := availEngines[e.GetName()]; found {
		dvid.Warningf("Storage engine %q registered more than once\n", e.GetName())
	}
	availEngines[e.GetName()] = e
}

// GetEngine returns the engine registered under name.
func GetEngine(name string) (Engine, error) {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	e, found := availEngines[name]
	if !found {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownEngine, name, engineNames())
	}
	return e, nil
}

// EnginesAvailable returns a description of the registered engines.
func EnginesAvailable() string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	var s string
	for i, name := range engineNames() {
		if i != 0 {
			s += "; "
		}
		e := availEngines[name]
		s += fmt.Sprintf("%s [%s] %s", name, e.GetSemVer(), e.GetDescription())
	}
	return s
}

func engineNames() []string {
	names := make([]string, 0, len(availEngines))
	for name := range availEngines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewStore opens or creates the store described by config.
func NewStore(config dvid.StoreConfig) (Store, bool, error) {
	e, err := GetEngine(config.Engine)
	if err != nil {
		return nil, false, err
	}
	return e.NewStore(config)
}

// DeleteStore removes the persisted store described by config.
func DeleteStore(config dvid.StoreConfig) error {
	e, err := GetEngine(config.Engine)
	if err != nil {
		return err
	}
	return e.Delete(config)
}

// ScratchConfig returns a configuration for a temporary store named name using
// the same engine and settings as base.
func ScratchConfig(base dvid.StoreConfig, dir, name string) (dvid.StoreConfig, error) {
	e, err := GetEngine(base.Engine)
	if err != nil {
		return dvid.StoreConfig{}, err
	}
	return e.ScratchConfig(base, dir, name), nil
}

// Flush commits buffered writes if the store supports it.
func Flush(s Store) error {
	if f, ok := s.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// CopyConfig returns a deep copy of the top-level settings of a store config.
func CopyConfig(config dvid.StoreConfig) dvid.StoreConfig {
	c := make(dvid.Config, len(config.Config))
	for k, v := range config.Config {
		c[k] = v
	}
	return dvid.StoreConfig{Config: c, Engine: config.Engine}
}

package dvid

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// Config is a map of keyword to arbitrary data to specify configurations via keyword.
// Keys are case-insensitive.
type Config map[string]interface{}

// Set sets a configuration value, lower-casing the key.
func (c Config) Set(key string, value interface{}) {
	c[strings.ToLower(key)] = value
}

func (c Config) get(key string) (interface{}, bool) {
	if c == nil {
		return nil, false
	}
	v, found := c[strings.ToLower(key)]
	return v, found
}

// GetString returns a string setting and whether it was found.
func (c Config) GetString(key string) (s string, found bool, err error) {
	var v interface{}
	if v, found = c.get(key); !found {
		return
	}
	var ok bool
	if s, ok = v.(string); !ok {
		err = fmt.Errorf("setting %q should be a string, got %T", key, v)
	}
	return
}

// GetInt returns an int setting and whether it was found.  TOML integers decode
// as int64 so both int and int64 are accepted.
func (c Config) GetInt(key string) (i int, found bool, err error) {
	var v interface{}
	if v, found = c.get(key); !found {
		return
	}
	switch x := v.(type) {
	case int:
		i = x
	case int64:
		i = int(x)
	case float64:
		i = int(x)
	default:
		err = fmt.Errorf("setting %q should be an integer, got %T", key, v)
	}
	return
}

// GetBool returns a bool setting and whether it was found.
func (c Config) GetBool(key string) (b bool, found bool, err error) {
	var v interface{}
	if v, found = c.get(key); !found {
		return
	}
	var ok bool
	if b, ok = v.(bool); !ok {
		err = fmt.Errorf("setting %q should be a bool, got %T", key, v)
	}
	return
}

// StoreConfig is a store-specific configuration where each store implementation
// defines the types of parameters it accepts.
type StoreConfig struct {
	Config

	// Engine is a simple name describing the engine, e.g., "badger"
	Engine string
}

// ConvertToAbsolute returns an absolute path, treating relative paths as relative
// to the given directory.
func ConvertToAbsolute(path, relativeTo string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(relativeTo, path))
}

package badger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blang/semver"
	"github.com/dgraph-io/badger/v3"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
)

func init() {
	ver, err := semver.Make("0.2.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in badger: %v\n", err)
	}
	e := Engine{"badger", "BadgerDB", ver}
	storage.RegisterEngine(e)
}

// --- Engine Implementation ------

type Engine struct {
	name   string
	desc   string
	semver semver.Version
}

func (e Engine) GetName() string {
	return e.name
}

func (e Engine) GetDescription() string {
	return e.desc
}

func (e Engine) GetSemVer() semver.Version {
	return e.semver
}

func (e Engine) String() string {
	return fmt.Sprintf("%s [%s]", e.name, e.semver)
}

// NewStore returns a badger store.  The passed Config must contain a "path" string
// unless "inmemory" is true.
func (e Engine) NewStore(config dvid.StoreConfig) (storage.Store, bool, error) {
	return e.newDB(config)
}

func parseConfig(config dvid.StoreConfig) (path string, inMemory bool, err error) {
	if inMemory, _, err = config.GetBool("inmemory"); err != nil {
		return
	}
	var found bool
	if path, found, err = config.GetString("path"); err != nil {
		return
	}
	if !found && !inMemory {
		err = fmt.Errorf("%q must be specified for BadgerDB configuration", "path")
	}
	return
}

// newDB returns a Badger backend, creating one at path if it doesn't exist.
func (e Engine) newDB(config dvid.StoreConfig) (*BadgerDB, bool, error) {
	path, inMemory, err := parseConfig(config)
	if err != nil {
		return nil, false, err
	}

	created := true
	if inMemory {
		path = ""
	} else {
		// Is there a database already at this path?  If not, create.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			dvid.Debugf("Database not already at path (%s). Creating directory...\n", path)
			if err := os.MkdirAll(path, 0755); err != nil {
				return nil, true, fmt.Errorf("can't make directory at %s: %v", path, err)
			}
		} else {
			created = false
		}
	}
	opts, err := getOptions(path, config.Config)
	if err != nil {
		return nil, false, err
	}
	if inMemory {
		opts = opts.WithInMemory(true)
		path = "memory"
	}

	dvid.Debugf("Opening badger @ %s\n", path)
	bdp, err := badger.Open(opts)
	if err != nil {
		return nil, false, err
	}
	return &BadgerDB{directory: path, inMemory: inMemory, bdp: bdp}, created, nil
}

// Delete removes the database directory, if any, described by config.
func (e Engine) Delete(config dvid.StoreConfig) error {
	path, inMemory, err := parseConfig(config)
	if err != nil || inMemory {
		return err
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("can't delete badger store %q: %v", path, err)
		}
	}
	return nil
}

// ScratchConfig places a new database named name under dir, or returns another
// in-memory configuration if base is in memory.
func (e Engine) ScratchConfig(base dvid.StoreConfig, dir, name string) dvid.StoreConfig {
	config := storage.CopyConfig(base)
	if inMemory, _, _ := base.GetBool("inmemory"); !inMemory {
		config.Set("path", filepath.Join(dir, name))
	}
	return config
}

// --- The BadgerDB Implementation must satisfy a storage.Store interface ----

type BadgerDB struct {
	// Directory of datastore or "memory"
	directory string
	inMemory  bool

	bdp *badger.DB
}

func (db *BadgerDB) String() string {
	return fmt.Sprintf("badger @ %s", db.directory)
}

// Close closes the BadgerDB
func (db *BadgerDB) Close() error {
	if db == nil || db.bdp == nil {
		return nil
	}
	err := db.bdp.Close()
	db.bdp = nil
	dvid.Debugf("Closed Badger DB @ %s\n", db.directory)
	return err
}

// Get returns a value given a key, or nil if the key is not present.
func (db *BadgerDB) Get(ctx context.Context, k []byte) ([]byte, error) {
	if db == nil || db.bdp == nil {
		return nil, fmt.Errorf("can't call Get on closed BadgerDB")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var v []byte
	err := db.bdp.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	return v, err
}

// Put writes a value with given key.
func (db *BadgerDB) Put(ctx context.Context, k, v []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Put on closed BadgerDB")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// Delete removes a value with given key.
func (db *BadgerDB) Delete(ctx context.Context, k []byte) error {
	if db == nil || db.bdp == nil {
		return fmt.Errorf("can't call Delete on closed BadgerDB")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.bdp.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

// Flush syncs buffered writes to disk.
func (db *BadgerDB) Flush() error {
	if db == nil || db.bdp == nil || db.inMemory {
		return nil
	}
	return db.bdp.Sync()
}

package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/janelia-flyem/go/gocheck"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type BadgerSuite struct {
	dir string
}

var _ = Suite(&BadgerSuite{})

func (s *BadgerSuite) SetUpSuite(c *C) {
	s.dir = c.MkDir()
}

func exerciseStore(c *C, store storage.Store) {
	ctx := context.Background()
	v, err := store.Get(ctx, []byte("missing"))
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)

	c.Assert(store.Put(ctx, []byte{0x01, 0x02}, []byte("tile data")), IsNil)
	v, err = store.Get(ctx, []byte{0x01, 0x02})
	c.Assert(err, IsNil)
	c.Assert(string(v), Equals, "tile data")

	c.Assert(store.Put(ctx, []byte{0x01, 0x02}, []byte("rewritten")), IsNil)
	v, err = store.Get(ctx, []byte{0x01, 0x02})
	c.Assert(err, IsNil)
	c.Assert(string(v), Equals, "rewritten")

	c.Assert(store.Delete(ctx, []byte{0x01, 0x02}), IsNil)
	v, err = store.Get(ctx, []byte{0x01, 0x02})
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)

	c.Assert(storage.Flush(store), IsNil)
}

func (s *BadgerSuite) TestOnDisk(c *C) {
	path := filepath.Join(s.dir, "ondisk")
	config := dvid.StoreConfig{Config: dvid.Config{"path": path}, Engine: "badger"}
	store, created, err := storage.NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(created, Equals, true)
	exerciseStore(c, store)

	ctx := context.Background()
	c.Assert(store.Put(ctx, []byte("persist"), []byte("yes")), IsNil)
	c.Assert(store.Close(), IsNil)

	store, created, err = storage.NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(created, Equals, false)
	v, err := store.Get(ctx, []byte("persist"))
	c.Assert(err, IsNil)
	c.Assert(string(v), Equals, "yes")
	c.Assert(store.Close(), IsNil)

	c.Assert(storage.DeleteStore(config), IsNil)
	_, err = os.Stat(path)
	c.Assert(os.IsNotExist(err), Equals, true)
}

func (s *BadgerSuite) TestInMemoryLowMem(c *C) {
	config := dvid.StoreConfig{Config: dvid.Config{"inmemory": true, "lowmem": true}, Engine: "badger"}
	store, _, err := storage.NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(store.String(), Equals, "badger @ memory")
	exerciseStore(c, store)
	c.Assert(store.Close(), IsNil)
	c.Assert(storage.DeleteStore(config), IsNil)
}

func (s *BadgerSuite) TestConfig(c *C) {
	_, _, err := storage.NewStore(dvid.StoreConfig{Config: dvid.Config{}, Engine: "badger"})
	c.Assert(err, NotNil)

	base := dvid.StoreConfig{Config: dvid.Config{"path": "/a/b"}, Engine: "badger"}
	scratch, err := storage.ScratchConfig(base, s.dir, "pass-1")
	c.Assert(err, IsNil)
	path, _, _ := scratch.GetString("path")
	c.Assert(path, Equals, filepath.Join(s.dir, "pass-1"))
}

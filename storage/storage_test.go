package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/blang/semver"
	. "github.com/janelia-flyem/go/gocheck"

	"github.com/janelia-flyem/clump/dvid"
)

// Hook up gocheck into the "go test" runner.
func Test(t *testing.T) { TestingT(t) }

type DataSuite struct{}

var _ = Suite(&DataSuite{})

// mapEngine is a trivial engine used to exercise the registry and cache.
type mapEngine struct {
	mu     sync.Mutex
	stores map[string]*mapStore
}

func (e *mapEngine) String() string            { return "testmap" }
func (e *mapEngine) GetName() string           { return "testmap" }
func (e *mapEngine) GetDescription() string    { return "map-backed test engine" }
func (e *mapEngine) GetSemVer() semver.Version { return semver.MustParse("1.0.0") }

func (e *mapEngine) NewStore(config dvid.StoreConfig) (Store, bool, error) {
	name, _, err := config.GetString("name")
	if err != nil {
		return nil, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, found := e.stores[name]; found {
		return s, false, nil
	}
	s := &mapStore{name: name, data: make(map[string][]byte)}
	e.stores[name] = s
	return s, true, nil
}

func (e *mapEngine) Delete(config dvid.StoreConfig) error {
	name, _, _ := config.GetString("name")
	e.mu.Lock()
	delete(e.stores, name)
	e.mu.Unlock()
	return nil
}

func (e *mapEngine) ScratchConfig(base dvid.StoreConfig, dir, name string) dvid.StoreConfig {
	config := CopyConfig(base)
	config.Set("name", dir+"/"+name)
	return config
}

type mapStore struct {
	mu    sync.Mutex
	name  string
	data  map[string][]byte
	gets  int
	flush int
}

func (s *mapStore) String() string { return "map " + s.name }

func (s *mapStore) Get(ctx context.Context, k []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	return s.data[string(k)], nil
}

func (s *mapStore) Put(ctx context.Context, k, v []byte) error {
	s.mu.Lock()
	s.data[string(k)] = v
	s.mu.Unlock()
	return nil
}

func (s *mapStore) Delete(ctx context.Context, k []byte) error {
	s.mu.Lock()
	delete(s.data, string(k))
	s.mu.Unlock()
	return nil
}

func (s *mapStore) Flush() error {
	s.flush++
	return nil
}

func (s *mapStore) Close() error { return nil }

var testEngine = &mapEngine{stores: make(map[string]*mapStore)}

func init() {
	RegisterEngine(testEngine)
}

func (suite *DataSuite) TestRegistry(c *C) {
	e, err := GetEngine("testmap")
	c.Assert(err, IsNil)
	c.Assert(e.GetName(), Equals, "testmap")

	_, err = GetEngine("nosuchengine")
	c.Assert(errors.Is(err, ErrUnknownEngine), Equals, true)

	config := dvid.StoreConfig{Config: dvid.Config{"name": "a"}, Engine: "testmap"}
	s, created, err := NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(created, Equals, true)
	c.Assert(s.String(), Equals, "map a")

	_, created, err = NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(created, Equals, false)

	scratch, err := ScratchConfig(config, "/tmp", "pass1")
	c.Assert(err, IsNil)
	name, _, _ := scratch.GetString("name")
	c.Assert(name, Equals, "/tmp/pass1")
	orig, _, _ := config.GetString("name")
	c.Assert(orig, Equals, "a")

	c.Assert(DeleteStore(config), IsNil)
	_, created, err = NewStore(config)
	c.Assert(err, IsNil)
	c.Assert(created, Equals, true)

	c.Assert(EnginesAvailable(), Matches, ".*testmap \\[1.0.0\\].*")
}

func (suite *DataSuite) TestTileCache(c *C) {
	ctx := context.Background()
	c.Assert(NewTileCache(0), IsNil)

	config := dvid.StoreConfig{Config: dvid.Config{"name": "cached"}, Engine: "testmap"}
	store, _, err := NewStore(config)
	c.Assert(err, IsNil)
	backing := store.(*mapStore)

	tc := NewTileCache(1)
	s1 := tc.Wrap(store)
	s2 := tc.Wrap(store)

	c.Assert(s1.Put(ctx, []byte("k"), []byte("v1")), IsNil)
	for i := 0; i < 3; i++ {
		v, err := s1.Get(ctx, []byte("k"))
		c.Assert(err, IsNil)
		c.Assert(string(v), Equals, "v1")
	}
	c.Assert(backing.gets, Equals, 0)

	// second wrapper has its own key space so must read through.
	v, err := s2.Get(ctx, []byte("k"))
	c.Assert(err, IsNil)
	c.Assert(string(v), Equals, "v1")
	c.Assert(backing.gets, Equals, 1)

	c.Assert(s1.Delete(ctx, []byte("k")), IsNil)
	v, err = s1.Get(ctx, []byte("k"))
	c.Assert(err, IsNil)
	c.Assert(v, IsNil)

	// values too large for the cache are still served from the store.
	big := make([]byte, 2*dvid.Kilo)
	c.Assert(s1.Put(ctx, []byte("big"), big), IsNil)
	v, err = s1.Get(ctx, []byte("big"))
	c.Assert(err, IsNil)
	c.Assert(len(v), Equals, len(big))

	c.Assert(Flush(s1), IsNil)
	c.Assert(backing.flush, Equals, 1)

	hits, misses := tc.Stats()
	c.Assert(hits > 0, Equals, true)
	c.Assert(misses > 0, Equals, true)
	c.Assert(s1.String(), Equals, "cached map cached")
}

package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/coocood/freecache"

	"github.com/janelia-flyem/clump/dvid"
)

// TileCache is an in-memory cache of serialized values that may be shared by
// several stores.  Each wrapped store gets its own key prefix.
type TileCache struct {
	cache    *freecache.Cache
	nextID   uint32
	maxEntry int
}

// NewTileCache returns a cache of roughly the given number of megabytes, or nil if
// mbs is not positive.
func NewTileCache(mbs int) *TileCache {
	if mbs <= 0 {
		return nil
	}
	numBytes := mbs * dvid.Mega
	dvid.Infof("Created freecache of ~ %d MB for tile reads.\n", mbs)
	return &TileCache{
		cache:    freecache.NewCache(numBytes),
		maxEntry: numBytes / 1024,
	}
}

// Stats returns the cache hit and miss counts.
func (tc *TileCache) Stats() (hits, misses int64) {
	if tc == nil {
		return 0, 0
	}
	return tc.cache.HitCount(), tc.cache.MissCount()
}

// Wrap returns a store whose reads are served from the cache when possible.  A nil
// cache returns the store unchanged.
func (tc *TileCache) Wrap(s Store) Store {
	if tc == nil {
		return s
	}
	id := atomic.AddUint32(&tc.nextID, 1)
	prefix := make([]byte, 4)
	binary.BigEndian.PutUint32(prefix, id)
	return &cachedStore{Store: s, tc: tc, prefix: prefix}
}

type cachedStore struct {
	Store
	tc     *TileCache
	prefix []byte
}

func (cs *cachedStore) String() string {
	return fmt.Sprintf("cached %s", cs.Store)
}

func (cs *cachedStore) key(k []byte) []byte {
	ck := make([]byte, 0, len(cs.prefix)+len(k))
	ck = append(ck, cs.prefix...)
	return append(ck, k...)
}

func (cs *cachedStore) Get(ctx context.Context, k []byte) ([]byte, error) {
	ck := cs.key(k)
	v, err := cs.tc.cache.Get(ck)
	if err == nil {
		return v, nil
	}
	if err != freecache.ErrNotFound {
		dvid.Errorf("Tile cache get of key %x failed: %v\n", k, err)
	}
	if v, err = cs.Store.Get(ctx, k); err != nil || v == nil {
		return v, err
	}
	cs.set(ck, v)
	return v, nil
}

func (cs *cachedStore) Put(ctx context.Context, k, v []byte) error {
	if err := cs.Store.Put(ctx, k, v); err != nil {
		return err
	}
	cs.set(cs.key(k), v)
	return nil
}

func (cs *cachedStore) Delete(ctx context.Context, k []byte) error {
	cs.tc.cache.Del(cs.key(k))
	return cs.Store.Delete(ctx, k)
}

func (cs *cachedStore) Flush() error {
	return Flush(cs.Store)
}

func (cs *cachedStore) set(ck, v []byte) {
	if len(ck)+len(v) >= cs.tc.maxEntry {
		cs.tc.cache.Del(ck)
		return
	}
	if err := cs.tc.cache.Set(ck, v, 0); err != nil {
		dvid.Errorf("Unable to cache value of %d bytes: %v\n", len(v), err)
		cs.tc.cache.Del(ck)
	}
}

// Package blob provides a storage engine over gocloud.dev buckets.  Stores are
// either a local directory ("path" setting) or a bucket URL ("url" setting) such as
// mem:// for tests.  Keys are hex-encoded to give portable object names.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/blang/semver"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/janelia-flyem/clump/dvid"
	"github.com/janelia-flyem/clump/storage"
)

func init() {
	ver, err := semver.Make("0.1.0")
	if err != nil {
		dvid.Errorf("Unable to make semver in blob: %v\n", err)
	}
	e := Engine{"blob", "gocloud.dev bucket", ver}
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

func parseConfig(config dvid.StoreConfig) (path, url string, err error) {
	if path, _, err = config.GetString("path"); err != nil {
		return
	}
	if url, _, err = config.GetString("url"); err != nil {
		return
	}
	if path == "" && url == "" {
		err = fmt.Errorf("either %q or %q must be specified for blob configuration", "path", "url")
	}
	return
}

func openBucket(ctx context.Context, config dvid.StoreConfig) (bucket *blob.Bucket, ref string, created bool, err error) {
	var path, url string
	if path, url, err = parseConfig(config); err != nil {
		return
	}
	if path != "" {
		if _, err = os.Stat(path); os.IsNotExist(err) {
			created = true
			if err = os.MkdirAll(path, 0755); err != nil {
				err = fmt.Errorf("can't make directory at %s: %v", path, err)
				return
			}
		}
		bucket, err = fileblob.OpenBucket(path, nil)
		return bucket, path, created, err
	}
	bucket, err = blob.OpenBucket(ctx, url)
	if err != nil {
		dvid.Errorf("Can't open bucket reference @ %q: %v\n", url, err)
	}
	return bucket, url, true, err
}

// NewStore returns a bucket-backed store.
func (e Engine) NewStore(config dvid.StoreConfig) (storage.Store, bool, error) {
	bucket, ref, created, err := openBucket(context.Background(), config)
	if err != nil {
		return nil, false, err
	}
	dvid.Debugf("Opened blob store @ %s\n", ref)
	return &Store{ref: ref, bucket: bucket}, created, nil
}

// Delete removes every object in the store described by config, and the local
// directory if the store is file-backed.
func (e Engine) Delete(config dvid.StoreConfig) error {
	path, _, err := parseConfig(config)
	if err != nil {
		return err
	}
	if path != "" {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("can't delete blob store %q: %v", path, err)
		}
		return nil
	}
	ctx := context.Background()
	bucket, _, _, err := openBucket(ctx, config)
	if err != nil {
		return err
	}
	defer bucket.Close()
	iter := bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return err
		}
	}
}

// ScratchConfig places a new file-backed store named name under dir.  URL-backed
// stores reuse the base URL, which for mem:// yields a fresh bucket.
func (e Engine) ScratchConfig(base dvid.StoreConfig, dir, name string) dvid.StoreConfig {
	config := storage.CopyConfig(base)
	path, _, _ := base.GetString("path")
	url, _, _ := base.GetString("url")
	if path != "" || url == "" {
		config.Set("path", filepath.Join(dir, name))
	}
	return config
}

// Store holds values as objects in a gocloud.dev bucket.
type Store struct {
	ref    string
	bucket *blob.Bucket
}

func (s *Store) String() string {
	return fmt.Sprintf("blob @ %s", s.ref)
}

func objectKey(k []byte) string {
	if len(k) == 0 {
		return "_"
	}
	return hex.EncodeToString(k)
}

// Get returns the object stored under k, or nil if there is none.
func (s *Store) Get(ctx context.Context, k []byte) ([]byte, error) {
	v, err := s.bucket.ReadAll(ctx, objectKey(k))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, nil
	}
	return v, err
}

// Put writes v as the object for k.
func (s *Store) Put(ctx context.Context, k, v []byte) error {
	return s.bucket.WriteAll(ctx, objectKey(k), v, nil)
}

// Delete removes the object for k.  Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, k []byte) error {
	err := s.bucket.Delete(ctx, objectKey(k))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

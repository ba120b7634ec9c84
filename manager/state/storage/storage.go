// Package storage persists the contents of the manager's memory store to a
// bolt database on local disk.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Layout:
//
//	bucket(v1) ->
//		bucket(<kind>) ->
//			<id> -> object JSON
//		meta ->
//			version -> index of the last written transaction
var (
	bucketKeyStorageVersion = []byte("v1")
	bucketKeyMeta           = []byte("meta")
	keyVersion              = []byte("version")

	kinds = []string{
		api.KindNetwork,
		api.KindNode,
		api.KindCertificate,
		api.KindEnrollmentCode,
		api.KindDeviceToken,
		api.KindAllocation,
	}
)

// ErrClosed is returned by ProposeValue after Close.
var ErrClosed = errors.New("storage: database is closed")

type bucketKeyPath [][]byte

func (bk bucketKeyPath) String() string {
	return string(bytes.Join([][]byte(bk), []byte("/")))
}

// DB is a store.Proposer backed by a bolt file. Every write transaction of
// the memory store is written to the file, in a single bolt transaction,
// before the memory store commits it.
type DB struct {
	mu     sync.Mutex
	db     *bolt.DB
	closed bool
}

var _ store.Proposer = (*DB)(nil)

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open state database %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, kind := range kinds {
			if _, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, []byte(kind)); err != nil {
				return err
			}
		}
		_, err := createBucketIfNotExists(tx, bucketKeyStorageVersion, bucketKeyMeta)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

// Close closes the underlying file.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// ProposeValue writes the actions to disk and calls cb once they are durable.
func (d *DB) ProposeValue(ctx context.Context, actions []store.StoreAction, cb func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	err := d.db.Update(func(tx *bolt.Tx) error {
		var version uint64
		for _, action := range actions {
			target := action.Target
			bkt := getBucket(tx, bucketKeyStorageVersion, []byte(target.Kind()))
			if bkt == nil {
				return errors.Errorf("storage: unknown object kind %q", target.Kind())
			}
			switch action.Kind {
			case store.StoreActionKindCreate, store.StoreActionKindUpdate:
				p, err := json.Marshal(target)
				if err != nil {
					return errors.Wrapf(err, "failed to marshal %s %s", target.Kind(), target.GetID())
				}
				if err := bkt.Put([]byte(target.GetID()), p); err != nil {
					return err
				}
			case store.StoreActionKindRemove:
				if err := bkt.Delete([]byte(target.GetID())); err != nil {
					return err
				}
			default:
				return errors.Errorf("storage: unknown action %d", action.Kind)
			}
			if v := target.GetMeta().Version.Index; v > version {
				version = v
			}
		}
		if version == 0 {
			return nil
		}
		return getBucket(tx, bucketKeyStorageVersion, bucketKeyMeta).Put(keyVersion, []byte(jsonUint(version)))
	})
	if err != nil {
		log.G(ctx).WithError(err).Error("failed to persist store transaction")
		return err
	}
	cb()
	return nil
}

// Load reads the full content of the database as a store snapshot.
func (d *DB) Load() (*store.Snapshot, error) {
	raw := make(map[string][]json.RawMessage)
	err := d.db.View(func(tx *bolt.Tx) error {
		for _, kind := range kinds {
			bkt := getBucket(tx, bucketKeyStorageVersion, []byte(kind))
			if bkt == nil {
				continue
			}
			if err := bkt.ForEach(func(k, v []byte) error {
				raw[kind] = append(raw[kind], json.RawMessage(append([]byte(nil), v...)))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var snapshot store.Snapshot
	if err := json.Unmarshal(p, &snapshot); err != nil {
		return nil, errors.Wrap(err, "state database is corrupt")
	}
	return &snapshot, nil
}

// Version returns the index of the last persisted transaction.
func (d *DB) Version() (uint64, error) {
	var version uint64
	err := d.db.View(func(tx *bolt.Tx) error {
		bkt := getBucket(tx, bucketKeyStorageVersion, bucketKeyMeta)
		if bkt == nil {
			return nil
		}
		p := bkt.Get(keyVersion)
		if p == nil {
			return nil
		}
		return json.Unmarshal(p, &version)
	})
	return version, err
}

func jsonUint(v uint64) string {
	p, _ := json.Marshal(v)
	return string(p)
}

func createBucketIfNotExists(tx *bolt.Tx, keys ...[]byte) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(keys[0])
	if err != nil {
		return nil, errors.Wrapf(err, "create bucket %v", bucketKeyPath(keys))
	}

	for _, key := range keys[1:] {
		bkt, err = bkt.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, errors.Wrapf(err, "create bucket %v", bucketKeyPath(keys))
		}
	}

	return bkt, nil
}

func getBucket(tx *bolt.Tx, keys ...[]byte) *bolt.Bucket {
	bkt := tx.Bucket(keys[0])

	for _, key := range keys[1:] {
		if bkt == nil {
			log.L.Debugf("getBucket %v, missing at %v", bucketKeyPath(keys), string(key))
			break
		}
		bkt = bkt.Bucket(key)
	}

	return bkt
}

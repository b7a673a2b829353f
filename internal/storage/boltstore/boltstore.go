// Package boltstore is a bbolt-backed implementation of storage.Provider:
// the reference "on-disk page allocator" for the otherwise-out-of-scope
// raw-I/O collaborator (spec §1). Physical blocks are stored as fixed-size
// values in a single bucket keyed by big-endian PBN, in the spirit of the
// table/bucket layout conventions in the pack's embedded-KV examples
// (compare erigon-lib/kv's bucket-name constants and
// Irregularshooter-amc's internal/kv table layout).
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/KnightKu/kvdo/internal/storage"
	"github.com/KnightKu/kvdo/internal/types"
)

// BlocksBucket is the single bucket holding every physical block's
// contents, keyed by big-endian PBN so the bucket's keys sort in PBN order.
// Store itself only does point reads and writes.
var BlocksBucket = []byte("Blocks")

// Store wraps an open bbolt database as a storage.Provider.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path as a
// storage.Provider.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(BlocksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func pbnKey(pbn types.PBN) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(pbn))
	return key
}

func (s *Store) ReadBlock(ctx context.Context, pbn types.PBN, priority storage.Priority, buf []byte) error {
	if len(buf) != types.BlockSize {
		return fmt.Errorf("boltstore: buffer size %d != block size %d", len(buf), types.BlockSize)
	}
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(BlocksBucket)
		value := b.Get(pbnKey(pbn))
		if value == nil {
			for i := range buf {
				buf[i] = 0
			}
			return nil
		}
		copy(buf, value)
		return nil
	})
}

func (s *Store) WriteBlock(ctx context.Context, pbn types.PBN, priority storage.Priority, buf []byte) error {
	if len(buf) != types.BlockSize {
		return fmt.Errorf("boltstore: buffer size %d != block size %d", len(buf), types.BlockSize)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(BlocksBucket)
		return b.Put(pbnKey(pbn), buf)
	})
}

// Flush is a no-op beyond bbolt's own per-transaction fsync: every Update
// call already commits durably before returning.
func (s *Store) Flush(ctx context.Context) error { return nil }

func (s *Store) Close() error { return s.db.Close() }

var _ storage.Provider = (*Store)(nil)

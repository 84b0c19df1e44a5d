package block

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"

	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/types"
)

var (
	bucketBlocks   = []byte("blocks")
	bucketRefcount = []byte("block_rc")
	bucketFlags    = []byte("block_flags")
)

// LocalStore is a single-node block store on BoltDB. Blocks are stored raw
// under their content address; refcounts live in a sibling bucket.
type LocalStore struct {
	db *bolt.DB
}

// NewLocalStore opens (or creates) the block database under dataDir.
func NewLocalStore(dataDir string) (*LocalStore, error) {
	dbPath := filepath.Join(dataDir, "blocks.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open block database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketRefcount, bucketFlags} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &LocalStore{db: db}, nil
}

// Close closes the database
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// PutBlock stores the block under its content address. The hash is
// verified against the data; storing is idempotent. The order tag is
// accepted for interface compatibility: a local store commits writes in
// call order already.
func (s *LocalStore) PutBlock(ctx context.Context, hash types.Hash, data []byte, encrypted bool, _ *OrderTag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	computed := blake2b.Sum256(data)
	if types.Hash(computed) != hash {
		return fmt.Errorf("block data does not match hash %s", hash.Hex())
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if existing := tx.Bucket(bucketBlocks).Get(hash[:]); existing != nil {
			if !bytes.Equal(existing, data) {
				return fmt.Errorf("hash collision on block %s", hash.Hex())
			}
			return nil
		}
		if err := tx.Bucket(bucketBlocks).Put(hash[:], data); err != nil {
			return err
		}
		flag := []byte{0}
		if encrypted {
			flag[0] = 1
		}
		return tx.Bucket(bucketFlags).Put(hash[:], flag)
	})
	if err != nil {
		return err
	}
	metrics.BlocksWritten.Inc()
	metrics.BlockBytesWritten.Add(float64(len(data)))
	return nil
}

// GetBlock retrieves a block by content address.
func (s *LocalStore) GetBlock(ctx context.Context, hash types.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketBlocks).Get(hash[:])
		if stored == nil {
			return fmt.Errorf("block not found: %s", hash.Hex())
		}
		data = make([]byte, len(stored))
		copy(data, stored)
		return nil
	})
	return data, err
}

// IncRef increments the block's reference count.
func (s *LocalStore) IncRef(hash types.Hash) error {
	metrics.RefcountOps.WithLabelValues("incref").Inc()
	return s.adjustRef(hash, 1)
}

// DecRef decrements the block's reference count, stopping at zero.
func (s *LocalStore) DecRef(hash types.Hash) error {
	metrics.RefcountOps.WithLabelValues("decref").Inc()
	return s.adjustRef(hash, -1)
}

func (s *LocalStore) adjustRef(hash types.Hash, delta int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRefcount)
		rc := decodeRefcount(b.Get(hash[:]))
		rc += delta
		if rc < 0 {
			rc = 0
		}
		return b.Put(hash[:], encodeRefcount(rc))
	})
}

// Refcount returns the block's current reference count.
func (s *LocalStore) Refcount(hash types.Hash) (int64, error) {
	var rc int64
	err := s.db.View(func(tx *bolt.Tx) error {
		rc = decodeRefcount(tx.Bucket(bucketRefcount).Get(hash[:]))
		return nil
	})
	return rc, err
}

// SetRefcount overwrites the block's reference count. Negative values
// are stored as zero.
func (s *LocalStore) SetRefcount(hash types.Hash, rc int64) error {
	if rc < 0 {
		rc = 0
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRefcount).Put(hash[:], encodeRefcount(rc))
	})
}

// ScrubRefcounts overwrites every stored block's refcount with the
// authoritative count recomputed from the live ref set. Blocks absent
// from counts drop to zero.
func (s *LocalStore) ScrubRefcounts(ctx context.Context, counts map[types.Hash]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		rcs := tx.Bucket(bucketRefcount)
		cur := tx.Bucket(bucketBlocks).Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			var hash types.Hash
			copy(hash[:], k)
			rc := counts[hash]
			if rc < 0 {
				rc = 0
			}
			if err := rcs.Put(k, encodeRefcount(rc)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteUnreferenced drops every block whose refcount is zero and returns
// how many were removed. Called by the GC after the scrub settles.
func (s *LocalStore) DeleteUnreferenced(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		blocks := tx.Bucket(bucketBlocks)
		rcs := tx.Bucket(bucketRefcount)
		flags := tx.Bucket(bucketFlags)

		var dead [][]byte
		cur := blocks.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			if decodeRefcount(rcs.Get(k)) == 0 {
				dead = append(dead, append([]byte(nil), k...))
			}
		}
		for _, k := range dead {
			if err := blocks.Delete(k); err != nil {
				return err
			}
			if err := rcs.Delete(k); err != nil {
				return err
			}
			if err := flags.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func encodeRefcount(rc int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rc))
	return buf
}

func decodeRefcount(buf []byte) int64 {
	if len(buf) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf))
}

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/wxpppp/garage/pkg/cluster"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketObjects   = []byte("objects")
	bucketVersions  = []byte("versions")
	bucketBlockRefs = []byte("block_refs")
	bucketCounters  = []byte("counters")
	bucketBuckets   = []byte("bucket_configs")
)

// BlockRefUpdatedFunc observes every applied block-ref insert with the row
// state before and after the merge. old is nil when the row is new.
type BlockRefUpdatedFunc func(old, new *model.BlockRef)

// BoltStore is the local replica of the three metadata tables, backed by
// BoltDB. Every insert is a read-merge-write: the incoming entry is joined
// with the stored row using the entry's CRDT merge rule, so inserts are
// idempotent and replay-safe.
type BoltStore struct {
	db *bolt.DB

	// node is this replica's name in the counter table.
	node string

	// OnBlockRefUpdated, when set, fires after each block-ref insert
	// commits. It drives block reference counting.
	OnBlockRefUpdated BlockRefUpdatedFunc
}

// NewBoltStore opens (or creates) the metadata database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "garage.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketObjects,
			bucketVersions,
			bucketBlockRefs,
			bucketCounters,
			bucketBuckets,
		}
		for _, bucket := range buckets {
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

	return &BoltStore{db: db, node: cluster.LocalNode}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func objectKey(bucketID types.BucketID, key string) []byte {
	k := make([]byte, 0, len(bucketID)+len(key))
	k = append(k, bucketID[:]...)
	k = append(k, key...)
	return k
}

func blockRefKey(block types.Hash, version types.UUID) []byte {
	k := make([]byte, 0, len(block)+len(version))
	k = append(k, block[:]...)
	k = append(k, version[:]...)
	return k
}

// InsertObject merges the given object row into the table and folds its
// counter delta into the bucket's counter row within the same transaction.
func (s *BoltStore) InsertObject(ctx context.Context, obj *model.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		rowKey := objectKey(obj.BucketID, obj.Key)

		var oldCounts map[string]int64
		merged := model.NewObject(obj.BucketID, obj.Key, obj.Versions...)
		if data := b.Get(rowKey); data != nil {
			var old model.Object
			if err := json.Unmarshal(data, &old); err != nil {
				return fmt.Errorf("failed to decode object row: %w", err)
			}
			oldCounts = old.Counts()
			old.Merge(obj)
			merged = &old
		}

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if err := b.Put(rowKey, data); err != nil {
			return err
		}

		return s.applyCountDelta(tx, obj.BucketID, oldCounts, merged.Counts())
	})
}

// applyCountDelta folds the difference between an object row's old and new
// counter contributions into the bucket's counter row.
func (s *BoltStore) applyCountDelta(tx *bolt.Tx, bucketID types.BucketID, oldCounts, newCounts map[string]int64) error {
	deltas := map[string]int64{}
	for name, v := range newCounts {
		deltas[name] += v
	}
	for name, v := range oldCounts {
		deltas[name] -= v
	}
	changed := false
	for _, d := range deltas {
		if d != 0 {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	b := tx.Bucket(bucketCounters)
	counters := cluster.NewCounters(bucketID)
	if data := b.Get(bucketID[:]); data != nil {
		if err := json.Unmarshal(data, counters); err != nil {
			return fmt.Errorf("failed to decode counter row: %w", err)
		}
	}
	for name, d := range deltas {
		if d != 0 {
			counters.Add(s.node, name, d)
		}
	}
	data, err := json.Marshal(counters)
	if err != nil {
		return err
	}
	return b.Put(bucketID[:], data)
}

// GetObject returns the object row, or nil when the key was never written.
func (s *BoltStore) GetObject(ctx context.Context, bucketID types.BucketID, key string) (*model.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var obj *model.Object
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketObjects).Get(objectKey(bucketID, key))
		if data == nil {
			return nil
		}
		obj = &model.Object{}
		return json.Unmarshal(data, obj)
	})
	return obj, err
}

// InsertVersion merges the given version row into the table.
func (s *BoltStore) InsertVersion(ctx context.Context, version *model.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVersions)
		merged := *version
		if data := b.Get(version.UUID[:]); data != nil {
			var old model.Version
			if err := json.Unmarshal(data, &old); err != nil {
				return fmt.Errorf("failed to decode version row: %w", err)
			}
			old.Merge(version)
			merged = old
		}
		data, err := json.Marshal(&merged)
		if err != nil {
			return err
		}
		return b.Put(version.UUID[:], data)
	})
}

// GetVersion returns the version row, or nil when absent.
func (s *BoltStore) GetVersion(ctx context.Context, uuid types.UUID) (*model.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var version *model.Version
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketVersions).Get(uuid[:])
		if data == nil {
			return nil
		}
		version = &model.Version{}
		return json.Unmarshal(data, version)
	})
	return version, err
}

// InsertBlockRef merges the given block-ref row into the table and fires
// the updated hook with the before and after states once the write commits.
func (s *BoltStore) InsertBlockRef(ctx context.Context, ref *model.BlockRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var old *model.BlockRef
	merged := *ref
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBlockRefs)
		rowKey := blockRefKey(ref.Block, ref.Version)
		if data := b.Get(rowKey); data != nil {
			old = &model.BlockRef{}
			if err := json.Unmarshal(data, old); err != nil {
				return fmt.Errorf("failed to decode block ref row: %w", err)
			}
			m := *old
			m.Merge(ref)
			merged = m
		}
		data, err := json.Marshal(&merged)
		if err != nil {
			return err
		}
		return b.Put(rowKey, data)
	})
	if err != nil {
		return err
	}
	if s.OnBlockRefUpdated != nil {
		s.OnBlockRefUpdated(old, &merged)
	}
	return nil
}

// GetBlockRef returns the block-ref row, or nil when absent.
func (s *BoltStore) GetBlockRef(ctx context.Context, block types.Hash, version types.UUID) (*model.BlockRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var ref *model.BlockRef
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlockRefs).Get(blockRefKey(block, version))
		if data == nil {
			return nil
		}
		ref = &model.BlockRef{}
		return json.Unmarshal(data, ref)
	})
	return ref, err
}

// GetCounters returns the gossiped counter row of the bucket, or nil when
// nothing was ever counted for it.
func (s *BoltStore) GetCounters(ctx context.Context, bucketID types.BucketID) (*cluster.Counters, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var counters *cluster.Counters
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCounters).Get(bucketID[:])
		if data == nil {
			return nil
		}
		counters = &cluster.Counters{}
		return json.Unmarshal(data, counters)
	})
	return counters, err
}

// ForEachObject calls fn for every object row. Used by GC sweeps.
func (s *BoltStore) ForEachObject(ctx context.Context, fn func(*model.Object) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).ForEach(func(_, data []byte) error {
			var obj model.Object
			if err := json.Unmarshal(data, &obj); err != nil {
				return fmt.Errorf("failed to decode object row: %w", err)
			}
			return fn(&obj)
		})
	})
}

// ForEachVersion calls fn for every version row.
func (s *BoltStore) ForEachVersion(ctx context.Context, fn func(*model.Version) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).ForEach(func(_, data []byte) error {
			var version model.Version
			if err := json.Unmarshal(data, &version); err != nil {
				return fmt.Errorf("failed to decode version row: %w", err)
			}
			return fn(&version)
		})
	})
}

// ForEachBlockRef calls fn for every block-ref row matching the filter.
func (s *BoltStore) ForEachBlockRef(ctx context.Context, filter model.DeletedFilter, fn func(*model.BlockRef) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockRefs).ForEach(func(_, data []byte) error {
			var ref model.BlockRef
			if err := json.Unmarshal(data, &ref); err != nil {
				return fmt.Errorf("failed to decode block ref row: %w", err)
			}
			if !filter.Apply(ref.Deleted) {
				return nil
			}
			return fn(&ref)
		})
	})
}

// RefsForBlock returns all ref rows of one block, live and dead.
func (s *BoltStore) RefsForBlock(ctx context.Context, block types.Hash) ([]model.BlockRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var refs []model.BlockRef
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketBlockRefs).Cursor()
		for k, data := c.Seek(block[:]); k != nil && bytes.HasPrefix(k, block[:]); k, data = c.Next() {
			var ref model.BlockRef
			if err := json.Unmarshal(data, &ref); err != nil {
				return fmt.Errorf("failed to decode block ref row: %w", err)
			}
			refs = append(refs, ref)
		}
		return nil
	})
	return refs, err
}

// ReplaceObjectRow overwrites an object row without merging, folding the
// counter delta of the rewrite into the bucket's counter row. GC-only:
// ordinary writers always insert-and-merge.
func (s *BoltStore) ReplaceObjectRow(ctx context.Context, obj *model.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		rowKey := objectKey(obj.BucketID, obj.Key)

		var oldCounts map[string]int64
		if data := b.Get(rowKey); data != nil {
			var old model.Object
			if err := json.Unmarshal(data, &old); err != nil {
				return fmt.Errorf("failed to decode object row: %w", err)
			}
			oldCounts = old.Counts()
		}

		var newCounts map[string]int64
		if len(obj.Versions) == 0 {
			if err := b.Delete(rowKey); err != nil {
				return err
			}
		} else {
			data, err := json.Marshal(obj)
			if err != nil {
				return err
			}
			if err := b.Put(rowKey, data); err != nil {
				return err
			}
			newCounts = obj.Counts()
		}

		return s.applyCountDelta(tx, obj.BucketID, oldCounts, newCounts)
	})
}

// DeleteObjectRow physically removes an object row. GC-only: ordinary
// writers always insert, never delete.
func (s *BoltStore) DeleteObjectRow(ctx context.Context, bucketID types.BucketID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Delete(objectKey(bucketID, key))
	})
}

// DeleteVersionRow physically removes a version row. GC-only.
func (s *BoltStore) DeleteVersionRow(ctx context.Context, uuid types.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVersions).Delete(uuid[:])
	})
}

// DeleteBlockRefRow physically removes a block-ref row. GC-only.
func (s *BoltStore) DeleteBlockRefRow(ctx context.Context, block types.Hash, version types.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlockRefs).Delete(blockRefKey(block, version))
	})
}

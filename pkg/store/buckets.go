package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// GetBucketByName returns the bucket configuration, or nil when no bucket
// with that name exists.
func (s *BoltStore) GetBucketByName(ctx context.Context, name string) (*model.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var bucket *model.Bucket
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBuckets).Get([]byte(name))
		if data == nil {
			return nil
		}
		bucket = &model.Bucket{}
		return json.Unmarshal(data, bucket)
	})
	return bucket, err
}

// EnsureBucket returns the bucket with the given name, creating it with a
// fresh random ID and the given default quotas on first use.
func (s *BoltStore) EnsureBucket(ctx context.Context, name string, quotas model.BucketQuotas) (*model.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var bucket *model.Bucket
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBuckets)
		if data := b.Get([]byte(name)); data != nil {
			bucket = &model.Bucket{}
			return json.Unmarshal(data, bucket)
		}
		bucket = &model.Bucket{
			ID:     types.GenUUID(),
			Name:   name,
			Quotas: quotas,
		}
		data, err := json.Marshal(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(name), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", name, err)
	}
	return bucket, nil
}

// PutBucket stores (or replaces) a bucket configuration.
func (s *BoltStore) PutBucket(ctx context.Context, bucket *model.Bucket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(bucket)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBuckets).Put([]byte(bucket.Name), data)
	})
}

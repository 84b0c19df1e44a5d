package object

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/cluster"
	"github.com/wxpppp/garage/pkg/encryption"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/store"
	"github.com/wxpppp/garage/pkg/types"
)

const (
	testBlockSize       = 1024
	testInlineThreshold = 128
)

type testEnv struct {
	core   *Core
	store  *store.BoltStore
	blocks *block.LocalStore
	bucket *model.Bucket
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	metaStore, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { metaStore.Close() })

	blockStore, err := block.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { blockStore.Close() })

	metaStore.OnBlockRefUpdated = func(old, new *model.BlockRef) {
		wasLive := old != nil && old.IsLive()
		if new.IsLive() && !wasLive {
			_ = blockStore.IncRef(new.Block)
		}
		if wasLive && !new.IsLive() {
			_ = blockStore.DecRef(new.Block)
		}
	}

	layout := cluster.SingleNode()
	core := New(metaStore, blockStore, func() *cluster.Layout { return layout }, Config{
		BlockSize:       testBlockSize,
		InlineThreshold: testInlineThreshold,
	})

	return &testEnv{
		core:   core,
		store:  metaStore,
		blocks: blockStore,
		bucket: &model.Bucket{ID: types.GenUUID(), Name: "test"},
	}
}

func (e *testEnv) put(t *testing.T, key string, payload []byte) *SaveStreamResult {
	t.Helper()
	res, err := e.core.SaveStream(context.Background(), SaveStreamRequest{
		Bucket:     e.bucket,
		Key:        key,
		Encryption: encryption.Plain(),
		Body:       bytes.NewReader(payload),
	})
	require.NoError(t, err)
	return res
}

func (e *testEnv) get(t *testing.T, key string) []byte {
	t.Helper()
	res, err := e.core.GetObject(context.Background(), e.bucket.ID, key, encryption.Plain())
	require.NoError(t, err)
	return res.Data
}

func (e *testEnv) objectRow(t *testing.T, key string) *model.Object {
	t.Helper()
	obj, err := e.store.GetObject(context.Background(), e.bucket.ID, key)
	require.NoError(t, err)
	return obj
}

func int64Ptr(v int64) *int64 { return &v }

func plainParams() encryption.Params { return encryption.Plain() }

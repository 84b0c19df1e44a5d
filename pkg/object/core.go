package object

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/cluster"
	"github.com/wxpppp/garage/pkg/log"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
)

// PutBlocksMaxParallel caps the number of block writes in flight for one
// upload. Together with the pipeline channel capacities this bounds the
// memory of an in-flight upload at roughly 8 blocks.
const PutBlocksMaxParallel = 3

// Store is the metadata-table surface the core consumes. Inserts are
// CRDT merges applied by the table engine; the engine's replication is
// outside the core.
type Store interface {
	GetObject(ctx context.Context, bucketID types.BucketID, key string) (*model.Object, error)
	InsertObject(ctx context.Context, obj *model.Object) error
	GetVersion(ctx context.Context, uuid types.UUID) (*model.Version, error)
	InsertVersion(ctx context.Context, version *model.Version) error
	InsertBlockRef(ctx context.Context, ref *model.BlockRef) error
	GetCounters(ctx context.Context, bucketID types.BucketID) (*cluster.Counters, error)
}

// Config carries the core's tunables.
type Config struct {
	// BlockSize is the plaintext size of streamed blocks.
	BlockSize int
	// InlineThreshold bounds inline storage: payloads shorter than this
	// are stored in the object table instead of the block layer.
	InlineThreshold int
}

// DefaultConfig returns the standard tunables: 1 MiB blocks, 3072-byte
// inline threshold.
func DefaultConfig() Config {
	return Config{
		BlockSize:       1 << 20,
		InlineThreshold: 3072,
	}
}

// Core implements object ingestion, retrieval and deletion on top of the
// metadata tables and the block store.
type Core struct {
	store  Store
	blocks block.Manager
	layout func() *cluster.Layout
	cfg    Config
	logger zerolog.Logger
}

// New wires a core. layout returns the current cluster-layout snapshot
// used to filter gossiped counters.
func New(store Store, blocks block.Manager, layout func() *cluster.Layout, cfg Config) *Core {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultConfig().BlockSize
	}
	if cfg.InlineThreshold <= 0 {
		cfg.InlineThreshold = DefaultConfig().InlineThreshold
	}
	return &Core{
		store:  store,
		blocks: blocks,
		layout: layout,
		cfg:    cfg,
		logger: log.WithComponent("object"),
	}
}

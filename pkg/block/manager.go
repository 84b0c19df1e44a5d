package block

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
)

// OrderTag is an opaque ordering token attached to block writes. Blocks of
// one upload run in parallel but must commit in offset order at the
// replica set; the transport uses the tag to preserve relative ordering
// among writes of the same stream.
type OrderTag struct {
	Stream types.UUID
	Order  uint64
}

// OrderStream mints order tags for one upload.
type OrderStream struct {
	stream types.UUID
}

// NewOrderStream starts a fresh ordering domain.
func NewOrderStream() OrderStream {
	return OrderStream{stream: types.GenUUID()}
}

// Order returns the tag for the block at the given cumulative plaintext
// offset.
func (s OrderStream) Order(offset uint64) *OrderTag {
	return &OrderTag{Stream: s.stream, Order: offset}
}

// Manager is the block-store surface the ingestion core consumes. The
// replicated implementation lives behind an RPC layer; this interface is
// also satisfied by the local store used in standalone deployments and
// tests.
type Manager interface {
	// PutBlock stores a block under its content address. tag, when
	// non-nil, instructs the transport to preserve ordering relative to
	// other writes of the same stream.
	PutBlock(ctx context.Context, hash types.Hash, data []byte, encrypted bool, tag *OrderTag) error

	// GetBlock retrieves a block by content address.
	GetBlock(ctx context.Context, hash types.Hash) ([]byte, error)

	// IncRef and DecRef adjust the block's reference count. Both are
	// best-effort from the caller's point of view: failures are logged
	// and corrected by the periodic scrub.
	IncRef(hash types.Hash) error
	DecRef(hash types.Hash) error
}

// RefHook returns the block-ref table's updated hook: a monotone edge
// detector that increfs on dead-or-absent → live transitions and decrefs
// on live → dead transitions. Transitions, not states, drive the refcount,
// so gossip replays of the same row are no-ops.
func RefHook(mgr Manager, logger zerolog.Logger) func(old, new *model.BlockRef) {
	return func(old, new *model.BlockRef) {
		if new == nil {
			return
		}
		wasLive := old != nil && old.IsLive()
		isLive := new.IsLive()
		if isLive && !wasLive {
			if err := mgr.IncRef(new.Block); err != nil {
				logger.Warn().Err(err).Str("block", new.Block.Hex()).Msg("block_incref failed")
			}
		}
		if wasLive && !isLive {
			if err := mgr.DecRef(new.Block); err != nil {
				logger.Warn().Err(err).Str("block", new.Block.Hex()).Msg("block_decref failed")
			}
		}
	}
}

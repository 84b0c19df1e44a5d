package object

import (
	"context"
	"fmt"

	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
)

// DeleteResult reports a single-key deletion: the version the delete
// shadowed and the delete marker that was written.
type DeleteResult struct {
	DeletedVersion   types.UUID
	DeleteMarkerUUID types.UUID
	VersionTimestamp uint64
}

// DeleteObject writes a delete-marker version for the key. The marker
// shadows all older versions on read; nothing is removed until the GC
// sweep. Returns ErrNoSuchKey when the key was never written — callers
// implementing S3 semantics treat that as success.
func (c *Core) DeleteObject(ctx context.Context, bucketID types.BucketID, key string) (*DeleteResult, error) {
	obj, err := c.store.GetObject(ctx, bucketID, key)
	if err != nil {
		return nil, InternalError(fmt.Errorf("failed to read object row: %w", err))
	}
	if obj == nil {
		return nil, ErrNoSuchKey
	}

	delTimestamp := model.NextTimestamp(obj, types.NowMsec())
	delUUID := types.GenUUID()

	// Report the newest non-aborted version as the one being deleted;
	// fall back to the newest version of any state.
	deletedVersion := types.ZeroUUID
	found := false
	for i := len(obj.Versions) - 1; i >= 0; i-- {
		if !obj.Versions[i].IsAborted() {
			deletedVersion = obj.Versions[i].UUID
			found = true
			break
		}
	}
	if !found && len(obj.Versions) > 0 {
		deletedVersion = obj.Versions[len(obj.Versions)-1].UUID
	}
	if deletedVersion.IsZero() {
		c.logger.Warn().Str("key", key).Msg("Object has no versions")
	}

	marker := model.ObjectVersion{
		UUID:      delUUID,
		Timestamp: delTimestamp,
		State:     model.StateComplete,
		Data:      &model.ObjectVersionData{Kind: model.KindDeleteMarker},
	}
	if err := c.store.InsertObject(ctx, model.NewObject(bucketID, key, marker)); err != nil {
		return nil, InternalError(fmt.Errorf("failed to insert delete marker: %w", err))
	}

	metrics.DeleteMarkersWritten.Inc()

	return &DeleteResult{
		DeletedVersion:   deletedVersion,
		DeleteMarkerUUID: delUUID,
		VersionTimestamp: delTimestamp,
	}, nil
}

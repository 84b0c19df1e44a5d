package object

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/wxpppp/garage/pkg/encryption"
	"github.com/wxpppp/garage/pkg/metrics"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/stream"
	"github.com/wxpppp/garage/pkg/types"
)

// SaveStreamRequest is a streaming upload into one key.
type SaveStreamRequest struct {
	Bucket     *model.Bucket
	Key        string
	Headers    model.ObjectHeaders
	Encryption encryption.Params
	Body       io.Reader

	// ContentMD5 is the content-md5 header value, possibly quoted.
	ContentMD5 *string
	// ContentSHA256 is the decoded x-amz-content-sha256 value when the
	// client declared a signed payload hash.
	ContentSHA256 *types.Hash
}

// SaveStreamResult reports a stored version.
type SaveStreamResult struct {
	VersionUUID      types.UUID
	VersionTimestamp uint64
	// Etag without the surrounding quotes.
	Etag string
}

// SaveStream ingests the body into a new object version. Small payloads
// are stored inline in the object table; larger ones run through the
// block pipeline under an interrupted-cleanup guard that tombstones the
// version if anything fails before the final commit.
func (c *Core) SaveStream(ctx context.Context, req SaveStreamRequest) (*SaveStreamResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PutDuration)

	chunker := stream.NewChunker(req.Body, c.cfg.BlockSize)

	existing, err := c.store.GetObject(ctx, req.Bucket.ID, req.Key)
	if err != nil {
		return nil, InternalError(fmt.Errorf("failed to read object row: %w", err))
	}
	firstBlock, err := chunker.Next()
	if err != nil {
		return nil, err
	}

	sealedHeaders, err := req.Encryption.EncryptHeaders(req.Headers)
	if err != nil {
		return nil, InternalError(err)
	}

	// Identity of the new version
	versionUUID := types.GenUUID()
	versionTimestamp := model.NextTimestamp(existing, types.NowMsec())

	if len(firstBlock) < c.cfg.InlineThreshold {
		return c.saveInline(ctx, req, sealedHeaders, versionUUID, versionTimestamp, firstBlock, existing)
	}

	// Everything from here on can fail halfway. Arm the cleanup guard so
	// an interrupted upload leaves an Aborted tombstone instead of a
	// dangling Uploading version.
	cleanup := c.armCleanup(req.Bucket.ID, req.Key, versionUUID, versionTimestamp)
	defer cleanup.run()

	// Write the version identifier to the object table first: the trace
	// that an upload is in progress.
	uploading := model.ObjectVersion{
		UUID:      versionUUID,
		Timestamp: versionTimestamp,
		State:     model.StateUploading,
		Headers:   sealedHeaders,
		Multipart: false,
	}
	if err := c.store.InsertObject(ctx, model.NewObject(req.Bucket.ID, req.Key, uploading)); err != nil {
		return nil, InternalError(fmt.Errorf("failed to insert uploading version: %w", err))
	}

	// The version row must exist before any block ref: GC deletes refs
	// whose version row is missing, so making it visible later would let
	// a concurrent sweep reap blocks we just wrote.
	version := model.NewVersion(versionUUID, req.Bucket.ID, req.Key)
	if err := c.store.InsertVersion(ctx, version); err != nil {
		return nil, InternalError(fmt.Errorf("failed to insert version row: %w", err))
	}

	res, err := c.readAndPutBlocks(ctx, version, req.Encryption, 1, firstBlock, chunker)
	if err != nil {
		return nil, err
	}

	if err := ensureChecksumMatches(res.md5sum, res.sha256sum, req.ContentMD5, req.ContentSHA256); err != nil {
		return nil, err
	}
	if err := c.checkQuotas(ctx, req.Bucket, res.totalSize, existing); err != nil {
		return nil, err
	}

	etag := req.Encryption.ETagFromMD5(res.md5sum)

	complete := model.ObjectVersion{
		UUID:      versionUUID,
		Timestamp: versionTimestamp,
		State:     model.StateComplete,
		Data: &model.ObjectVersionData{
			Kind: model.KindFirstBlock,
			Meta: &model.ObjectVersionMeta{
				Headers: sealedHeaders,
				Size:    res.totalSize,
				Etag:    etag,
			},
			FirstBlock: res.firstBlockHash,
		},
	}
	if err := c.store.InsertObject(ctx, model.NewObject(req.Bucket.ID, req.Key, complete)); err != nil {
		return nil, InternalError(fmt.Errorf("failed to insert complete version: %w", err))
	}

	// Not interrupted, nothing to clean up.
	cleanup.disarm()

	metrics.ObjectsStored.WithLabelValues("first-block").Inc()
	metrics.BytesIngested.Add(float64(res.totalSize))
	c.logger.Debug().
		Str("key", req.Key).
		Str("version_uuid", versionUUID.Hex()).
		Uint64("size", res.totalSize).
		Msg("Object stored")

	return &SaveStreamResult{
		VersionUUID:      versionUUID,
		VersionTimestamp: versionTimestamp,
		Etag:             etag,
	}, nil
}

// saveInline stores the whole payload inside the object version record,
// bypassing the block pipeline.
func (c *Core) saveInline(
	ctx context.Context,
	req SaveStreamRequest,
	sealedHeaders model.SealedHeaders,
	versionUUID types.UUID,
	versionTimestamp uint64,
	payload []byte,
	existing *model.Object,
) (*SaveStreamResult, error) {
	md5sum := md5.Sum(payload)
	sha256sum := sha256.Sum256(payload)

	if err := ensureChecksumMatches(md5sum[:], sha256sum[:], req.ContentMD5, req.ContentSHA256); err != nil {
		return nil, err
	}

	size := uint64(len(payload))
	if err := c.checkQuotas(ctx, req.Bucket, size, existing); err != nil {
		return nil, err
	}

	etag := req.Encryption.ETagFromMD5(md5sum[:])
	inline, err := req.Encryption.EncryptBlob(payload)
	if err != nil {
		return nil, InternalError(err)
	}

	version := model.ObjectVersion{
		UUID:      versionUUID,
		Timestamp: versionTimestamp,
		State:     model.StateComplete,
		Data: &model.ObjectVersionData{
			Kind: model.KindInline,
			Meta: &model.ObjectVersionMeta{
				Headers: sealedHeaders,
				Size:    size,
				Etag:    etag,
			},
			Inline: inline,
		},
	}
	if err := c.store.InsertObject(ctx, model.NewObject(req.Bucket.ID, req.Key, version)); err != nil {
		return nil, InternalError(fmt.Errorf("failed to insert inline version: %w", err))
	}

	metrics.ObjectsStored.WithLabelValues("inline").Inc()
	metrics.BytesIngested.Add(float64(size))

	return &SaveStreamResult{
		VersionUUID:      versionUUID,
		VersionTimestamp: versionTimestamp,
		Etag:             etag,
	}, nil
}

// interruptedCleanup tombstones a version whose upload did not reach the
// final commit. It is armed for the whole streamed path and disarmed only
// after the Complete insert succeeds.
type interruptedCleanup struct {
	core             *Core
	bucketID         types.BucketID
	key              string
	versionUUID      types.UUID
	versionTimestamp uint64
	armed            bool
}

func (c *Core) armCleanup(bucketID types.BucketID, key string, versionUUID types.UUID, versionTimestamp uint64) *interruptedCleanup {
	return &interruptedCleanup{
		core:             c,
		bucketID:         bucketID,
		key:              key,
		versionUUID:      versionUUID,
		versionTimestamp: versionTimestamp,
		armed:            true,
	}
}

func (g *interruptedCleanup) disarm() { g.armed = false }

// run schedules the Aborted tombstone insert when the guard is still
// armed. The insert is spawned detached with a fresh context so that the
// cancellation which interrupted the upload cannot also cancel the
// cleanup; failures are logged and resolved by the next scrub.
func (g *interruptedCleanup) run() {
	if !g.armed {
		return
	}
	g.armed = false

	core := g.core
	aborted := model.NewObject(g.bucketID, g.key, model.ObjectVersion{
		UUID:      g.versionUUID,
		Timestamp: g.versionTimestamp,
		State:     model.StateAborted,
	})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := core.store.InsertObject(ctx, aborted); err != nil {
			core.logger.Warn().Err(err).
				Str("version_uuid", aborted.Versions[0].UUID.Hex()).
				Msg("Cannot cleanup after aborted upload")
		}
		metrics.UploadsAborted.Inc()
	}()
}

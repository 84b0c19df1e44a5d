package object

import (
	"context"
	"fmt"

	"github.com/wxpppp/garage/pkg/encryption"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/types"
)

// GetResult is a retrieved object version with its decrypted payload and
// headers.
type GetResult struct {
	VersionUUID types.UUID
	Etag        string
	Size        uint64
	Headers     model.ObjectHeaders
	Data        []byte
}

// GetObject retrieves the latest visible version of the key. A delete
// marker, like an absent key, surfaces as ErrNoSuchKey. Streamed objects
// are reassembled from their blocks in (part, offset) order.
func (c *Core) GetObject(ctx context.Context, bucketID types.BucketID, key string, enc encryption.Params) (*GetResult, error) {
	obj, err := c.store.GetObject(ctx, bucketID, key)
	if err != nil {
		return nil, InternalError(fmt.Errorf("failed to read object row: %w", err))
	}
	if obj == nil {
		return nil, ErrNoSuchKey
	}
	last := obj.LastVisible()
	if last == nil || last.Data == nil || last.Data.Kind == model.KindDeleteMarker {
		return nil, ErrNoSuchKey
	}

	meta := last.Data.Meta
	headers, err := enc.DecryptHeaders(meta.Headers)
	if err != nil {
		return nil, BadRequest("Unable to decrypt object headers")
	}

	var payload []byte
	switch last.Data.Kind {
	case model.KindInline:
		payload, err = enc.DecryptBlob(last.Data.Inline)
		if err != nil {
			return nil, BadRequest("Unable to decrypt object data")
		}
	case model.KindFirstBlock:
		version, err := c.store.GetVersion(ctx, last.UUID)
		if err != nil {
			return nil, InternalError(fmt.Errorf("failed to read version row: %w", err))
		}
		if version == nil {
			return nil, InternalError(fmt.Errorf("version row missing for %s", last.UUID.Hex()))
		}
		payload = make([]byte, 0, meta.Size)
		for i := range version.Blocks {
			entry := &version.Blocks[i]
			data, err := c.blocks.GetBlock(ctx, entry.Hash)
			if err != nil {
				return nil, InternalError(fmt.Errorf("failed to read block %s: %w", entry.Hash.Hex(), err))
			}
			plain, err := enc.DecryptBlock(data)
			if err != nil {
				return nil, BadRequest("Unable to decrypt object data")
			}
			payload = append(payload, plain...)
		}
	default:
		return nil, InternalError(fmt.Errorf("unknown version data kind %q", last.Data.Kind))
	}

	return &GetResult{
		VersionUUID: last.UUID,
		Etag:        meta.Etag,
		Size:        meta.Size,
		Headers:     headers,
		Data:        payload,
	}, nil
}

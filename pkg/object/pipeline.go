package object

import (
	"context"
	"crypto/md5"
	"crypto/sha256"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/wxpppp/garage/pkg/block"
	"github.com/wxpppp/garage/pkg/encryption"
	"github.com/wxpppp/garage/pkg/model"
	"github.com/wxpppp/garage/pkg/stream"
	"github.com/wxpppp/garage/pkg/types"
)

// Pipeline channel capacities. Together with PutBlocksMaxParallel they
// bound the number of blocks held in memory for one upload.
const (
	readQueueCap    = 2
	hashQueueCap    = 1
	encryptQueueCap = 1
)

// blockItem carries a plaintext block, or an upstream error, between the
// early pipeline stages. Buffers move from stage to stage; only the hash
// stage reads a block concurrently with its downstream, and neither side
// mutates it.
type blockItem struct {
	data []byte
	err  error
}

// cidItem is a block ready to write: the bytes as stored, the plaintext
// length it covers, and its content address.
type cidItem struct {
	data     []byte
	plainLen uint64
	hash     types.Hash
	err      error
}

// pipelineResult aggregates the stage outputs after a successful run.
type pipelineResult struct {
	totalSize      uint64
	md5sum         []byte
	sha256sum      []byte
	firstBlockHash types.Hash
}

// readAndPutBlocks runs the four-stage ingestion pipeline:
//
//	read_blocks ──▶ hash_stage ──▶ encrypt_and_cid_stage ──▶ writer_stage
//
// The stages run concurrently over bounded channels and close their
// downstream on completion; errors travel in-band and surface from the
// writer. The first write error stops the intake loop, but writes already
// in flight are awaited before returning so their blocks stay reachable
// for GC.
func (c *Core) readAndPutBlocks(
	ctx context.Context,
	version *model.Version,
	enc encryption.Params,
	partNumber uint64,
	firstBlock []byte,
	chunker *stream.Chunker,
) (pipelineResult, error) {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readCh := make(chan blockItem, readQueueCap)
	hashedCh := make(chan blockItem, hashQueueCap)
	writeCh := make(chan cidItem, encryptQueueCap)

	var res pipelineResult
	var stages errgroup.Group

	// read_blocks: the first block was already pulled for the inline
	// decision; push it, then drain the chunker.
	stages.Go(func() error {
		defer close(readCh)
		if !sendBlock(pctx, readCh, blockItem{data: firstBlock}) {
			return nil
		}
		for {
			b, err := chunker.Next()
			if err != nil {
				sendBlock(pctx, readCh, blockItem{err: err})
				return nil
			}
			if b == nil {
				return nil
			}
			if !sendBlock(pctx, readCh, blockItem{data: b}) {
				return nil
			}
		}
	})

	// hash_stage: feed both digests in block order while forwarding the
	// block downstream.
	stages.Go(func() error {
		defer close(hashedCh)
		md5Hasher := stream.NewAsyncHasher(md5.New())
		sha256Hasher := stream.NewAsyncHasher(sha256.New())
		for item := range readCh {
			if item.err != nil {
				sendBlock(pctx, hashedCh, item)
				break
			}
			if !sendBlock(pctx, hashedCh, item) {
				break
			}
			md5Hasher.Update(item.data)
			sha256Hasher.Update(item.data)
		}
		res.md5sum = md5Hasher.Finalize()
		res.sha256sum = sha256Hasher.Finalize()
		return nil
	})

	// encrypt_and_cid_stage: seal the block if requested, then address it
	// by the BLAKE2b digest of what will actually be stored.
	stages.Go(func() error {
		defer close(writeCh)
		first := true
		for item := range hashedCh {
			if item.err != nil {
				sendCID(pctx, writeCh, cidItem{err: item.err})
				break
			}
			plainLen := uint64(len(item.data))
			data := item.data
			if enc.IsEncrypted() {
				sealed, err := enc.EncryptBlock(data)
				if err != nil {
					sendCID(pctx, writeCh, cidItem{err: InternalError(err)})
					break
				}
				data = sealed
			}
			hash := types.Hash(blake2b.Sum256(data))
			if first {
				res.firstBlockHash = hash
				first = false
			}
			if !sendCID(pctx, writeCh, cidItem{data: data, plainLen: plainLen, hash: hash}) {
				break
			}
		}
		return nil
	})

	// writer_stage: at most PutBlocksMaxParallel block writes in flight;
	// intake stops while the limit is reached. Each block's order tag is
	// derived from its cumulative plaintext offset.
	var writeErr error
	stages.Go(func() error {
		defer cancel()
		orderStream := block.NewOrderStream()
		writers, wctx := errgroup.WithContext(pctx)
		writers.SetLimit(PutBlocksMaxParallel)
		var written uint64
	intake:
		for item := range writeCh {
			if item.err != nil {
				writeErr = item.err
				break
			}
			select {
			case <-wctx.Done():
				// a write already failed; stop pulling
				break intake
			default:
			}
			offset := written
			it := item
			writers.Go(func() error {
				return c.putBlockAndMeta(wctx, version, partNumber, offset, it, enc.IsEncrypted(), orderStream.Order(offset))
			})
			written += item.plainLen
		}
		if err := writers.Wait(); err != nil && writeErr == nil {
			writeErr = err
		}
		res.totalSize = written
		return nil
	})

	// Stage errors travel in-band and land in writeErr; the goroutines
	// themselves always return nil.
	_ = stages.Wait()

	if writeErr != nil {
		return pipelineResult{}, writeErr
	}
	if err := ctx.Err(); err != nil {
		return pipelineResult{}, err
	}
	return res, nil
}

// putBlockAndMeta commits one block: the block RPC, the version row grown
// by this block's entry, and the block-ref row, all in parallel.
func (c *Core) putBlockAndMeta(
	ctx context.Context,
	version *model.Version,
	partNumber, offset uint64,
	item cidItem,
	isEncrypted bool,
	tag *block.OrderTag,
) error {
	grown := model.NewVersion(version.UUID, version.BucketID, version.Key)
	grown.PutBlock(
		model.VersionBlockKey{PartNumber: partNumber, Offset: offset},
		model.VersionBlock{Hash: item.hash, Size: item.plainLen},
	)

	ref := &model.BlockRef{Block: item.hash, Version: version.UUID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.blocks.PutBlock(gctx, item.hash, item.data, isEncrypted, tag)
	})
	g.Go(func() error {
		return c.store.InsertVersion(gctx, grown)
	})
	g.Go(func() error {
		return c.store.InsertBlockRef(gctx, ref)
	})
	if err := g.Wait(); err != nil {
		return InternalError(err)
	}
	return nil
}

func sendBlock(ctx context.Context, ch chan<- blockItem, item blockItem) bool {
	select {
	case ch <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

func sendCID(ctx context.Context, ch chan<- cidItem, item cidItem) bool {
	select {
	case ch <- item:
		return true
	case <-ctx.Done():
		return false
	}
}

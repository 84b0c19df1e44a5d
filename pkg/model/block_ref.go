package model

import (
	"github.com/wxpppp/garage/pkg/types"
)

// BlockRef is the CRDT entry of the block reference table: the assertion
// that a version holds a block. Block refcounts are derived from the set
// of live (not deleted) refs.
type BlockRef struct {
	// Partition key
	Block types.Hash `json:"block"`
	// Sort key
	Version types.UUID `json:"version"`

	Deleted bool `json:"deleted"`
}

// Merge ORs the deletion tombstones of two replicas.
func (r *BlockRef) Merge(other *BlockRef) {
	if other.Deleted {
		r.Deleted = true
	}
}

// IsLive reports whether the ref still pins its block.
func (r *BlockRef) IsLive() bool { return !r.Deleted }

package model

import (
	"sort"

	"github.com/wxpppp/garage/pkg/types"
)

// VersionBlockKey locates a block within a version: part_number is 1 for
// single-part uploads, offset is the cumulative plaintext byte position.
type VersionBlockKey struct {
	PartNumber uint64 `json:"part_number"`
	Offset     uint64 `json:"offset"`
}

// Less orders block keys by (part_number, offset).
func (k VersionBlockKey) Less(other VersionBlockKey) bool {
	if k.PartNumber != other.PartNumber {
		return k.PartNumber < other.PartNumber
	}
	return k.Offset < other.Offset
}

// VersionBlock is the stored block referenced at a given key.
type VersionBlock struct {
	Hash types.Hash `json:"hash"`
	Size uint64     `json:"size"`
}

// VersionBlockEntry is one row of a version's block map.
type VersionBlockEntry struct {
	VersionBlockKey
	VersionBlock
}

// Version is the CRDT entry of the version table: the block map of one
// object version, plus a backlink to the object it belongs to and a
// deletion tombstone consulted by the GC.
type Version struct {
	UUID types.UUID `json:"uuid"`

	// Backlink to the owning object.
	BucketID types.BucketID `json:"bucket_id"`
	Key      string         `json:"key"`

	Deleted bool `json:"deleted"`

	// Blocks is grow-only and kept sorted by (part_number, offset).
	// Offsets are unique by construction, so entries are never updated.
	Blocks []VersionBlockEntry `json:"blocks"`
}

// NewVersion creates an empty version row. It is inserted before any block
// so that concurrent GC never reaps block refs pointing at it.
func NewVersion(uuid types.UUID, bucketID types.BucketID, key string) *Version {
	return &Version{UUID: uuid, BucketID: bucketID, Key: key}
}

// PutBlock records a block at the given coordinates. Existing entries are
// left untouched: the map grows monotonically.
func (v *Version) PutBlock(key VersionBlockKey, block VersionBlock) {
	i := sort.Search(len(v.Blocks), func(i int) bool {
		return !v.Blocks[i].VersionBlockKey.Less(key)
	})
	if i < len(v.Blocks) && v.Blocks[i].VersionBlockKey == key {
		return
	}
	v.Blocks = append(v.Blocks, VersionBlockEntry{})
	copy(v.Blocks[i+1:], v.Blocks[i:])
	v.Blocks[i] = VersionBlockEntry{VersionBlockKey: key, VersionBlock: block}
}

// Merge joins two replicas of the same version row: the tombstone is an
// OR, the block map is a grow-only union.
func (v *Version) Merge(other *Version) {
	if other.Deleted {
		v.Deleted = true
	}
	for i := range other.Blocks {
		v.PutBlock(other.Blocks[i].VersionBlockKey, other.Blocks[i].VersionBlock)
	}
}

// TotalSize returns the plaintext byte count covered by the block map.
func (v *Version) TotalSize() uint64 {
	var total uint64
	for i := range v.Blocks {
		total += v.Blocks[i].Size
	}
	return total
}

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxpppp/garage/pkg/types"
)

func TestVersionPutBlockGrowOnly(t *testing.T) {
	v := NewVersion(types.GenUUID(), types.GenUUID(), "k")
	h1, h2 := types.Hash{1}, types.Hash{2}

	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 0}, VersionBlock{Hash: h1, Size: 4})
	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 4}, VersionBlock{Hash: h2, Size: 2})

	// re-putting an existing key does not update the entry
	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 0}, VersionBlock{Hash: h2, Size: 99})

	require.Len(t, v.Blocks, 2)
	assert.Equal(t, h1, v.Blocks[0].Hash)
	assert.Equal(t, uint64(4), v.Blocks[0].Size)
	assert.Equal(t, uint64(6), v.TotalSize())
}

func TestVersionPutBlockKeepsOrder(t *testing.T) {
	v := NewVersion(types.GenUUID(), types.GenUUID(), "k")
	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 8}, VersionBlock{Size: 1})
	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 0}, VersionBlock{Size: 1})
	v.PutBlock(VersionBlockKey{PartNumber: 2, Offset: 0}, VersionBlock{Size: 1})
	v.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 4}, VersionBlock{Size: 1})

	var keys []VersionBlockKey
	for _, e := range v.Blocks {
		keys = append(keys, e.VersionBlockKey)
	}
	assert.Equal(t, []VersionBlockKey{
		{PartNumber: 1, Offset: 0},
		{PartNumber: 1, Offset: 4},
		{PartNumber: 1, Offset: 8},
		{PartNumber: 2, Offset: 0},
	}, keys)
}

func TestVersionMerge(t *testing.T) {
	uuid, bucketID := types.GenUUID(), types.GenUUID()

	a := NewVersion(uuid, bucketID, "k")
	a.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 0}, VersionBlock{Hash: types.Hash{1}, Size: 4})

	b := NewVersion(uuid, bucketID, "k")
	b.PutBlock(VersionBlockKey{PartNumber: 1, Offset: 4}, VersionBlock{Hash: types.Hash{2}, Size: 4})
	b.Deleted = true

	a.Merge(b)
	assert.True(t, a.Deleted)
	assert.Len(t, a.Blocks, 2)

	// tombstone stays set whatever merges in later
	c := NewVersion(uuid, bucketID, "k")
	a.Merge(c)
	assert.True(t, a.Deleted)
}

func TestDeletedFilter(t *testing.T) {
	assert.True(t, FilterAny.Apply(true))
	assert.True(t, FilterAny.Apply(false))
	assert.True(t, FilterDeleted.Apply(true))
	assert.False(t, FilterDeleted.Apply(false))
	assert.True(t, FilterNotDeleted.Apply(false))
	assert.False(t, FilterNotDeleted.Apply(true))
}

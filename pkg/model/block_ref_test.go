package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wxpppp/garage/pkg/types"
)

func TestBlockRefMergeDeletionSticks(t *testing.T) {
	block, version := types.Hash{1}, types.GenUUID()

	// deleted=true wins regardless of merge order
	a := &BlockRef{Block: block, Version: version}
	a.Merge(&BlockRef{Block: block, Version: version, Deleted: true})
	assert.True(t, a.Deleted)

	b := &BlockRef{Block: block, Version: version, Deleted: true}
	b.Merge(&BlockRef{Block: block, Version: version})
	assert.True(t, b.Deleted)

	// and never resets
	b.Merge(&BlockRef{Block: block, Version: version})
	assert.True(t, b.Deleted)
	assert.False(t, b.IsLive())
}

package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wxpppp/garage/pkg/types"
)

func TestCountersFilteredValues(t *testing.T) {
	counters := NewCounters(types.GenUUID())
	counters.Add("node-a", "objects", 3)
	counters.Add("node-a", "bytes", 300)
	counters.Add("node-b", "objects", 2)
	counters.Add("node-gone", "objects", 100)

	layout := &Layout{Version: 2, Nodes: []string{"node-a", "node-b"}}
	values := counters.FilteredValues(layout)

	// the decommissioned node's contribution is ignored
	assert.Equal(t, int64(5), values["objects"])
	assert.Equal(t, int64(300), values["bytes"])
}

func TestCountersNilReceiver(t *testing.T) {
	var counters *Counters
	values := counters.FilteredValues(SingleNode())
	assert.Empty(t, values)
}

package cluster

import (
	"github.com/wxpppp/garage/pkg/types"
)

// Counters holds the gossiped per-node counter values for one bucket.
// Each node contributes its own view; values converge by taking the
// node's latest contribution.
type Counters struct {
	BucketID types.BucketID              `json:"bucket_id"`
	Values   map[string]map[string]int64 `json:"values"` // node → counter → value
}

// NewCounters returns an empty counter row for a bucket.
func NewCounters(bucketID types.BucketID) *Counters {
	return &Counters{BucketID: bucketID, Values: map[string]map[string]int64{}}
}

// Add folds a delta into the given node's contribution.
func (c *Counters) Add(node, counter string, delta int64) {
	if c.Values == nil {
		c.Values = map[string]map[string]int64{}
	}
	nv, ok := c.Values[node]
	if !ok {
		nv = map[string]int64{}
		c.Values[node] = nv
	}
	nv[counter] += delta
}

// FilteredValues sums counter contributions across the nodes of the given
// layout. Contributions from nodes that left the cluster are ignored so
// that decommissioned replicas do not inflate quota accounting.
func (c *Counters) FilteredValues(layout *Layout) map[string]int64 {
	out := map[string]int64{}
	if c == nil {
		return out
	}
	for node, counters := range c.Values {
		if !layout.Contains(node) {
			continue
		}
		for name, v := range counters {
			out[name] += v
		}
	}
	return out
}

// Package cluster holds the read-only cluster-layout snapshot and the
// gossiped per-bucket counters consumed by the quota checker.
package cluster

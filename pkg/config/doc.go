// Package config loads the garage daemon configuration: storage paths,
// listen addresses, block and inline-threshold tunables, GC cadence and
// default bucket quotas.
package config

// Package metrics defines garage's Prometheus collectors and a small
// timer helper for recording operation durations.
package metrics

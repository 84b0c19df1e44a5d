// Package gc implements the background sweep that reclaims aborted and
// shadowed object versions, their version and block-ref rows, and the
// blocks nothing references anymore. The sweep doubles as the refcount
// scrub: counts are recomputed from the live ref set each cycle, so
// best-effort incref/decref failures heal over time.
package gc

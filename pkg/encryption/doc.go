// Package encryption implements per-object SSE-C encryption parameters:
// the choice between plaintext and AES-256-GCM sealed storage, derived
// from request headers, plus the etag derivation for each mode.
package encryption

// Package stream provides the ingestion pipeline's byte-level primitives:
// a fixed-size block chunker over an io.Reader and an order-preserving
// asynchronous hasher.
package stream

/*
Package object implements the ingestion and deletion core of garage.

A PUT turns the client's byte stream into either an inline version (small
payloads) or a chain of content-addressed blocks written through a
four-stage pipeline: chunk, hash (MD5 + SHA-256), encrypt-and-address
(BLAKE2b), write. Block writes run at most three at a time, carry order
tags derived from their plaintext offsets, and commit the block payload,
the grown version row and the block-ref row in parallel.

Visibility is atomic: the version enters the object table as Uploading,
and only the final insert flips it to Complete. An interrupted-cleanup
guard armed across the streamed path converts any failure, cancellation
or panic in between into an Aborted tombstone, written detached so that
the interruption cannot cancel the cleanup. The GC reaps the leftovers.

Deletion writes a delete-marker version through the same merge machinery,
one key per call; the API layer builds batch deletion on top of it.
*/
package object

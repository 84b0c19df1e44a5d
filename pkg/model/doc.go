/*
Package model defines the three CRDT-merged metadata tables at the heart of
garage's object store, as entries with explicit merge rules:

  - Object: (bucket_id, key) → version list. Versions are identified by
    UUID and ordered by (timestamp, uuid); merge is a set union with a
    per-version state lattice (Complete terminal, Aborted overriding any
    non-complete state, Uploading losing to both).
  - Version: version_uuid → grow-only block map plus a deletion tombstone.
  - BlockRef: (block_hash, version_uuid) → deletion tombstone, merged by OR.

Entries are never overwritten in place: every write is an insert that the
storage layer combines with the existing row via Merge. This makes inserts
commutative, associative and idempotent, so replicas converge regardless of
delivery order.

The package also carries the bucket configuration snapshot consumed by the
quota checker and the DeletedFilter used by GC sweeps.
*/
package model

/*
Package store implements the local replica of garage's metadata tables on
BoltDB.

Rows are JSON-marshaled entries in named buckets. An insert never
overwrites: the stored row is decoded, joined with the incoming entry via
its CRDT merge rule, and written back in one transaction. Replication
layers can therefore replay inserts in any order and any number of times.

Two side channels hang off inserts:

  - object inserts fold the row's (objects, bytes) counter delta into the
    bucket's counter row within the same transaction, feeding quota checks;
  - block-ref inserts fire the OnBlockRefUpdated hook with the row state
    before and after the merge, driving block reference counting.

Physical row deletion is reserved for the GC sweep.
*/
package store

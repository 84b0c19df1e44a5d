/*
Package block defines the block-store surface consumed by the ingestion
core — content-addressed puts with per-stream ordering tags, gets, and
reference counting — together with a BoltDB-backed local implementation
for standalone deployments and tests.

The RefHook edge detector translates block-ref table updates into
incref/decref calls. It reacts to liveness transitions only, so replayed
table updates never double-count; a periodic scrub recomputes counts from
the ref table to correct any remaining drift.
*/
package block

/*
Package storage persists spaces, monitors, and monitor results.

The Store interface is the only component allowed to mutate persisted state.
The default implementation is BoltDB-backed: entities are JSON documents in
per-type buckets, and result rows are keyed by timestamp so range scans come
back in chronological order. Deleting a space cascades to its monitors and
their results inside one transaction; deleting a monitor cascades to its
results the same way.

Retention is expressed as two operations: CleanupPreview counts the rows a
run would remove (partitioned into healthy and unhealthy-or-unknown), and
CleanupOldResults performs the deletion in bounded batches with one
transaction per batch.
*/
package storage

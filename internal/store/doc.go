// Package store provides SQLite-backed persistence for skipif.
//
// Two tables:
//   - markers: the marker ledger, keyed by (output, kind). Store implements
//     strategy.MarkerBackend over it, for outputs whose directory should not
//     receive sibling marker files.
//   - runs: append-only run history. Store implements guard.Recorder over it.
//
// # Ordering
//
// History queries order by seq, the AUTOINCREMENT row id, never by
// timestamps. Run IDs are UUIDv7 and sort the same way.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds, since batch jobs
//     may share one database file across processes
package store

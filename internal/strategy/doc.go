// Package strategy decides whether a guarded call can be skipped and records
// its outcome afterwards.
//
// A Strategy has two hooks:
//   - Skip runs before the operation. It may read the filesystem but must not
//     change persisted state. Any I/O error means "do not skip".
//   - Callback runs once after the operation completed and may write or
//     delete markers.
//
// Two policies are provided. FileExists skips whenever the output path
// exists; a partially written artifact from a crashed run is therefore
// indistinguishable from a finished one. Markers keeps success and failure
// sentinels next to (or, in folder mode, inside) the output:
//
//	flat:   <output>.success   <output>.failure
//	folder: <output>/success   <output>/failure
//
// Each marker holds "<args_hash>\n<code_hash>", or nothing when hashes are
// disabled. A failure marker takes precedence over a success marker, so a
// failed case is never silently skipped as a success.
//
// Marker reads and writes are not atomic with respect to each other. Two
// concurrent callers for the same output may both run the operation; see the
// guard package for optional advisory locking.
package strategy

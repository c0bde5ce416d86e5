// Package fingerprint computes the identity of one guarded call.
//
// A Fingerprint is a pair of 64-bit hashes:
//   - Args: the ordered, non-excluded call arguments
//   - Code: an explicit code-version token supplied by the caller
//
// Both hashes are derived from a canonical JSON encoding (sorted object keys,
// NFC-normalised strings, integers in decimal) fed into SHA-256 with a domain
// prefix, so equal inputs produce equal hashes across process restarts.
//
// The code version is never inferred. Callers pass a semantic version, a
// constant they bump by hand when the operation's logic changes, or the
// content hash of a script obtained from FileVersion.
package fingerprint

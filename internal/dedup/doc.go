// Package dedup implements duplicate classification for per-device stream
// files and the persisted ledger that makes the classification auditable.
//
// Classification is a pure function over an in-memory table: callers decide
// whether and where the cleaned rows are persisted. The ledger is a keyed
// mapping (participant, device, month, stream) -> counts; reprocessing a key
// overwrites its counts rather than appending a second row.
package dedup

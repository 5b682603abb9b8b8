// Package stage owns the deduplication working area: copying raw exports
// into a canonical staging tree and running the duplicate classifier over
// each staged file, persisting cleaned rows and ledger counts.
package stage

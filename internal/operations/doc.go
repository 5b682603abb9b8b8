// Package operations orchestrates the preparation pipeline as a sequence of
// steps (stage, dedup, audit, combine, recombine, insights) with per-step
// state, a typed error taxonomy, and OpenTelemetry instrumentation.
//
// Execution is sequential and file-at-a-time by design; partial progress from
// an interrupted run is untrusted and reprocessed from the last completed
// step.
package operations

package infrastructure

import "context"

// contextKey is a type for context keys.
type contextKey string

// runIDContextKey stores the pipeline run ID in context so every log record
// of a run can be correlated.
const runIDContextKey contextKey = "run_id"

// WithRunID returns a context carrying the run ID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDContextKey, runID)
}

// RunIDFrom extracts the run ID from the context, or "".
func RunIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(runIDContextKey).(string); ok {
		return v
	}
	return ""
}

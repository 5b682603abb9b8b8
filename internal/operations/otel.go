package operations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName identifies pipeline spans.
	TracerName = "timeprep.pipeline"
)

// PipelineTracer provides OpenTelemetry instrumentation for pipeline runs.
type PipelineTracer struct {
	tracer trace.Tracer

	rowsProcessed     metric.Int64Counter
	duplicatesDropped metric.Int64Counter
	shardsWritten     metric.Int64Counter
}

// NewPipelineTracer creates the tracer and the pipeline's counters.
func NewPipelineTracer(meter metric.Meter) (*PipelineTracer, error) {
	rows, err := meter.Int64Counter("timeprep.rows_processed",
		metric.WithDescription("Rows read from staged stream files"))
	if err != nil {
		return nil, fmt.Errorf("failed to create rows counter: %w", err)
	}
	dupes, err := meter.Int64Counter("timeprep.duplicates_dropped",
		metric.WithDescription("Rows removed by duplicate classification"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duplicates counter: %w", err)
	}
	shards, err := meter.Int64Counter("timeprep.shards_written",
		metric.WithDescription("Size-bounded output shards produced"))
	if err != nil {
		return nil, fmt.Errorf("failed to create shards counter: %w", err)
	}

	return &PipelineTracer{
		tracer:            otel.Tracer(TracerName),
		rowsProcessed:     rows,
		duplicatesDropped: dupes,
		shardsWritten:     shards,
	}, nil
}

// TraceStep starts a span for one step of a run.
func (pt *PipelineTracer) TraceStep(ctx context.Context, runID, stepID string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordRows counts rows read for one stream.
func (pt *PipelineTracer) RecordRows(ctx context.Context, stream string, n int64) {
	pt.rowsProcessed.Add(ctx, n,
		metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordDuplicates counts rows dropped for one stream.
func (pt *PipelineTracer) RecordDuplicates(ctx context.Context, stream string, n int64) {
	pt.duplicatesDropped.Add(ctx, n,
		metric.WithAttributes(attribute.String("stream", stream)))
}

// RecordShards counts output shards for one stream.
func (pt *PipelineTracer) RecordShards(ctx context.Context, stream string, n int64) {
	pt.shardsWritten.Add(ctx, n,
		metric.WithAttributes(attribute.String("stream", stream)))
}

package operations

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Manager runs pipeline steps sequentially against shared run state. There
// is deliberately no parallel execution path: the pipeline is file-at-a-time
// by design, and correctness never depends on concurrency.
type Manager struct {
	steps  []Step
	tracer *PipelineTracer
	logger *slog.Logger
}

// NewManager creates a manager for an ordered list of steps.
func NewManager(tracer *PipelineTracer, logger *slog.Logger, steps ...Step) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{steps: steps, tracer: tracer, logger: logger}
}

// Run executes every step in order. The first step error aborts the run and
// marks the remaining steps skipped; per-file failures inside a step are
// recorded on the state instead of failing the step.
func (m *Manager) Run(ctx context.Context, state *State) error {
	logger := m.logger.With(slog.String("run_id", state.RunID), slog.String("month", state.Month))
	logger.Info("Starting pipeline run", slog.Int("steps", len(m.steps)))
	start := time.Now()

	for i, step := range m.steps {
		st := state.StepState(step.ID(), step.Name())

		if err := step.Validate(state); err != nil {
			st.Fail(err)
			m.skipRemaining(state, i+1)
			logger.Error("Step validation failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			return err
		}

		st.Start()
		err := m.executeStep(ctx, state, step)
		if err != nil {
			st.Fail(err)
			m.skipRemaining(state, i+1)
			logger.Error("Step failed",
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
			return err
		}
		st.Complete()
		logger.Info("Step completed",
			slog.String("step", step.ID()),
			slog.Duration("elapsed", time.Since(*st.StartTime)))
	}

	logger.Info("Pipeline run complete",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("file_failures", len(state.Failures())))
	return nil
}

func (m *Manager) executeStep(ctx context.Context, state *State, step Step) error {
	if m.tracer == nil {
		return step.Execute(ctx, state)
	}
	spanCtx, span := m.tracer.TraceStep(ctx, state.RunID, step.ID())
	defer span.End()
	err := step.Execute(spanCtx, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

func (m *Manager) skipRemaining(state *State, from int) {
	for _, step := range m.steps[from:] {
		state.StepState(step.ID(), step.Name()).Skip()
	}
}

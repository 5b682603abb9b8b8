package operations

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"timeprep/internal/combine"
	"timeprep/internal/dedup"
	"timeprep/internal/exporter"
	"timeprep/internal/insights"
	"timeprep/internal/sensor"
	"timeprep/internal/stage"
)

// StageStep copies discovered raw files into the deduplication staging tree.
type StageStep struct {
	copier *stage.Copier
}

// NewStageStep creates the staging step.
func NewStageStep(copier *stage.Copier) *StageStep {
	return &StageStep{copier: copier}
}

func (s *StageStep) ID() string   { return "stage" }
func (s *StageStep) Name() string { return "Stage raw files" }

func (s *StageStep) Validate(state *State) error {
	if len(state.DiscoveredPaths) == 0 {
		return NewValidationError(s.ID(), "no raw stream files discovered")
	}
	return nil
}

// Execute aborts on the first copy error: a partially built staging tree is
// not trustworthy.
func (s *StageStep) Execute(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return NewCancellationError(s.ID(), err)
	}
	staged, err := s.copier.Stage(state.DiscoveredPaths)
	if err != nil {
		var perr *sensor.PathError
		if errors.As(err, &perr) {
			return NewStructuralPathError(s.ID(), perr.Path, err)
		}
		return NewIOError(s.ID(), "", err)
	}
	state.StagedPaths = staged
	return nil
}

// DedupStep classifies every staged file and persists cleaned rows and
// ledger counts.
type DedupStep struct {
	cleaner *stage.Cleaner
	tracer  *PipelineTracer
	logger  *slog.Logger
}

// NewDedupStep creates the deduplication step.
func NewDedupStep(cleaner *stage.Cleaner, tracer *PipelineTracer, logger *slog.Logger) *DedupStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DedupStep{cleaner: cleaner, tracer: tracer, logger: logger}
}

func (s *DedupStep) ID() string   { return "dedup" }
func (s *DedupStep) Name() string { return "Classify and drop duplicates" }

func (s *DedupStep) Validate(state *State) error {
	if len(state.StagedPaths) == 0 {
		return NewValidationError(s.ID(), "staging step produced no files")
	}
	return nil
}

// Execute processes files independently: a bad file is recorded and skipped,
// but a ledger write failure aborts the run because the audit trail can no
// longer be trusted.
func (s *DedupStep) Execute(ctx context.Context, state *State) error {
	for _, path := range state.StagedPaths {
		if err := ctx.Err(); err != nil {
			return NewCancellationError(s.ID(), err)
		}

		counts, kept, err := s.cleaner.CleanFile(path)
		if err != nil {
			if errors.Is(err, dedup.ErrLedger) {
				return NewLedgerError(s.ID(), err)
			}
			s.logger.Error("Skipping file after classification failure",
				slog.String("path", path),
				slog.String("error", err.Error()))
			state.AddFailure(FileFailure{Step: s.ID(), Path: path, Err: err})
			continue
		}

		state.SetCounts(path, counts)
		if s.tracer != nil {
			stream, serr := sensor.StreamFromPath(path)
			if serr == nil {
				s.tracer.RecordRows(ctx, string(stream), int64(counts.TotalRows))
				s.tracer.RecordDuplicates(ctx, string(stream), int64(counts.TotalRows-kept))
			}
		}
	}
	return nil
}

// AuditStep exports the duplicate ledger as an XLSX workbook for review.
type AuditStep struct {
	ledger   *dedup.Ledger
	workbook string
}

// NewAuditStep creates the ledger export step writing to workbookPath.
func NewAuditStep(ledger *dedup.Ledger, workbookPath string) *AuditStep {
	return &AuditStep{ledger: ledger, workbook: workbookPath}
}

func (s *AuditStep) ID() string   { return "audit" }
func (s *AuditStep) Name() string { return "Export ledger workbook" }

func (s *AuditStep) Validate(*State) error { return nil }

func (s *AuditStep) Execute(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return NewCancellationError(s.ID(), err)
	}
	entries, err := s.ledger.Load()
	if err != nil {
		return NewLedgerError(s.ID(), err)
	}
	if err := exporter.WriteLedgerWorkbook(s.workbook, entries); err != nil {
		return NewIOError(s.ID(), s.workbook, err)
	}
	return nil
}

// CombineStep merges cleaned per-device files into combined partitions per
// stream.
type CombineStep struct {
	combiner    *combine.Combiner
	tracer      *PipelineTracer
	concurrency int
	logger      *slog.Logger
}

// NewCombineStep creates the combine step. Concurrency below 1 is clamped to
// the sequential default.
func NewCombineStep(combiner *combine.Combiner, tracer *PipelineTracer, concurrency int, logger *slog.Logger) *CombineStep {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CombineStep{combiner: combiner, tracer: tracer, concurrency: concurrency, logger: logger}
}

func (s *CombineStep) ID() string   { return "combine" }
func (s *CombineStep) Name() string { return "Combine cleaned files per stream" }

func (s *CombineStep) Validate(state *State) error {
	if len(state.Streams) == 0 {
		return NewValidationError(s.ID(), "no streams selected")
	}
	return nil
}

// Execute combines each selected stream; a failing stream is recorded and
// the others continue.
func (s *CombineStep) Execute(ctx context.Context, state *State) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, stream := range state.Streams {
		stream := stream
		g.Go(func() error {
			res, err := s.combiner.CombineStream(gctx, state.Month, stream)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Error("Combine failed for stream",
					slog.String("stream", string(stream)),
					slog.String("error", err.Error()))
				state.AddFailure(FileFailure{Step: s.ID(), Path: string(stream), Err: err})
				return nil
			}
			state.SetCombined(stream, res.Files)
			if s.tracer != nil {
				s.tracer.RecordRows(gctx, string(stream), res.RowsIn)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return NewCancellationError(s.ID(), err)
	}
	return nil
}

// RecombineStep repacks combined partitions into upload-sized shards.
type RecombineStep struct {
	recombiner *combine.Recombiner
	tracer     *PipelineTracer
	logger     *slog.Logger
}

// NewRecombineStep creates the recombine step.
func NewRecombineStep(recombiner *combine.Recombiner, tracer *PipelineTracer, logger *slog.Logger) *RecombineStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecombineStep{recombiner: recombiner, tracer: tracer, logger: logger}
}

func (s *RecombineStep) ID() string   { return "recombine" }
func (s *RecombineStep) Name() string { return "Repack into size-bounded shards" }

func (s *RecombineStep) Validate(state *State) error {
	if len(state.Streams) == 0 {
		return NewValidationError(s.ID(), "no streams selected")
	}
	return nil
}

func (s *RecombineStep) Execute(ctx context.Context, state *State) error {
	for _, stream := range state.Streams {
		if err := ctx.Err(); err != nil {
			return NewCancellationError(s.ID(), err)
		}
		shards, err := s.recombiner.Recombine(ctx, state.Combined(stream), stream)
		if err != nil {
			if errors.Is(err, combine.ErrChunkTooLarge) {
				err = NewSizeBudgetError(s.ID(), string(stream), err)
			}
			s.logger.Error("Recombine failed for stream",
				slog.String("stream", string(stream)),
				slog.String("error", err.Error()))
			state.AddFailure(FileFailure{Step: s.ID(), Path: string(stream), Err: err})
			continue
		}
		state.SetShards(stream, shards)
		if s.tracer != nil {
			s.tracer.RecordShards(ctx, string(stream), int64(len(shards)))
		}
	}
	return nil
}

// InsightsStep summarizes wear time from the final EDA shards.
type InsightsStep struct {
	cfg    insights.Config
	logger *slog.Logger
}

// NewInsightsStep creates the wear-time step.
func NewInsightsStep(cfg insights.Config, logger *slog.Logger) *InsightsStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightsStep{cfg: cfg, logger: logger}
}

func (s *InsightsStep) ID() string   { return "insights" }
func (s *InsightsStep) Name() string { return "Summarize wear time" }

func (s *InsightsStep) Validate(*State) error { return nil }

func (s *InsightsStep) Execute(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return NewCancellationError(s.ID(), err)
	}
	shards := state.Shards[sensor.StreamEDA]
	if len(shards) == 0 {
		s.logger.Info("No EDA shards, skipping wear-time summary")
		return nil
	}
	summaries, err := insights.Summarize(shards, s.cfg, s.logger)
	if err != nil {
		return NewExecutionError(s.ID(), err)
	}
	path, err := insights.WriteSummaryCSV(s.cfg.OutputDir, summaries)
	if err != nil {
		return NewIOError(s.ID(), s.cfg.OutputDir, err)
	}
	s.logger.Info("Wrote wear-time summary",
		slog.String("path", path),
		slog.Int("days", len(summaries)))
	return nil
}

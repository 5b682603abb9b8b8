// Command timeprep prepares wearable-sensor CSV exports for bulk upload:
// it stages raw files, removes duplicate and NaN rows under an audited
// policy, combines the cleaned data per stream, and repacks it into
// size-bounded shards.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"timeprep/internal/combine"
	"timeprep/internal/config"
	"timeprep/internal/dedup"
	"timeprep/internal/files"
	"timeprep/internal/infrastructure"
	"timeprep/internal/insights"
	"timeprep/internal/operations"
	"timeprep/internal/sensor"
	"timeprep/internal/stage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; flags and TIMEPREP_* variables take precedence.
	_ = godotenv.Load()

	path := flag.String("path", "", "path to the raw export directory or zip archive")
	out := flag.String("out", ".", "base directory for staging, shards, ledger and logs")
	streamsFlag := flag.String("streams", "", "comma separated list of streams to process, e.g. 'acc,temp'")
	allStreams := flag.Bool("all-streams", false, "process every stream, ignore -streams")
	month := flag.String("month", "", "8digit_8digit month token; defaults to every month found under -path")
	prep := flag.Bool("prep", false, "run the preparation pipeline (stage, dedup, combine, recombine)")
	dryRun := flag.Bool("dry-run", false, "classify and count duplicates without dropping rows")
	runInsights := flag.Bool("insights", false, "summarize wear time from the final EDA shards")
	ledgerMode := flag.String("ledger-mode", "", "ledger mode: prod or test")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Error: Please provide a path to the data to prepare")
		return 2
	}
	if !*prep {
		fmt.Fprintln(os.Stderr, "Error: Nothing to do. Pass -prep to run the preparation pipeline.")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	applyFlags(cfg, *streamsFlag, *allStreams, *month, *dryRun, *runInsights, *ledgerMode)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if !*allStreams && *streamsFlag == "" {
		fmt.Fprintln(os.Stderr, "Error: You must specify a stream to ingest or all streams.")
		return 2
	}

	paths := config.NewPaths(*out)
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Output = "both"
	cfg.Logging.FilePath = paths.GetLogPath("timeprep.log")
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		return 1
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		logger.Error("Failed to initialize OpenTelemetry", slog.String("error", err.Error()))
		return 1
	}
	defer providers.Shutdown(context.Background())

	streams, err := selectedStreams(cfg)
	if err != nil {
		logger.Error("Invalid stream selection", slog.String("error", err.Error()))
		return 2
	}

	discovered, err := discover(*path, streams)
	if err != nil {
		logger.Error("Discovery failed", slog.String("error", err.Error()))
		return 1
	}
	if len(discovered) == 0 {
		logger.Warn("No stream files found", slog.String("path", *path))
		return 0
	}

	months, byMonth, err := groupByMonth(discovered, cfg.Pipeline.Month)
	if err != nil {
		logger.Error("Cannot derive months from discovered paths", slog.String("error", err.Error()))
		return 1
	}

	for _, m := range months {
		if err := runMonth(ctx, cfg, paths, providers, logger, m, streams, byMonth[m]); err != nil {
			logger.Error("Pipeline run failed",
				slog.String("month", m),
				slog.String("error", err.Error()))
			return 1
		}
	}
	return 0
}

func applyFlags(cfg *config.Config, streamsFlag string, allStreams bool, month string,
	dryRun, runInsights bool, ledgerMode string) {
	if allStreams {
		cfg.Pipeline.Streams = []string{"acc", "eda", "temp"}
	} else if streamsFlag != "" {
		var parts []string
		for _, s := range strings.Split(streamsFlag, ",") {
			parts = append(parts, strings.TrimSpace(s))
		}
		cfg.Pipeline.Streams = parts
	}
	if month != "" {
		cfg.Pipeline.Month = month
	}
	if dryRun {
		cfg.Pipeline.ScanOnly = true
	}
	if runInsights {
		cfg.Pipeline.Insights = true
	}
	if ledgerMode != "" {
		cfg.Ledger.Mode = ledgerMode
	}
}

func selectedStreams(cfg *config.Config) ([]sensor.Stream, error) {
	streams := make([]sensor.Stream, 0, len(cfg.Pipeline.Streams))
	for _, name := range cfg.Pipeline.Streams {
		s, err := sensor.ParseStream(name)
		if err != nil {
			return nil, err
		}
		streams = append(streams, s)
	}
	return streams, nil
}

func discover(path string, streams []sensor.Stream) ([]string, error) {
	root := path
	if strings.HasSuffix(strings.ToLower(path), ".zip") {
		extracted, err := files.Unzip(path)
		if err != nil {
			return nil, err
		}
		root = extracted
	}
	found, err := files.FindStreamFiles(root)
	if err != nil {
		return nil, err
	}
	return files.FilterStreams(found, streams), nil
}

// groupByMonth buckets discovered files per month token. With an explicit
// month only that bucket is processed.
func groupByMonth(paths []string, only string) ([]string, map[string][]string, error) {
	byMonth := make(map[string][]string)
	for _, p := range paths {
		meta, err := sensor.ExtractPathMeta(p)
		if err != nil {
			return nil, nil, err
		}
		if only != "" && meta.Month != only {
			continue
		}
		byMonth[meta.Month] = append(byMonth[meta.Month], p)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	return months, byMonth, nil
}

func runMonth(ctx context.Context, cfg *config.Config, paths *config.Paths,
	providers *infrastructure.OTelProviders, logger *slog.Logger,
	month string, streams []sensor.Stream, discovered []string) error {

	runID := uuid.NewString()
	ctx = infrastructure.WithRunID(ctx, runID)

	ledger, err := dedup.NewLedger(dedup.LedgerConfig{
		Dir:  paths.LedgerDir,
		Mode: dedup.Mode(cfg.Ledger.Mode),
	})
	if err != nil {
		return err
	}

	tracer, err := operations.NewPipelineTracer(providers.Meter)
	if err != nil {
		return err
	}

	copier := stage.NewCopier(paths.StagingDir, logger)
	cleaner := stage.NewCleaner(ledger, cfg.Pipeline.ScanOnly, logger)
	combiner := combine.NewCombiner(paths.StagingDir, paths.PartsDir,
		cfg.Pipeline.ChunkRows, cfg.Pipeline.PartitionBytes, logger)
	recombiner := combine.NewRecombiner(paths.PendingMonthDir(month),
		cfg.Pipeline.MaxShardBytes, cfg.Pipeline.ChunkRows, logger)

	steps := []operations.Step{
		operations.NewStageStep(copier),
		operations.NewDedupStep(cleaner, tracer, logger),
		operations.NewAuditStep(ledger, paths.LedgerWorkbook),
	}
	// A dry run only counts: staged files keep their rows, so combining
	// them would merge dirty data.
	if !cfg.Pipeline.ScanOnly {
		steps = append(steps,
			operations.NewCombineStep(combiner, tracer, cfg.Pipeline.Concurrency, logger),
			operations.NewRecombineStep(recombiner, tracer, logger))
		if cfg.Pipeline.Insights {
			steps = append(steps, operations.NewInsightsStep(
				insights.DefaultConfig(paths.InsightsDir), logger))
		}
	}

	state := operations.NewState(runID, month, streams)
	state.DiscoveredPaths = discovered

	manager := operations.NewManager(tracer, logger, steps...)
	if err := manager.Run(ctx, state); err != nil {
		return err
	}

	for _, f := range state.Failures() {
		logger.Warn("File skipped during run",
			slog.String("step", f.Step),
			slog.String("path", f.Path),
			slog.String("error", f.Err.Error()))
	}
	return nil
}

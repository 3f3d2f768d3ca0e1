package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usage-cost/core/lookup"
	"usage-cost/core/output"
	"usage-cost/core/pipeline"
	"usage-cost/internal/logging"
	"usage-cost/internal/metrics"
	"usage-cost/internal/telemetry"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Price every new usage report",
	Long: `Process every usage report newer than the progress marker, oldest first.

For each report the raw file is downloaded and decompressed, the rates for
its usage window are fetched, every row is priced and the cost file is
written to the cost directory. The marker is advanced only after the cost
file is on disk. The first failure stops the run.

With --dry-run reports are downloaded and priced but no cost file is
written and the marker is left alone.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "price reports without writing cost files or advancing the marker")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg := appConfig
	logger := logging.Logger

	if err := cfg.Validate(); err != nil {
		return err
	}
	cutoff, err := cfg.CutoffTime()
	if err != nil {
		return err
	}

	shutdown, err := telemetry.InitTracer(cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer shutdown()

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	table, err := lookup.Load(cfg.Paths.LookupFile)
	if err != nil {
		return err
	}
	logger.Info("resource lookup loaded", zap.String("path", cfg.Paths.LookupFile), zap.Int("resources", len(table)))

	tracker, err := openTracker(ctx, cfg)
	if err != nil {
		return err
	}
	defer tracker.Close()

	notifier, err := buildNotifier(cfg)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder(cfg.Metrics, logger)

	driver, err := pipeline.NewDriver(pipeline.Deps{
		Lister:   c.objects,
		Fetcher:  c.reports,
		Rates:    c.rates,
		Lookup:   table,
		Writer:   output.NewWriter(cfg.Paths.CostDir, logger),
		Tracker:  tracker,
		Recorder: recorder,
		Logger:   logger,
	}, pipeline.Options{
		Prefix: cfg.Storage.Prefix,
		Cutoff: cutoff,
		DryRun: runDryRun,
	})
	if err != nil {
		return err
	}

	result, runErr := driver.Run(ctx)
	recorder.ObserveRun(result)

	// The run context may already be cancelled; reporting gets its own deadline.
	reportCtx, reportCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer reportCancel()

	if cfg.Metrics.Enabled() {
		if err := recorder.Flush(reportCtx); err != nil {
			logger.Warn("metrics flush failed", zap.Error(err))
		}
	}
	if notifier != nil {
		if err := notifier.NotifyRun(result); err != nil {
			logger.Warn("run notification failed", zap.Error(err))
		}
	}

	if jsonOutput() {
		if err := newUI(cmd).JSON(result); err != nil {
			return err
		}
	} else {
		newUI(cmd).RunSummary(result)
	}
	return runErr
}

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"usage-cost/core/merge"
	"usage-cost/core/progress"
	"usage-cost/core/ratecard"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "usage-cost/pipeline"

// Lister returns the objects named after cursor, ordered by name.
type Lister interface {
	List(ctx context.Context, cursor string) ([]types.ObjectInfo, error)
}

// ReportFetcher downloads and parses one report.
type ReportFetcher interface {
	Fetch(ctx context.Context, obj types.ObjectInfo) (*types.UsageReport, error)
}

// RateCardBuilder extends the run's rate card from a report's window.
type RateCardBuilder interface {
	Extend(ctx context.Context, report *types.UsageReport) (ratecard.Stats, error)
	Card() *ratecard.Card
}

// CostWriter persists a merged report and returns its path.
type CostWriter interface {
	Write(result *merge.Result) (string, error)
}

// Recorder observes finished reports.
type Recorder interface {
	ObserveReport(rep *ReportResult)
}

// Options are fixed for the lifetime of a Driver.
type Options struct {
	// Prefix is prepended to the marker to form the listing cursor
	Prefix string

	// Cutoff excludes reports created at or before it
	Cutoff time.Time

	// DryRun stops each report after the merge
	DryRun bool

	// RunID identifies the run in logs and spans; generated when empty
	RunID string
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Lister   Lister
	Fetcher  ReportFetcher
	Rates    RateCardBuilder
	Lookup   types.ResourceLookup
	Writer   CostWriter
	Tracker  progress.Tracker
	Recorder Recorder
	Tracer   trace.Tracer
	Logger   *zap.Logger
}

// Driver runs the pipeline.
type Driver struct {
	deps Deps
	opts Options
}

// NewDriver validates deps and creates a driver.
func NewDriver(deps Deps, opts Options) (*Driver, error) {
	switch {
	case deps.Lister == nil:
		return nil, errors.Config("pipeline needs a lister")
	case deps.Fetcher == nil:
		return nil, errors.Config("pipeline needs a report fetcher")
	case deps.Rates == nil:
		return nil, errors.Config("pipeline needs a rate card builder")
	case deps.Writer == nil:
		return nil, errors.Config("pipeline needs a cost writer")
	case deps.Tracker == nil:
		return nil, errors.Config("pipeline needs a progress tracker")
	}
	if deps.Lookup == nil {
		deps.Lookup = types.ResourceLookup{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(TracerName)
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	deps.Logger = logging.ForRun(deps.Logger, opts.RunID)
	return &Driver{deps: deps, opts: opts}, nil
}

// Options returns the driver options.
func (d *Driver) Options() Options {
	return d.opts
}

// Run processes every new report in listing order. It stops at the first
// fatal error, which is also returned on the result.
func (d *Driver) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := d.deps.Tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", d.opts.RunID),
			attribute.Bool("run.dry_run", d.opts.DryRun),
		))
	defer span.End()

	result := &RunResult{
		RunID:     d.opts.RunID,
		StartedAt: time.Now(),
		DryRun:    d.opts.DryRun,
	}
	finish := func(err error) (*RunResult, error) {
		result.Err = err
		result.Duration = time.Since(result.StartedAt)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return result, err
	}

	marker, err := d.deps.Tracker.Load(ctx)
	if err != nil {
		return finish(err)
	}
	result.MarkerBefore = marker
	result.MarkerAfter = marker

	cursor := ""
	if marker != "" {
		cursor = d.opts.Prefix + marker
	}
	objects, err := d.deps.Lister.List(ctx, cursor)
	if err != nil {
		return finish(fmt.Errorf("listing reports after %q: %w", cursor, err))
	}
	result.Listed = len(objects)
	d.deps.Logger.Info("reports listed",
		zap.String("marker", marker),
		zap.String("cursor", cursor),
		zap.Int("objects", len(objects)),
	)

	filter := progress.Filter{Marker: marker, Cutoff: d.opts.Cutoff}
	for _, obj := range objects {
		rep := &ReportResult{
			ID:     progress.ReportID(obj.Name),
			Object: obj,
			State:  StateListed,
		}
		result.Reports = append(result.Reports, rep)

		if reason := filter.Decide(obj.Name, obj.CreatedAt); reason != progress.NotSkipped {
			rep.State = StateSkipped
			rep.SkipReason = reason
			d.deps.Logger.Debug("report skipped",
				zap.String("report", rep.ID),
				zap.String("reason", string(reason)),
				zap.Time("created_at", obj.CreatedAt),
			)
			d.observe(rep)
			continue
		}

		err := d.process(ctx, rep)
		d.observe(rep)
		if err != nil {
			return finish(fmt.Errorf("report %s failed in state %s: %w", rep.ID, rep.FailedState, err))
		}
		if rep.State == StateCommitted {
			result.MarkerAfter = rep.ID
		}
	}

	d.deps.Logger.Info("run complete",
		zap.Int("listed", result.Listed),
		zap.Int("processed", result.Processed()),
		zap.Int("skipped", result.SkippedCount()),
		zap.String("marker", result.MarkerAfter),
	)
	return finish(nil)
}

// process moves one report from Listed to Committed, or to Merged on a dry run.
func (d *Driver) process(ctx context.Context, rep *ReportResult) error {
	start := time.Now()
	defer func() { rep.Duration = time.Since(start) }()

	ctx, span := d.deps.Tracer.Start(ctx, "pipeline.report",
		trace.WithAttributes(attribute.String("report.id", rep.ID)))
	defer span.End()

	logger := logging.ForReport(d.deps.Logger, rep.ID)

	var report *types.UsageReport
	err := d.step(ctx, rep, StateDownloaded, func(ctx context.Context) error {
		var err error
		report, err = d.deps.Fetcher.Fetch(ctx, rep.Object)
		if err == nil {
			rep.Rows = len(report.Rows)
		}
		return err
	})
	if err != nil {
		return d.fail(span, logger, rep, err)
	}

	err = d.step(ctx, rep, StateRatesFetched, func(ctx context.Context) error {
		stats, err := d.deps.Rates.Extend(ctx, report)
		rep.Window = stats.Window
		rep.RatesReturned = stats.Returned
		rep.RatesAdded = stats.Added
		return err
	})
	if err != nil {
		return d.fail(span, logger, rep, err)
	}

	var merged *merge.Result
	err = d.step(ctx, rep, StateMerged, func(ctx context.Context) error {
		merged = merge.Merge(report, d.deps.Lookup, d.deps.Rates.Card())
		rep.UnmappedConversions = merged.UnmappedConversions
		rep.UnmappedRates = merged.UnmappedRates
		rep.UnknownQuantities = merged.UnknownQuantities
		rep.Totals = merged.Totals()
		rep.Unpriced = merged.Unpriced()
		rep.Warnings = merged.Warnings()
		return nil
	})
	if err != nil {
		return d.fail(span, logger, rep, err)
	}
	for _, w := range rep.Warnings {
		logger.Warn(w.Message, zap.String("type", string(w.Type)), zap.Any("resources", w.Context["resources"]))
	}

	if d.opts.DryRun {
		logger.Info("dry run, cost file not written", zap.Int("rows", rep.Rows))
		return nil
	}

	err = d.step(ctx, rep, StateWritten, func(ctx context.Context) error {
		path, err := d.deps.Writer.Write(merged)
		rep.OutputPath = path
		return err
	})
	if err != nil {
		return d.fail(span, logger, rep, err)
	}

	err = d.step(ctx, rep, StateCommitted, func(ctx context.Context) error {
		return d.deps.Tracker.Advance(ctx, rep.ID)
	})
	if err != nil {
		return d.fail(span, logger, rep, err)
	}

	logger.Info("report committed",
		zap.Int("rows", rep.Rows),
		zap.Int("unpriced", rep.Unpriced),
		zap.String("output", rep.OutputPath),
	)
	return nil
}

// step runs the work that moves rep to the next state inside a span. The
// state only advances when the work succeeds; on failure FailedState names
// the state being attempted.
func (d *Driver) step(ctx context.Context, rep *ReportResult, to State, work func(context.Context) error) error {
	attempt := to
	if to == StateDownloaded {
		attempt = StateDownloading
		rep.State = StateDownloading
	}

	ctx, span := d.deps.Tracer.Start(ctx, "pipeline."+attempt.String(),
		trace.WithAttributes(
			attribute.String("report.id", rep.ID),
			attribute.String("state.from", rep.State.String()),
		))
	defer span.End()

	err := ctx.Err()
	if err == nil {
		err = work(ctx)
	}
	if err != nil {
		rep.FailedState = attempt
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	rep.State = to
	return nil
}

func (d *Driver) fail(span trace.Span, logger *zap.Logger, rep *ReportResult, err error) error {
	rep.Err = err
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("report failed",
		zap.String("state", rep.FailedState.String()),
		zap.String("error_type", string(errors.TypeOf(err))),
		zap.Error(err),
	)
	return err
}

func (d *Driver) observe(rep *ReportResult) {
	if d.deps.Recorder != nil {
		d.deps.Recorder.ObserveReport(rep)
	}
}

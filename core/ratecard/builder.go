package ratecard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// Source returns the rate entries valid for a window.
type Source interface {
	Rates(ctx context.Context, window types.RateWindow) ([]types.RateCardEntry, error)
}

// Stats summarises one Extend call.
type Stats struct {
	Window   types.RateWindow
	Returned int
	Added    int
	Queried  bool
}

// Builder accumulates a rate card across the reports of one run.
type Builder struct {
	source Source
	card   *Card
	loc    *time.Location
	logger *zap.Logger
}

// NewBuilder creates a builder with an empty card. loc is the reporting time
// zone used to derive query windows.
func NewBuilder(source Source, loc *time.Location, logger *zap.Logger) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{
		source: source,
		card:   NewCard(),
		loc:    loc,
		logger: logging.OrDefault(logger),
	}
}

// Card returns the accumulated card.
func (b *Builder) Card() *Card {
	return b.card
}

// RatesForWindow queries the source for a window. Untyped failures are
// reported as rate query errors.
func (b *Builder) RatesForWindow(ctx context.Context, window types.RateWindow) ([]types.RateCardEntry, error) {
	entries, err := b.source.Rates(ctx, window)
	if err != nil {
		if errors.TypeOf(err) == errors.TypeRateQuery {
			return nil, err
		}
		return nil, errors.RateQuery("rate query failed", err)
	}
	return entries, nil
}

// Extend queries the rates for a report's window and inserts every resource
// not yet on the card. An error leaves the card as it was before the call.
func (b *Builder) Extend(ctx context.Context, report *types.UsageReport) (Stats, error) {
	if len(report.Rows) == 0 {
		b.logger.Info("report has no rows, skipping rate query", zap.String("report", report.ID))
		return Stats{}, nil
	}

	window, err := WindowFor(report, b.loc)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Window: window, Queried: true}

	entries, err := b.RatesForWindow(ctx, window)
	if err != nil {
		return stats, err
	}
	stats.Returned = len(entries)

	for _, e := range entries {
		if b.card.InsertIfAbsent(e) {
			stats.Added++
		}
	}

	b.logger.Info("rate card extended",
		zap.String("report", report.ID),
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End),
		zap.Int("rates", stats.Returned),
		zap.Int("added", stats.Added),
		zap.Int("card_size", b.card.Len()),
	)
	return stats, nil
}

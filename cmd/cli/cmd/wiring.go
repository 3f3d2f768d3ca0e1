package cmd

import (
	"context"

	"go.uber.org/zap"

	"usage-cost/adapters/metering"
	"usage-cost/adapters/notify"
	"usage-cost/adapters/objectstore"
	"usage-cost/adapters/storage"
	"usage-cost/core/ratecard"
	"usage-cost/core/report"
	"usage-cost/internal/config"
)

// components are the collaborators shared by several commands.
type components struct {
	objects *objectstore.Store
	reports *report.Store
	rates   *ratecard.Builder
}

func buildObjects(cfg *config.Config, logger *zap.Logger) (*objectstore.Store, *report.Store, error) {
	objects, err := objectstore.New(*cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}
	reports := report.NewStore(objects, cfg.Paths.DownloadDir, report.WithLogger(logger))
	return objects, reports, nil
}

func buildRates(cfg *config.Config, logger *zap.Logger) (*ratecard.Builder, error) {
	api, err := cfg.ResolvedRateAPI()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	client := metering.New(api, metering.WithLogger(logger))
	return ratecard.NewBuilder(client, loc, logger), nil
}

func buildComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	objects, reports, err := buildObjects(cfg, logger)
	if err != nil {
		return nil, err
	}
	rates, err := buildRates(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &components{objects: objects, reports: reports, rates: rates}, nil
}

func openTracker(ctx context.Context, cfg *config.Config) (storage.Tracker, error) {
	return storage.NewTracker(ctx, *cfg.Progress)
}

// buildNotifier returns nil when no webhook is configured.
func buildNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Notify.DiscordWebhookURL == "" {
		return nil, nil
	}
	var opts []notify.Option
	if cfg.Notify.Username != "" {
		opts = append(opts, notify.WithUsername(cfg.Notify.Username))
	}
	return notify.NewDiscordNotifier(cfg.Notify.DiscordWebhookURL, opts...)
}

// Package metrics exports run counters in Prometheus format.
//
// The pipeline is a batch job, so nothing is scraped while it runs. At the end
// of a run the registry is written to a node-exporter textfile, pushed to a
// Pushgateway, or both.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"

	"usage-cost/core/merge"
	"usage-cost/core/pipeline"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

const namespace = "usage_cost"

// Config selects where metrics are flushed. Both targets are optional.
type Config struct {
	Textfile       string `hcl:"textfile,optional" json:"textfile,omitempty"`
	PushgatewayURL string `hcl:"pushgateway_url,optional" json:"pushgateway_url,omitempty"`
	Job            string `hcl:"job,optional" json:"job"`
}

// DefaultConfig flushes nowhere.
func DefaultConfig() *Config {
	return &Config{Job: "usage-cost"}
}

// Enabled reports whether any flush target is set.
func (c *Config) Enabled() bool {
	return c != nil && (c.Textfile != "" || c.PushgatewayURL != "")
}

// Recorder counts pipeline outcomes on a private registry.
type Recorder struct {
	cfg      Config
	logger   *zap.Logger
	registry *prometheus.Registry

	reports     *prometheus.CounterVec
	rows        prometheus.Counter
	unmapped    *prometheus.CounterVec
	ratesAdded  prometheus.Counter
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess prometheus.Gauge
}

// NewRecorder registers the collectors.
func NewRecorder(cfg *Config, logger *zap.Logger) *Recorder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Recorder{
		cfg:      *cfg,
		logger:   logging.OrDefault(logger),
		registry: prometheus.NewRegistry(),

		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Reports seen by the pipeline, by final state.",
			},
			[]string{"state"},
		),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Usage rows merged.",
		}),
		unmapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unmapped_rows_total",
				Help:      "Rows that could not be priced, by missing input.",
			},
			[]string{"kind"},
		),
		ratesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rates_added_total",
			Help:      "Rate card entries added from rate queries.",
		}),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "report_duration_seconds",
				Help:      "Time to process a report.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"state"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs, by outcome.",
			},
			[]string{"outcome"},
		),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Completion time of the last successful run.",
		}),
	}
	r.registry.MustRegister(r.reports, r.rows, r.unmapped, r.ratesAdded, r.duration, r.runs, r.lastSuccess)
	return r
}

// ObserveReport implements pipeline.Recorder.
func (r *Recorder) ObserveReport(rep *pipeline.ReportResult) {
	state := rep.State.String()
	if rep.Err != nil {
		state = "failed"
	}
	r.reports.WithLabelValues(state).Inc()
	if rep.Skipped() {
		return
	}
	r.rows.Add(float64(rep.Rows))
	r.ratesAdded.Add(float64(rep.RatesAdded))
	r.unmapped.WithLabelValues("conversion").Add(float64(sum(rep.UnmappedConversions)))
	r.unmapped.WithLabelValues("rate").Add(float64(sum(rep.UnmappedRates)))
	r.unmapped.WithLabelValues("quantity").Add(float64(sum(rep.UnknownQuantities)))
	r.duration.WithLabelValues(state).Observe(rep.Duration.Seconds())
}

// ObserveRun records the outcome of a finished run.
func (r *Recorder) ObserveRun(result *pipeline.RunResult) {
	if !result.Success() {
		r.runs.WithLabelValues("failure").Inc()
		return
	}
	r.runs.WithLabelValues("success").Inc()
	r.lastSuccess.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
}

// Flush writes the registry to every configured target. Each target is
// attempted; the first error is returned.
func (r *Recorder) Flush(ctx context.Context) error {
	var first error
	if r.cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(r.cfg.Textfile, r.registry); err != nil {
			first = errors.Wrap(errors.TypeInternal, "failed to write metrics textfile", err).
				WithContext("path", r.cfg.Textfile)
			r.logger.Warn("metrics textfile not written", zap.Error(err))
		}
	}
	if r.cfg.PushgatewayURL != "" {
		job := r.cfg.Job
		if job == "" {
			job = "usage-cost"
		}
		err := push.New(r.cfg.PushgatewayURL, job).Gatherer(r.registry).PushContext(ctx)
		if err != nil {
			r.logger.Warn("metrics not pushed", zap.String("url", r.cfg.PushgatewayURL), zap.Error(err))
			if first == nil {
				first = errors.Wrap(errors.TypeInternal, "failed to push metrics", err).
					WithContext("url", r.cfg.PushgatewayURL)
			}
		}
	}
	return first
}

func sum(gs []merge.Group) int {
	n := 0
	for _, g := range gs {
		n += g.Rows
	}
	return n
}

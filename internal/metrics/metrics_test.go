package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/core/merge"
	"usage-cost/core/pipeline"
	"usage-cost/core/progress"
	"usage-cost/internal/errors"
)

func committed(rows int) *pipeline.ReportResult {
	return &pipeline.ReportResult{
		ID:                  "0001.csv.gz",
		State:               pipeline.StateCommitted,
		Rows:                rows,
		RatesAdded:          3,
		UnmappedConversions: []merge.Group{{Resource: "B", Rows: 2}},
		UnmappedRates:       []merge.Group{{Resource: "B", Rows: 1}, {Resource: "C", Rows: 4}},
		UnknownQuantities:   []merge.Group{{Resource: "D", Rows: 1}},
		Duration:            250 * time.Millisecond,
	}
}

func TestObserveReport(t *testing.T) {
	r := NewRecorder(nil, nil)

	r.ObserveReport(committed(10))
	r.ObserveReport(committed(5))
	r.ObserveReport(&pipeline.ReportResult{State: pipeline.StateSkipped, SkipReason: progress.SkipAlreadyProcessed, Rows: 99})
	r.ObserveReport(&pipeline.ReportResult{State: pipeline.StateMerged, FailedState: pipeline.StateWritten, Err: errors.Write("disk full", nil)})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.reports.WithLabelValues("committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reports.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reports.WithLabelValues("failed")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.rows), "skipped reports add no rows")
	assert.Equal(t, 6.0, testutil.ToFloat64(r.ratesAdded))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.unmapped.WithLabelValues("conversion")))
	assert.Equal(t, 10.0, testutil.ToFloat64(r.unmapped.WithLabelValues("rate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.unmapped.WithLabelValues("quantity")))
}

func TestObserveRun(t *testing.T) {
	r := NewRecorder(nil, nil)
	start := time.Unix(1700000000, 0)

	r.ObserveRun(&pipeline.RunResult{StartedAt: start, Duration: 10 * time.Second})
	r.ObserveRun(&pipeline.RunResult{StartedAt: start, Err: errors.RateQuery("down", nil)})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("failure")))
	assert.Equal(t, 1700000010.0, testutil.ToFloat64(r.lastSuccess))
}

func TestFlushTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage_cost.prom")
	r := NewRecorder(&Config{Textfile: path}, nil)
	r.ObserveReport(committed(7))

	require.NoError(t, r.Flush(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "usage_cost_rows_total 7")
	assert.Contains(t, string(data), `usage_cost_reports_total{state="committed"} 1`)
}

func TestFlushPushgateway(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		body, _ := io.ReadAll(req.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder(&Config{PushgatewayURL: srv.URL, Job: "usage-cost-test"}, nil)
	r.ObserveReport(committed(1))

	require.NoError(t, r.Flush(context.Background()))
	assert.Equal(t, "/metrics/job/usage-cost-test", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestFlushErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	blocked := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))

	r := NewRecorder(&Config{Textfile: filepath.Join(blocked, "m.prom"), PushgatewayURL: srv.URL}, nil)
	err := r.Flush(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeInternal))
	assert.True(t, strings.Contains(err.Error(), "textfile"), "first error is reported: %v", err)
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, DefaultConfig().Enabled())
	assert.True(t, (&Config{Textfile: "x"}).Enabled())
	var nilCfg *Config
	assert.False(t, nilCfg.Enabled())
}

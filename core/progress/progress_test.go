package progress

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/internal/errors"
)

func TestFileTrackerLoadMissingFile(t *testing.T) {
	tracker := NewFileTracker(filepath.Join(t.TempDir(), "progress"))

	marker, err := tracker.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, marker)
}

func TestFileTrackerAdvanceReplacesMarker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tracker := NewFileTracker(filepath.Join(dir, "progress"))

	require.NoError(t, tracker.Advance(ctx, "0001.csv.gz"))
	require.NoError(t, tracker.Advance(ctx, "0002.csv.gz"))

	marker, err := tracker.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0002.csv.gz", marker)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary marker files must not be left behind")
}

func TestFileTrackerTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress")
	require.NoError(t, os.WriteFile(path, []byte("0007.csv.gz\n"), 0644))

	marker, err := NewFileTracker(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0007.csv.gz", marker)
}

func TestFileTrackerAdvanceFailureKeepsOldMarker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "progress")
	require.NoError(t, os.WriteFile(path, []byte("0001.csv.gz"), 0644))

	missing := NewFileTracker(filepath.Join(dir, "missing", "progress"))
	err := missing.Advance(ctx, "0002.csv.gz")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeProgress))

	marker, err := NewFileTracker(path).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0001.csv.gz", marker)
}

func TestFilterDecide(t *testing.T) {
	cutoff := time.Date(2019, 2, 2, 0, 0, 0, 0, time.UTC)
	filter := Filter{Marker: "0005.csv.gz", Cutoff: cutoff}

	tests := []struct {
		name    string
		object  string
		created time.Time
		want    SkipReason
	}{
		{"marker itself", "reports/usage-csv/0005.csv.gz", cutoff.AddDate(1, 0, 0), SkipAlreadyProcessed},
		{"older than cutoff", "reports/usage-csv/0006.csv.gz", cutoff.AddDate(0, 0, -1), SkipTooOld},
		{"exactly at cutoff", "reports/usage-csv/0006.csv.gz", cutoff, SkipTooOld},
		{"new work", "reports/usage-csv/0006.csv.gz", cutoff.Add(time.Second), NotSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filter.Decide(tt.object, tt.created))
		})
	}
}

func TestFilterWithoutMarkerOrCutoff(t *testing.T) {
	assert.Equal(t, NotSkipped, Filter{}.Decide("reports/usage-csv/0001.csv.gz", time.Time{}))
}

func TestReportID(t *testing.T) {
	assert.Equal(t, "0001.csv.gz", ReportID("reports/usage-csv/0001.csv.gz"))
	assert.Equal(t, "0001.csv.gz", ReportID("0001.csv.gz"))
}

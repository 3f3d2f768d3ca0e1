package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"usage-cost/core/merge"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

func TestCostFileName(t *testing.T) {
	tests := map[string]string{
		"0001.csv.gz": "0001_cost.csv",
		"0001.csv":    "0001_cost.csv",
		"report":      "report_cost.csv",
		"a.b.csv.gz":  "a.b_cost.csv",
	}
	for in, want := range tests {
		assert.Equal(t, want, CostFileName(in), in)
	}
}

func sampleResult() *merge.Result {
	return &merge.Result{
		ReportID: "0001.csv.gz",
		Header:   []string{types.ColumnResource, types.ColumnQuantity, "tags/owner"},
		Rows: []types.CostRow{
			{
				UsageRow:   types.UsageRow{Resource: "A", Quantity: decimal.NewNullDecimal(decimal.NewFromInt(10)), Fields: []string{"A", "10", "ops, infra"}},
				Conversion: decimal.NewNullDecimal(decimal.NewFromInt(2)),
				UnitPrice:  decimal.NewNullDecimal(decimal.RequireFromString("1.5")),
				Currency:   "USD",
				PartNumber: "B88",
				LineCost:   decimal.NewNullDecimal(decimal.NewFromInt(30)),
				FileID:     "0001.csv.gz",
			},
			{
				UsageRow: types.UsageRow{Resource: "B", Quantity: decimal.NewNullDecimal(decimal.Zero), Fields: []string{"B", "0", ""}},
				FileID:   "0001.csv.gz",
			},
		},
	}
}

func TestWriterWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloaded_reports_cost")
	w := NewWriter(dir, nil)

	path, err := w.Write(sampleResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "0001_cost.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{
		types.ColumnResource, types.ColumnQuantity, "tags/owner",
		"Conversion", "UnitPrice", "Currency", "PartNumber", "LineCost", "FileId",
	}, records[0])
	assert.Equal(t, []string{"A", "10", "ops, infra", "2", "1.5", "USD", "B88", "30", "0001.csv.gz"}, records[1])
	assert.Equal(t, []string{"B", "0", "", "", "", "", "", "", "0001.csv.gz"}, records[2])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestWriterWriteFailure(t *testing.T) {
	// A regular file where the directory should be makes every write fail.
	blocker := filepath.Join(t.TempDir(), "cost")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewWriter(blocker, nil).Write(sampleResult())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeWrite))
}

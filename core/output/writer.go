// Package output persists cost-augmented reports.
package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"usage-cost/core/merge"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

// CostSuffix replaces the .csv extension of the source report.
const CostSuffix = "_cost.csv"

// CostFileName derives the artifact name from a report id:
// "0001.csv.gz" becomes "0001_cost.csv".
func CostFileName(reportID string) string {
	name := strings.TrimSuffix(reportID, ".gz")
	name = strings.TrimSuffix(name, ".csv")
	return name + CostSuffix
}

// Writer writes cost files into a directory.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string, logger *zap.Logger) *Writer {
	return &Writer{dir: dir, logger: logging.OrDefault(logger)}
}

// Path returns where the cost file for a report is written.
func (w *Writer) Path(reportID string) string {
	return filepath.Join(w.dir, CostFileName(reportID))
}

// Write persists the merged rows with the cost columns appended. The file
// appears under its final name only once it is complete.
func (w *Writer) Write(result *merge.Result) (string, error) {
	dest := w.Path(result.ReportID)

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", errors.Write("failed to create cost directory", err).WithContext("dir", w.dir)
	}

	tmp, err := os.CreateTemp(w.dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return "", errors.Write("failed to create cost file", err).WithContext("path", dest)
	}
	tmpName := tmp.Name()
	fail := func(msg string, cause error) (string, error) {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Write(msg, cause).WithContext("path", dest)
	}

	cw := csv.NewWriter(tmp)
	header := make([]string, 0, len(result.Header)+len(types.CostColumns))
	header = append(header, result.Header...)
	header = append(header, types.CostColumns...)
	if err := cw.Write(header); err != nil {
		return fail("failed to write cost header", err)
	}
	for _, row := range result.Rows {
		if err := cw.Write(Record(row)); err != nil {
			return fail("failed to write cost row", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fail("failed to flush cost file", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("failed to sync cost file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Write("failed to close cost file", err).WithContext("path", dest)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", errors.Write("failed to move cost file into place", err).WithContext("path", dest)
	}

	w.logger.Info("cost file written",
		zap.String("report", result.ReportID),
		zap.String("path", dest),
		zap.Int("rows", len(result.Rows)),
	)
	return dest, nil
}

// Record renders a cost row: the source fields followed by the cost columns.
// Unknown values are empty cells.
func Record(row types.CostRow) []string {
	rec := make([]string, 0, len(row.Fields)+len(types.CostColumns))
	rec = append(rec, row.Fields...)
	return append(rec,
		nullString(row.Conversion),
		nullString(row.UnitPrice),
		row.Currency.String(),
		row.PartNumber,
		nullString(row.LineCost),
		row.FileID,
	)
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

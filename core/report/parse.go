package report

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

var intervalLayouts = []string{
	types.IntervalLayout,
	time.RFC3339,
}

// Parse reads a usage CSV. The header must contain every required column;
// all other columns are kept as passthrough fields.
func Parse(r io.Reader) (*types.UsageReport, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, errors.Parsing("usage report is empty", nil)
		}
		return nil, errors.Parsing("failed to read usage report header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	var missing []string
	for _, name := range types.RequiredColumns {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Parsing(fmt.Sprintf("usage report is missing columns %s", strings.Join(missing, ", ")), nil)
	}

	report := &types.UsageReport{Header: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Parsing("malformed usage report row", err)
		}
		line, _ := cr.FieldPos(0)

		row, err := parseRow(record, index)
		if err != nil {
			return nil, errors.Parsing("invalid usage report row", err).WithContext("line", line)
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

func parseRow(record []string, index map[string]int) (types.UsageRow, error) {
	row := types.UsageRow{
		Resource: strings.TrimSpace(record[index[types.ColumnResource]]),
		Fields:   record,
	}

	// A blank or non-numeric quantity leaves the row unpriceable but does
	// not reject the report.
	if q, err := decimal.NewFromString(strings.TrimSpace(record[index[types.ColumnQuantity]])); err == nil {
		row.Quantity = decimal.NewNullDecimal(q)
	}

	var err error
	if row.IntervalStart, err = parseInterval(record[index[types.ColumnIntervalStart]]); err != nil {
		return row, fmt.Errorf("%s: %w", types.ColumnIntervalStart, err)
	}
	if row.IntervalEnd, err = parseInterval(record[index[types.ColumnIntervalEnd]]); err != nil {
		return row, fmt.Errorf("%s: %w", types.ColumnIntervalEnd, err)
	}
	return row, nil
}

func parseInterval(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range intervalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Package types - Usage report types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Columns of the usage CSV that the pipeline interprets. Every other column
// is carried through untouched.
const (
	ColumnResource      = "product/resource"
	ColumnQuantity      = "usage/billedQuantity"
	ColumnIntervalStart = "lineItem/intervalUsageStart"
	ColumnIntervalEnd   = "lineItem/intervalUsageEnd"
)

// RequiredColumns lists the columns a usage report must carry.
var RequiredColumns = []string{
	ColumnResource,
	ColumnQuantity,
	ColumnIntervalStart,
	ColumnIntervalEnd,
}

// IntervalLayout is the timestamp layout used by the interval columns.
const IntervalLayout = "2006-01-02T15:04Z"

// UsageRow is one metered line of a usage report.
type UsageRow struct {
	// Resource is the resource identifier (product/resource)
	Resource string

	// Quantity is the billed quantity in the report's native unit; invalid
	// when the cell is blank or not a number
	Quantity decimal.NullDecimal

	// IntervalStart is the start of the usage interval
	IntervalStart time.Time

	// IntervalEnd is the end of the usage interval
	IntervalEnd time.Time

	// Fields holds every column value in header order
	Fields []string
}

// UsageReport is a parsed usage export.
type UsageReport struct {
	// ID is the report filename (object name without its prefix)
	ID string

	// ObjectName is the full object name in the bucket
	ObjectName string

	// CreatedAt is the object's creation time
	CreatedAt time.Time

	// Header is the ordered list of column names
	Header []string

	// Rows are the usage rows in file order
	Rows []UsageRow
}

// MaxIntervalEnd returns the latest interval end across all rows.
func (r *UsageReport) MaxIntervalEnd() (time.Time, bool) {
	var max time.Time
	for _, row := range r.Rows {
		if row.IntervalEnd.After(max) {
			max = row.IntervalEnd
		}
	}
	return max, !max.IsZero()
}

// ResourceLookup maps a resource identifier to its conversion factor.
type ResourceLookup map[string]decimal.Decimal

// Conversion returns the conversion factor for a resource.
func (l ResourceLookup) Conversion(resource string) (decimal.Decimal, bool) {
	c, ok := l[resource]
	return c, ok
}

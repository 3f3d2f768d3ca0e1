// Package types - Cost augmented report types
package types

import "github.com/shopspring/decimal"

// Columns appended to every cost report, in output order.
const (
	ColumnConversion = "Conversion"
	ColumnUnitPrice  = "UnitPrice"
	ColumnCurrency   = "Currency"
	ColumnPartNumber = "PartNumber"
	ColumnLineCost   = "LineCost"
	ColumnFileID     = "FileId"
)

// CostColumns lists the appended columns in output order.
var CostColumns = []string{
	ColumnConversion,
	ColumnUnitPrice,
	ColumnCurrency,
	ColumnPartNumber,
	ColumnLineCost,
	ColumnFileID,
}

// CostRow is a usage row extended with pricing. Invalid NullDecimal values
// mean "unknown", never zero.
type CostRow struct {
	UsageRow

	Conversion decimal.NullDecimal
	UnitPrice  decimal.NullDecimal
	Currency   Currency
	PartNumber string
	LineCost   decimal.NullDecimal
	FileID     string
}

// Priced reports whether the row has a known line cost.
func (r *CostRow) Priced() bool {
	return r.LineCost.Valid
}

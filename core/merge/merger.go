// Package merge joins usage rows to conversion factors and unit prices.
//
// The join is a pure function of the report, the lookup table and the rate
// card. Every usage row produces exactly one cost row; rows that cannot be
// priced are annotated, never dropped and never priced at zero.
package merge

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

// RateLookup resolves the rate of a resource.
type RateLookup interface {
	Get(resource string) (types.RateCardEntry, bool)
}

// Group counts the rows of one resource identifier.
type Group struct {
	Resource string `json:"resource"`
	Rows     int    `json:"rows"`
}

// Result is the outcome of merging one report.
type Result struct {
	// ReportID is the source report filename
	ReportID string

	// Header is the source header; cost columns are appended on output
	Header []string

	// Rows has one entry per usage row, in report order
	Rows []types.CostRow

	// UnmappedConversions groups rows whose resource has no lookup entry
	UnmappedConversions []Group

	// UnmappedRates groups rows with a non-zero quantity and no rate
	UnmappedRates []Group

	// UnknownQuantities groups rows whose billed quantity is blank or not a
	// number
	UnknownQuantities []Group
}

// Merge prices every row of report.
func Merge(report *types.UsageReport, lookup types.ResourceLookup, rates RateLookup) *Result {
	result := &Result{
		ReportID: report.ID,
		Header:   report.Header,
		Rows:     make([]types.CostRow, 0, len(report.Rows)),
	}

	missingConv := make(map[string]int)
	missingRate := make(map[string]int)
	missingQty := make(map[string]int)

	for _, usage := range report.Rows {
		row := types.CostRow{UsageRow: usage, FileID: report.ID}
		if !usage.Quantity.Valid {
			missingQty[usage.Resource]++
		}

		if conv, ok := lookup.Conversion(usage.Resource); ok {
			row.Conversion = decimal.NewNullDecimal(conv)
		} else {
			missingConv[usage.Resource]++
		}

		if rate, ok := rates.Get(usage.Resource); ok {
			row.UnitPrice = decimal.NewNullDecimal(rate.UnitPrice)
			row.Currency = rate.Currency
			row.PartNumber = rate.PartNumber
		}
		if lacksRate(row) {
			missingRate[usage.Resource]++
		}

		row.LineCost = lineCost(row)
		result.Rows = append(result.Rows, row)
	}

	result.UnmappedConversions = groups(missingConv)
	result.UnmappedRates = groups(missingRate)
	result.UnknownQuantities = groups(missingQty)
	return result
}

// lacksRate is the unmapped-rate predicate, evaluated per row as
// (no unit price) AND (billed quantity != 0). A zero-quantity row without a
// rate costs nothing to leave unpriced and is not reported. An unknown
// quantity is not zero.
func lacksRate(row types.CostRow) bool {
	zero := row.Quantity.Valid && row.Quantity.Decimal.IsZero()
	return !row.UnitPrice.Valid && !zero
}

// lineCost is quantity × conversion × unit price, or unknown when any
// factor is missing.
func lineCost(row types.CostRow) decimal.NullDecimal {
	if !row.Quantity.Valid || !row.Conversion.Valid || !row.UnitPrice.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(row.Quantity.Decimal.Mul(row.Conversion.Decimal).Mul(row.UnitPrice.Decimal))
}

func groups(counts map[string]int) []Group {
	out := make([]Group, 0, len(counts))
	for resource, n := range counts {
		out = append(out, Group{Resource: resource, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource < out[j].Resource
	})
	return out
}

// Warnings returns one data quality warning per non-empty group set.
func (r *Result) Warnings() []*errors.Error {
	var out []*errors.Error
	if n := countRows(r.UnmappedConversions); n > 0 {
		out = append(out, errors.DataQuality(fmt.Sprintf("%d rows across %d resources are missing conversion values", n, len(r.UnmappedConversions))).
			WithContext("report", r.ReportID).
			WithContext("resources", r.UnmappedConversions))
	}
	if n := countRows(r.UnmappedRates); n > 0 {
		out = append(out, errors.DataQuality(fmt.Sprintf("%d rows across %d resources are missing rates", n, len(r.UnmappedRates))).
			WithContext("report", r.ReportID).
			WithContext("resources", r.UnmappedRates))
	}
	if n := countRows(r.UnknownQuantities); n > 0 {
		out = append(out, errors.DataQuality(fmt.Sprintf("%d rows across %d resources have no billed quantity", n, len(r.UnknownQuantities))).
			WithContext("report", r.ReportID).
			WithContext("resources", r.UnknownQuantities))
	}
	return out
}

// Totals sums the known line costs per currency.
func (r *Result) Totals() map[types.Currency]decimal.Decimal {
	totals := make(map[types.Currency]decimal.Decimal)
	for _, row := range r.Rows {
		if !row.LineCost.Valid {
			continue
		}
		totals[row.Currency] = totals[row.Currency].Add(row.LineCost.Decimal)
	}
	return totals
}

// Unpriced counts rows without a known line cost.
func (r *Result) Unpriced() int {
	n := 0
	for _, row := range r.Rows {
		if !row.LineCost.Valid {
			n++
		}
	}
	return n
}

func countRows(gs []Group) int {
	n := 0
	for _, g := range gs {
		n += g.Rows
	}
	return n
}

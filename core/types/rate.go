// Package types - Rate card types
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code
type Currency string

// String returns the string representation
func (c Currency) String() string {
	return string(c)
}

// RateCardEntry is the unit price of one resource.
type RateCardEntry struct {
	// Resource is the resource identifier
	Resource string `json:"resource"`

	// UnitPrice is the price per billing unit
	UnitPrice decimal.Decimal `json:"unit_price"`

	// Currency is the price currency
	Currency Currency `json:"currency"`

	// PartNumber is the product part number (gsiProductId)
	PartNumber string `json:"part_number"`
}

// RateWindow is the time range a rate card query covers.
type RateWindow struct {
	Start time.Time
	End   time.Time
}

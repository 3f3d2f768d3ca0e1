package ratecard

import (
	"time"

	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

// DefaultTimeZone is the reporting time zone of the metering API.
const DefaultTimeZone = "Europe/London"

// WindowForDate returns the query window ending on date: the whole of the
// previous day through the last second of date. The calendar day is the one
// date already carries (the UTC day for interval timestamps); only the
// wall-clock bounds are placed in loc.
func WindowForDate(date time.Time, loc *time.Location) types.RateWindow {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	end := time.Date(y, m, d, 23, 59, 59, 0, loc)
	start := time.Date(y, m, d-1, 0, 0, 0, 0, loc)
	return types.RateWindow{Start: start, End: end}
}

// WindowFor derives the rate query window for a report.
//
// Both bounds come from the calendar date of the report's latest interval
// end, not from its earliest interval start, so a report spanning more than
// two days is priced with rates from its last two days only.
func WindowFor(report *types.UsageReport, loc *time.Location) (types.RateWindow, error) {
	end, ok := report.MaxIntervalEnd()
	if !ok {
		return types.RateWindow{}, errors.Parsing("report has no interval end to derive a rate window from", nil).
			WithContext("report", report.ID)
	}
	return WindowForDate(end, loc), nil
}

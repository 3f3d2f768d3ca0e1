// Package pipeline drives usage reports from listing to a committed cost file.
//
// Reports are processed one at a time, in listing order. Each moves through
//
//	Listed -> Skipped
//	Listed -> Downloading -> Downloaded -> RatesFetched -> Merged -> Written -> Committed
//
// A failure in any state after Listed halts the run with the progress marker
// at its last committed value.
package pipeline

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"usage-cost/core/merge"
	"usage-cost/core/progress"
	"usage-cost/core/types"
	"usage-cost/internal/errors"
)

// State is the position of a report in the pipeline
type State string

const (
	StateListed       State = "listed"
	StateSkipped      State = "skipped"
	StateDownloading  State = "downloading"
	StateDownloaded   State = "downloaded"
	StateRatesFetched State = "rates_fetched"
	StateMerged       State = "merged"
	StateWritten      State = "written"
	StateCommitted    State = "committed"
)

// String returns the state name
func (s State) String() string {
	return string(s)
}

// ReportResult records what happened to one listed report.
type ReportResult struct {
	// ID is the report filename
	ID string `json:"id"`

	// Object is the listed object
	Object types.ObjectInfo `json:"object"`

	// State is the last state reached
	State State `json:"state"`

	// FailedState is the state whose work failed, if any
	FailedState State `json:"failed_state,omitempty"`

	// SkipReason is set when State is StateSkipped
	SkipReason progress.SkipReason `json:"skip_reason,omitempty"`

	// Rows is the number of usage rows merged
	Rows int `json:"rows"`

	// Window is the rate query window
	Window types.RateWindow `json:"window"`

	// RatesReturned and RatesAdded describe the rate query
	RatesReturned int `json:"rates_returned"`
	RatesAdded    int `json:"rates_added"`

	UnmappedConversions []merge.Group `json:"unmapped_conversions,omitempty"`
	UnmappedRates       []merge.Group `json:"unmapped_rates,omitempty"`
	UnknownQuantities   []merge.Group `json:"unknown_quantities,omitempty"`

	// Totals is the known line cost per currency
	Totals map[types.Currency]decimal.Decimal `json:"totals,omitempty"`

	// Unpriced is the number of rows with an unknown line cost
	Unpriced int `json:"unpriced"`

	// OutputPath is the written cost file
	OutputPath string `json:"output_path,omitempty"`

	// Warnings are the data quality findings of the merge
	Warnings []*errors.Error `json:"warnings,omitempty"`

	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Skipped reports whether the report was filtered out.
func (r *ReportResult) Skipped() bool {
	return r.State == StateSkipped
}

// RunResult summarises one pipeline run.
type RunResult struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	DryRun    bool      `json:"dry_run"`

	// MarkerBefore and MarkerAfter are the progress marker around the run
	MarkerBefore string `json:"marker_before"`
	MarkerAfter  string `json:"marker_after"`

	// Listed is the number of objects returned by the lister
	Listed int `json:"listed"`

	Reports []*ReportResult `json:"reports"`

	// Err is the error that halted the run
	Err error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Success reports whether the run finished without a fatal error.
func (r *RunResult) Success() bool {
	return r.Err == nil
}

// Processed counts reports that reached their final state.
func (r *RunResult) Processed() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.State == StateCommitted || (r.DryRun && rep.State == StateMerged && rep.Err == nil) {
			n++
		}
	}
	return n
}

// SkippedCount counts filtered reports.
func (r *RunResult) SkippedCount() int {
	n := 0
	for _, rep := range r.Reports {
		if rep.Skipped() {
			n++
		}
	}
	return n
}

// Rows counts the usage rows merged across the run.
func (r *RunResult) Rows() int {
	n := 0
	for _, rep := range r.Reports {
		n += rep.Rows
	}
	return n
}

// Failed returns the report that halted the run, or nil.
func (r *RunResult) Failed() *ReportResult {
	for _, rep := range r.Reports {
		if rep.Err != nil {
			return rep
		}
	}
	return nil
}

// UnmappedConversions merges the per-report groups of the run.
func (r *RunResult) UnmappedConversions() []merge.Group {
	return r.collect(func(rep *ReportResult) []merge.Group { return rep.UnmappedConversions })
}

// UnmappedRates merges the per-report groups of the run.
func (r *RunResult) UnmappedRates() []merge.Group {
	return r.collect(func(rep *ReportResult) []merge.Group { return rep.UnmappedRates })
}

// UnknownQuantities merges the per-report groups of the run.
func (r *RunResult) UnknownQuantities() []merge.Group {
	return r.collect(func(rep *ReportResult) []merge.Group { return rep.UnknownQuantities })
}

func (r *RunResult) collect(pick func(*ReportResult) []merge.Group) []merge.Group {
	counts := make(map[string]int)
	for _, rep := range r.Reports {
		for _, g := range pick(rep) {
			counts[g.Resource] += g.Rows
		}
	}
	out := make([]merge.Group, 0, len(counts))
	for res, n := range counts {
		out = append(out, merge.Group{Resource: res, Rows: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Resource < out[j].Resource
	})
	return out
}

// Totals sums the known line costs of the run per currency.
func (r *RunResult) Totals() map[types.Currency]decimal.Decimal {
	totals := make(map[types.Currency]decimal.Decimal)
	for _, rep := range r.Reports {
		for cur, amount := range rep.Totals {
			totals[cur] = totals[cur].Add(amount)
		}
	}
	return totals
}

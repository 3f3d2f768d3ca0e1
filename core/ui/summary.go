package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"usage-cost/core/merge"
	"usage-cost/core/pipeline"
	"usage-cost/core/types"
)

// RunSummary prints the outcome of a pipeline run: one line per report, the
// run totals and the resources that could not be priced.
func (w *Writer) RunSummary(result *pipeline.RunResult) {
	title := "Usage Cost Run"
	if result.DryRun {
		title += " (dry run)"
	}
	w.Header(title)

	w.Info("run %s, marker %s -> %s", result.RunID, orDash(result.MarkerBefore), orDash(result.MarkerAfter))

	if len(result.Reports) > 0 {
		t := w.NewTable("REPORT", "STATE", "ROWS", "UNPRICED", "DURATION").AlignRight(2, 3)
		for _, rep := range result.Reports {
			state := rep.State.String()
			switch {
			case rep.Err != nil:
				state = "failed in " + rep.FailedState.String()
			case rep.Skipped():
				state = "skipped (" + string(rep.SkipReason) + ")"
			}
			rows, unpriced, took := "-", "-", "-"
			if !rep.Skipped() {
				rows = fmt.Sprintf("%d", rep.Rows)
				unpriced = fmt.Sprintf("%d", rep.Unpriced)
				took = formatDuration(rep.Duration)
			}
			t.AddRow(rep.ID, state, rows, unpriced, took)
		}
		t.Render()
		w.Println("")
	}

	w.Println("  Listed:    %d", result.Listed)
	w.Println("  Processed: %d", result.Processed())
	w.Println("  Skipped:   %d", result.SkippedCount())
	w.Println("  Rows:      %d", result.Rows())
	for _, line := range FormatTotals(result.Totals()) {
		w.Println("  Cost:      %s", line)
	}
	w.Println("")

	w.unmapped("Missing conversion values", result.UnmappedConversions())
	w.unmapped("Missing rates", result.UnmappedRates())
	w.unmapped("Missing quantities", result.UnknownQuantities())

	if failed := result.Failed(); failed != nil {
		w.Error("%s failed in state %s: %v", failed.ID, failed.FailedState, failed.Err)
		return
	}
	if result.Err != nil {
		w.Error("run failed: %v", result.Err)
		return
	}
	w.Success("run complete in %s", formatDuration(result.Duration))
}

func (w *Writer) unmapped(title string, groups []merge.Group) {
	if len(groups) == 0 {
		return
	}
	w.Warning("%s (%d resources)", title, len(groups))
	t := w.NewTable("RESOURCE", "ROWS").AlignRight(1)
	for _, g := range groups {
		t.AddRow(g.Resource, fmt.Sprintf("%d", g.Rows))
	}
	t.Render()
	w.Println("")
}

// RateTable prints rate card entries sorted by resource.
func (w *Writer) RateTable(window types.RateWindow, entries []types.RateCardEntry) {
	w.Header(fmt.Sprintf("Rates %s to %s", window.Start.Format("2006-01-02"), window.End.Format("2006-01-02")))
	if len(entries) == 0 {
		w.Warning("no rates returned")
		return
	}

	sorted := make([]types.RateCardEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Resource < sorted[j].Resource
	})

	t := w.NewTable("RESOURCE", "UNIT PRICE", "CURRENCY", "PART NUMBER").AlignRight(1)
	for _, e := range sorted {
		t.AddRow(e.Resource, e.UnitPrice.String(), string(e.Currency), e.PartNumber)
	}
	t.Render()
}

// ObjectTable prints listed objects with their size in KiB.
func (w *Writer) ObjectTable(objects []types.ObjectInfo) {
	t := w.NewTable("NAME", "SIZE (KiB)", "CREATED").AlignRight(1)
	for _, o := range objects {
		t.AddRow(o.Name, fmt.Sprintf("%.1f", float64(o.Size)/1024), o.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	t.Render()
}

// FormatTotals renders per currency totals in currency order.
func FormatTotals(totals map[types.Currency]decimal.Decimal) []string {
	currencies := make([]string, 0, len(totals))
	for cur := range totals {
		currencies = append(currencies, string(cur))
	}
	sort.Strings(currencies)

	out := make([]string, 0, len(totals))
	for _, cur := range currencies {
		label := strings.TrimSpace(cur)
		if label == "" {
			label = "(no currency)"
		}
		out = append(out, totals[types.Currency(cur)].StringFixed(2)+" "+label)
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

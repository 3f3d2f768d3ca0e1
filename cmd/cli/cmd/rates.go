package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"usage-cost/core/ratecard"
	"usage-cost/internal/config"
	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

var ratesDate string

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show the rate card for a day",
	Long: `Query the metering API for the rates of the window ending on --date and
print them. The window is built the same way as for a report whose last
usage interval ends on that date.`,
	RunE: runRates,
}

func init() {
	rootCmd.AddCommand(ratesCmd)

	ratesCmd.Flags().StringVar(&ratesDate, "date", "", "window end date (YYYY-MM-DD) [REQUIRED]")
	ratesCmd.MarkFlagRequired("date")
}

func runRates(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg := appConfig
	logger := logging.Logger

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	date, err := time.ParseInLocation(config.DateLayout, ratesDate, loc)
	if err != nil {
		return errors.Config(fmt.Sprintf("invalid --date %q, want YYYY-MM-DD", ratesDate))
	}

	builder, err := buildRates(cfg, logger)
	if err != nil {
		return err
	}
	window := ratecard.WindowForDate(date, loc)
	entries, err := builder.RatesForWindow(ctx, window)
	if err != nil {
		return err
	}

	w := newUI(cmd)
	if jsonOutput() {
		return w.JSON(entries)
	}
	w.RateTable(window, entries)
	return nil
}

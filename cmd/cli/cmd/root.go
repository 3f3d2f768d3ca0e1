// Package cmd provides the CLI commands for usage-cost.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"usage-cost/core/ui"
	"usage-cost/internal/config"
	"usage-cost/internal/logging"
)

// Version is set at build time with -ldflags "-X usage-cost/cmd/cli/cmd.Version=..."
var Version = "0.1.0"

var (
	cfgFile      string
	verbose      bool
	noColor      bool
	outputFormat string
	timeout      time.Duration

	// appConfig is loaded once before any command runs
	appConfig *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "usage-cost",
	Short: "Augment OCI usage reports with costs",
	Long: `usage-cost downloads OCI usage reports, prices every row against the
metering API rate card and writes a cost augmented copy of each report.

Reports are processed oldest first and the last committed report is
remembered, so an interrupted run resumes where it stopped.

Examples:
  usage-cost run
  usage-cost run --dry-run --format json
  usage-cost rates --date 2019-03-01
  usage-cost progress show`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the CLI
func Execute() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "usage-cost.hcl", "config file (.hcl or .json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "text", "output format (text, json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "abort the command after this long (0 for no limit)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := logging.Initialize(*cfg.Logging); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	if outputFormat != "text" && outputFormat != "json" {
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
	appConfig = cfg
	return nil
}

// commandContext is cancelled on SIGINT or SIGTERM and after --timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newUI(cmd *cobra.Command) *ui.Writer {
	w := ui.NewWriter(cmd.OutOrStdout(), noColor)
	if verbose {
		w.SetVerbosity(2)
	}
	return w
}

func jsonOutput() bool {
	return outputFormat == "json"
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// No configuration is needed to print the version.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "usage-cost version %s\n", Version)
	},
}

package cmd

import (
	"github.com/spf13/cobra"

	"usage-cost/core/progress"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect or repair the progress marker",
}

var progressShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last committed report",
	Args:  cobra.NoArgs,
	RunE:  runProgressShow,
}

var progressSetCmd = &cobra.Command{
	Use:   "set <report>",
	Short: "Set the last committed report",
	Long: `Overwrite the progress marker. The next run processes only reports named
after <report>. A full object name is reduced to its filename.`,
	Args: cobra.ExactArgs(1),
	RunE: runProgressSet,
}

func init() {
	rootCmd.AddCommand(progressCmd)
	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressSetCmd)
}

type progressView struct {
	Backend string `json:"backend"`
	Marker  string `json:"marker"`
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	tracker, err := openTracker(ctx, appConfig)
	if err != nil {
		return err
	}
	defer tracker.Close()

	marker, err := tracker.Load(ctx)
	if err != nil {
		return err
	}

	w := newUI(cmd)
	if jsonOutput() {
		return w.JSON(progressView{Backend: appConfig.Progress.Backend, Marker: marker})
	}
	if marker == "" {
		w.Info("no report committed yet (%s backend)", appConfig.Progress.Backend)
		return nil
	}
	w.Println("%s", marker)
	return nil
}

func runProgressSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	tracker, err := openTracker(ctx, appConfig)
	if err != nil {
		return err
	}
	defer tracker.Close()

	before, err := tracker.Load(ctx)
	if err != nil {
		return err
	}
	marker := progress.ReportID(args[0])
	if err := tracker.Advance(ctx, marker); err != nil {
		return err
	}

	w := newUI(cmd)
	if jsonOutput() {
		return w.JSON(progressView{Backend: appConfig.Progress.Backend, Marker: marker})
	}
	w.Success("marker %s -> %s", orDash(before), marker)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

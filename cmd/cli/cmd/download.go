package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"usage-cost/internal/errors"
	"usage-cost/internal/logging"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every usage report without pricing",
	Long: `List every usage report in the bucket and stream each one into the
download directory. No rates are fetched, nothing is priced and the
progress marker is neither read nor advanced.`,
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cfg := appConfig
	logger := logging.Logger
	if cfg.Storage.Bucket == "" {
		return errors.Config("storage.bucket is required")
	}

	objects, reports, err := buildObjects(cfg, logger)
	if err != nil {
		return err
	}
	listed, err := objects.List(ctx, "")
	if err != nil {
		return err
	}

	var total int64
	for _, obj := range listed {
		logger.Info("downloading report",
			zap.String("object", obj.Name),
			zap.Float64("size_kib", float64(obj.Size)/1024),
			zap.Time("created_at", obj.CreatedAt),
		)
		path, n, err := reports.Download(ctx, obj)
		if err != nil {
			return err
		}
		total += n
		logger.Debug("report saved", zap.String("path", path), zap.Int64("bytes", n))
	}

	w := newUI(cmd)
	if jsonOutput() {
		return w.JSON(listed)
	}
	w.Header("Downloaded Reports")
	w.ObjectTable(listed)
	w.Println("")
	w.Success("%d reports, %.1f KiB written to %s", len(listed), float64(total)/1024, cfg.Paths.DownloadDir)
	return nil
}

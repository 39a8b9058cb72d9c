package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/observability"
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/match"
	"github.com/3leaps/nimbusurf/pkg/transfer"
)

var downloadCmd = &cobra.Command{
	Use:   "download <uri>",
	Short: "Download an object, a prefix or a whole bucket",
	Long: `Download objects to a local directory.

A URI without a trailing "/" names a single object. Otherwise every object
under the prefix is downloaded, keeping its relative path below a directory
named after the prefix.

Interrupt once to stop after the current object; interrupt again to abort it.

Examples:
  nimbusurf download gs://my-bucket/report.csv
  nimbusurf download s3://my-bucket/logs/ --dest ./backup
  nimbusurf download s3://my-bucket/logs/ --rate-limit 5 --json
  nimbusurf download gs://my-bucket/data/ --include '**/*.csv' --after 2024-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var (
	downloadDest      string
	downloadRateLimit float64
	downloadJSON      bool
	downloadDemo      bool
	downloadSelect    match.Config
)

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&downloadDest, "dest", "", "Destination directory (overrides transfer.destination)")
	downloadCmd.Flags().Float64Var(&downloadRateLimit, "rate-limit", -1, "Max objects per second, 0 for unlimited (overrides transfer.rate_limit)")
	downloadCmd.Flags().BoolVar(&downloadJSON, "json", false, "Output JSONL records")
	downloadCmd.Flags().BoolVar(&downloadDemo, "demo", false, "Use the built-in in-memory demo store")
	addSelectFlags(downloadCmd, &downloadSelect)
}

func runDownload(cmd *cobra.Command, args []string) error {
	target, err := cloudpath.ParseTarget(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	prov, err := newProvider(target.Scheme(), appConfig, downloadDemo)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	dest := appConfig.Transfer.Destination
	if downloadDest != "" {
		dest = downloadDest
	}
	sel, err := buildSelector(downloadSelect)
	if err != nil {
		return err
	}
	rateLimit := appConfig.Transfer.RateLimit
	if downloadRateLimit >= 0 {
		rateLimit = downloadRateLimit
	}

	w, jobID := newRecordWriter(cmd, downloadJSON, target.Scheme().String())
	if w != nil {
		defer func() { _ = w.Close() }()
	}

	job, err := transfer.NewDownloader(prov, target, transfer.Config{
		Destination: dest,
		RateLimit:   rateLimit,
		Select:      sel,
		JobID:       jobID,
		Writer:      w,
		Logger:      observability.CLILogger,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot download "+target.String(), err)
	}

	observability.CLILogger.Info("Starting download",
		zap.String("job_id", jobID),
		zap.String("uri", target.String()),
		zap.String("dest", dest))

	sum, err := runJob(cmd, job)
	if err != nil {
		return providerExit("Download of "+target.String()+" failed", err)
	}
	return reportSummary(cmd, w, string(transfer.KindDownload), sum)
}

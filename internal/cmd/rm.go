package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/observability"
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/match"
	"github.com/3leaps/nimbusurf/pkg/transfer"
)

// errConfirmationRequired is returned by rm without --yes.
var errConfirmationRequired = errors.New("re-run with --yes to delete")

var rmCmd = &cobra.Command{
	Use:   "rm <uri>",
	Short: "Delete an object or every object under a prefix",
	Long: `Delete objects. Buckets themselves are never deleted.

Without --yes the objects are only counted and nothing is removed.

Examples:
  nimbusurf rm gs://my-bucket/tmp/report.csv --yes
  nimbusurf rm s3://my-bucket/tmp/
  nimbusurf rm s3://my-bucket/tmp/ --yes --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

var (
	rmYes       bool
	rmJSON      bool
	rmDemo      bool
	rmRateLimit float64
	rmSelect    match.Config
)

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "Delete without asking")
	rmCmd.Flags().BoolVar(&rmJSON, "json", false, "Output JSONL records")
	rmCmd.Flags().BoolVar(&rmDemo, "demo", false, "Use the built-in in-memory demo store")
	rmCmd.Flags().Float64Var(&rmRateLimit, "rate-limit", -1, "Max objects per second, 0 for unlimited (overrides transfer.rate_limit)")
	addSelectFlags(rmCmd, &rmSelect)
}

func runRm(cmd *cobra.Command, args []string) error {
	target, err := cloudpath.ParseTarget(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	prov, err := newProvider(target.Scheme(), appConfig, rmDemo)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	sel, err := buildSelector(rmSelect)
	if err != nil {
		return err
	}
	rateLimit := appConfig.Transfer.RateLimit
	if rmRateLimit >= 0 {
		rateLimit = rmRateLimit
	}

	w, jobID := newRecordWriter(cmd, rmJSON, target.Scheme().String())
	if w != nil {
		defer func() { _ = w.Close() }()
	}

	job, err := transfer.NewDeleter(prov, target, transfer.Config{
		RateLimit: rateLimit,
		Select:    sel,
		JobID:     jobID,
		Writer:    w,
		Logger:    observability.CLILogger,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot delete "+target.String(), err)
	}

	if !rmYes {
		items, err := job.Enumerate(cmd.Context())
		if err != nil {
			return providerExit("Failed to list "+target.String(), err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d object(s) would be deleted under %s\n", len(items), target)
		return exitError(foundry.ExitInvalidArgument, "Confirmation required", errConfirmationRequired)
	}

	observability.CLILogger.Info("Starting delete", zap.String("job_id", jobID), zap.String("uri", target.String()))

	sum, err := runJob(cmd, job)
	if err != nil {
		return providerExit("Delete of "+target.String()+" failed", err)
	}
	return reportSummary(cmd, w, string(transfer.KindDelete), sum)
}

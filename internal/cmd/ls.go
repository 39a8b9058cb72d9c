package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/observability"
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/listing"
	"github.com/3leaps/nimbusurf/pkg/output"
)

var lsCmd = &cobra.Command{
	Use:   "ls [uri]",
	Short: "List buckets, or one level of a bucket or prefix",
	Long: `List one level of object storage, the same view the browser shows.

Examples:
  nimbusurf ls gs
  nimbusurf ls s3://my-bucket/
  nimbusurf ls gs://my-bucket/logs --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var (
	lsScheme  string
	lsJSON    bool
	lsDemo    bool
	lsTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(lsCmd)

	lsCmd.Flags().StringVar(&lsScheme, "scheme", "gs", "Scheme to list when no URI is given (gs|s3)")
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Output JSONL records")
	lsCmd.Flags().BoolVar(&lsDemo, "demo", false, "List the built-in in-memory demo store")
	lsCmd.Flags().DurationVar(&lsTimeout, "timeout", 0, "Listing timeout (overrides listing.timeout)")
}

func runLs(cmd *cobra.Command, args []string) error {
	scheme, err := cloudpath.ParseScheme(lsScheme)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --scheme", err)
	}
	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	loc, err := parseLocation(arg, scheme)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	prov, err := newProvider(loc.Scheme(), appConfig, lsDemo)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	svc := listing.New(prov, listing.Options{CacheSize: appConfig.Listing.CacheSize, Logger: observability.CLILogger})
	defer svc.Close()

	ctx := cmd.Context()
	timeout := appConfig.Listing.Timeout
	if lsTimeout > 0 {
		timeout = lsTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	entries, err := svc.Fetch(ctx, loc)
	if err != nil {
		observability.CLILogger.Error("Listing failed", zap.String("uri", loc.String()), zap.Error(err))
		return providerExit("Failed to list "+loc.String(), err)
	}

	if lsJSON {
		return writeEntriesJSON(cmd, loc, entries, time.Since(start))
	}
	return writeEntriesTable(cmd, entries)
}

func writeEntriesJSON(cmd *cobra.Command, loc cloudpath.Path, entries []cloudpath.Path, elapsed time.Duration) error {
	ctx := cmd.Context()
	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), loc.Scheme().String())
	defer func() { _ = w.Close() }()

	for _, e := range entries {
		if err := w.WriteEntry(ctx, output.NewEntryRecord(e)); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	n := int64(len(entries))
	err := w.WriteSummary(ctx, &output.SummaryRecord{
		Op:            "ls",
		Total:         n,
		Done:          n,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	})
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

func writeEntriesTable(cmd *cobra.Command, entries []cloudpath.Path) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tUPDATED")
	for _, e := range entries {
		size, updated := "-", "-"
		if s, ok := e.Size(); ok {
			size = humanize.IBytes(uint64(s))
		}
		if t, ok := e.UpdatedAt(); ok {
			updated = t.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Name(), size, updated)
	}
	if err := tw.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	return nil
}

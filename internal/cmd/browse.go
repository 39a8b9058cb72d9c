package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/observability"
	"github.com/3leaps/nimbusurf/internal/tui"
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

var browseCmd = &cobra.Command{
	Use:   "browse [uri]",
	Short: "Browse buckets interactively",
	Long: `Open the interactive browser.

The argument selects where browsing starts: a scheme ("gs", "s3") lists all
buckets of the active project or profile, a URI opens a bucket or prefix.

Examples:
  nimbusurf browse
  nimbusurf browse s3
  nimbusurf browse gs://my-bucket/logs/2024/
  nimbusurf browse --demo`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{annotationInteractive: "true"},
	RunE:        runBrowse,
}

var (
	browseScheme string
	browseDemo   bool
	browseDest   string
)

func init() {
	rootCmd.AddCommand(browseCmd)

	browseCmd.Flags().StringVar(&browseScheme, "scheme", "gs", "Scheme to browse when no URI is given (gs|s3)")
	browseCmd.Flags().BoolVar(&browseDemo, "demo", false, "Browse a built-in in-memory demo store")
	browseCmd.Flags().StringVar(&browseDest, "dest", "", "Download destination (overrides transfer.destination)")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	scheme, err := cloudpath.ParseScheme(browseScheme)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --scheme", err)
	}
	arg := ""
	if len(args) == 1 {
		arg = args[0]
	}
	start, err := parseLocation(arg, scheme)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}

	prov, err := newProvider(start.Scheme(), appConfig, browseDemo)
	if err != nil {
		observability.CLILogger.Error("Failed to create provider", zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}
	defer func() { _ = prov.Close() }()

	dest := appConfig.Transfer.Destination
	if browseDest != "" {
		dest = browseDest
	}

	observability.CLILogger.Info("Starting browser", zap.String("uri", start.String()), zap.String("project", prov.Project()))
	return tui.Run(cmd.Context(), tui.Options{
		Provider:        prov,
		Start:           start,
		CacheSize:       appConfig.Listing.CacheSize,
		CursorCacheSize: appConfig.Navigation.CursorCacheSize,
		Destination:     dest,
		RateLimit:       appConfig.Transfer.RateLimit,
		Logger:          observability.CLILogger,
	})
}

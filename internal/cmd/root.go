// Package cmd implements the nimbusurf command tree.
package cmd

import (
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/config"
	"github.com/3leaps/nimbusurf/internal/observability"
)

// annotationInteractive marks commands that own the terminal; their logs go
// to the configured log file instead of stderr.
const annotationInteractive = "nimbusurf/interactive"

var (
	cfgFile   string
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nimbusurf",
	Short: "Browse GCS and S3 object storage from the terminal",
	Long: `nimbusurf is an interactive browser for Google Cloud Storage and S3
buckets. Listings are cached and revalidated in the background so that
navigating back and forth stays instant.

Non-interactive commands (ls, download, rm) reuse the same listing and
transfer engine for scripting.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initRuntime,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/nimbusurf/config.yaml)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("project", "", "GCS project")
	flags.String("profile", "", "AWS profile")
	flags.String("region", "", "AWS region")
	flags.String("endpoint", "", "Custom S3 endpoint")
	flags.String("s3-driver", "", "S3 driver (aws|minio)")

	mustBind("logging.level", "log-level")
	mustBind("gcs.project", "project")
	mustBind("s3.profile", "profile")
	mustBind("s3.region", "region")
	mustBind("s3.endpoint", "endpoint")
	mustBind("s3.driver", "s3-driver")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind %s: %v", flag, err))
	}
}

func initRuntime(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appConfig = cfg

	logPath := ""
	if cmd.Annotations[annotationInteractive] == "true" {
		logPath = cfg.Logging.File
	}
	if err := observability.InitCLILogger("nimbusurf", cfg.Logging.Level, logPath); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to initialise logging", err)
	}
	observability.CLILogger.Debug("configuration loaded",
		zap.String("s3_driver", cfg.S3.Driver),
		zap.String("gcs_project", cfg.GCS.Project),
		zap.Int("cache_size", cfg.Listing.CacheSize))
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	defer observability.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		return ExitCode(err)
	}
	return 0
}

// ExitError carries a process exit code through cobra's error return.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.Message, e.Err, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return &ExitError{Code: code, Message: message, Err: err}
}

// ExitCode extracts the exit code from err; errors without one exit with 1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

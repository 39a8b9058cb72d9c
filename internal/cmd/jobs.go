package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/internal/observability"
	"github.com/3leaps/nimbusurf/pkg/match"
	"github.com/3leaps/nimbusurf/pkg/output"
	"github.com/3leaps/nimbusurf/pkg/transfer"
)

// notifySignals is replaced in tests.
var notifySignals = func(ch chan<- os.Signal) func() {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return func() { signal.Stop(ch) }
}

// runJob runs job in the foreground. The first interrupt stops the job after
// the current item; a second one cancels the in-flight item.
func runJob(cmd *cobra.Command, job *transfer.Job) (*transfer.Summary, error) {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	stopNotify := notifySignals(sigs)
	defer stopNotify()

	go func() {
		interrupts := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				interrupts++
				if interrupts == 1 {
					observability.CLILogger.Info("Stopping after current item (interrupt again to abort)",
						zap.String("job_id", job.ID()))
					job.Stop()
					continue
				}
				cancel()
				return
			}
		}
	}()

	return job.Run(ctx)
}

// newRecordWriter returns a JSONL writer on stdout when jsonOut is set.
func newRecordWriter(cmd *cobra.Command, jsonOut bool, provider string) (output.Writer, string) {
	jobID := uuid.New().String()
	if !jsonOut {
		return nil, jobID
	}
	return output.NewJSONLWriter(cmd.OutOrStdout(), jobID, provider), jobID
}

// reportSummary prints or records the outcome of a job and maps it to an
// exit status.
func reportSummary(cmd *cobra.Command, w output.Writer, op string, sum *transfer.Summary) error {
	if w != nil {
		err := w.WriteSummary(cmd.Context(), &output.SummaryRecord{
			Op:            op,
			Total:         sum.Total,
			Done:          sum.Done,
			Failed:        sum.Failed,
			Skipped:       sum.Skipped,
			Bytes:         sum.Bytes,
			Stopped:       sum.Stopped,
			Duration:      sum.Duration,
			DurationHuman: sum.Duration.Round(time.Millisecond).String(),
		})
		if err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	} else {
		line := fmt.Sprintf("%s: %d of %d objects", op, sum.Done, sum.Total)
		if sum.Bytes > 0 {
			line += fmt.Sprintf(" (%s)", humanize.IBytes(uint64(sum.Bytes)))
		}
		if sum.Skipped > 0 {
			line += fmt.Sprintf(", %d skipped", sum.Skipped)
		}
		if sum.Failed > 0 {
			line += fmt.Sprintf(", %d failed", sum.Failed)
		}
		if sum.Stopped {
			line += ", stopped"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s in %s\n", line, sum.Duration.Round(time.Millisecond))
	}

	switch {
	case sum.Stopped:
		return exitError(foundry.ExitSignalInt, "Stopped", fmt.Errorf("%d of %d objects processed", sum.Done+sum.Failed+sum.Skipped, sum.Total))
	case sum.Failed > 0:
		return exitError(foundry.ExitExternalServiceUnavailable, "Some objects failed", fmt.Errorf("%d of %d objects failed", sum.Failed, sum.Total))
	}
	return nil
}

// addSelectFlags registers work-list selection flags bound to cfg.
func addSelectFlags(cmd *cobra.Command, cfg *match.Config) {
	f := cmd.Flags()
	f.StringSliceVar(&cfg.Includes, "include", nil, "Glob of keys to include, relative to the target (repeatable)")
	f.StringSliceVar(&cfg.Excludes, "exclude", nil, "Glob of keys to exclude, relative to the target (repeatable)")
	f.StringVar(&cfg.MinSize, "min-size", "", "Minimum object size, e.g. 1KiB")
	f.StringVar(&cfg.MaxSize, "max-size", "", "Maximum object size, e.g. 100MB")
	f.StringVar(&cfg.After, "after", "", "Only objects modified on or after this date (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&cfg.Before, "before", "", "Only objects modified before this date")
	f.StringVar(&cfg.KeyRegex, "key-regex", "", "Regular expression the full object key must match")
}

func buildSelector(cfg match.Config) (*match.Selector, error) {
	sel, err := match.New(cfg)
	if err != nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid selection", err)
	}
	if sel != nil {
		observability.CLILogger.Debug("Selecting objects", zap.String("select", sel.String()))
	}
	return sel, nil
}

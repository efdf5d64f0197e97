package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// dlqMaxDelay caps the retry backoff for dead letter entries.
const dlqMaxDelay = 4 * time.Hour

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect and retry dead-lettered reconciliations",
}

// -- dlq list --

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letter entries due for retry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		errType, _ := cmd.Flags().GetString("error-type")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: errType, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq list")
		}

		total, err := st.CountDLQ(ctx)
		if err != nil {
			return eris.Wrap(err, "dlq count")
		}

		if len(entries) == 0 {
			fmt.Fprintf(os.Stderr, "No entries due for retry (%d total in queue).\n", total)
			return nil
		}

		formatDLQList(os.Stdout, entries)
		fmt.Fprintf(os.Stdout, "\n%d due, %d total in queue\n", len(entries), total)
		return nil
	},
}

// -- dlq retry --

var dlqRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry due transient failures",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initReconciler(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := env.Store.DequeueDLQ(ctx, resilience.DLQFilter{ErrorType: "transient", Limit: limit})
		if err != nil {
			return eris.Wrap(err, "dlq dequeue")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No transient entries due for retry.")
			return nil
		}

		var succeeded, exhausted, failed int
		for _, entry := range entries {
			log := zap.L().With(
				zap.String("dlq_id", entry.ID),
				zap.String("domain", entry.Company.Domain),
			)

			if !entry.CanRetry() {
				exhausted++
				log.Warn("retries exhausted, leaving entry in queue",
					zap.Int("retry_count", entry.RetryCount),
				)
				continue
			}

			run, err := env.Store.CreateRun(ctx, entry.Company)
			if err != nil {
				return eris.Wrap(err, "create run")
			}

			record, err := executeRun(ctx, env, run)
			if err != nil {
				failed++
				if iErr := env.Store.IncrementDLQRetry(ctx, entry.ID, nextRetryAt(entry), err.Error()); iErr != nil {
					log.Error("failed to increment retry", zap.Error(iErr))
				}
				continue
			}

			if err := env.Store.SaveRecord(ctx, record); err != nil {
				return eris.Wrap(err, "save record")
			}
			if err := env.Store.RemoveDLQ(ctx, entry.ID); err != nil {
				log.Error("failed to remove dead letter", zap.Error(err))
			}
			succeeded++
			log.Info("retry succeeded", zap.Float64("confidence", record.Confidence))
		}

		zap.L().Info("dlq retry complete",
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Int("exhausted", exhausted),
		)
		return nil
	},
}

func init() {
	dlqListCmd.Flags().String("error-type", "", "filter by error type (transient, permanent)")
	dlqListCmd.Flags().Int("limit", 50, "max number of entries to display")

	dlqRetryCmd.Flags().Int("limit", 20, "max number of entries to retry")

	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqRetryCmd)
	rootCmd.AddCommand(dlqCmd)
}

// nextRetryAt doubles the retry delay per attempt, capped at dlqMaxDelay.
func nextRetryAt(entry resilience.DLQEntry) time.Time {
	delay := dlqInitialDelay << entry.RetryCount
	if delay > dlqMaxDelay || delay <= 0 {
		delay = dlqMaxDelay
	}
	return time.Now().UTC().Add(delay)
}

// formatDLQList writes a tabular list of dead letter entries to w.
func formatDLQList(out io.Writer, entries []resilience.DLQEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tTYPE\tSTAGE\tRETRIES\tNEXT_RETRY\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t----\t-----\t-------\t----------\t-----")

	for _, e := range entries {
		errMsg := e.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			truncateID(e.ID),
			e.Company.Domain,
			e.ErrorType,
			e.FailedStage,
			e.RetryCount,
			e.MaxRetries,
			e.NextRetryAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}

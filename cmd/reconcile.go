package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/export"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// dlqInitialDelay spaces the first retry of a failed run.
const dlqInitialDelay = 5 * time.Minute

var (
	reconcileDomain  string
	reconcileName    string
	reconcileSFID    string
	reconcilePublish bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a single company profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initReconciler(ctx, "reconcile")
		if err != nil {
			return err
		}
		defer env.Close()

		company := model.Company{
			Name:         reconcileName,
			Domain:       reconcileDomain,
			SalesforceID: reconcileSFID,
		}

		run, err := env.Store.CreateRun(ctx, company)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		record, err := executeRun(ctx, env, run)
		if err != nil {
			return eris.Wrap(err, "reconcile run")
		}
		if err := env.Store.SaveRecord(ctx, record); err != nil {
			return eris.Wrap(err, "save record")
		}

		if reconcilePublish {
			if env.Notion == nil {
				return eris.New("publish requested but notion token is not configured")
			}
			pageID, err := export.NewPublisher(env.Notion, cfg.Notion.ProfileDB).Publish(ctx, record)
			if err != nil {
				return eris.Wrap(err, "publish record")
			}
			zap.L().Info("profile published", zap.String("page_id", pageID))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileDomain, "domain", "", "company domain (required)")
	reconcileCmd.Flags().StringVar(&reconcileName, "name", "", "company name hint")
	reconcileCmd.Flags().StringVar(&reconcileSFID, "sf-id", "", "Salesforce account ID")
	reconcileCmd.Flags().BoolVar(&reconcilePublish, "publish", false, "publish the record to Notion after reconciling")
	_ = reconcileCmd.MarkFlagRequired("domain")
	rootCmd.AddCommand(reconcileCmd)
}

// executeRun drives one created run through its status transitions and parks
// the company in the dead letter queue on failure. Persisting the record to
// the records table is the caller's job — batch runs save in bulk.
func executeRun(ctx context.Context, env *reconcileEnv, run *model.Run) (*model.ReconciledRecord, error) {
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("domain", run.Company.Domain),
	)

	if env.Reconciler == nil {
		err := eris.New("reconciler not initialized")
		if fErr := env.Store.FailRun(ctx, run.ID, err.Error()); fErr != nil {
			log.Error("failed to mark run failed", zap.Error(fErr))
		}
		return nil, err
	}

	if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusGathering); err != nil {
		return nil, eris.Wrap(err, "update run status")
	}

	record, err := env.Reconciler.Reconcile(ctx, run.Company)
	if err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		if fErr := env.Store.FailRun(ctx, run.ID, err.Error()); fErr != nil {
			log.Error("failed to mark run failed", zap.Error(fErr))
		}
		if qErr := env.Store.EnqueueDLQ(ctx, dlqEntry(run.Company, "gather", err)); qErr != nil {
			log.Error("failed to enqueue dead letter", zap.Error(qErr))
		}
		return nil, err
	}

	if err := env.Store.UpdateRunRecord(ctx, run.ID, record); err != nil {
		return nil, eris.Wrap(err, "update run record")
	}

	log.Info("run complete",
		zap.Float64("confidence", record.Confidence),
		zap.Int("fields", len(record.Fields)),
	)
	return record, nil
}

// dlqEntry builds a dead letter entry for a failed reconciliation. The store
// assigns the ID.
func dlqEntry(company model.Company, stage string, runErr error) resilience.DLQEntry {
	maxRetries := 3
	if cfg != nil && cfg.Retry.MaxAttempts > 0 {
		maxRetries = cfg.Retry.MaxAttempts
	}
	now := time.Now().UTC()
	return resilience.DLQEntry{
		Company:      company,
		Error:        runErr.Error(),
		ErrorType:    resilience.ClassifyError(runErr),
		FailedStage:  stage,
		MaxRetries:   maxRetries,
		NextRetryAt:  now.Add(dlqInitialDelay),
		CreatedAt:    now,
		LastFailedAt: now,
	}
}

package main

import (
	"context"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/reconcile-cli/internal/input"
	"github.com/sells-group/reconcile-cli/internal/model"
)

var (
	batchFile  string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch reconcile companies from a CSV or XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initReconciler(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		companies, err := input.ReadCompanies(batchFile)
		if err != nil {
			return eris.Wrap(err, "read company list")
		}

		records, failed := processBatch(ctx, companies, batchLimit, cfg.Batch.MaxConcurrentCompanies,
			func(ctx context.Context, company model.Company) (*model.ReconciledRecord, error) {
				run, err := env.Store.CreateRun(ctx, company)
				if err != nil {
					return nil, eris.Wrap(err, "create run")
				}
				return executeRun(ctx, env, run)
			})

		if len(records) > 0 {
			saved, err := env.Store.SaveRecords(ctx, records)
			if err != nil {
				return eris.Wrap(err, "save records")
			}
			zap.L().Info("records saved", zap.Int64("count", saved))
		}

		if failed > 0 && len(records) == 0 {
			return eris.Errorf("batch: all %d companies failed", failed)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "company list file, .csv or .xlsx (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of companies to process")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}

// reconcileFunc is the callback signature for reconciling one company.
type reconcileFunc func(ctx context.Context, company model.Company) (*model.ReconciledRecord, error)

// processBatch applies limit, then reconciles companies concurrently. An
// individual failure never aborts the batch; the successful records come back
// for bulk persistence along with the failure count.
func processBatch(ctx context.Context, companies []model.Company, limit, concurrency int, run reconcileFunc) ([]*model.ReconciledRecord, int64) {
	if len(companies) == 0 {
		zap.L().Info("no companies to process")
		return nil, 0
	}

	if limit > 0 && len(companies) > limit {
		companies = companies[:limit]
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("companies", len(companies)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	var records []*model.ReconciledRecord
	var succeeded, failed atomic.Int64

	for _, company := range companies {
		g.Go(func() error {
			log := zap.L().With(zap.String("domain", company.Domain))

			record, err := run(gctx, company)
			if err != nil {
				failed.Add(1)
				log.Error("reconciliation failed", zap.Error(err))
				return nil // don't abort the batch on individual failure
			}

			succeeded.Add(1)
			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			log.Info("reconciliation complete",
				zap.Float64("confidence", record.Confidence),
				zap.Int("fields", len(record.Fields)),
			)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return records, failed.Load()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/input"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/monitoring"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for reconciliation requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initReconciler(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		router := buildRouter(ctx, env, cfg.Monitoring.LookbackWindowHours)

		// Background alert checks run only when a webhook is configured.
		if cfg.Monitoring.WebhookURL != "" {
			collector := monitoring.NewCollector(env.Store, env.Gatherer)
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter assembles the HTTP API. runCtx outlives individual requests and
// bounds the async reconciliations spawned by POST /reconcile.
func buildRouter(runCtx context.Context, env *reconcileEnv, lookbackHours int) *chi.Mux {
	var breakers monitoring.BreakerStater
	if env.Gatherer != nil {
		breakers = env.Gatherer
	}
	collector := monitoring.NewCollector(env.Store, breakers)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		pingCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := env.Store.Ping(pingCtx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/reconcile", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Domain       string `json:"domain"`
			Name         string `json:"name"`
			SalesforceID string `json:"salesforce_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		domain := input.NormalizeDomain(body.Domain)
		if domain == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "domain is required"})
			return
		}

		company := model.Company{
			Name:         body.Name,
			Domain:       domain,
			SalesforceID: body.SalesforceID,
		}

		run, err := env.Store.CreateRun(req.Context(), company)
		if err != nil {
			zap.L().Error("create run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create run failed"})
			return
		}

		// The reconciliation outlives the request; its outcome lands on the
		// run row and in the records table.
		go func() {
			record, err := executeRun(runCtx, env, run)
			if err != nil {
				return
			}
			if err := env.Store.SaveRecord(runCtx, record); err != nil {
				zap.L().Error("save record failed",
					zap.String("run_id", run.ID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"run_id": run.ID,
			"status": string(run.Status),
			"domain": domain,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if s := req.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				limit = n
			}
		}
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Domain: req.URL.Query().Get("domain"),
			Limit:  limit,
		}

		runs, err := env.Store.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no rows") {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			zap.L().Error("get run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
			return
		}
		if run == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), lookbackHours)
		if err != nil {
			zap.L().Error("collect metrics failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "collect metrics failed"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package main

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/auth"
	"github.com/sells-group/reconcile-cli/internal/facts"
	"github.com/sells-group/reconcile-cli/internal/gather"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	"github.com/sells-group/reconcile-cli/internal/resilience"
	"github.com/sells-group/reconcile-cli/internal/resolve"
	"github.com/sells-group/reconcile-cli/internal/store"
	"github.com/sells-group/reconcile-cli/internal/validate"
	anthropicpkg "github.com/sells-group/reconcile-cli/pkg/anthropic"
	"github.com/sells-group/reconcile-cli/pkg/apollo"
	"github.com/sells-group/reconcile-cli/pkg/notion"
	"github.com/sells-group/reconcile-cli/pkg/pdl"
	sfpkg "github.com/sells-group/reconcile-cli/pkg/salesforce"
)

// reconcileEnv holds the initialized store, clients, and reconciler needed by
// the reconcile/batch/serve commands.
type reconcileEnv struct {
	Store      store.Store
	Reconciler *reconcile.Reconciler
	Gatherer   *gather.Gatherer
	Notion     notion.Client // nil when Notion is not configured
}

// Close releases resources held by the environment.
func (re *reconcileEnv) Close() {
	if re.Store != nil {
		_ = re.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "reconcile.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (RECONCILE_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}

// initApolloTokens builds the Apollo credential chain. When a token endpoint
// is configured, the provisioned key doubles as the refresh credential and the
// static key stays on as the fallback.
func initApolloTokens() apollo.TokenSource {
	var strategies []auth.Strategy
	if cfg.Apollo.TokenURL != "" {
		strategies = append(strategies, auth.NewRefreshTokenStrategy(cfg.Apollo.TokenURL, "", "", cfg.Apollo.Key))
	}
	strategies = append(strategies, auth.NewStaticTokenStrategy(cfg.Apollo.Key))
	return auth.NewAuthenticator(strategies)
}

// initReconciler sets up the store, provider clients, and the reconciler.
// Callers should defer env.Close().
func initReconciler(ctx context.Context, mode string) (*reconcileEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	registry := gather.NewRegistry()

	apolloClient := apollo.NewClient(initApolloTokens(), apollo.WithBaseURL(cfg.Apollo.BaseURL))
	registry.Register(gather.NewApolloProvider(apolloClient, sourceTier("apollo", 3)))

	pdlClient := pdl.NewClient(cfg.PDL.Key, pdl.WithBaseURL(cfg.PDL.BaseURL))
	registry.Register(gather.NewPDLProvider(pdlClient, sourceTier("pdl", 2)))

	if slices.Contains(cfg.Gather.Sources, "salesforce") {
		sfClient, err := initSalesforce()
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		registry.Register(gather.NewSalesforceProvider(sfClient, sourceTier("salesforce", 1)))
	}

	breakers := resilience.NewSourceBreakers(resilience.FromCircuitConfig(
		cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeoutSecs))
	limiters := resilience.NewSourceLimiters(cfg.Gather.Rates, 5)

	gatherer := gather.New(registry, breakers, limiters, gather.Config{
		PerCallTimeout: time.Duration(cfg.Gather.PerCallTimeoutSecs) * time.Second,
		OverallTimeout: time.Duration(cfg.Gather.OverallTimeoutSecs) * time.Second,
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier, cfg.Retry.JitterFraction),
	})

	table := facts.Default()
	if cfg.Facts.Path != "" {
		table, err = facts.Load(cfg.Facts.Path)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load facts table")
		}
	}
	validator := validate.New(table)

	var council *resolve.Council
	if cfg.Anthropic.Key != "" {
		anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
		evaluator := resolve.NewClaudeEvaluator(anthropicClient, cfg.Resolver.Model, cfg.Resolver.Temperature)
		council = resolve.NewCouncil(evaluator, cfg.Resolver.Weights.PanelSize)
	} else {
		zap.L().Warn("anthropic key not set, contested fields fall back to the tier heuristic")
	}
	resolver := resolve.NewResolver(council, resolve.NewRevolver(cfg.Resolver.Weights))

	var notionClient notion.Client
	if cfg.Notion.Token != "" {
		notionClient = notion.NewClient(cfg.Notion.Token)
	}

	zap.L().Info("reconciler initialized",
		zap.Strings("sources", cfg.Gather.Sources),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("panel_enabled", council != nil),
	)

	return &reconcileEnv{
		Store:      st,
		Reconciler: reconcile.New(gatherer, validator, resolver, cfg.Gather.Sources),
		Gatherer:   gatherer,
		Notion:     notionClient,
	}, nil
}

// sourceTier reads a source's reliability tier from config.
func sourceTier(source string, fallback int) int {
	if t, ok := cfg.Gather.Tiers[source]; ok && t > 0 {
		return t
	}
	return fallback
}

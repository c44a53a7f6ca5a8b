package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/deep-research/internal/classifier"
	"github.com/sells-group/deep-research/internal/cost"
	"github.com/sells-group/deep-research/internal/research"
	"github.com/sells-group/deep-research/internal/resilience"
	"github.com/sells-group/deep-research/internal/store"
	"github.com/sells-group/deep-research/pkg/exa"
	"github.com/sells-group/deep-research/pkg/jina"
	"github.com/sells-group/deep-research/pkg/perplexity"
	"github.com/sells-group/deep-research/pkg/ref"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "research.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initClassifier() (*classifier.Classifier, error) {
	cls := classifier.New()
	if cfg.Classifier.RulesPath == "" {
		return cls, nil
	}

	overlay, err := classifier.LoadOverlay(cfg.Classifier.RulesPath)
	if err != nil {
		return nil, eris.Wrap(err, "load classifier rules")
	}
	return cls.WithOverlay(overlay)
}

func initExecutor() (*research.Executor, error) {
	cls, err := initClassifier()
	if err != nil {
		return nil, err
	}

	refClient := ref.NewClient(cfg.Ref.Key, ref.WithBaseURL(cfg.Ref.BaseURL))
	exaClient := exa.NewClient(cfg.Exa.Key, exa.WithBaseURL(cfg.Exa.BaseURL))
	jinaClient := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.BaseURL),
		jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL),
	)
	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)

	breakers := resilience.NewProviderBreakers(
		resilience.FromCircuitConfig(cfg.Research.BreakerFailures, cfg.Research.BreakerResetSecs),
	)
	retryCfg := resilience.FromRetryConfig(cfg.Research.RetryAttempts, 0, 0, 0, -1)

	providers := research.NewProviders(refClient, exaClient, jinaClient, perplexityClient,
		research.WithResilience(breakers, retryCfg),
	)

	limiter := rate.NewLimiter(rate.Limit(cfg.Research.ReadRatePerSec), cfg.Research.MaxParallelReads)
	return research.NewExecutor(cls, providers,
		research.WithReadLimiter(limiter),
		research.WithMaxParallelReads(cfg.Research.MaxParallelReads),
	), nil
}

func initCalculator() *cost.Calculator {
	rates := cost.Rates{
		Workflows: cfg.Pricing.Workflows,
		Tiers:     cfg.Pricing.Tiers,
		Fallback:  cfg.Pricing.Fallback,
	}
	if len(rates.Workflows) == 0 && len(rates.Tiers) == 0 {
		rates = cost.DefaultRates()
	}
	return cost.NewCalculator(rates)
}

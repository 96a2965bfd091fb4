package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/inkshelf/enricher/internal/enrich"
	"github.com/inkshelf/enricher/internal/resilience"
	"github.com/inkshelf/enricher/internal/store"
	anthropicpkg "github.com/inkshelf/enricher/pkg/anthropic"
	"github.com/inkshelf/enricher/pkg/firecrawl"
	"github.com/inkshelf/enricher/pkg/jina"
	"github.com/inkshelf/enricher/pkg/perplexity"
)

// openStore selects the record store backend from config.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newScheduler wires the service clients, adapters, pipeline, and
// scheduler from config. concurrency overrides the configured worker
// count when positive.
func newScheduler(st store.Store, concurrency int) (*enrich.Scheduler, error) {
	tax, err := enrich.LoadPersonas(cfg.Enrich.PersonasPath)
	if err != nil {
		return nil, err
	}

	perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	firecrawlClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	retry := resilience.DefaultRetryConfig()
	researcher := enrich.NewPerplexityResearcher(perplexityClient, cfg.Enrich.ResearchRPS, cfg.Enrich.FetchTimeout(), retry)
	extractor := enrich.NewReaderExtractor(jinaClient, firecrawlClient, cfg.Enrich.ExtractRPS, cfg.Enrich.FetchTimeout(), retry)
	classifier := enrich.NewAnthropicClassifier(anthropicClient, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Enrich.ClassifyTimeout(), retry)

	pipeline := enrich.NewPipeline(researcher, extractor, classifier, tax)

	if concurrency <= 0 {
		concurrency = cfg.Enrich.Concurrency
	}
	return enrich.NewScheduler(pipeline, st, concurrency, cfg.Enrich.BatchSize), nil
}

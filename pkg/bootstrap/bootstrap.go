// Package bootstrap assembles the ingestion pipeline and search service from
// configuration. The API server, the CLI and the NATS worker all start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/WessleyAI/catalog-search/engine/ingest"
	"github.com/WessleyAI/catalog-search/engine/search"
	"github.com/WessleyAI/catalog-search/engine/semantic"
	"github.com/WessleyAI/catalog-search/pkg/config"
	"github.com/WessleyAI/catalog-search/pkg/fetch"
	"github.com/WessleyAI/catalog-search/pkg/metrics"
	"github.com/WessleyAI/catalog-search/pkg/ollama"
	"github.com/WessleyAI/catalog-search/pkg/resilience"
	"github.com/WessleyAI/catalog-search/pkg/workersai"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds the wired components of one process.
type App struct {
	Config   config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Store    domain.VectorStore
	Ingest   *ingest.Pipeline
	Search   *search.Service

	closers []func() error
}

// NewLogger returns a JSON logger at the named level (debug, info, warn,
// error). Unknown levels log at info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// Build connects to the configured collaborators and wires the pipelines.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := &App{Config: cfg, Log: log, Registry: reg}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	store, err := app.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store

	app.Ingest = ingest.New(ingest.Deps{
		Fetcher:  fetch.New(nil, 0),
		Embedder: embedder,
		Store:    store,
		Logger:   log,
		Metrics:  metrics.NewIngest(reg),
	}, ingest.Options{
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		FetchTimeout:  cfg.FetchTimeout,
		EmbedTimeout:  cfg.EmbedTimeout,
		UpsertTimeout: cfg.UpsertTimeout,
	})

	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: cfg.BreakerThreshold,
		Timeout:       cfg.BreakerOpenTimeout,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("search: breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	app.Search = search.New(search.Deps{
		Embedder: embedder,
		Store:    store,
		Logger:   log,
		Metrics:  metrics.NewSearch(reg),
		Breaker:  breaker,
	}, search.Options{
		TopK:         cfg.TopK,
		MinScore:     cfg.MinScore,
		EmbedTimeout: cfg.EmbedTimeout,
		QueryTimeout: cfg.QueryTimeout,
	})

	log.Info("bootstrap: ready",
		"embed_provider", cfg.EmbedProvider,
		"vector_backend", cfg.VectorBackend,
		"batch_size", cfg.BatchSize,
		"concurrency", cfg.Concurrency,
	)
	return app, nil
}

// NewEmbedder builds the configured embedding client.
func NewEmbedder(cfg config.Config) (domain.Embedder, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		return ollama.NewEmbedClient(cfg.OllamaURL, cfg.OllamaModel,
			ollama.WithRateLimit(cfg.EmbedRPS, cfg.EmbedBurst)), nil
	case config.ProviderWorkersAI:
		c, err := workersai.New(workersai.Config{
			BaseURL:   cfg.CFBaseURL,
			AccountID: cfg.CFAccountID,
			APIToken:  cfg.CFAPIToken,
			Model:     cfg.CFModel,
			RPS:       cfg.EmbedRPS,
			Burst:     cfg.EmbedBurst,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown embed provider %q", cfg.EmbedProvider)
	}
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (domain.VectorStore, error) {
	switch cfg.VectorBackend {
	case config.BackendMemory:
		return semantic.NewMemoryStore(cfg.Dimensions), nil
	case config.BackendQdrant:
		qs, err := semantic.NewQdrant(cfg.QdrantAddr, cfg.QdrantCollection)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := qs.EnsureCollection(ctx, cfg.Dimensions); err != nil {
			qs.Close()
			return nil, err
		}
		a.closers = append(a.closers, qs.Close)
		return qs, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown vector backend %q", cfg.VectorBackend)
	}
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Package ingest loads a product catalog into the vector store: fetch the
// CSV, normalize it, embed products in batches, and upsert one batch at a
// time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/catalog-search/engine/catalog"
	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/WessleyAI/catalog-search/pkg/fn"
	"github.com/WessleyAI/catalog-search/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/WessleyAI/catalog-search/engine/ingest"

// Stage names used in errors, logs and metrics.
const (
	StageFetch  = "fetch"
	StageLoad   = "load"
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// Deps holds the external collaborators of the pipeline.
type Deps struct {
	Fetcher  domain.Fetcher
	Embedder domain.Embedder
	Store    domain.VectorStore
	Logger   *slog.Logger
	Metrics  *metrics.Ingest
}

// Options tunes batching, concurrency and per-call timeouts.
type Options struct {
	BatchSize int
	// Concurrency is the number of batches in flight. 1 processes batches
	// strictly in order.
	Concurrency   int
	FetchTimeout  time.Duration
	EmbedTimeout  time.Duration
	UpsertTimeout time.Duration
}

// DefaultOptions returns sequential processing with the default batch size.
func DefaultOptions() Options {
	return Options{
		BatchSize:     DefaultBatchSize,
		Concurrency:   1,
		FetchTimeout:  30 * time.Second,
		EmbedTimeout:  60 * time.Second,
		UpsertTimeout: 30 * time.Second,
	}
}

// Summary describes a successful run.
type Summary struct {
	Count   int `json:"count"`
	Batches int `json:"batches"`
}

// Pipeline runs ingestion. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	deps Deps
	opts Options
	log  *slog.Logger
}

// New creates a Pipeline. Zero-valued options take their defaults.
func New(deps Deps, opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{deps: deps, opts: opts, log: log}
}

// Ingest fetches the catalog at sourceURL and loads it. Batches committed
// before a failure stay in the store.
func (p *Pipeline) Ingest(ctx context.Context, sourceURL string) (Summary, error) {
	if p.deps.Fetcher == nil {
		return Summary{}, errors.New("ingest: no fetcher configured")
	}
	if err := p.checkDeps(); err != nil {
		return Summary{}, err
	}
	p.log.Info("ingest: start", "source", sourceURL)
	run := fn.Then(p.fetchStage(), fn.Then(normalizeStage, p.loadStage()))
	return p.finish(run(ctx, sourceURL))
}

// IngestCSV loads an already fetched catalog.
func (p *Pipeline) IngestCSV(ctx context.Context, raw string) (Summary, error) {
	if err := p.checkDeps(); err != nil {
		return Summary{}, err
	}
	p.log.Info("ingest: start", "source", "inline", "bytes", len(raw))
	return p.finish(fn.Then(normalizeStage, p.loadStage())(ctx, raw))
}

// IngestRecords loads products that were normalized elsewhere.
func (p *Pipeline) IngestRecords(ctx context.Context, records []domain.Product) (Summary, error) {
	if err := p.checkDeps(); err != nil {
		return Summary{}, err
	}
	return p.finish(p.loadStage()(ctx, records))
}

func (p *Pipeline) checkDeps() error {
	switch {
	case p.deps.Embedder == nil:
		return errors.New("ingest: no embedder configured")
	case p.deps.Store == nil:
		return errors.New("ingest: no vector store configured")
	}
	return nil
}

func (p *Pipeline) finish(r fn.Result[Summary]) (Summary, error) {
	sum, err := r.Unwrap()
	if r.IsErr() {
		p.deps.Metrics.Run("failed")
		p.log.Error("ingest: failed", "error", err)
		return Summary{}, err
	}
	p.deps.Metrics.Run("ok")
	p.log.Info("ingest: success", "count", sum.Count, "batches", sum.Batches)
	return sum, nil
}

var normalizeStage = fn.TracedStage("ingest.normalize", fn.MapStage(catalog.Normalize))

func (p *Pipeline) fetchStage() fn.Stage[string, string] {
	return fn.TracedStage("ingest.fetch", func(ctx context.Context, url string) fn.Result[string] {
		ctx, cancel := withTimeout(ctx, p.opts.FetchTimeout)
		defer cancel()

		text, err := p.deps.Fetcher.FetchText(ctx, url)
		if err != nil {
			p.deps.Metrics.Failure(StageFetch)
			return fn.Err[string](&domain.IngestionError{Stage: StageFetch, Batch: -1, Err: fetchFailure(url, err)})
		}
		return fn.Ok(text)
	})
}

func (p *Pipeline) loadStage() fn.Stage[[]domain.Product, Summary] {
	return fn.TracedStage("ingest.load", func(ctx context.Context, records []domain.Product) fn.Result[Summary] {
		batches := PlanBatches(records, p.opts.BatchSize)
		p.log.Info("ingest: planned",
			"records", len(records),
			"batches", len(batches),
			"batch_size", p.opts.BatchSize,
			"concurrency", p.opts.Concurrency,
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Concurrency)
		for i, batch := range batches {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error { return p.processBatch(gctx, i, batch) })
		}
		if err := g.Wait(); err != nil {
			return fn.Err[Summary](err)
		}
		// Cancellation of the caller can stop the loop without any batch failing.
		if err := ctx.Err(); err != nil {
			return fn.Err[Summary](&domain.IngestionError{Stage: StageLoad, Batch: -1, Err: err})
		}
		return fn.Ok(Summary{Count: len(records), Batches: len(batches)})
	})
}

func (p *Pipeline) processBatch(ctx context.Context, index int, batch []domain.Product) (err error) {
	if err := ctx.Err(); err != nil {
		return &domain.IngestionError{Stage: StageLoad, Batch: index, Err: err}
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.batch", trace.WithAttributes(
		attribute.Int("ingest.batch.index", index),
		attribute.Int("ingest.batch.size", len(batch)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	log := p.log.With("batch", index, "size", len(batch))

	vectors, err := p.embed(ctx, fn.Map(batch, EmbedText))
	if err != nil {
		p.deps.Metrics.Failure(StageEmbed)
		log.Error("ingest: embed batch failed", "error", err)
		return &domain.IngestionError{Stage: StageEmbed, Batch: index, Err: err}
	}

	if err := p.upsert(ctx, BuildEntries(index, batch, vectors)); err != nil {
		p.deps.Metrics.Failure(StageUpsert)
		log.Error("ingest: upsert batch failed", "error", err)
		return &domain.IngestionError{Stage: StageUpsert, Batch: index, Err: err}
	}

	p.deps.Metrics.Batch(len(batch))
	log.Debug("ingest: batch committed")
	return nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string) ([]domain.Vector, error) {
	ctx, cancel := withTimeout(ctx, p.opts.EmbedTimeout)
	defer cancel()
	start := time.Now()
	defer p.deps.Metrics.EmbedSince(start)

	vectors, err := p.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, embeddingFailure(len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, &domain.EmbeddingError{
			Inputs: len(texts),
			Err:    fmt.Errorf("%w: got %d vectors", domain.ErrVectorCount, len(vectors)),
		}
	}
	return vectors, nil
}

func (p *Pipeline) upsert(ctx context.Context, entries []domain.Entry) error {
	ctx, cancel := withTimeout(ctx, p.opts.UpsertTimeout)
	defer cancel()
	start := time.Now()
	defer p.deps.Metrics.UpsertSince(start)

	if err := p.deps.Store.Upsert(ctx, entries); err != nil {
		return storeFailure("upsert", err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// The helpers below keep collaborator errors in the taxonomy even when a
// collaborator returns a bare error (a context deadline, for instance).

func fetchFailure(url string, err error) error {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &domain.FetchError{URL: url, Err: err}
}

func embeddingFailure(n int, err error) error {
	var ee *domain.EmbeddingError
	if errors.As(err, &ee) {
		return err
	}
	return &domain.EmbeddingError{Inputs: n, Err: err}
}

func storeFailure(op string, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}

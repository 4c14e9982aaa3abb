// Package search answers free-text product queries against the vector store.
// Search never fails: any collaborator error degrades to an empty result.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/WessleyAI/catalog-search/pkg/fn"
	"github.com/WessleyAI/catalog-search/pkg/metrics"
	"github.com/WessleyAI/catalog-search/pkg/resilience"
)

// DefaultTopK is the number of matches requested from the store.
const DefaultTopK = 5

// Search outcomes recorded in metrics.
const (
	OutcomeOK          = "ok"
	OutcomeEmptyQuery  = "empty_query"
	OutcomeFailed      = "failed"
	OutcomeBreakerOpen = "breaker_open"
)

// Deps holds the collaborators of the search service. Breaker and Metrics
// are optional.
type Deps struct {
	Embedder domain.Embedder
	Store    domain.VectorStore
	Logger   *slog.Logger
	Metrics  *metrics.Search
	Breaker  *resilience.Breaker
}

// Options tunes a search.
type Options struct {
	TopK int
	// MinScore drops matches scoring below it. Zero keeps the full top-K list.
	MinScore     float32
	EmbedTimeout time.Duration
	QueryTimeout time.Duration
}

// DefaultOptions returns the full top-5 list with no score filter.
func DefaultOptions() Options {
	return Options{
		TopK:         DefaultTopK,
		EmbedTimeout: 10 * time.Second,
		QueryTimeout: 10 * time.Second,
	}
}

// Service runs searches. It is safe for concurrent use.
type Service struct {
	deps Deps
	opts Options
	log  *slog.Logger
	run  fn.Stage[string, []domain.Match]
}

// New creates a Service. A non-positive TopK takes DefaultTopK.
func New(deps Deps, opts Options) *Service {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Service{deps: deps, opts: opts, log: log}
	s.run = resilience.BreakerStage(deps.Breaker, recoverStage(fn.Then(s.embedStage(), s.queryStage())))
	return s
}

// Search returns the matches for query ordered by descending score. The
// result is never nil. A panicking collaborator counts as a failed search.
func (s *Service) Search(ctx context.Context, query string) []domain.Match {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		s.deps.Metrics.Done(OutcomeEmptyQuery, 0, start)
		return []domain.Match{}
	}

	matches, err := s.run(ctx, query).Unwrap()
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, resilience.ErrCircuitOpen) {
			outcome = OutcomeBreakerOpen
		}
		s.log.Error("search: failed", "error", err, "outcome", outcome)
		s.deps.Metrics.Done(outcome, 0, start)
		return []domain.Match{}
	}

	matches = s.filter(matches)
	s.log.Debug("search: done", "matches", len(matches))
	s.deps.Metrics.Done(OutcomeOK, len(matches), start)
	return matches
}

func (s *Service) filter(matches []domain.Match) []domain.Match {
	out := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if s.opts.MinScore > 0 && m.Score < s.opts.MinScore {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Service) embedStage() fn.Stage[string, domain.Vector] {
	return fn.TracedStage("search.embed", func(ctx context.Context, query string) fn.Result[domain.Vector] {
		ctx, cancel := withTimeout(ctx, s.opts.EmbedTimeout)
		defer cancel()

		vec, err := s.deps.Embedder.Embed(ctx, query)
		if err != nil {
			var ee *domain.EmbeddingError
			if !errors.As(err, &ee) {
				err = &domain.EmbeddingError{Inputs: 1, Err: err}
			}
			return fn.Err[domain.Vector](err)
		}
		return fn.Ok(vec)
	})
}

func (s *Service) queryStage() fn.Stage[domain.Vector, []domain.Match] {
	return fn.TracedStage("search.query", func(ctx context.Context, vec domain.Vector) fn.Result[[]domain.Match] {
		ctx, cancel := withTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()

		matches, err := s.deps.Store.Query(ctx, vec, domain.QueryOptions{TopK: s.opts.TopK, ReturnMetadata: true})
		if err != nil {
			var se *domain.StoreError
			if !errors.As(err, &se) {
				err = &domain.StoreError{Op: "query", Err: err}
			}
			return fn.Err[[]domain.Match](err)
		}
		return fn.Ok(matches)
	})
}

// ErrPanic marks a search whose embedder or store panicked.
var ErrPanic = errors.New("search: collaborator panicked")

// recoverStage turns a panic in stage into an error result so the breaker and
// metrics see it as an ordinary failure.
func recoverStage[In, Out any](stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) (res fn.Result[Out]) {
		defer func() {
			if r := recover(); r != nil {
				res = fn.Err[Out](fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()
		return stage(ctx, in)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Package ollama provides an Ollama-backed domain.Embedder using the batch
// /api/embed endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// EmbedClient implements domain.Embedder using Ollama's HTTP API.
type EmbedClient struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

var _ domain.Embedder = (*EmbedClient)(nil)

// Option configures an EmbedClient.
type Option func(*EmbedClient)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EmbedClient) { e.client = c }
}

// WithRateLimit caps requests per second. Non-positive rps leaves calls
// unthrottled.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *EmbedClient) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// NewEmbedClient creates an Ollama embedding client.
func NewEmbedClient(baseURL, model string, opts ...Option) *EmbedClient {
	c := &EmbedClient{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedBatch embeds all texts in one request. Vectors come back in input
// order.
func (c *EmbedClient) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}
	fail := func(err error) error { return &domain.EmbeddingError{Inputs: len(texts), Err: err} }

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(err)
		}
	}

	body, err := json.Marshal(embedReq{Model: c.model, Input: texts})
	if err != nil {
		return nil, fail(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fail(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fail(fmt.Errorf("ollama embed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(fmt.Errorf("ollama embed: status %d", resp.StatusCode))
	}

	var result embedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fail(fmt.Errorf("ollama embed decode: %w", err))
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fail(fmt.Errorf("%w: got %d for %d inputs", domain.ErrVectorCount, len(result.Embeddings), len(texts)))
	}
	return result.Embeddings, nil
}

// Embed embeds a single text.
func (c *EmbedClient) Embed(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

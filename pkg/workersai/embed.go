// Package workersai provides a domain.Embedder backed by the Cloudflare
// Workers AI REST API.
package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Cloudflare API root.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"
	// DefaultModel produces 768-dimension vectors.
	DefaultModel = "@cf/baai/bge-base-en-v1.5"
	// DefaultDimensions is the output size of DefaultModel.
	DefaultDimensions = 768
)

// Config holds the account credentials and model.
type Config struct {
	BaseURL   string
	AccountID string
	APIToken  string
	Model     string
	// RPS caps requests per second; zero disables throttling.
	RPS   float64
	Burst int
}

// Client implements domain.Embedder.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
}

var _ domain.Embedder = (*Client)(nil)

// New creates a Workers AI client. A nil httpClient gets an instrumented
// default.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.AccountID == "" || cfg.APIToken == "" {
		return nil, errors.New("workersai: account id and api token are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	c := &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/accounts/" + cfg.AccountID + "/ai/run/" + cfg.Model,
		token:    cfg.APIToken,
		http:     httpClient,
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(cfg.Burst, 1))
	}
	return c, nil
}

type runRequest struct {
	Text []string `json:"text"`
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type runResponse struct {
	Result struct {
		Shape []int       `json:"shape"`
		Data  [][]float32 `json:"data"`
	} `json:"result"`
	Success bool         `json:"success"`
	Errors  []apiMessage `json:"errors"`
}

// EmbedBatch embeds texts in one model run, preserving order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.Vector, error) {
	if len(texts) == 0 {
		return []domain.Vector{}, nil
	}
	fail := func(err error) error { return &domain.EmbeddingError{Inputs: len(texts), Err: err} }

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(err)
		}
	}

	body, err := json.Marshal(runRequest{Text: texts})
	if err != nil {
		return nil, fail(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fail(fmt.Errorf("workersai run: %w", err))
	}
	defer resp.Body.Close()

	var out runResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode != http.StatusOK {
		return nil, fail(fmt.Errorf("workersai run: status %d%s", resp.StatusCode, describe(out.Errors)))
	}
	if decodeErr != nil {
		return nil, fail(fmt.Errorf("workersai decode: %w", decodeErr))
	}
	if !out.Success {
		return nil, fail(fmt.Errorf("workersai run: unsuccessful%s", describe(out.Errors)))
	}
	if len(out.Result.Data) != len(texts) {
		return nil, fail(fmt.Errorf("%w: got %d for %d inputs", domain.ErrVectorCount, len(out.Result.Data), len(texts)))
	}
	return out.Result.Data, nil
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func describe(msgs []apiMessage) string {
	if len(msgs) == 0 {
		return ""
	}
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = fmt.Sprintf("%d %s", m.Code, m.Message)
	}
	return ": " + strings.Join(parts, "; ")
}

// Package fetch downloads catalog text over HTTP.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultMaxBytes bounds the size of a fetched catalog.
const DefaultMaxBytes = 64 << 20

// Client implements domain.Fetcher.
type Client struct {
	http     *http.Client
	maxBytes int64
}

var _ domain.Fetcher = (*Client)(nil)

// New creates a Client. A nil httpClient gets an instrumented default; a
// non-positive maxBytes takes DefaultMaxBytes.
func New(httpClient *http.Client, maxBytes int64) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Client{http: httpClient, maxBytes: maxBytes}
}

// FetchText GETs url and returns the body. Network failures and non-2xx
// responses are reported as *domain.FetchError.
func (c *Client) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", &domain.FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBytes {
		return "", &domain.FetchError{URL: url, Err: fmt.Errorf("body exceeds %d bytes", c.maxBytes)}
	}
	return string(body), nil
}

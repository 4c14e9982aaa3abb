package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/WessleyAI/catalog-search/engine/ingest"
	"github.com/WessleyAI/catalog-search/pkg/metrics"
	"github.com/WessleyAI/catalog-search/pkg/mid"
	"github.com/prometheus/client_golang/prometheus"
)

const maxRequestBody = 1 << 20

type ingester interface {
	Ingest(ctx context.Context, sourceURL string) (ingest.Summary, error)
}

type searcher interface {
	Search(ctx context.Context, query string) []domain.Match
}

// serverDeps are the pieces the HTTP layer needs.
type serverDeps struct {
	Ingest     ingester
	Search     searcher
	Gatherer   prometheus.Gatherer
	Static     http.Handler
	CORSOrigin string
	Logger     *slog.Logger
}

func newHandler(d serverDeps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("/api/create-vector-database", mid.MaxBody(maxRequestBody)(handleCreate(d.Ingest, d.Logger)))
	mux.Handle("/api/search-product", mid.Chain(handleSearch(d.Search),
		mid.Methods(http.MethodPost),
		mid.MaxBody(maxRequestBody),
	))
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}
	if d.Static != nil {
		mux.Handle("/", d.Static)
	}

	return mid.Chain(mux,
		mid.Recover(d.Logger),
		mid.Logger(d.Logger),
		mid.CORS(d.CORSOrigin),
		mid.OTel("catalog-api"),
	)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// CreateRequest is the JSON body for POST /api/create-vector-database.
type CreateRequest struct {
	GoogleDriveURL string `json:"googleDriveUrl"`
}

// SearchRequest is the JSON body for POST /api/search-product.
type SearchRequest struct {
	Query string `json:"query"`
}

func handleCreate(ing ingester, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, r.Method+" Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.GoogleDriveURL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "googleDriveUrl is required"})
			return
		}

		sum, err := ing.Ingest(r.Context(), req.GoogleDriveURL)
		if err != nil {
			logger.Error("create vector database failed", "err", err)
			mid.InternalError(w)
			return
		}
		logger.Info("vector database created", "count", sum.Count, "batches", sum.Batches)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("Creating vector database"))
	}
}

// handleSearch always answers 200 with a JSON array. A body that does not
// decode is treated like an empty query.
func handleSearch(s searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			req.Query = ""
		}
		writeJSON(w, http.StatusOK, s.Search(r.Context(), req.Query))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

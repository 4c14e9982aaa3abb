package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/catalog-search/engine/semantic"
	"github.com/WessleyAI/catalog-search/pkg/config"
	"github.com/WessleyAI/catalog-search/pkg/ollama"
	"github.com/WessleyAI/catalog-search/pkg/workersai"
)

func testConfig() config.Config {
	return config.Config{
		EmbedProvider:      config.ProviderOllama,
		OllamaModel:        "test",
		VectorBackend:      config.BackendMemory,
		Dimensions:         2,
		BatchSize:          2,
		Concurrency:        1,
		FetchTimeout:       time.Second,
		EmbedTimeout:       time.Second,
		UpsertTimeout:      time.Second,
		TopK:               5,
		QueryTimeout:       time.Second,
		BreakerThreshold:   3,
		BreakerOpenTimeout: time.Second,
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("unexpected output: %s", buf.String())
	}

	buf.Reset()
	NewLogger(&buf, "nonsense").Info("default level")
	if !strings.Contains(buf.String(), "default level") {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestNewEmbedder(t *testing.T) {
	cfg := testConfig()
	e, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*ollama.EmbedClient); !ok {
		t.Fatalf("expected ollama client, got %T", e)
	}

	cfg.EmbedProvider = config.ProviderWorkersAI
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error without credentials")
	}
	cfg.CFAccountID, cfg.CFAPIToken = "acct", "token"
	e, err = NewEmbedder(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := e.(*workersai.Client); !ok {
		t.Fatalf("expected workers ai client, got %T", e)
	}

	cfg.EmbedProvider = "other"
	if _, err := NewEmbedder(cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestBuildUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.VectorBackend = "other"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildEndToEnd(t *testing.T) {
	ollamaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		out := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			if strings.Contains(text, "Widget") {
				out[i] = []float32{1, 0}
			} else {
				out[i] = []float32{0, 1}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
	}))
	defer ollamaSrv.Close()

	csvSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("Name,Short Description,SKU\nWidget,<b>Great</b> widget,ABC123\nGadget,,DEF456\nWidget,dup,ABC123\n"))
	}))
	defer csvSrv.Close()

	cfg := testConfig()
	cfg.OllamaURL = ollamaSrv.URL
	app, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	sum, err := app.Ingest.Ingest(context.Background(), csvSrv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Count != 2 || sum.Batches != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if n := app.Store.(*semantic.MemoryStore).Len(); n != 2 {
		t.Fatalf("expected 2 stored entries, got %d", n)
	}

	matches := app.Search.Search(context.Background(), "Widget please")
	if len(matches) == 0 || matches[0].Metadata.SKU != "ABC123" || matches[0].Metadata.ShortDescription != "Great widget" {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	families, err := app.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "catalog_ingest_records_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("ingest metrics not registered")
	}
}

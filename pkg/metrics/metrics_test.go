package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngest(reg)

	m.Run("ok")
	m.Run("failed")
	m.Run("ok")
	m.Batch(20)
	m.Batch(7)
	m.Failure("embed")
	m.EmbedSince(time.Now())
	m.UpsertSince(time.Now())

	if got := testutil.ToFloat64(m.runs.WithLabelValues("ok")); got != 2 {
		t.Errorf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.records); got != 27 {
		t.Errorf("records = %v", got)
	}
	if got := testutil.ToFloat64(m.batches); got != 2 {
		t.Errorf("batches = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("embed")); got != 1 {
		t.Errorf("embed failures = %v", got)
	}
}

func TestNilReceiversAreNoops(t *testing.T) {
	var im *Ingest
	im.Run("ok")
	im.Batch(3)
	im.Failure("fetch")
	im.EmbedSince(time.Now())
	im.UpsertSince(time.Now())

	var sm *Search
	sm.Done("ok", 1, time.Now())
}

func TestSearchCollectorsAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSearch(reg)
	m.Done("ok", 5, time.Now())
	m.Done("failed", 0, time.Now())

	if got := testutil.ToFloat64(m.requests.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok requests = %v", got)
	}

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "catalog_search_requests_total") {
		t.Fatalf("metrics output missing search counter:\n%s", body)
	}
}

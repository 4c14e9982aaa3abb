package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestIngestionErrorMatchesCause(t *testing.T) {
	cause := &EmbeddingError{Inputs: 3, Err: context.DeadlineExceeded}
	err := error(&IngestionError{Stage: "embed", Batch: 2, Err: cause})

	if !errors.Is(err, ErrIngestion) {
		t.Fatal("expected ErrIngestion")
	}
	if !errors.Is(err, ErrEmbedding) {
		t.Fatal("expected ErrEmbedding through the chain")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected deadline to be reachable")
	}
	if errors.Is(err, ErrStore) {
		t.Fatal("did not expect ErrStore")
	}
	var ee *EmbeddingError
	if !errors.As(err, &ee) || ee.Inputs != 3 {
		t.Fatalf("errors.As failed: %+v", ee)
	}
	if !strings.Contains(err.Error(), "batch 2") {
		t.Errorf("message missing batch: %s", err)
	}
}

func TestIngestionErrorWithoutBatch(t *testing.T) {
	err := &IngestionError{Stage: "fetch", Batch: -1, Err: &FetchError{URL: "http://x", Status: 404}}
	if strings.Contains(err.Error(), "batch") {
		t.Errorf("unexpected batch in message: %s", err)
	}
	if !errors.Is(err, ErrFetch) {
		t.Fatal("expected ErrFetch")
	}
}

func TestFetchErrorMessage(t *testing.T) {
	withStatus := &FetchError{URL: "http://x", Status: 500}
	if withStatus.Error() != "fetch http://x: status 500" {
		t.Errorf("got %q", withStatus.Error())
	}
	noResp := &FetchError{URL: "http://x", Err: errors.New("refused")}
	if noResp.Error() != "fetch http://x: refused" {
		t.Errorf("got %q", noResp.Error())
	}
}

func TestStoreErrorIs(t *testing.T) {
	err := &StoreError{Op: "query", Err: ErrDimension}
	if !errors.Is(err, ErrStore) || !errors.Is(err, ErrDimension) {
		t.Fatal("expected both ErrStore and ErrDimension")
	}
}

func TestMetadataOf(t *testing.T) {
	m := MetadataOf(Product{Name: "Widget", ShortDescription: "Great widget", SKU: "ABC123"})
	if m.Name != "Widget" || m.ShortDescription != "Great widget" || m.SKU != "ABC123" {
		t.Fatalf("unexpected metadata: %+v", m)
	}
}

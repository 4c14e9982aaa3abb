package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Typed errors below match these
// via errors.Is.
var (
	ErrFetch       = errors.New("catalog fetch failed")
	ErrEmbedding   = errors.New("embedding failed")
	ErrStore       = errors.New("vector store failed")
	ErrIngestion   = errors.New("ingestion failed")
	ErrVectorCount = errors.New("embedding count mismatch")
	ErrDimension   = errors.New("vector dimension mismatch")
)

// FetchError reports an unreachable catalog source or a non-success status.
// Status is 0 when no response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error        { return e.Err }
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// EmbeddingError reports a failed embedding service call.
type EmbeddingError struct {
	Inputs int
	Err    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed %d inputs: %v", e.Inputs, e.Err)
}

func (e *EmbeddingError) Unwrap() error        { return e.Err }
func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }

// StoreError reports a failed vector store operation.
type StoreError struct {
	Op  string // upsert, query, ...
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error        { return e.Err }
func (e *StoreError) Is(target error) bool { return target == ErrStore }

// IngestionError wraps whichever stage failure aborted an ingestion run.
// Batch is -1 for stages that run before batching.
type IngestionError struct {
	Stage string
	Batch int
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Batch >= 0 {
		return fmt.Sprintf("ingest: %s batch %d: %v", e.Stage, e.Batch, e.Err)
	}
	return fmt.Sprintf("ingest: %s: %v", e.Stage, e.Err)
}

func (e *IngestionError) Unwrap() error        { return e.Err }
func (e *IngestionError) Is(target error) bool { return target == ErrIngestion }

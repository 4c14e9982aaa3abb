// Package domain defines the catalog records, vector entries, and the
// collaborator contracts (fetcher, embedder, vector store) shared by the
// ingestion and search pipelines.
package domain

import "context"

// Product is a single cleaned catalog row. SKU is its identity key.
type Product struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	SKU              string `json:"sku"`
}

// Metadata is the payload stored alongside each vector and returned with matches.
type Metadata struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
	SKU              string `json:"sku"`
}

// MetadataOf copies the product fields into vector metadata.
func MetadataOf(p Product) Metadata {
	return Metadata{Name: p.Name, ShortDescription: p.ShortDescription, SKU: p.SKU}
}

// Vector is a fixed-dimension embedding produced by the embedding model.
type Vector = []float32

// Entry is a vector ready to be upserted. ID is at most MaxEntryIDLen bytes.
type Entry struct {
	ID       string
	Values   Vector
	Metadata Metadata
}

// MaxEntryIDLen bounds the length of Entry.ID.
const MaxEntryIDLen = 16

// Match is a single nearest-neighbour hit, ordered by descending Score.
type Match struct {
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// QueryOptions controls a similarity query.
type QueryOptions struct {
	TopK           int
	ReturnMetadata bool
}

// Fetcher retrieves the raw catalog text.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Embedder turns text into vectors. EmbedBatch must return exactly one vector
// per input, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
	Embed(ctx context.Context, text string) (Vector, error)
}

// VectorStore persists entries and answers similarity queries. Upsert is
// idempotent by Entry.ID.
type VectorStore interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vec Vector, opts QueryOptions) ([]Match, error)
}

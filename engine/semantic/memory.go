package semantic

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/coder/hnsw"
)

// MemoryStore is an in-process VectorStore backed by an HNSW graph with
// cosine distance. It suits local runs and tests; contents are lost on exit.
//
// Re-upserting an ID adds a fresh graph node and retires the old one, which
// queries skip. Retired nodes keep their memory until the store is dropped.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	graph   *hnsw.Graph[uint64]
	live    map[uint64]memoryEntry
	current map[string]uint64
	next    uint64
	retired int
}

type memoryEntry struct {
	id   string
	meta domain.Metadata
}

var _ domain.VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. With dims 0 the dimension is fixed
// by the first upsert.
func NewMemoryStore(dims int) *MemoryStore {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	return &MemoryStore{
		dims:    dims,
		graph:   g,
		live:    make(map[uint64]memoryEntry),
		current: make(map[string]uint64),
	}
}

// Len reports the number of distinct entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.current)
}

// Upsert inserts or replaces entries by ID. A batch with a vector of the
// wrong dimension is rejected whole.
func (m *MemoryStore) Upsert(ctx context.Context, entries []domain.Entry) error {
	if err := ctx.Err(); err != nil {
		return &domain.StoreError{Op: "upsert", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dims
	for _, e := range entries {
		if dims == 0 {
			dims = len(e.Values)
		}
		if len(e.Values) == 0 || len(e.Values) != dims {
			return &domain.StoreError{
				Op:  "upsert",
				Err: fmt.Errorf("%w: entry %q has %d values, want %d", domain.ErrDimension, e.ID, len(e.Values), dims),
			}
		}
	}
	m.dims = dims

	for _, e := range entries {
		if old, ok := m.current[e.ID]; ok {
			delete(m.live, old)
			m.retired++
		}
		key := m.next
		m.next++
		m.graph.Add(hnsw.MakeNode(key, slices.Clone(e.Values)))
		m.live[key] = memoryEntry{id: e.ID, meta: e.Metadata}
		m.current[e.ID] = key
	}
	return nil
}

// Query returns up to opts.TopK entries ordered by descending cosine
// similarity.
func (m *MemoryStore) Query(ctx context.Context, vec domain.Vector, opts domain.QueryOptions) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "query", Err: err}
	}
	if opts.TopK <= 0 {
		return nil, &domain.StoreError{Op: "query", Err: errors.New("topK must be positive")}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.current) == 0 {
		return []domain.Match{}, nil
	}
	if len(vec) != m.dims {
		return nil, &domain.StoreError{
			Op:  "query",
			Err: fmt.Errorf("%w: query has %d values, want %d", domain.ErrDimension, len(vec), m.dims),
		}
	}

	// Ask for enough neighbours that retired nodes cannot crowd out live ones.
	k := min(opts.TopK+m.retired, m.graph.Len())
	nodes := m.graph.Search(vec, k)

	matches := make([]domain.Match, 0, min(opts.TopK, len(nodes)))
	for _, n := range nodes {
		e, ok := m.live[n.Key]
		if !ok {
			continue
		}
		match := domain.Match{Score: 1 - hnsw.CosineDistance(vec, n.Value)}
		if opts.ReturnMetadata {
			match.Metadata = e.meta
		}
		matches = append(matches, match)
	}
	slices.SortStableFunc(matches, func(a, b domain.Match) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(matches) > opts.TopK {
		matches = matches[:opts.TopK]
	}
	return matches, nil
}

package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WessleyAI/catalog-search/engine/domain"
	"github.com/WessleyAI/catalog-search/pkg/fn"
	"github.com/cespare/xxhash/v2"
)

// DefaultBatchSize is the number of products sent per embedding call.
const DefaultBatchSize = 100

// PlanBatches splits records into consecutive batches of at most size,
// preserving order. A non-positive size falls back to DefaultBatchSize.
func PlanBatches(records []domain.Product, size int) [][]domain.Product {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return fn.Chunk(records, size)
}

// EmbedText is the text embedded for a product.
func EmbedText(p domain.Product) string {
	return "Name: " + p.Name + "\nShort Description: " + p.ShortDescription + "\nSKU: " + p.SKU
}

// Derived IDs start with idPrefix, which no verbatim SKU ID may, so they
// never collide with a real SKU. The second byte keeps the kinds apart.
const (
	idPrefix     = "#"
	kindSKU      = "s" // digest of a long or prefixed SKU
	kindPosition = "p" // positional ID for a missing SKU
	kindPosHash  = "q" // digest of a positional ID that does not fit
)

// EntryID derives the vector ID for the product at offset within batch.
// Short SKUs are used as-is. Longer ones, and SKUs starting with "#", are
// replaced by a digest, and a missing SKU falls back to a positional ID. The
// result never exceeds domain.MaxEntryIDLen.
func EntryID(sku string, batch, offset int) string {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		pos := strconv.Itoa(batch) + "-" + strconv.Itoa(offset)
		if id := idPrefix + kindPosition + pos; len(id) <= domain.MaxEntryIDLen {
			return id
		}
		return digest(kindPosHash, pos)
	}
	if len(sku) <= domain.MaxEntryIDLen && !strings.HasPrefix(sku, idPrefix) {
		return sku
	}
	return digest(kindSKU, sku)
}

// digest fills the ID budget after the two-byte header with the high bits of
// an xxhash of s.
func digest(kind, s string) string {
	hexLen := domain.MaxEntryIDLen - len(idPrefix) - len(kind)
	return idPrefix + kind + fmt.Sprintf("%016x", xxhash.Sum64String(s))[:hexLen]
}

// BuildEntries pairs each product in a batch with the vector at the same
// position. len(vectors) must equal len(batch).
func BuildEntries(batch int, products []domain.Product, vectors []domain.Vector) []domain.Entry {
	entries := make([]domain.Entry, len(products))
	for i, p := range products {
		entries[i] = domain.Entry{
			ID:       EntryID(p.SKU, batch, i),
			Values:   vectors[i],
			Metadata: domain.MetadataOf(p),
		}
	}
	return entries
}

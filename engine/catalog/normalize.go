// Package catalog turns a raw product CSV feed into clean, deduplicated
// product records.
package catalog

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/WessleyAI/catalog-search/engine/domain"
)

// Column positions in the feed. The header row is always skipped, so the
// order is fixed rather than read from it.
const (
	colName = iota
	colShortDescription
	colSKU
)

var (
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
	entityPattern = regexp.MustCompile(`&[^;]+;`)
)

// Normalize parses raw CSV text into products. Rows that cannot be parsed,
// start with an empty field, or carry no SKU are dropped. For a repeated SKU
// only the first row is kept.
func Normalize(raw string) []domain.Product {
	products, _ := NormalizeReader(strings.NewReader(raw))
	return products
}

// NormalizeReader is Normalize over a stream. Only read errors from r are
// returned; malformed rows never fail the parse.
//
// Each physical line is one record. Quoted fields may hold commas but never
// continue onto the next line, so a stray quote costs at most its own row.
func NormalizeReader(r io.Reader) ([]domain.Product, error) {
	br := bufio.NewReader(r)
	var (
		out    []domain.Product
		seen   = make(map[string]struct{})
		header = true
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return out, fmt.Errorf("catalog: read csv: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) != "" {
			if header {
				header = false
			} else if p, ok := parseLine(line); ok {
				if _, dup := seen[p.SKU]; !dup {
					seen[p.SKU] = struct{}{}
					out = append(out, p)
				}
			}
		}
		if err != nil {
			return out, nil
		}
	}
}

// parseLine turns one line into a product. ok is false for rows with an empty
// leading field or no SKU.
func parseLine(line string) (domain.Product, bool) {
	record := splitLine(line)
	// An empty leading field marks a row with no usable product even when
	// later columns are filled.
	if strings.TrimSpace(field(record, colName)) == "" {
		return domain.Product{}, false
	}
	p := productFromRecord(record)
	return p, p.SKU != ""
}

// splitLine reads line as a single strict CSV record. Lines the CSV grammar
// rejects, such as a bare or unbalanced quote, are split on every comma.
func splitLine(line string) []string {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = -1
	record, err := cr.Read()
	if err != nil {
		return strings.Split(line, ",")
	}
	return record
}

func productFromRecord(record []string) domain.Product {
	return domain.Product{
		Name:             cleanField(field(record, colName)),
		ShortDescription: cleanField(field(record, colShortDescription)),
		SKU:              cleanField(field(record, colSKU)),
	}
}

// field returns record[i], or "" for short rows.
func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}

func cleanField(s string) string {
	s = StripMarkup(strings.TrimSpace(s))
	return strings.TrimSpace(stripQuotes(s))
}

// StripMarkup removes tag-like substrings and replaces each entity reference
// with a single space. Applying it twice yields the same result as once.
func StripMarkup(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	return entityPattern.ReplaceAllString(s, " ")
}

// stripQuotes drops one leading and one trailing quote character.
func stripQuotes(s string) string {
	if s != "" && isQuote(s[0]) {
		s = s[1:]
	}
	if n := len(s); n > 0 && isQuote(s[n-1]) {
		s = s[:n-1]
	}
	return s
}

func isQuote(b byte) bool { return b == '"' || b == '\'' }

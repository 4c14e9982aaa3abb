package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/WessleyAI/catalog-search/engine/domain"
)

func TestNormalize_DedupAndStrip(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"Widget,<b>Great</b> widget,ABC123\n" +
		"Widget,<b>Great</b> widget,ABC123\n" +
		"Gadget,,DEF456\n"

	got := Normalize(raw)
	want := []domain.Product{
		{Name: "Widget", ShortDescription: "Great widget", SKU: "ABC123"},
		{Name: "Gadget", ShortDescription: "", SKU: "DEF456"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d products, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("product %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNormalize_FirstOccurrenceWins(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"First,one,S1\n" +
		"Other,two,S2\n" +
		"Second,three,S1\n"

	got := Normalize(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d", len(got))
	}
	if got[0].Name != "First" || got[0].SKU != "S1" {
		t.Errorf("expected first S1 row retained, got %+v", got[0])
	}
	if got[1].SKU != "S2" {
		t.Errorf("expected first-seen order, got %+v", got[1])
	}
}

func TestNormalize_DropsBlankAndEmptyLeadingField(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"\n" +
		"   \n" +
		",orphan description,S9\n" +
		"Kept,desc,S1\n" +
		"\n"

	got := Normalize(raw)
	if len(got) != 1 || got[0].SKU != "S1" {
		t.Fatalf("expected only S1, got %+v", got)
	}
}

func TestNormalize_ShortRowsTolerated(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"OnlyName\n" +
		"Name,desc\n" +
		"Full,desc,S1\n"

	got := Normalize(raw)
	if len(got) != 1 || got[0].SKU != "S1" {
		t.Fatalf("expected short rows dropped without failing, got %+v", got)
	}
}

func TestNormalize_QuotedCommas(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"\"Deluxe, large\",\"Soft, warm & dry\",Q1\n"

	got := Normalize(raw)
	if len(got) != 1 {
		t.Fatalf("expected 1 product, got %+v", got)
	}
	if got[0].Name != "Deluxe, large" {
		t.Errorf("name = %q", got[0].Name)
	}
	if got[0].ShortDescription != "Soft, warm & dry" {
		t.Errorf("description = %q", got[0].ShortDescription)
	}
}

func TestNormalize_HeaderOnlyAndEmpty(t *testing.T) {
	if got := Normalize(""); len(got) != 0 {
		t.Errorf("empty input: got %+v", got)
	}
	if got := Normalize("name,shortDescription,sku\n"); len(got) != 0 {
		t.Errorf("header only: got %+v", got)
	}
}

func TestNormalize_CRLF(t *testing.T) {
	got := Normalize("name,shortDescription,sku\r\nLamp,Desk lamp,L1\r\n")
	if len(got) != 1 || got[0].SKU != "L1" || got[0].ShortDescription != "Desk lamp" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestCleanField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  plain  ", "plain"},
		{"<p>Hello</p>", "Hello"},
		{"Fish&amp;Chips", "Fish Chips"},
		{"'single'", "single"},
		{"\"double\"", "double"},
		{"'\"nested\"'", "\"nested\""},
		{"<i>&nbsp;'quoted' </i>", "'quoted'"},
		{"\"", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanField(tt.in); got != tt.want {
			t.Errorf("cleanField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripMarkup_Idempotent(t *testing.T) {
	inputs := []string{
		"<b>Great</b> widget",
		"<<a>b>",
		"&;&a;",
		"a&b<x>;c",
		"<a&x;",
		"&&x;;",
		"no markup at all",
		"<div class=\"x\">Tom &amp; Jerry</div>",
		"",
	}
	for _, in := range inputs {
		once := StripMarkup(in)
		twice := StripMarkup(once)
		if once != twice {
			t.Errorf("StripMarkup not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestNormalizeReader_ReadError(t *testing.T) {
	_, err := NormalizeReader(failingReader{})
	if err == nil {
		t.Fatal("expected read error")
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNormalizeReader_Stream(t *testing.T) {
	got, err := NormalizeReader(strings.NewReader("name,shortDescription,sku\nA,a,1\nB,b,2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
}

func TestNormalize_StrayQuoteStaysOnItsLine(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"Widget,\"Best\" widget ever,ABC123\n" +
		"Gadget,plain,DEF456\n" +
		"Gizmo,plain,GHI789\n"

	got := Normalize(raw)
	if len(got) != 3 {
		t.Fatalf("expected 3 products, got %d: %+v", len(got), got)
	}
	if got[0].SKU != "ABC123" || got[0].ShortDescription != "Best\" widget ever" {
		t.Errorf("unexpected first product %+v", got[0])
	}
	if got[1].SKU != "DEF456" || got[2].SKU != "GHI789" {
		t.Errorf("later rows lost: %+v", got)
	}
}

func TestNormalize_UnterminatedQuote(t *testing.T) {
	raw := "name,shortDescription,sku\n" +
		"\"12 inch monitor,desc,M1\n" +
		"Gadget,plain,DEF456\n"

	got := Normalize(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 products, got %d: %+v", len(got), got)
	}
	if got[0].Name != "12 inch monitor" || got[0].SKU != "M1" {
		t.Errorf("unexpected first product %+v", got[0])
	}
}

func TestNormalize_BareQuoteInField(t *testing.T) {
	got := Normalize("name,shortDescription,sku\nMonitor,27\" screen,M27\n")
	if len(got) != 1 || got[0].ShortDescription != "27\" screen" {
		t.Fatalf("unexpected: %+v", got)
	}
}

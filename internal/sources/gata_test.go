package sources

import (
	"context"
	"testing"
	"time"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// mockFetcher serves canned documents by URL.
type mockFetcher struct {
	docs map[string][]byte
}

func (m *mockFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	body, ok := m.docs[url]
	if !ok {
		return nil, context.DeadlineExceeded
	}
	return &FetchedDocument{URL: url, StatusCode: 200, Body: body, FetchedAt: time.Now()}, nil
}

const gataListingHTML = `
<html><body>
<table class="grant-opportunities"><tbody>
<tr>
  <td class="title"><a href="/portal/opportunities/444-80-2891">Medicaid Policy Analysis Support</a></td>
  <td class="agency">Illinois Department of Healthcare and Family Services</td>
  <td class="close-date">4/15/2026</td>
  <td class="summary"><p>Support for <b>Medicaid</b> policy analysis.</p></td>
  <td class="nofo"></td>
</tr>
<tr>
  <td class="title"><a href="/portal/opportunities/532-10-0077">Rural Telehealth Expansion</a></td>
  <td class="agency">Illinois Department of Public Health</td>
  <td class="close-date"></td>
  <td class="summary"><p>Telehealth access for rural communities.</p></td>
  <td class="nofo"></td>
</tr>
<tr>
  <td class="title"><a href=""></a></td>
  <td class="agency">Broken Row Agency</td>
  <td class="close-date">5/1/2026</td>
  <td class="summary"><p>No title, should be skipped.</p></td>
  <td class="nofo"></td>
</tr>
</tbody></table>
</body></html>`

func testGATAConfig() SourceConfig {
	return SourceConfig{
		ID:      "illinois_gata",
		Origin:  models.SourceIllinoisGATA,
		BaseURL: "https://grants.example.gov/portal/opportunities",
		Selectors: SelectorConfig{
			Container:   "table.grant-opportunities tbody tr",
			Title:       "td.title a",
			Link:        "td.title a",
			Agency:      "td.agency",
			Deadline:    "td.close-date",
			Description: "td.summary",
			Attachment:  "td.nofo a[href$='.pdf']",
		},
	}
}

func TestGATADiscoverMapsListingRows(t *testing.T) {
	cfg := testGATAConfig()
	fetcher := &mockFetcher{docs: map[string][]byte{cfg.BaseURL: []byte(gataListingHTML)}}
	src := NewGATASource(cfg, fetcher)

	opps, err := src.Discover(context.Background(), match.Filters{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(opps) != 2 {
		t.Fatalf("expected 2 opportunities (malformed row dropped), got %d", len(opps))
	}

	first := opps[0]
	if first.ID != "gata-444-80-2891" {
		t.Fatalf("ID = %q", first.ID)
	}
	if first.Title != "Medicaid Policy Analysis Support" {
		t.Fatalf("Title = %q", first.Title)
	}
	if first.Source != models.SourceIllinoisGATA {
		t.Fatalf("Source = %q", first.Source)
	}
	if first.Agency != "Illinois Department of Healthcare and Family Services" {
		t.Fatalf("Agency = %q", first.Agency)
	}
	if first.URL != "https://grants.example.gov/portal/opportunities/444-80-2891" {
		t.Fatalf("URL = %q", first.URL)
	}
	if first.Description != "Support for Medicaid policy analysis." {
		t.Fatalf("Description = %q", first.Description)
	}
	if first.Deadline == nil {
		t.Fatal("expected deadline parsed from listing")
	}
	want := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	if !first.Deadline.Equal(want) {
		t.Fatalf("Deadline = %s, want %s", first.Deadline, want)
	}

	if opps[1].Deadline != nil {
		t.Fatalf("second row has no close date, got %s", opps[1].Deadline)
	}
}

func TestGATADiscoverKeywordFilter(t *testing.T) {
	cfg := testGATAConfig()
	fetcher := &mockFetcher{docs: map[string][]byte{cfg.BaseURL: []byte(gataListingHTML)}}
	src := NewGATASource(cfg, fetcher)

	opps, err := src.Discover(context.Background(), match.Filters{Keyword: "telehealth"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity for keyword filter, got %d", len(opps))
	}
	if opps[0].ID != "gata-532-10-0077" {
		t.Fatalf("ID = %q", opps[0].ID)
	}
}

func TestGATADiscoverMaxResults(t *testing.T) {
	cfg := testGATAConfig()
	fetcher := &mockFetcher{docs: map[string][]byte{cfg.BaseURL: []byte(gataListingHTML)}}
	src := NewGATASource(cfg, fetcher)

	opps, err := src.Discover(context.Background(), match.Filters{MaxResults: 1})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(opps) != 1 {
		t.Fatalf("expected MaxResults to cap at 1, got %d", len(opps))
	}
}

func TestGATADiscoverFetchError(t *testing.T) {
	src := NewGATASource(testGATAConfig(), &mockFetcher{docs: map[string][]byte{}})
	if _, err := src.Discover(context.Background(), match.Filters{}); err == nil {
		t.Fatal("expected error when listing fetch fails")
	}
}

func TestGataID(t *testing.T) {
	if got := gataID("/portal/opportunities/444-80-2891"); got != "gata-444-80-2891" {
		t.Fatalf("gataID = %q", got)
	}
	if got := gataID("444-80-2891"); got != "gata-444-80-2891" {
		t.Fatalf("gataID bare = %q", got)
	}
}

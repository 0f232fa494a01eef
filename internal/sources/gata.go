package sources

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// GATASource scrapes the Illinois GATA grant-opportunity listing. The
// CSS selectors live in the source registry, so portal markup changes
// are a config edit rather than a code change.
type GATASource struct {
	cfg     SourceConfig
	fetcher Fetcher
}

func NewGATASource(cfg SourceConfig, fetcher Fetcher) *GATASource {
	if fetcher == nil {
		fetcher = FetcherFromConfig(cfg.Fetch)
	}
	return &GATASource{cfg: cfg, fetcher: fetcher}
}

func (s *GATASource) Name() string { return s.cfg.ID }

// Discover fetches the listing page and maps each row to an
// Opportunity. A row without a parseable title or link is skipped; a
// NOFO PDF attachment is consulted for the deadline only when the
// listing itself carries none.
func (s *GATASource) Discover(ctx context.Context, filters match.Filters) ([]*models.Opportunity, error) {
	doc, err := s.fetcher.Fetch(ctx, s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetching GATA listing: %w", err)
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("parsing GATA listing: %w", err)
	}

	sel := s.cfg.Selectors
	var opps []*models.Opportunity

	page.Find(sel.Container).EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if filters.MaxResults > 0 && len(opps) >= filters.MaxResults {
			return false
		}

		title := normalizeSpace(row.Find(sel.Title).Text())
		link, _ := row.Find(sel.Link).Attr("href")
		if title == "" || link == "" {
			return true
		}
		if filters.Keyword != "" && !strings.Contains(strings.ToLower(title), strings.ToLower(filters.Keyword)) {
			return true
		}

		opp, err := models.NewOpportunity(gataID(link), title, s.cfg.Origin)
		if err != nil {
			log.Printf("[gata] skipping malformed row: %v", err)
			return true
		}
		opp.Agency = normalizeSpace(row.Find(sel.Agency).Text())
		opp.URL = s.absoluteURL(link)

		if html, err := row.Find(sel.Description).Html(); err == nil {
			opp.Description = SanitizeHTML(html)
		}
		opp.RawText = normalizeSpace(row.Text())

		if raw := normalizeSpace(row.Find(sel.Deadline).Text()); raw != "" {
			if t, ok := parseDeadlineToken(raw); ok {
				opp.Deadline = &t
			}
		}
		if opp.Deadline == nil && sel.Attachment != "" {
			if href, ok := row.Find(sel.Attachment).Attr("href"); ok {
				opp.Deadline = s.deadlineFromAttachment(ctx, s.absoluteURL(href))
			}
		}

		opps = append(opps, opp)
		return true
	})

	return opps, nil
}

// deadlineFromAttachment downloads a NOFO PDF and scans it for the
// latest upcoming date. Best effort: any failure just leaves the
// deadline unset.
func (s *GATASource) deadlineFromAttachment(ctx context.Context, pdfURL string) *time.Time {
	doc, err := s.fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		log.Printf("[gata] NOFO fetch failed for %s: %v", pdfURL, err)
		return nil
	}
	text, err := ExtractPDFText(doc.Body)
	if err != nil {
		log.Printf("[gata] NOFO parse failed for %s: %v", pdfURL, err)
		return nil
	}
	return FindDeadlineInText(text, time.Now().UTC())
}

func (s *GATASource) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// gataID derives a stable identifier from the opportunity link, which
// carries the portal's CSFA number as its last path segment.
func gataID(link string) string {
	trimmed := strings.TrimRight(link, "/")
	if idx := strings.LastIndexByte(trimmed, '/'); idx >= 0 && idx < len(trimmed)-1 {
		return "gata-" + trimmed[idx+1:]
	}
	return "gata-" + trimmed
}

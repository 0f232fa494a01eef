package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

const grantsGovDetailURL = "https://api.grants.gov/v1/api/fetchOpportunity"

// GrantsGovSource queries the Grants.gov search2 API for posted federal
// opportunities matching the configured keywords.
type GrantsGovSource struct {
	cfg    SourceConfig
	client *http.Client
}

func NewGrantsGovSource(cfg SourceConfig) *GrantsGovSource {
	timeout := 60 * time.Second
	if cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	return &GrantsGovSource{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *GrantsGovSource) Name() string { return s.cfg.ID }

type grantsGovSearchRequest struct {
	Keyword        string `json:"keyword"`
	OppStatuses    string `json:"oppStatuses"`
	SortBy         string `json:"sortBy"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

type grantsGovResponse struct {
	Data struct {
		HitCount int               `json:"hitCount"`
		OppHits  []grantsGovRecord `json:"oppHits"`
	} `json:"data"`
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
}

type grantsGovRecord struct {
	ID         string   `json:"id"`
	Number     string   `json:"number"`
	Title      string   `json:"title"`
	Agency     string   `json:"agency"`
	AgencyCode string   `json:"agencyCode"`
	OpenDate   string   `json:"openDate"`
	CloseDate  string   `json:"closeDate"`
	OppStatus  string   `json:"oppStatus"`
	CFDAList   []string `json:"cfdaList"`
}

// Discover runs one search per configured keyword (or the filter
// keyword, when given) and maps the hits to opportunities. Detail
// enrichment failures are logged and skipped, never fatal.
func (s *GrantsGovSource) Discover(ctx context.Context, filters match.Filters) ([]*models.Opportunity, error) {
	keywords := s.cfg.Keywords
	if filters.Keyword != "" {
		keywords = []string{filters.Keyword}
	}
	if len(keywords) == 0 {
		keywords = []string{"medicaid"}
	}

	rows := 25
	if filters.MaxResults > 0 && filters.MaxResults < rows {
		rows = filters.MaxResults
	}

	seen := make(map[string]bool)
	var opps []*models.Opportunity

	for _, keyword := range keywords {
		records, err := s.search(ctx, keyword, rows)
		if err != nil {
			return nil, fmt.Errorf("searching %q: %w", keyword, err)
		}

		for _, rec := range records {
			if rec.Title == "" || seen[rec.ID] {
				continue
			}
			seen[rec.ID] = true

			opp := s.toOpportunity(ctx, rec)
			if opp == nil {
				continue
			}
			opps = append(opps, opp)
			if filters.MaxResults > 0 && len(opps) >= filters.MaxResults {
				return opps, nil
			}
		}
	}
	return opps, nil
}

func (s *GrantsGovSource) search(ctx context.Context, keyword string, rows int) ([]grantsGovRecord, error) {
	body, err := json.Marshal(grantsGovSearchRequest{
		Keyword:     keyword,
		OppStatuses: "posted",
		SortBy:      "openDate|desc",
		Rows:        rows,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	log.Printf("[grantsgov] searching keyword=%q rows=%d", keyword, rows)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned %d: %s", resp.StatusCode, string(raw))
	}

	var apiResp grantsGovResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if apiResp.ErrorCode != 0 {
		return nil, fmt.Errorf("API error: %s", apiResp.Msg)
	}

	log.Printf("[grantsgov] got %d hits (total %d)", len(apiResp.Data.OppHits), apiResp.Data.HitCount)
	return apiResp.Data.OppHits, nil
}

// toOpportunity maps one search hit, returning nil for records that are
// already expired.
func (s *GrantsGovSource) toOpportunity(ctx context.Context, rec grantsGovRecord) *models.Opportunity {
	opp, err := models.NewOpportunity("grantsgov-"+rec.ID, rec.Title, s.cfg.Origin)
	if err != nil {
		log.Printf("[grantsgov] skipping malformed record %q: %v", rec.ID, err)
		return nil
	}

	opp.Agency = rec.Agency
	opp.URL = fmt.Sprintf("https://www.grants.gov/search-results-detail/%s", rec.ID)
	opp.Tags = append([]string{rec.Number}, rec.CFDAList...)

	if rec.OpenDate != "" {
		if t, err := time.Parse("01/02/2006", rec.OpenDate); err == nil {
			opp.PostedDate = &t
		}
	}
	if rec.CloseDate != "" {
		if t, err := time.Parse("01/02/2006", rec.CloseDate); err == nil {
			// The close date is a bare date; treat it as expiring at the
			// end of that day in UTC.
			if t.Add(24 * time.Hour).Before(time.Now().UTC()) {
				return nil
			}
			opp.Deadline = &t
		}
	}

	s.enrich(ctx, opp, rec.ID)

	opp.RawText = strings.Join([]string{rec.Agency, rec.AgencyCode, rec.Number, strings.Join(rec.CFDAList, " ")}, " ")
	return opp
}

// enrich pulls the synopsis description and eligibility from the detail
// endpoint, best effort.
func (s *GrantsGovSource) enrich(ctx context.Context, opp *models.Opportunity, oppID string) {
	body, _ := json.Marshal(map[string]string{"id": oppID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, grantsGovDetailURL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[grantsgov] detail fetch failed for %s: %v", oppID, err)
		return
	}
	defer resp.Body.Close()

	var detail struct {
		Synopsis struct {
			SynopsisDesc             string `json:"synopsisDesc"`
			ApplicantEligibilityDesc string `json:"applicantEligibilityDesc"`
			AwardCeiling             string `json:"awardCeiling"`
		} `json:"synopsis"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		log.Printf("[grantsgov] detail decode failed for %s: %v", oppID, err)
		return
	}

	if detail.Synopsis.SynopsisDesc != "" {
		opp.Description = HTMLToText(detail.Synopsis.SynopsisDesc)
	}
	if detail.Synopsis.ApplicantEligibilityDesc != "" {
		opp.Eligibility = HTMLToText(detail.Synopsis.ApplicantEligibilityDesc)
	}
	if detail.Synopsis.AwardCeiling != "" {
		opp.AwardAmount = detail.Synopsis.AwardCeiling
	}
}

package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testAdapter() *Adapter {
	a := NewAdapter(nil)
	a.Now = fixedClock
	return a
}

func federalOpp(id, title, description string) *models.Opportunity {
	return &models.Opportunity{
		ID:          id,
		Title:       title,
		Description: description,
		Eligibility: "Institutions of higher education",
		Source:      models.SourceFederalGrantsGov,
	}
}

func TestMatchOne_FilteredOut(t *testing.T) {
	a := testAdapter()
	opp := &models.Opportunity{
		ID:     "m-1",
		Title:  "Medicaid Program",
		Source: models.SourceOther, // no Illinois mention, not federal
	}

	m := a.MatchOne(context.Background(), opp)
	if m.ResearchDepth != models.DepthFilteredOut {
		t.Fatalf("expected filtered_out, got %s", m.ResearchDepth)
	}
	if m.MatchScore != 0 || m.KeywordScore != 0 {
		t.Fatalf("filtered match must have zero scores: %+v", m)
	}
	if !strings.Contains(m.Rationale, "Did not pass pre-filter") {
		t.Fatalf("rationale must carry the rejection reason: %q", m.Rationale)
	}
}

func TestMatchOne_HeuristicOnlyBelowThreshold(t *testing.T) {
	a := testAdapter()
	// "rural health" alone scores 15, well under the threshold.
	opp := federalOpp("m-2", "Rural Health Outreach", "")

	m := a.MatchOne(context.Background(), opp)
	if m.ResearchDepth != models.DepthHeuristicOnly {
		t.Fatalf("expected heuristic_only, got %s", m.ResearchDepth)
	}
	if m.MatchScore != 15 || m.KeywordScore != 15 {
		t.Fatalf("heuristic match score must equal keyword score: %+v", m)
	}
	if m.Analysis != nil {
		t.Fatal("heuristic match must not carry an analysis payload")
	}
	if m.RecommendedLead != "rural" {
		t.Fatalf("lead tagging must run for heuristic matches, got %q", m.RecommendedLead)
	}
}

func TestMatchOne_ScoreAtThresholdStaysHeuristic(t *testing.T) {
	a := testAdapter()
	a.Threshold = 35
	// Exactly 35: threshold is strict, so no escalation.
	opp := federalOpp("m-3", "Medicaid Study", "")

	m := a.MatchOne(context.Background(), opp)
	if m.KeywordScore != 35 {
		t.Fatalf("expected keyword score 35, got %d", m.KeywordScore)
	}
	if m.ResearchDepth != models.DepthHeuristicOnly {
		t.Fatalf("score equal to threshold must not escalate, got %s", m.ResearchDepth)
	}
}

func TestMatchOne_DeepAnalysisAboveThreshold(t *testing.T) {
	a := testAdapter()
	opp := federalOpp("m-4", "Medicaid Policy Monitoring", "regulatory analysis of state policy")

	m := a.MatchOne(context.Background(), opp)
	if m.ResearchDepth != models.DepthDeepAnalysis {
		t.Fatalf("expected deep_analysis, got %s", m.ResearchDepth)
	}
	if m.Analysis == nil {
		t.Fatal("deep match must carry the analysis payload")
	}
	if m.MatchScore != BlendScore(m.KeywordScore) {
		t.Fatalf("deep match score must be blended: %+v", m)
	}
	if m.MatchScore < m.KeywordScore {
		t.Fatal("blended score must never drop below the keyword score")
	}
}

func TestMatchOne_EscalationDisabledFallsBack(t *testing.T) {
	a := testAdapter()
	a.EscalationEnabled = false
	opp := federalOpp("m-5", "Medicaid Policy Monitoring", "regulatory analysis")

	m := a.MatchOne(context.Background(), opp)
	if m.ResearchDepth != models.DepthHeuristicOnly {
		t.Fatalf("expected heuristic fallback, got %s", m.ResearchDepth)
	}
	if m.MatchScore != m.KeywordScore {
		t.Fatalf("fallback must not blend: %+v", m)
	}
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, *models.Opportunity, int) (*models.AnalysisResult, error) {
	return nil, errors.New("analysis backend unavailable")
}

func TestMatchOne_AnalyzerErrorDegradesToHeuristic(t *testing.T) {
	a := testAdapter()
	a.Analyzer = failingAnalyzer{}
	opp := federalOpp("m-6", "Medicaid Policy Monitoring", "")

	m := a.MatchOne(context.Background(), opp)
	if m.ResearchDepth != models.DepthHeuristicOnly {
		t.Fatalf("expected degraded heuristic match, got %s", m.ResearchDepth)
	}
	if !strings.Contains(m.Rationale, "degraded") {
		t.Fatalf("rationale must note the degraded analysis: %q", m.Rationale)
	}
	if m.MatchScore != m.KeywordScore {
		t.Fatalf("degraded match must not blend: %+v", m)
	}
}

func TestBlendScore_Bounds(t *testing.T) {
	cases := []struct{ score, want int }{
		{95, 100}, // 95 + min(15, 9) = 104 -> clamp
		{30, 33},  // 30 + 3
		{0, 0},
		{100, 100},
		{60, 66},
	}
	for _, tc := range cases {
		got := BlendScore(tc.score)
		if got != tc.want {
			t.Fatalf("BlendScore(%d) = %d, want %d", tc.score, got, tc.want)
		}
		if got < tc.score || got > 100 {
			t.Fatalf("BlendScore(%d) = %d violates bounds", tc.score, got)
		}
	}
}

func TestMatchMany_StableSortByScore(t *testing.T) {
	a := testAdapter()
	a.EscalationEnabled = false
	a.Scorer = NewScorer([]KeywordWeight{
		{"alpha", 40},
		{"bravo", 90},
		{"charlie", 10},
	})

	opps := []*models.Opportunity{
		federalOpp("s-40", "alpha", ""),
		federalOpp("s-90-first", "bravo", ""),
		federalOpp("s-90-second", "bravo", ""),
		federalOpp("s-10", "charlie", ""),
	}

	matches := a.MatchMany(context.Background(), opps)

	gotIDs := make([]string, len(matches))
	for i, m := range matches {
		gotIDs[i] = m.GrantID
	}
	want := []string{"s-90-first", "s-90-second", "s-40", "s-10"}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("unexpected order: got %v, want %v", gotIDs, want)
		}
	}
}

func TestMatchMany_Deterministic(t *testing.T) {
	a := testAdapter()
	opps := []*models.Opportunity{
		federalOpp("d-1", "Medicaid Policy Monitoring Initiative", "regulatory analysis and rural health"),
		federalOpp("d-2", "Rural Health Outreach", "telehealth evaluation"),
		{ID: "d-3", Title: "Unrelated", Source: models.SourceOther},
	}

	first, err := json.Marshal(a.MatchMany(context.Background(), opps))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	second, err := json.Marshal(a.MatchMany(context.Background(), opps))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("repeated runs with a fixed clock must be byte-identical")
	}
}

type fakeDiscoverer struct {
	results []SourceResult
}

func (f *fakeDiscoverer) DiscoverAll(context.Context, Filters) []SourceResult {
	return f.results
}

func TestDiscoverAndMatch_IsolatesSourceFailures(t *testing.T) {
	a := testAdapter()
	a.Discoverer = &fakeDiscoverer{results: []SourceResult{
		{Source: "good", Opportunities: []*models.Opportunity{
			federalOpp("da-1", "Medicaid Study", ""),
		}},
		{Source: "broken", Err: fmt.Errorf("connection refused")},
	}}

	matches, failures := a.DiscoverAndMatch(context.Background(), Filters{})
	if failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
	if len(matches) != 1 || matches[0].GrantID != "da-1" {
		t.Fatalf("expected the healthy source's match, got %+v", matches)
	}
}

// End-to-end scenario pinning the full state machine plus the lead
// tie-break for "policy monitoring".
func TestMatchOne_IllinoisMedicaidScenario(t *testing.T) {
	a := testAdapter()
	deadline := fixedClock().AddDate(1, 0, 0)
	opp := &models.Opportunity{
		ID:          "e2e-1",
		Title:       "Illinois Medicaid Policy Monitoring Initiative",
		Eligibility: "Public Universities in Illinois",
		Deadline:    &deadline,
		Source:      models.SourceIllinoisGATA,
	}

	m := a.MatchOne(context.Background(), opp)

	// medicaid (35) + policy monitoring (25) at minimum.
	if m.KeywordScore < 60 {
		t.Fatalf("expected keyword score >= 60, got %d", m.KeywordScore)
	}
	if m.ResearchDepth != models.DepthDeepAnalysis {
		t.Fatalf("expected deep_analysis, got %s", m.ResearchDepth)
	}
	// "policy monitoring" lives in the data specialist's list only, so
	// data beats policy here.
	if m.RecommendedLead != "data" {
		t.Fatalf("expected data lead, got %q", m.RecommendedLead)
	}
	if m.MatchScore != BlendScore(m.KeywordScore) {
		t.Fatalf("expected blended score, got %+v", m)
	}
}

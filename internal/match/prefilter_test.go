package match

import (
	"strings"
	"testing"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

var refTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func eligibleOpp() *models.Opportunity {
	return &models.Opportunity{
		ID:          "pf-1",
		Title:       "Illinois Health Grant",
		Eligibility: "Open to public universities",
		Source:      models.SourceIllinoisGATA,
	}
}

func TestPreFilter_DeadlineOneSecondBeforeFails(t *testing.T) {
	opp := eligibleOpp()
	past := refTime.Add(-time.Second)
	opp.Deadline = &past

	passed, reason := PreFilter(opp, refTime)
	if passed {
		t.Fatal("expected failure for expired deadline")
	}
	if !strings.Contains(reason, "past") {
		t.Fatalf("expected reason mentioning past, got %q", reason)
	}
}

func TestPreFilter_DeadlineOneSecondAfterPasses(t *testing.T) {
	opp := eligibleOpp()
	future := refTime.Add(time.Second)
	opp.Deadline = &future

	passed, reason := PreFilter(opp, refTime)
	if !passed {
		t.Fatalf("expected pass, got %q", reason)
	}
	if reason != PassedPreFilterReason {
		t.Fatalf("unexpected pass reason: %q", reason)
	}
}

func TestPreFilter_MissingRegionalMentionFails(t *testing.T) {
	opp := &models.Opportunity{
		ID:          "pf-2",
		Title:       "Statewide Health Grant",
		Eligibility: "Open to public universities",
		Source:      models.SourceOther,
	}

	passed, reason := PreFilter(opp, refTime)
	if passed {
		t.Fatal("expected regional check failure")
	}
	if !strings.Contains(reason, "Illinois") {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestPreFilter_FederalSourceExemptFromRegionalCheck(t *testing.T) {
	opp := &models.Opportunity{
		ID:          "pf-3",
		Title:       "National Medicaid Research Program",
		Eligibility: "Institutions of higher education",
		Source:      models.SourceFederalGrantsGov,
	}

	passed, reason := PreFilter(opp, refTime)
	if !passed {
		t.Fatalf("federal source should pass without state mention, got %q", reason)
	}

	// Identical text under a non-federal origin fails the same check.
	opp.Source = models.SourceOther
	passed, _ = PreFilter(opp, refTime)
	if passed {
		t.Fatal("non-federal source without state mention should fail")
	}
}

func TestPreFilter_WholeWordRegionalMatch(t *testing.T) {
	// "il" must match as a word, not inside words like "mobile" or "fail".
	opp := &models.Opportunity{
		ID:          "pf-4",
		Title:       "Mobile health program for colleges that must not fail",
		Source:      models.SourceOther,
		Eligibility: "college",
	}
	if passed, _ := PreFilter(opp, refTime); passed {
		t.Fatal("embedded 'il' substrings should not satisfy the regional check")
	}

	opp.Title = "Health program, IL region"
	if passed, reason := PreFilter(opp, refTime); !passed {
		t.Fatalf("whole-word IL should pass, got %q", reason)
	}
}

func TestPreFilter_AudienceCheckFails(t *testing.T) {
	opp := &models.Opportunity{
		ID:          "pf-5",
		Title:       "Illinois Small Business Grant",
		Eligibility: "For-profit businesses only",
		Source:      models.SourceIllinoisGATA,
	}

	passed, reason := PreFilter(opp, refTime)
	if passed {
		t.Fatal("expected audience check failure")
	}
	if !strings.Contains(strings.ToLower(reason), "higher education") {
		t.Fatalf("unexpected reason: %q", reason)
	}
}

func TestPreFilter_AgencyTextCountsForRegionalCheck(t *testing.T) {
	opp := &models.Opportunity{
		ID:     "pf-6",
		Title:  "Rural Hospital Support",
		Agency: "Illinois Department of Public Health",
		// Audience phrase lives in the description here.
		Description: "Partnerships with any academic institution are encouraged.",
		Source:      models.SourceOther,
	}

	passed, reason := PreFilter(opp, refTime)
	if !passed {
		t.Fatalf("agency mention should satisfy regional check, got %q", reason)
	}
}

func TestPreFilter_CheckOrderDeadlineFirst(t *testing.T) {
	// An opportunity failing every check reports the deadline first.
	past := refTime.Add(-24 * time.Hour)
	opp := &models.Opportunity{
		ID:       "pf-7",
		Title:    "Unrelated Grant",
		Deadline: &past,
		Source:   models.SourceOther,
	}

	_, reason := PreFilter(opp, refTime)
	if !strings.Contains(reason, "past") {
		t.Fatalf("expected deadline failure to win, got %q", reason)
	}
}

package match

import (
	"context"
	"strings"
	"testing"
)

func TestSimulatedAnalyzer_RationaleFromCapabilities(t *testing.T) {
	a := NewSimulatedAnalyzer(NewRecommender(DefaultSpecialists))
	opp := textOpp(
		"Medicaid Innovation Program",
		"Supports policy monitoring and state policy analysis under an 1115 waiver.",
	)

	res, err := a.Analyze(context.Background(), opp, 80)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if !strings.HasPrefix(res.Rationale, "Strong alignment due to:") {
		t.Fatalf("unexpected rationale: %q", res.Rationale)
	}
	for _, want := range []string{"Medicaid policy expertise", "Policy monitoring capability", "State policy expertise"} {
		if !strings.Contains(res.Rationale, want) {
			t.Fatalf("rationale missing %q: %q", want, res.Rationale)
		}
	}
}

func TestSimulatedAnalyzer_GenericFallbacks(t *testing.T) {
	a := NewSimulatedAnalyzer(NewRecommender(DefaultSpecialists))
	opp := textOpp("Community Arts Grant", "Theater education for all ages")

	res, err := a.Analyze(context.Background(), opp, 20)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if res.Rationale != "General alignment with team research areas." {
		t.Fatalf("unexpected fallback rationale: %q", res.Rationale)
	}
	if len(res.AlignmentPoints) != 1 || res.AlignmentPoints[0] != "General research capability alignment" {
		t.Fatalf("unexpected fallback alignment: %v", res.AlignmentPoints)
	}
}

func TestSimulatedAnalyzer_RecommendationTiers(t *testing.T) {
	a := NewSimulatedAnalyzer(NewRecommender(DefaultSpecialists))
	opp := textOpp("Program", "")

	cases := []struct {
		score int
		want  string
	}{
		{75, "HIGH PRIORITY"},
		{90, "HIGH PRIORITY"},
		{50, "MEDIUM PRIORITY"},
		{74, "MEDIUM PRIORITY"},
		{49, "LOW PRIORITY"},
		{0, "LOW PRIORITY"},
	}
	for _, tc := range cases {
		res, err := a.Analyze(context.Background(), opp, tc.score)
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		if !strings.HasPrefix(res.Recommendation, tc.want) {
			t.Fatalf("score %d: expected %s, got %q", tc.score, tc.want, res.Recommendation)
		}
	}
}

func TestSimulatedAnalyzer_CarriesLeadBreakdown(t *testing.T) {
	a := NewSimulatedAnalyzer(NewRecommender(DefaultSpecialists))
	opp := textOpp("Program", "rural health evaluation with telehealth access")

	res, err := a.Analyze(context.Background(), opp, 60)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if res.RecommendedLead != "rural" {
		t.Fatalf("expected rural lead, got %q", res.RecommendedLead)
	}
	if res.LeadName != "Rural Health Specialist (Evaluation)" {
		t.Fatalf("unexpected lead name: %q", res.LeadName)
	}
	if res.LeadScores["rural"].Score == 0 {
		t.Fatalf("expected non-zero rural score in breakdown: %+v", res.LeadScores)
	}
}

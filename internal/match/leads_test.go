package match

import (
	"testing"
)

func TestRecommend_UniquePhrasesPickThatSpecialist(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	opp := textOpp("Program", "Funding for telehealth in rural hospital and critical access settings")

	lead, scores := r.Recommend(opp)
	if lead != "rural" {
		t.Fatalf("expected rural lead, got %q", lead)
	}
	if scores["policy"].Score != 0 || scores["data"].Score != 0 {
		t.Fatalf("expected zero scores for other specialists: %+v", scores)
	}
	if scores["rural"].Score != 3 {
		t.Fatalf("expected 3 rural phrase hits, got %d", scores["rural"].Score)
	}
}

func TestRecommend_NoKeywordsReturnsEmptySentinel(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	opp := textOpp("Arts education grant", "Support for community theater programs")

	lead, scores := r.Recommend(opp)
	if lead != "" {
		t.Fatalf("expected empty lead, got %q", lead)
	}
	for id, s := range scores {
		if s.Score != 0 {
			t.Fatalf("expected zero score for %s, got %d", id, s.Score)
		}
	}
}

func TestRecommend_TieGoesToFirstDeclaredSpecialist(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	// One policy phrase and one rural phrase: policy is declared first.
	opp := textOpp("Program", "interstate coordination of telehealth services")

	lead, scores := r.Recommend(opp)
	if scores["policy"].Score != 1 || scores["rural"].Score != 1 {
		t.Fatalf("expected a 1-1 tie, got %+v", scores)
	}
	if lead != "policy" {
		t.Fatalf("tie must go to the first declared specialist, got %q", lead)
	}
}

func TestRecommend_PolicyMonitoringBelongsToDataSpecialist(t *testing.T) {
	// "policy monitoring" appears only in the data specialist's list,
	// not the policy specialist's; this routing is pinned here because
	// it looks surprising.
	r := NewRecommender(DefaultSpecialists)
	opp := textOpp("Medicaid Policy Monitoring Initiative", "")

	lead, scores := r.Recommend(opp)
	if lead != "data" {
		t.Fatalf("expected data lead for policy monitoring, got %q (scores %+v)", lead, scores)
	}
	if scores["policy"].Score != 0 {
		t.Fatalf("policy specialist should not match, got %+v", scores["policy"])
	}
}

func TestRecommend_PresenceNotOccurrenceCounting(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	// "telehealth" repeated three times is still one phrase present;
	// distinct policy phrases outweigh it.
	opp := textOpp("Program", "telehealth telehealth telehealth via state plan amendment and fmap review")

	lead, scores := r.Recommend(opp)
	if scores["rural"].Score != 1 {
		t.Fatalf("expected presence count 1 for rural, got %d", scores["rural"].Score)
	}
	if lead != "policy" {
		t.Fatalf("expected policy lead, got %q (scores %+v)", lead, scores)
	}
}

func TestRecommend_BreakdownListsMatchedTerms(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	opp := textOpp("Program", "machine learning for document collection")

	_, scores := r.Recommend(opp)
	terms := scores["data"].MatchedTerms
	if len(terms) != 2 {
		t.Fatalf("expected 2 matched terms, got %v", terms)
	}
}

func TestRecommenderName(t *testing.T) {
	r := NewRecommender(DefaultSpecialists)
	if name := r.Name("data"); name != "Data Specialist (AI/Automation)" {
		t.Fatalf("unexpected name: %q", name)
	}
	if name := r.Name(""); name != "No specific lead match" {
		t.Fatalf("unexpected sentinel name: %q", name)
	}
}

package match

import (
	"testing"

	"github.com/mpart-uis/grant-scout/internal/models"
)

func textOpp(title, description string) *models.Opportunity {
	return &models.Opportunity{
		ID:          "test-1",
		Title:       title,
		Description: description,
		Source:      models.SourceIllinoisGATA,
	}
}

func TestScore_EmptyTextIsZero(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	if got := scorer.Score(textOpp("", "")); got != 0 {
		t.Fatalf("expected 0 for empty text, got %d", got)
	}
}

func TestScore_SingleOccurrenceContributesWeight(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	if got := scorer.Score(textOpp("State Medicaid Program", "")); got != 35 {
		t.Fatalf("expected 35 for one medicaid mention, got %d", got)
	}
}

func TestScore_RepeatedKeywordCappedAtDoubleWeight(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	// Three occurrences of a weight-35 keyword contribute exactly 70, not 105.
	if got := scorer.Score(textOpp("medicaid medicaid medicaid", "")); got != 70 {
		t.Fatalf("expected 70, got %d", got)
	}
}

func TestScore_BoundaryAwareMatching(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	if got := scorer.Score(textOpp("medicaidx expansion", "")); got != 0 {
		t.Fatalf("expected no match inside a longer word, got %d", got)
	}
}

func TestScore_OverlappingKeywordsDoubleCount(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	// "1115 waiver" matches the phrase (12), "1115" (10), and "waiver" (8)
	// independently. The overlap is a property, not a bug.
	if got := scorer.Score(textOpp("1115 waiver", "")); got != 30 {
		t.Fatalf("expected 30 from overlapping phrases, got %d", got)
	}
}

func TestScore_ClampedToHundred(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	opp := textOpp(
		"Medicaid medicaid policy monitoring policy monitoring",
		"regulatory analysis regulatory analysis rural health rural health policydelta policydelta",
	)
	if got := scorer.Score(opp); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
}

func TestScore_CoreKeywordsSumToHundred(t *testing.T) {
	sum := 0
	for _, kw := range DefaultKeywordWeights[:4] {
		sum += kw.Weight
	}
	if sum != 100 {
		t.Fatalf("core keyword weights must sum to 100, got %d", sum)
	}
}

func TestExplain_BreakdownInTableOrder(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	breakdown := scorer.Explain(textOpp("rural health and medicaid", ""))

	if len(breakdown.Matches) != 2 {
		t.Fatalf("expected 2 matched keywords, got %d", len(breakdown.Matches))
	}
	// medicaid is declared before rural health in the weight table.
	if breakdown.Matches[0].Phrase != "medicaid" || breakdown.Matches[1].Phrase != "rural health" {
		t.Fatalf("breakdown not in table order: %+v", breakdown.Matches)
	}
	if breakdown.Matches[0].Contribution != 35 || breakdown.Matches[1].Contribution != 15 {
		t.Fatalf("unexpected contributions: %+v", breakdown.Matches)
	}
	if breakdown.Total != 50 {
		t.Fatalf("expected total 50, got %d", breakdown.Total)
	}
}

func TestExplain_CountReported(t *testing.T) {
	scorer := NewScorer(DefaultKeywordWeights)
	breakdown := scorer.Explain(textOpp("medicaid medicaid medicaid", ""))

	if len(breakdown.Matches) != 1 {
		t.Fatalf("expected 1 matched keyword, got %d", len(breakdown.Matches))
	}
	m := breakdown.Matches[0]
	if m.Count != 3 || m.Weight != 35 || m.Contribution != 70 {
		t.Fatalf("unexpected breakdown entry: %+v", m)
	}
}

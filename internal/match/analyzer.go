package match

import (
	"context"
	"fmt"
	"strings"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// Analyzer is the escalation seam. The adapter invokes it only for
// opportunities whose keyword score clears the deep-analysis threshold;
// any implementation (rules, LLM) must satisfy this contract, and a
// failure degrades the item to a heuristic-only match rather than
// aborting the batch.
type Analyzer interface {
	Analyze(ctx context.Context, opp *models.Opportunity, keywordScore int) (*models.AnalysisResult, error)
}

// SimulatedAnalyzer is the default Analyzer: a deterministic,
// keyword-driven stand-in for a real analysis call. No network, no
// randomness, so escalated matches stay reproducible in tests.
type SimulatedAnalyzer struct {
	Leads *Recommender
}

func NewSimulatedAnalyzer(leads *Recommender) *SimulatedAnalyzer {
	return &SimulatedAnalyzer{Leads: leads}
}

func (a *SimulatedAnalyzer) Analyze(_ context.Context, opp *models.Opportunity, keywordScore int) (*models.AnalysisResult, error) {
	lead, scores := a.Leads.Recommend(opp)

	return &models.AnalysisResult{
		RecommendedLead: lead,
		LeadName:        a.Leads.Name(lead),
		Rationale:       simulatedRationale(opp),
		AlignmentPoints: simulatedAlignment(opp),
		Recommendation:  simulatedRecommendation(keywordScore),
		LeadScores:      scores,
	}, nil
}

func simulatedRationale(opp *models.Opportunity) string {
	titleLower := strings.ToLower(opp.Title)
	descLower := strings.ToLower(opp.Description)

	var capabilities []string
	if strings.Contains(titleLower, "medicaid") || strings.Contains(descLower, "medicaid") {
		capabilities = append(capabilities, "Medicaid policy expertise")
	}
	if strings.Contains(opp.Title, "1115") || strings.Contains(descLower, "waiver") {
		capabilities = append(capabilities, "1115 Waiver experience")
	}
	if strings.Contains(descLower, "policy monitoring") || strings.Contains(descLower, "regulatory monitoring") {
		capabilities = append(capabilities, "Policy monitoring capability")
	}
	if strings.Contains(descLower, "state policy") {
		capabilities = append(capabilities, "State policy expertise")
	}

	if len(capabilities) == 0 {
		return "General alignment with team research areas."
	}
	return fmt.Sprintf("Strong alignment due to: %s.", strings.Join(capabilities, ", "))
}

func simulatedAlignment(opp *models.Opportunity) []string {
	descLower := strings.ToLower(opp.Description)

	var points []string
	if strings.Contains(descLower, "medicaid") {
		points = append(points, "Direct experience with Medicaid policy implementation")
	}
	if strings.Contains(opp.Description, "1115") {
		points = append(points, "Specialized expertise in 1115 Waiver technical assistance")
	}
	if strings.Contains(descLower, "policy monitoring") || strings.Contains(descLower, "regulatory monitoring") {
		points = append(points, "Policy monitoring and regulatory analysis capabilities")
	}
	if strings.Contains(descLower, "state policy") {
		points = append(points, "State-level policy variation expertise")
	}
	if strings.Contains(descLower, "applied research") {
		points = append(points, "Implementation-focused applied research approach")
	}
	if strings.Contains(descLower, "rural") {
		points = append(points, "Rural health impact evaluation expertise")
	}

	if len(points) == 0 {
		return []string{"General research capability alignment"}
	}
	return points
}

func simulatedRecommendation(keywordScore int) string {
	switch {
	case keywordScore >= 75:
		return "HIGH PRIORITY: Apply - Strong alignment with core competencies"
	case keywordScore >= 50:
		return "MEDIUM PRIORITY: Consider - Moderate alignment, review details"
	default:
		return "LOW PRIORITY: Monitor - Weak alignment, skip for now"
	}
}

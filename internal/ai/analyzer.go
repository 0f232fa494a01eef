package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// LLMAnalyzer produces deep-analysis results with a local LLM. It fills
// the same AnalysisResult shape as the simulated analyzer, so the
// matching adapter can degrade to heuristics whenever the model is
// unreachable or returns garbage.
type LLMAnalyzer struct {
	Client *OllamaClient
	Leads  *match.Recommender
}

func NewLLMAnalyzer(client *OllamaClient, leads *match.Recommender) *LLMAnalyzer {
	if leads == nil {
		leads = match.NewRecommender(match.DefaultSpecialists)
	}
	return &LLMAnalyzer{Client: client, Leads: leads}
}

type llmAnalysis struct {
	RecommendedLead string   `json:"recommended_lead"`
	Rationale       string   `json:"rationale"`
	AlignmentPoints []string `json:"alignment_points"`
	Recommendation  string   `json:"recommendation"`
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, opp *models.Opportunity, keywordScore int) (*models.AnalysisResult, error) {
	prompt := a.buildPrompt(opp, keywordScore)

	raw, err := a.Client.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, fmt.Errorf("llm analysis failed: %w", err)
	}

	var parsed llmAnalysis
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("llm returned unparseable analysis: %w", err)
	}
	if parsed.Rationale == "" {
		return nil, fmt.Errorf("llm analysis missing rationale")
	}

	bestLead, leadScores := a.Leads.Recommend(opp)

	lead := strings.ToLower(strings.TrimSpace(parsed.RecommendedLead))
	if _, ok := leadScores[lead]; !ok {
		// Model named someone outside the roster; fall back to the
		// keyword-based recommendation.
		lead = bestLead
	}

	rec := strings.ToUpper(strings.TrimSpace(parsed.Recommendation))
	switch rec {
	case "HIGH", "MEDIUM", "LOW":
	default:
		switch {
		case keywordScore >= 75:
			rec = "HIGH"
		case keywordScore >= 50:
			rec = "MEDIUM"
		default:
			rec = "LOW"
		}
	}

	return &models.AnalysisResult{
		RecommendedLead: lead,
		LeadName:        a.Leads.Name(lead),
		Rationale:       strings.TrimSpace(parsed.Rationale),
		AlignmentPoints: parsed.AlignmentPoints,
		Recommendation:  rec,
		LeadScores:      leadScores,
	}, nil
}

func (a *LLMAnalyzer) buildPrompt(opp *models.Opportunity, keywordScore int) string {
	var b strings.Builder
	b.WriteString("You are evaluating a grant opportunity for a Medicaid policy research team ")
	b.WriteString("focused on state policy variations, automated policy monitoring, and rural health evaluation.\n\n")

	b.WriteString("Team leads:\n")
	for _, spec := range a.Leads.Specialists() {
		sample := spec.Keywords
		if len(sample) > 6 {
			sample = sample[:6]
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", spec.ID, spec.Name, strings.Join(sample, ", "))
	}

	fmt.Fprintf(&b, "\nGrant (keyword relevance score %d/100):\nTitle: %s\nAgency: %s\n", keywordScore, opp.Title, opp.Agency)
	if opp.Deadline != nil {
		fmt.Fprintf(&b, "Deadline: %s\n", opp.Deadline.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Description: %s\nEligibility: %s\n", opp.Description, opp.Eligibility)

	b.WriteString(`
Respond with JSON only:
{
  "recommended_lead": "<one of the team lead ids above>",
  "rationale": "<2-3 sentences on fit>",
  "alignment_points": ["<specific capability alignments>"],
  "recommendation": "<HIGH, MEDIUM, or LOW>"
}`)
	return b.String()
}

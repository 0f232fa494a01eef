package models

import "time"

// ResearchDepth records how a match was produced.
type ResearchDepth string

const (
	DepthFilteredOut   ResearchDepth = "filtered_out"
	DepthHeuristicOnly ResearchDepth = "heuristic_only"
	DepthDeepAnalysis  ResearchDepth = "deep_analysis"
)

// LeadScore is one specialist's breakdown from the lead recommender.
type LeadScore struct {
	Score        int      `json:"score"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// AnalysisResult is the structured output of the escalation step. Any
// implementation (simulated, rules engine, LLM) must return exactly this
// shape; the matching adapter does not care how it was computed.
type AnalysisResult struct {
	RecommendedLead string               `json:"recommended_lead"`
	LeadName        string               `json:"lead_name,omitempty"`
	Rationale       string               `json:"rationale"`
	AlignmentPoints []string             `json:"alignment_points"`
	Recommendation  string               `json:"recommendation"`
	LeadScores      map[string]LeadScore `json:"lead_scores,omitempty"`
}

// Match is the final output of matching one Opportunity against the
// research profile. Immutable after creation.
type Match struct {
	GrantID           string          `json:"grant_id"`
	GrantTitle        string          `json:"grant_title"`
	MatchScore        int             `json:"match_score"`
	KeywordScore      int             `json:"keyword_score"`
	ResearchDepth     ResearchDepth   `json:"research_depth"`
	RecommendedLead   string          `json:"recommended_lead"`
	Rationale         string          `json:"rationale"`
	AlignmentPoints   []string        `json:"alignment_points"`
	RecommendedAction string          `json:"recommended_action"`
	Analysis          *AnalysisResult `json:"analysis,omitempty"`
	GeneratedAt       time.Time       `json:"generated_at"`
}

// DecisionStatus is the workflow state a reviewer assigns to a matched grant.
type DecisionStatus string

const (
	DecisionNew         DecisionStatus = "new"
	DecisionUnderReview DecisionStatus = "under_review"
	DecisionPursuing    DecisionStatus = "pursuing"
	DecisionNotPursuing DecisionStatus = "not_pursuing"
	DecisionSubmitted   DecisionStatus = "submitted"
	DecisionAwarded     DecisionStatus = "awarded"
	DecisionDeclined    DecisionStatus = "declined"
)

// Decision tracks the team's follow-up on a matched grant.
type Decision struct {
	GrantID      string         `json:"grant_id"`
	Status       DecisionStatus `json:"status"`
	AssignedLead string         `json:"assigned_lead,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	UpdatedBy    string         `json:"updated_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

package match

import (
	"strings"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// Specialist is one of the fixed lead categories an opportunity can be
// routed to. The keyword lists are static configuration, each covering
// distinct semantic territory.
type Specialist struct {
	ID       string
	Name     string
	Keywords []string
}

// DefaultSpecialists holds the three leads in declaration order. The
// order is load-bearing: ties in Recommend are broken by the first
// specialist reaching the maximum count.
var DefaultSpecialists = []Specialist{
	{
		ID:   "policy",
		Name: "Policy Specialist (State/Regulatory)",
		Keywords: []string{
			"state policy", "medicaid variations", "1115 waiver", "regulatory analysis",
			"jurisdictional", "multi-state", "interstate", "state-federal",
			"waiver negotiation", "state plan", "spa", "state plan amendment",
			"cms approval", "federal match", "fmap", "state legislature",
		},
	},
	{
		ID:   "data",
		Name: "Data Specialist (AI/Automation)",
		Keywords: []string{
			"policy monitoring", "regulatory monitoring", "automated monitoring",
			"ai-assisted", "document collection", "nlp", "natural language",
			"machine learning", "data pipeline", "automated", "classification",
			"document intelligence", "scraping", "api", "data science",
		},
	},
	{
		ID:   "rural",
		Name: "Rural Health Specialist (Evaluation)",
		Keywords: []string{
			"rural health", "rural infrastructure", "government evaluation", "health disparities",
			"rural hospital", "critical access", "underserved", "telehealth",
			"government service", "rural population", "policy effectiveness",
			"rural access", "health equity", "evaluation", "impact assessment",
		},
	},
}

// Recommender assigns the single best-fitting specialist to an
// opportunity, or none.
type Recommender struct {
	specialists []Specialist
}

func NewRecommender(specialists []Specialist) *Recommender {
	return &Recommender{specialists: specialists}
}

// Specialists returns the configured leads in declaration order.
func (r *Recommender) Specialists() []Specialist {
	return r.specialists
}

// Name returns the human-readable name for a specialist ID, or a
// placeholder for the empty no-lead sentinel.
func (r *Recommender) Name(id string) string {
	for _, sp := range r.specialists {
		if sp.ID == id {
			return sp.Name
		}
	}
	return "No specific lead match"
}

// Recommend counts, per specialist, how many of its keyword phrases are
// present in the opportunity text (presence only, no occurrence
// counting) and returns the winner plus the full breakdown. A tie goes
// to the specialist declared first; if no keyword matches at all the
// empty sentinel is returned rather than an arbitrary lead.
func (r *Recommender) Recommend(opp *models.Opportunity) (string, map[string]models.LeadScore) {
	text := opp.MatchText()

	scores := make(map[string]models.LeadScore, len(r.specialists))
	bestID := ""
	bestScore := 0

	for _, sp := range r.specialists {
		var matched []string
		for _, keyword := range sp.Keywords {
			if strings.Contains(text, keyword) {
				matched = append(matched, keyword)
			}
		}
		scores[sp.ID] = models.LeadScore{Score: len(matched), MatchedTerms: matched}

		if len(matched) > bestScore {
			bestScore = len(matched)
			bestID = sp.ID
		}
	}

	if bestScore == 0 {
		return "", scores
	}
	return bestID, scores
}

package match

import (
	"regexp"
	"strings"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// KeywordWeight pairs a keyword phrase with its score weight. Weight
// tables are ordered slices, not maps, so scoring breakdowns and any
// derived text are deterministic.
type KeywordWeight struct {
	Phrase string
	Weight int
}

// DefaultKeywordWeights is the calibrated research-priority profile.
// The first four core phrases sum to 100; the bonus phrases below them
// carry supplemental weights that can push the raw sum above 100 before
// the final clamp.
var DefaultKeywordWeights = []KeywordWeight{
	// Core pillars
	{"medicaid", 35},
	{"policy monitoring", 25},
	{"regulatory analysis", 25},
	{"rural health", 15},

	// Bonus phrases
	{"policydelta", 20},
	{"policy delta", 18},
	{"national policy tracker", 18},
	{"healthcare infrastructure", 16},
	{"regulatory monitoring", 15},
	{"1115 waiver", 12},
	{"1115", 10},
	{"waiver", 8},
	{"state variations", 10},
	{"jurisdictional", 8},
	{"multi-state", 10},
	{"cross-state", 8},
	{"rural infrastructure", 8},
	{"health disparities", 8},
	{"government evaluation", 10},
	{"policy evaluation", 8},
	{"health policy", 8},
	{"technical assistance", 5},
	{"cms", 5},
}

// KeywordMatch is one keyword's contribution to a score.
type KeywordMatch struct {
	Phrase       string `json:"phrase"`
	Count        int    `json:"count"`
	Weight       int    `json:"weight"`
	Contribution int    `json:"contribution"`
}

// ScoreBreakdown explains how a score was assembled, in weight-table order.
type ScoreBreakdown struct {
	Total   int            `json:"total"`
	Matches []KeywordMatch `json:"matches"`
}

// Scorer computes a deterministic keyword-weighted relevance score in
// [0,100] over an opportunity's text. Pure text processing, no external
// calls.
type Scorer struct {
	weights  []KeywordWeight
	patterns []*regexp.Regexp
}

// NewScorer compiles a boundary-aware pattern per keyword phrase, so
// "medicaid" matches inside "State Medicaid Program" but not inside
// "medicaidx". Phrases that are substrings of other phrases each match
// independently; the overlap double-counts on purpose.
func NewScorer(weights []KeywordWeight) *Scorer {
	s := &Scorer{
		weights:  weights,
		patterns: make([]*regexp.Regexp, len(weights)),
	}
	for i, kw := range weights {
		s.patterns[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(kw.Phrase)) + `\b`)
	}
	return s
}

// Score returns the clamped keyword score for an opportunity. Each
// keyword contributes min(count*weight, weight*2), so a single repeated
// term can never dominate; the sum is clamped to [0,100]. Empty text
// scores 0.
func (s *Scorer) Score(opp *models.Opportunity) int {
	return s.Explain(opp).Total
}

// Explain returns the per-keyword breakdown behind Score, used for
// rationale generation downstream.
func (s *Scorer) Explain(opp *models.Opportunity) ScoreBreakdown {
	text := opp.MatchText()

	var breakdown ScoreBreakdown
	total := 0
	for i, kw := range s.weights {
		count := len(s.patterns[i].FindAllStringIndex(text, -1))
		if count == 0 {
			continue
		}
		contribution := count * kw.Weight
		if max := kw.Weight * 2; contribution > max {
			contribution = max
		}
		total += contribution
		breakdown.Matches = append(breakdown.Matches, KeywordMatch{
			Phrase:       kw.Phrase,
			Count:        count,
			Weight:       kw.Weight,
			Contribution: contribution,
		})
	}

	if total > 100 {
		total = 100
	}
	breakdown.Total = total
	return breakdown
}

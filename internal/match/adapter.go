package match

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// DefaultDeepAnalysisThreshold is the keyword score an opportunity must
// exceed before the adapter escalates it to the Analyzer.
const DefaultDeepAnalysisThreshold = 50

// Filters narrows a discovery run. Zero value means "everything".
type Filters struct {
	Keyword    string
	MaxResults int
}

// SourceResult is one source's contribution to a discovery run, in
// source-registration order.
type SourceResult struct {
	Source        string
	Opportunities []*models.Opportunity
	Err           error
}

// Discoverer is the slice of the discovery pipeline the adapter needs
// for full discover-and-match runs.
type Discoverer interface {
	DiscoverAll(ctx context.Context, filters Filters) []SourceResult
}

// Adapter turns opportunities into Match records: it decides research
// depth per item, runs the lead recommender on every non-filtered item,
// and escalates high scorers through the Analyzer with a blended score.
type Adapter struct {
	Scorer            *Scorer
	Leads             *Recommender
	Analyzer          Analyzer
	Threshold         int
	EscalationEnabled bool
	Discoverer        Discoverer

	// Now is the reference clock for pre-filter deadlines and the
	// GeneratedAt stamp. Injectable so batch runs are reproducible.
	Now func() time.Time
}

// NewAdapter builds an adapter with the default profile, simulated
// escalation, and threshold. The discoverer may be nil when only
// MatchOne/MatchMany are used.
func NewAdapter(d Discoverer) *Adapter {
	leads := NewRecommender(DefaultSpecialists)
	return &Adapter{
		Scorer:            NewScorer(DefaultKeywordWeights),
		Leads:             leads,
		Analyzer:          NewSimulatedAnalyzer(leads),
		Threshold:         DefaultDeepAnalysisThreshold,
		EscalationEnabled: true,
		Discoverer:        d,
		Now:               time.Now,
	}
}

// MatchOne applies the per-item state machine:
//
//	pre-filter fails                       -> filtered_out, score 0
//	score <= threshold                     -> heuristic_only
//	score >  threshold, escalation on      -> deep_analysis, blended score
//	score >  threshold, escalation off/err -> heuristic_only fallback
//
// It never returns an error: scoring is total, and an Analyzer failure
// degrades the single item instead of surfacing.
func (a *Adapter) MatchOne(ctx context.Context, opp *models.Opportunity) *models.Match {
	now := a.Now()

	passed, reason := PreFilter(opp, now)
	if !passed {
		return &models.Match{
			GrantID:           opp.ID,
			GrantTitle:        opp.Title,
			MatchScore:        0,
			KeywordScore:      0,
			ResearchDepth:     models.DepthFilteredOut,
			Rationale:         fmt.Sprintf("Did not pass pre-filter: %s", reason),
			RecommendedAction: "Skip - does not meet basic criteria",
			GeneratedAt:       now,
		}
	}

	keywordScore := a.Scorer.Score(opp)

	if keywordScore > a.Threshold && a.EscalationEnabled {
		analysis, err := a.Analyzer.Analyze(ctx, opp, keywordScore)
		if err == nil {
			return a.deepMatch(opp, keywordScore, analysis, now)
		}
		log.Printf("[match] analysis failed for %q, degrading to heuristic: %v", opp.ID, err)
		m := a.heuristicMatch(opp, keywordScore, now)
		m.Rationale = fmt.Sprintf("%s (deep analysis unavailable, degraded to heuristic result)", m.Rationale)
		return m
	}

	return a.heuristicMatch(opp, keywordScore, now)
}

func (a *Adapter) heuristicMatch(opp *models.Opportunity, keywordScore int, now time.Time) *models.Match {
	breakdown := a.Scorer.Explain(opp)

	var rationale string
	if len(breakdown.Matches) > 0 {
		parts := make([]string, 0, 3)
		for _, m := range breakdown.Matches {
			parts = append(parts, fmt.Sprintf("%s(%d)", m.Phrase, m.Contribution))
			if len(parts) == 3 {
				break
			}
		}
		rationale = fmt.Sprintf("Keyword matches: %s. Score: %d/100", strings.Join(parts, ", "), keywordScore)
	} else {
		rationale = fmt.Sprintf("No high-value keywords matched. Score: %d/100", keywordScore)
	}

	var alignment []string
	for _, m := range breakdown.Matches {
		alignment = append(alignment, m.Phrase)
		if len(alignment) == 5 {
			break
		}
	}

	lead, _ := a.Leads.Recommend(opp)

	return &models.Match{
		GrantID:           opp.ID,
		GrantTitle:        opp.Title,
		MatchScore:        keywordScore,
		KeywordScore:      keywordScore,
		ResearchDepth:     models.DepthHeuristicOnly,
		RecommendedLead:   lead,
		Rationale:         rationale,
		AlignmentPoints:   alignment,
		RecommendedAction: "Review - Consider for deeper analysis if resources allow",
		GeneratedAt:       now,
	}
}

func (a *Adapter) deepMatch(opp *models.Opportunity, keywordScore int, analysis *models.AnalysisResult, now time.Time) *models.Match {
	return &models.Match{
		GrantID:           opp.ID,
		GrantTitle:        opp.Title,
		MatchScore:        BlendScore(keywordScore),
		KeywordScore:      keywordScore,
		ResearchDepth:     models.DepthDeepAnalysis,
		RecommendedLead:   analysis.RecommendedLead,
		Rationale:         analysis.Rationale,
		AlignmentPoints:   analysis.AlignmentPoints,
		RecommendedAction: analysis.Recommendation,
		Analysis:          analysis,
		GeneratedAt:       now,
	}
}

// BlendScore adds the escalation bonus to a keyword score:
// min(score + min(15, score/10), 100). The bonus is bounded so a deeper
// look can nudge a score, never manufacture one, and the result is
// always >= the raw score.
func BlendScore(keywordScore int) int {
	bonus := keywordScore / 10
	if bonus > 15 {
		bonus = 15
	}
	blended := keywordScore + bonus
	if blended > 100 {
		blended = 100
	}
	return blended
}

// MatchMany matches each opportunity and returns the results sorted by
// match score descending. The sort is stable, so ties keep their input
// order, and with a fixed clock the whole output is deterministic.
func (a *Adapter) MatchMany(ctx context.Context, opps []*models.Opportunity) []*models.Match {
	matches := make([]*models.Match, 0, len(opps))
	for _, opp := range opps {
		matches = append(matches, a.MatchOne(ctx, opp))
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})

	deep, heuristic, filtered := 0, 0, 0
	for _, m := range matches {
		switch m.ResearchDepth {
		case models.DepthDeepAnalysis:
			deep++
		case models.DepthHeuristicOnly:
			heuristic++
		default:
			filtered++
		}
	}
	log.Printf("[match] batch complete: %d deep, %d heuristic, %d filtered out", deep, heuristic, filtered)

	return matches
}

// DiscoverAndMatch runs discovery across every registered source,
// flattens the per-source results in registration order, and matches
// them all. A broken source contributes nothing and bumps the failure
// count; the run itself always produces a best-effort sorted list.
func (a *Adapter) DiscoverAndMatch(ctx context.Context, filters Filters) ([]*models.Match, int) {
	if a.Discoverer == nil {
		log.Printf("[match] no discoverer configured, nothing to discover")
		return nil, 0
	}

	results := a.Discoverer.DiscoverAll(ctx, filters)

	var all []*models.Opportunity
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			continue
		}
		all = append(all, res.Opportunities...)
	}
	log.Printf("[match] discovered %d opportunities from %d sources (%d failed)", len(all), len(results), failures)

	return a.MatchMany(ctx, all), failures
}

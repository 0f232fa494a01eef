package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

var matchCSVHeader = []string{
	"grant_id", "grant_title", "match_score", "keyword_score",
	"research_depth", "recommended_lead", "recommended_action",
	"rationale", "alignment_points", "generated_at",
}

// WriteMatchesCSV renders matches as CSV, one row per match, in the
// order given.
func WriteMatchesCSV(w io.Writer, matches []models.Match) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(matchCSVHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, m := range matches {
		row := []string{
			m.GrantID,
			m.GrantTitle,
			strconv.Itoa(m.MatchScore),
			strconv.Itoa(m.KeywordScore),
			string(m.ResearchDepth),
			m.RecommendedLead,
			m.RecommendedAction,
			m.Rationale,
			strings.Join(m.AlignmentPoints, "; "),
			m.GeneratedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row for %s: %w", m.GrantID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

var opportunityCSVHeader = []string{
	"id", "title", "agency", "source", "deadline", "award_amount",
	"keyword_score", "recommended_lead", "url",
}

// WriteOpportunitiesCSV renders opportunities as CSV.
func WriteOpportunitiesCSV(w io.Writer, opps []models.Opportunity) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(opportunityCSVHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, o := range opps {
		deadline := ""
		if o.Deadline != nil {
			deadline = o.Deadline.UTC().Format("2006-01-02")
		}
		row := []string{
			o.ID, o.Title, o.Agency, string(o.Source), deadline, o.AwardAmount,
			strconv.Itoa(o.KeywordScore), o.RecommendedLead, o.URL,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row for %s: %w", o.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// Digest is the plain-text summary of one discovery run, sent after
// scheduled runs and renderable from the CLI.
type Digest struct {
	Organization string
	RunAt        time.Time
	SourcesTotal int
	SourcesFail  int
	Matches      []models.Match

	// TopN caps the per-match detail section. Zero means 10.
	TopN int
}

// Render produces the digest body. Matches are expected pre-sorted by
// match score descending, as MatchMany returns them.
func (d Digest) Render() string {
	topN := d.TopN
	if topN <= 0 {
		topN = 10
	}

	deep, heuristic, filtered := 0, 0, 0
	leadCounts := make(map[string]int)
	for _, m := range d.Matches {
		switch m.ResearchDepth {
		case models.DepthDeepAnalysis:
			deep++
		case models.DepthHeuristicOnly:
			heuristic++
		default:
			filtered++
		}
		if m.ResearchDepth != models.DepthFilteredOut && m.RecommendedLead != "" {
			leadCounts[m.RecommendedLead]++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s grant discovery digest — %s\n\n", d.Organization, d.RunAt.UTC().Format("2006-01-02 15:04 UTC"))
	fmt.Fprintf(&b, "Sources: %d checked, %d failed\n", d.SourcesTotal, d.SourcesFail)
	fmt.Fprintf(&b, "Results: %d total (%d deep analysis, %d heuristic, %d filtered out)\n\n",
		len(d.Matches), deep, heuristic, filtered)

	if len(leadCounts) > 0 {
		b.WriteString("By recommended lead:\n")
		leads := make([]string, 0, len(leadCounts))
		for lead := range leadCounts {
			leads = append(leads, lead)
		}
		sort.Strings(leads)
		for _, lead := range leads {
			fmt.Fprintf(&b, "  %-8s %d\n", lead, leadCounts[lead])
		}
		b.WriteString("\n")
	}

	b.WriteString("Top matches:\n")
	listed := 0
	for _, m := range d.Matches {
		if m.ResearchDepth == models.DepthFilteredOut {
			continue
		}
		fmt.Fprintf(&b, "  [%3d] %s\n", m.MatchScore, m.GrantTitle)
		if m.RecommendedLead != "" {
			fmt.Fprintf(&b, "        lead: %s, depth: %s\n", m.RecommendedLead, m.ResearchDepth)
		}
		if m.Rationale != "" {
			fmt.Fprintf(&b, "        %s\n", m.Rationale)
		}
		listed++
		if listed == topN {
			break
		}
	}
	if listed == 0 {
		b.WriteString("  (none passed the pre-filter)\n")
	}

	return b.String()
}

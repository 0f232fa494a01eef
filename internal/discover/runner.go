package discover

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// RunStore is the persistence slice a full discovery run needs.
// *db.Store satisfies it; a nil store makes the run ephemeral.
type RunStore interface {
	StartRun(ctx context.Context, sourcesTotal int) (uuid.UUID, error)
	FinishRun(ctx context.Context, id uuid.UUID, sourcesFailed, found, kept int) error
	SaveOpportunity(ctx context.Context, o *models.Opportunity) error
	SaveMatches(ctx context.Context, runID uuid.UUID, matches []*models.Match) error
}

// AlertSender delivers immediate notices for very high-scoring matches.
type AlertSender interface {
	SendAlert(m *models.Match) error
}

// Embedder produces a semantic vector for an opportunity's text.
// *ai.OllamaClient satisfies it.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingStore persists opportunity vectors. *db.Store satisfies it.
type EmbeddingStore interface {
	SetOpportunityEmbedding(ctx context.Context, id string, embedding []float32) error
}

// Runner executes one end-to-end discovery run: query all sources,
// match everything, persist, and alert. It is shared by the scheduled
// server job, the admin endpoint, and the CLI.
type Runner struct {
	Pipeline *Pipeline
	Adapter  *match.Adapter
	Store    RunStore    // nil: skip persistence
	Alerts   AlertSender // nil: skip alerting

	// Embedder and Embeddings together enable semantic-vector enrichment
	// of persisted opportunities; either nil skips it.
	Embedder   Embedder
	Embeddings EmbeddingStore

	// AlertThreshold triggers per-match alerts at or above this match
	// score. Zero disables alerting.
	AlertThreshold int
}

// RunReport summarizes one discovery run.
type RunReport struct {
	RunID         uuid.UUID             `json:"run_id,omitempty"`
	SourcesTotal  int                   `json:"sources_total"`
	SourcesFailed int                   `json:"sources_failed"`
	Found         int                   `json:"opportunities_found"`
	Kept          int                   `json:"matches_kept"`
	Matches       []*models.Match       `json:"matches"`
	Opportunities []*models.Opportunity `json:"-"`
}

// Run performs discovery and matching. Source failures are tolerated
// and counted; a persistence failure aborts the run with an error
// because a half-saved run is worse than a retried one.
func (r *Runner) Run(ctx context.Context, filters match.Filters) (*RunReport, error) {
	results := r.Pipeline.DiscoverAll(ctx, filters)

	seen := make(map[string]bool)
	var opps []*models.Opportunity
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			failures++
			continue
		}
		for _, opp := range res.Opportunities {
			if seen[opp.ID] {
				continue
			}
			seen[opp.ID] = true
			opps = append(opps, opp)
		}
	}

	matches := r.Adapter.MatchMany(ctx, opps)

	kept := 0
	for _, m := range matches {
		if m.ResearchDepth != models.DepthFilteredOut {
			kept++
		}
	}

	report := &RunReport{
		SourcesTotal:  len(results),
		SourcesFailed: failures,
		Found:         len(opps),
		Kept:          kept,
		Matches:       matches,
		Opportunities: opps,
	}

	if r.Store != nil {
		runID, err := r.Store.StartRun(ctx, len(results))
		if err != nil {
			return nil, fmt.Errorf("starting run: %w", err)
		}
		report.RunID = runID

		for _, opp := range opps {
			if err := r.Store.SaveOpportunity(ctx, opp); err != nil {
				return nil, fmt.Errorf("persisting run %s: %w", runID, err)
			}
		}
		if err := r.Store.SaveMatches(ctx, runID, matches); err != nil {
			return nil, fmt.Errorf("persisting run %s: %w", runID, err)
		}
		if err := r.Store.FinishRun(ctx, runID, failures, len(opps), kept); err != nil {
			return nil, fmt.Errorf("finishing run %s: %w", runID, err)
		}
	}

	// Embeddings ride along after the rows exist; a failed vector never
	// fails the run.
	if r.Embedder != nil && r.Embeddings != nil {
		for _, opp := range opps {
			if !opp.PassesPreFilter {
				continue
			}
			vec, err := r.Embedder.GenerateEmbedding(ctx, opp.MatchText())
			if err != nil {
				log.Printf("[discover] embedding for %s failed: %v", opp.ID, err)
				continue
			}
			if err := r.Embeddings.SetOpportunityEmbedding(ctx, opp.ID, vec); err != nil {
				log.Printf("[discover] storing embedding for %s failed: %v", opp.ID, err)
			}
		}
	}

	if r.Alerts != nil && r.AlertThreshold > 0 {
		for _, m := range matches {
			if m.ResearchDepth == models.DepthFilteredOut || m.MatchScore < r.AlertThreshold {
				continue
			}
			if err := r.Alerts.SendAlert(m); err != nil {
				log.Printf("[discover] alert for %s failed: %v", m.GrantID, err)
			}
		}
	}

	return report, nil
}

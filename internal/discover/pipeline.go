package discover

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

// Source is implemented once per origin (state portal, federal registry,
// foundation site). Discover must populate at minimum the identity,
// descriptive text, and funding-source category of each opportunity, and
// must not set any scoring-state field.
type Source interface {
	Name() string
	Discover(ctx context.Context, filters match.Filters) ([]*models.Opportunity, error)
}

// DefaultEscalationThreshold is the score above which the pipeline sets
// the advisory EscalationTriggered flag. The actual escalation decision
// lives in the matching adapter; this layer stays synchronous and
// side-effect-free.
const DefaultEscalationThreshold = 80

const defaultSourceTimeout = 60 * time.Second

// Pipeline queries registered sources, runs each discovered opportunity
// through the pre-filter and the heuristic scorer, and aggregates
// results per source. It never deduplicates across sources; a caller
// wanting dedup must do it by opportunity ID itself.
type Pipeline struct {
	scorer  *match.Scorer
	sources []Source

	// ApplyPreFilter gates whether discovered items are pre-filtered
	// and scored during aggregation. On by default.
	ApplyPreFilter      bool
	EscalationThreshold int
	SourceTimeout       time.Duration
	MaxConcurrent       int

	// Now supplies the pre-filter reference time.
	Now func() time.Time
}

func NewPipeline(scorer *match.Scorer) *Pipeline {
	return &Pipeline{
		scorer:              scorer,
		ApplyPreFilter:      true,
		EscalationThreshold: DefaultEscalationThreshold,
		SourceTimeout:       defaultSourceTimeout,
		MaxConcurrent:       4,
		Now:                 time.Now,
	}
}

// Register appends a source to the ordered query list.
func (p *Pipeline) Register(s Source) {
	p.sources = append(p.sources, s)
	log.Printf("[discover] registered source: %s", s.Name())
}

// SourceNames returns the registered source names in order.
func (p *Pipeline) SourceNames() []string {
	names := make([]string, len(p.sources))
	for i, s := range p.sources {
		names[i] = s.Name()
	}
	return names
}

// DiscoverAll queries every registered source concurrently, each under a
// bounded timeout, and returns one result per source in registration
// order regardless of completion order. A source that errors or times
// out contributes an empty slice and its error; it never corrupts or
// aborts the rest of the run.
func (p *Pipeline) DiscoverAll(ctx context.Context, filters match.Filters) []match.SourceResult {
	results := make([]match.SourceResult, len(p.sources))
	ref := p.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.MaxConcurrent)

	for i, src := range p.sources {
		i, src := i, src
		g.Go(func() error {
			srcCtx, cancel := context.WithTimeout(gctx, p.SourceTimeout)
			defer cancel()

			opps, err := src.Discover(srcCtx, filters)
			if err != nil {
				log.Printf("[discover] source %s failed: %v", src.Name(), err)
				results[i] = match.SourceResult{Source: src.Name(), Err: err}
				return nil
			}

			if p.ApplyPreFilter {
				for _, opp := range opps {
					p.Process(opp, ref)
				}
			}

			log.Printf("[discover] source %s returned %d opportunities", src.Name(), len(opps))
			results[i] = match.SourceResult{Source: src.Name(), Opportunities: opps}
			return nil
		})
	}
	g.Wait()

	return results
}

// Process records the scoring state on a single opportunity: the
// pre-filter verdict, the keyword score (forced to 0 on rejection), and
// the advisory escalation flag for scores above the threshold.
func (p *Pipeline) Process(opp *models.Opportunity, ref time.Time) {
	passed, reason := match.PreFilter(opp, ref)
	opp.PassesPreFilter = passed
	if !passed {
		opp.KeywordScore = 0
		log.Printf("[discover] rejected %q: %s", opp.ID, reason)
		return
	}

	opp.KeywordScore = p.scorer.Score(opp)
	if opp.KeywordScore > p.EscalationThreshold {
		opp.EscalationTriggered = true
		log.Printf("[discover] escalation flagged for %q (score %d)", opp.ID, opp.KeywordScore)
	}
}

package discover

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
)

var refTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	name  string
	opps  []*models.Opportunity
	err   error
	delay time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Discover(ctx context.Context, _ match.Filters) ([]*models.Opportunity, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.opps, nil
}

func testPipeline() *Pipeline {
	p := NewPipeline(match.NewScorer(match.DefaultKeywordWeights))
	p.Now = func() time.Time { return refTime }
	return p
}

func eligibleOpp(id, title string) *models.Opportunity {
	return &models.Opportunity{
		ID:          id,
		Title:       title,
		Eligibility: "Public universities in Illinois",
		Source:      models.SourceIllinoisGATA,
	}
}

func TestDiscoverAll_AggregatesInRegistrationOrder(t *testing.T) {
	p := testPipeline()
	p.Register(&stubSource{name: "slow", delay: 30 * time.Millisecond, opps: []*models.Opportunity{eligibleOpp("a-1", "Medicaid Grant")}})
	p.Register(&stubSource{name: "fast", opps: []*models.Opportunity{eligibleOpp("b-1", "Rural Health Grant")}})

	results := p.DiscoverAll(context.Background(), match.Filters{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Registration order, not completion order.
	if results[0].Source != "slow" || results[1].Source != "fast" {
		t.Fatalf("results out of order: %s, %s", results[0].Source, results[1].Source)
	}
}

func TestDiscoverAll_IsolatesFailingSource(t *testing.T) {
	p := testPipeline()
	p.Register(&stubSource{name: "broken", err: errors.New("parse error")})
	p.Register(&stubSource{name: "healthy", opps: []*models.Opportunity{eligibleOpp("h-1", "Medicaid Grant")}})

	results := p.DiscoverAll(context.Background(), match.Filters{})
	if results[0].Err == nil || len(results[0].Opportunities) != 0 {
		t.Fatalf("broken source must contribute an error and no items: %+v", results[0])
	}
	if results[1].Err != nil || len(results[1].Opportunities) != 1 {
		t.Fatalf("healthy source must be unaffected: %+v", results[1])
	}
}

func TestDiscoverAll_SourceTimeoutBounded(t *testing.T) {
	p := testPipeline()
	p.SourceTimeout = 20 * time.Millisecond
	p.Register(&stubSource{name: "hung", delay: 5 * time.Second})
	p.Register(&stubSource{name: "fine", opps: []*models.Opportunity{eligibleOpp("t-1", "Medicaid Grant")}})

	start := time.Now()
	results := p.DiscoverAll(context.Background(), match.Filters{})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("hung source stalled the run for %s", elapsed)
	}
	if results[0].Err == nil {
		t.Fatal("hung source must report its timeout")
	}
	if results[1].Err != nil {
		t.Fatalf("fine source must not be affected: %v", results[1].Err)
	}
}

func TestProcess_RejectedOpportunityScoredZero(t *testing.T) {
	p := testPipeline()
	opp := &models.Opportunity{
		ID:     "r-1",
		Title:  "Medicaid Grant", // no Illinois mention, non-federal
		Source: models.SourceOther,
	}

	p.Process(opp, refTime)
	if opp.PassesPreFilter {
		t.Fatal("expected pre-filter rejection")
	}
	if opp.KeywordScore != 0 {
		t.Fatalf("rejected opportunity must score 0, got %d", opp.KeywordScore)
	}
	if opp.EscalationTriggered {
		t.Fatal("rejected opportunity must not trigger escalation")
	}
}

func TestProcess_EscalationFlagIsAdvisory(t *testing.T) {
	p := testPipeline()
	opp := eligibleOpp("e-1", "Medicaid policy monitoring and regulatory analysis initiative")

	p.Process(opp, refTime)
	if !opp.PassesPreFilter {
		t.Fatal("expected pre-filter pass")
	}
	// medicaid 35 + policy monitoring 25 + regulatory analysis 25 = 85 > 80.
	if opp.KeywordScore != 85 {
		t.Fatalf("expected score 85, got %d", opp.KeywordScore)
	}
	if !opp.EscalationTriggered {
		t.Fatal("expected advisory escalation flag")
	}
}

func TestProcess_BelowThresholdNoEscalationFlag(t *testing.T) {
	p := testPipeline()
	opp := eligibleOpp("e-2", "Rural health grant")

	p.Process(opp, refTime)
	if opp.KeywordScore != 15 {
		t.Fatalf("expected score 15, got %d", opp.KeywordScore)
	}
	if opp.EscalationTriggered {
		t.Fatal("score below threshold must not set the flag")
	}
}

func TestDiscoverAll_PreFilterCanBeSkipped(t *testing.T) {
	p := testPipeline()
	p.ApplyPreFilter = false
	p.Register(&stubSource{name: "raw", opps: []*models.Opportunity{eligibleOpp("s-1", "Medicaid Grant")}})

	results := p.DiscoverAll(context.Background(), match.Filters{})
	opp := results[0].Opportunities[0]
	if opp.KeywordScore != 0 || opp.PassesPreFilter {
		t.Fatalf("scoring must not run when pre-filtering is disabled: %+v", opp)
	}
}

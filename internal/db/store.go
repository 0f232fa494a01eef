package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mpart-uis/grant-scout/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const opportunityCols = `id, title, agency, description, eligibility, award_amount,
	deadline, posted_date, status, source, url, tags, raw_text,
	passes_pre_filter, keyword_score, escalation_triggered, recommended_lead`

// SaveOpportunity upserts a discovered opportunity, refreshing both the
// source fields and the derived scoring state.
func (s *Store) SaveOpportunity(ctx context.Context, o *models.Opportunity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (
			id, title, agency, description, eligibility, award_amount,
			deadline, posted_date, status, source, url, tags, raw_text,
			passes_pre_filter, keyword_score, escalation_triggered, recommended_lead
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			agency = EXCLUDED.agency,
			description = EXCLUDED.description,
			eligibility = EXCLUDED.eligibility,
			award_amount = EXCLUDED.award_amount,
			deadline = EXCLUDED.deadline,
			posted_date = EXCLUDED.posted_date,
			status = EXCLUDED.status,
			url = EXCLUDED.url,
			tags = EXCLUDED.tags,
			raw_text = EXCLUDED.raw_text,
			passes_pre_filter = EXCLUDED.passes_pre_filter,
			keyword_score = EXCLUDED.keyword_score,
			escalation_triggered = EXCLUDED.escalation_triggered,
			recommended_lead = EXCLUDED.recommended_lead,
			updated_at = NOW()
	`,
		o.ID, o.Title, o.Agency, o.Description, o.Eligibility, o.AwardAmount,
		o.Deadline, o.PostedDate, string(o.Status), string(o.Source), o.URL, o.Tags, o.RawText,
		o.PassesPreFilter, o.KeywordScore, o.EscalationTriggered, o.RecommendedLead,
	)
	if err != nil {
		return fmt.Errorf("saving opportunity %s: %w", o.ID, err)
	}
	return nil
}

func scanOpportunity(scan func(dest ...any) error) (models.Opportunity, error) {
	var o models.Opportunity
	var status, source string
	err := scan(
		&o.ID, &o.Title, &o.Agency, &o.Description, &o.Eligibility, &o.AwardAmount,
		&o.Deadline, &o.PostedDate, &status, &source, &o.URL, &o.Tags, &o.RawText,
		&o.PassesPreFilter, &o.KeywordScore, &o.EscalationTriggered, &o.RecommendedLead,
	)
	if err != nil {
		return o, err
	}
	o.Status = models.GrantStatus(status)
	o.Source = models.FundingSource(source)
	return o, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM opportunities WHERE id = $1", opportunityCols), id)
	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("opportunity %s: %w", id, err)
	}
	return &o, nil
}

// OpportunityListParams filters the opportunity listing.
type OpportunityListParams struct {
	Source        string
	PreFilterOnly bool
	MinScore      int
	Limit         int
	Offset        int
}

func (s *Store) ListOpportunities(ctx context.Context, params OpportunityListParams) ([]models.Opportunity, int, error) {
	where, args := buildOpportunityWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count failed: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	sql := fmt.Sprintf(
		"SELECT %s FROM opportunities %s ORDER BY keyword_score DESC, deadline ASC NULLS LAST LIMIT $%d OFFSET $%d",
		opportunityCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, params.Offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, total, rows.Err()
}

func buildOpportunityWhere(params OpportunityListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if params.Source != "" {
		where += fmt.Sprintf(" AND source = $%d", argIdx)
		args = append(args, params.Source)
		argIdx++
	}
	if params.PreFilterOnly {
		where += " AND passes_pre_filter = true"
	}
	if params.MinScore > 0 {
		where += fmt.Sprintf(" AND keyword_score >= $%d", argIdx)
		args = append(args, params.MinScore)
		argIdx++
	}
	return where, args
}

// SetOpportunityEmbedding stores the semantic-search vector for a grant.
func (s *Store) SetOpportunityEmbedding(ctx context.Context, id string, embedding []float32) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE opportunities SET embedding = $1, updated_at = NOW() WHERE id = $2",
		pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("setting embedding for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("setting embedding for %s: no such opportunity", id)
	}
	return nil
}

// ListOpportunitiesWithoutEmbedding returns saved grants whose semantic
// vector has not been computed yet, highest keyword score first, for the
// enrich backfill tool.
func (s *Store) ListOpportunitiesWithoutEmbedding(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE embedding IS NULL ORDER BY keyword_score DESC LIMIT $1",
		opportunityCols), limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// MatchRun is the bookkeeping record for one discovery run.
type MatchRun struct {
	ID                 uuid.UUID  `json:"id"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	SourcesTotal       int        `json:"sources_total"`
	SourcesFailed      int        `json:"sources_failed"`
	OpportunitiesFound int        `json:"opportunities_found"`
	MatchesKept        int        `json:"matches_kept"`
}

func (s *Store) StartRun(ctx context.Context, sourcesTotal int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO match_runs (id, sources_total) VALUES ($1, $2)", id, sourcesTotal)
	if err != nil {
		return uuid.Nil, fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, sourcesFailed, found, kept int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE match_runs
		SET finished_at = NOW(), sources_failed = $2, opportunities_found = $3, matches_kept = $4
		WHERE id = $1
	`, id, sourcesFailed, found, kept)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]MatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, finished_at, sources_total, sources_failed, opportunities_found, matches_kept
		FROM match_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []MatchRun{}
	for rows.Next() {
		var r MatchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt,
			&r.SourcesTotal, &r.SourcesFailed, &r.OpportunitiesFound, &r.MatchesKept); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SaveMatches persists all matches from one run.
func (s *Store) SaveMatches(ctx context.Context, runID uuid.UUID, matches []*models.Match) error {
	for _, m := range matches {
		var analysis []byte
		if m.Analysis != nil {
			var err error
			analysis, err = json.Marshal(m.Analysis)
			if err != nil {
				return fmt.Errorf("encoding analysis for %s: %w", m.GrantID, err)
			}
		}
		_, err := s.pool.Exec(ctx, `
			INSERT INTO matches (
				run_id, grant_id, grant_title, match_score, keyword_score, research_depth,
				recommended_lead, rationale, alignment_points, recommended_action, analysis, generated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (run_id, grant_id) DO NOTHING
		`,
			runID, m.GrantID, m.GrantTitle, m.MatchScore, m.KeywordScore, string(m.ResearchDepth),
			m.RecommendedLead, m.Rationale, m.AlignmentPoints, m.RecommendedAction, analysis, m.GeneratedAt,
		)
		if err != nil {
			return fmt.Errorf("saving match for %s: %w", m.GrantID, err)
		}
	}
	return nil
}

// MatchListParams filters the match listing.
type MatchListParams struct {
	RunID    *uuid.UUID
	Depth    string
	Lead     string
	MinScore int
	Limit    int
	Offset   int
}

// buildMatchWhere turns the listing params into a WHERE clause with
// positional args. Kept separate from the query so it can be tested
// without a database.
func buildMatchWhere(params MatchListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if params.RunID != nil {
		where += fmt.Sprintf(" AND run_id = $%d", argIdx)
		args = append(args, *params.RunID)
		argIdx++
	}
	if params.Depth != "" {
		where += fmt.Sprintf(" AND research_depth = $%d", argIdx)
		args = append(args, params.Depth)
		argIdx++
	}
	if params.Lead != "" {
		where += fmt.Sprintf(" AND recommended_lead = $%d", argIdx)
		args = append(args, params.Lead)
		argIdx++
	}
	if params.MinScore > 0 {
		where += fmt.Sprintf(" AND match_score >= $%d", argIdx)
		args = append(args, params.MinScore)
		argIdx++
	}
	return where, args
}

const matchCols = `grant_id, grant_title, match_score, keyword_score, research_depth,
	recommended_lead, rationale, alignment_points, recommended_action, analysis, generated_at`

func scanMatch(scan func(dest ...any) error) (models.Match, error) {
	var m models.Match
	var depth string
	var analysis []byte
	err := scan(
		&m.GrantID, &m.GrantTitle, &m.MatchScore, &m.KeywordScore, &depth,
		&m.RecommendedLead, &m.Rationale, &m.AlignmentPoints, &m.RecommendedAction,
		&analysis, &m.GeneratedAt,
	)
	if err != nil {
		return m, err
	}
	m.ResearchDepth = models.ResearchDepth(depth)
	if len(analysis) > 0 {
		m.Analysis = &models.AnalysisResult{}
		if err := json.Unmarshal(analysis, m.Analysis); err != nil {
			return m, fmt.Errorf("decoding analysis for %s: %w", m.GrantID, err)
		}
	}
	return m, nil
}

func (s *Store) ListMatches(ctx context.Context, params MatchListParams) ([]models.Match, int, error) {
	where, args := buildMatchWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM matches "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count failed: %w", err)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	sql := fmt.Sprintf(
		"SELECT %s FROM matches %s ORDER BY match_score DESC, generated_at DESC LIMIT $%d OFFSET $%d",
		matchCols, where, len(args)+1, len(args)+2)
	args = append(args, limit, params.Offset)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	matches := []models.Match{}
	for rows.Next() {
		m, err := scanMatch(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan failed: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, total, rows.Err()
}

// GetMatch returns the most recent match for a grant.
func (s *Store) GetMatch(ctx context.Context, grantID string) (*models.Match, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT %s FROM matches WHERE grant_id = $1 ORDER BY generated_at DESC LIMIT 1", matchCols), grantID)
	m, err := scanMatch(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("match for %s: %w", grantID, err)
	}
	return &m, nil
}

// Stats returns the headline numbers for the dashboard.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	stats := make(map[string]any)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities").Scan(&total); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	stats["opportunities"] = total

	var passed int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities WHERE passes_pre_filter = true").Scan(&passed)
	stats["passed_prefilter"] = passed

	var deep int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM matches WHERE research_depth = 'deep_analysis'").Scan(&deep)
	stats["deep_analysis"] = deep

	var runs int
	s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM match_runs").Scan(&runs)
	stats["runs"] = runs

	depthCounts := map[string]int{}
	rows, err := s.pool.Query(ctx, "SELECT research_depth, COUNT(*) FROM matches GROUP BY research_depth")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var depth string
			var count int
			if err := rows.Scan(&depth, &count); err == nil {
				depthCounts[depth] = count
			}
		}
	}
	stats["depth_counts"] = depthCounts

	return stats, nil
}

// LeadDistribution counts matches per recommended lead, excluding
// filtered-out results and the empty "no lead" sentinel.
func (s *Store) LeadDistribution(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recommended_lead, COUNT(*)
		FROM matches
		WHERE research_depth != 'filtered_out' AND recommended_lead != ''
		GROUP BY recommended_lead
	`)
	if err != nil {
		return nil, fmt.Errorf("lead distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[string]int)
	for rows.Next() {
		var lead string
		var count int
		if err := rows.Scan(&lead, &count); err != nil {
			return nil, fmt.Errorf("scanning lead distribution: %w", err)
		}
		dist[lead] = count
	}
	return dist, rows.Err()
}

// UpsertDecision records or updates the team's workflow state on a grant.
func (s *Store) UpsertDecision(ctx context.Context, d *models.Decision) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO decisions (grant_id, status, assigned_lead, notes, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (grant_id) DO UPDATE SET
			status = EXCLUDED.status,
			assigned_lead = EXCLUDED.assigned_lead,
			notes = EXCLUDED.notes,
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
	`, d.GrantID, string(d.Status), d.AssignedLead, d.Notes, d.UpdatedBy)
	if err != nil {
		return fmt.Errorf("saving decision for %s: %w", d.GrantID, err)
	}
	return nil
}

func (s *Store) GetDecision(ctx context.Context, grantID string) (*models.Decision, error) {
	var d models.Decision
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT grant_id, status, assigned_lead, notes, updated_by, created_at, updated_at
		FROM decisions WHERE grant_id = $1
	`, grantID).Scan(&d.GrantID, &status, &d.AssignedLead, &d.Notes, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("decision for %s: %w", grantID, err)
	}
	d.Status = models.DecisionStatus(status)
	return &d, nil
}

func (s *Store) ListDecisions(ctx context.Context) ([]models.Decision, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT grant_id, status, assigned_lead, notes, updated_by, created_at, updated_at
		FROM decisions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	decisions := []models.Decision{}
	for rows.Next() {
		var d models.Decision
		var status string
		if err := rows.Scan(&d.GrantID, &status, &d.AssignedLead, &d.Notes, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision: %w", err)
		}
		d.Status = models.DecisionStatus(status)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GrantStatus is the informational lifecycle status reported by a source.
// The pipeline never branches on it.
type GrantStatus string

const (
	StatusOpen     GrantStatus = "open"
	StatusClosed   GrantStatus = "closed"
	StatusUpcoming GrantStatus = "upcoming"
	StatusArchived GrantStatus = "archived"
)

// FundingSource identifies the origin category of an opportunity.
type FundingSource string

const (
	SourceIllinoisGATA       FundingSource = "illinois_gata"
	SourceFederalGrantsGov   FundingSource = "federal_grants_gov"
	SourceMedicaidInnovation FundingSource = "medicaid_innovation"
	SourceNSF                FundingSource = "nsf"
	SourceNIH                FundingSource = "nih"
	SourceOther              FundingSource = "other"
)

// IsFederal reports whether the source is a federal category. Federal
// announcements rarely name the state explicitly, so the regional
// pre-filter check exempts them.
func (f FundingSource) IsFederal() bool {
	switch f {
	case SourceFederalGrantsGov, SourceMedicaidInnovation, SourceNSF, SourceNIH:
		return true
	}
	return false
}

// Opportunity is the canonical record for a discovered grant.
//
// The scoring-state fields (PassesPreFilter, KeywordScore,
// EscalationTriggered, RecommendedLead) are written once per pipeline run
// and always derived; source implementations must never set them.
type Opportunity struct {
	ID          string        `json:"id" validate:"required"`
	Title       string        `json:"title" validate:"required"`
	Agency      string        `json:"agency"`
	Description string        `json:"description"`
	Eligibility string        `json:"eligibility"`
	AwardAmount string        `json:"award_amount,omitempty"`
	Deadline    *time.Time    `json:"deadline,omitempty"`
	PostedDate  *time.Time    `json:"posted_date,omitempty"`
	Status      GrantStatus   `json:"status"`
	Source      FundingSource `json:"source"`
	URL         string        `json:"url,omitempty"`
	Tags        []string      `json:"tags,omitempty"`
	RawText     string        `json:"raw_text,omitempty"`

	// Scoring state, set by the discovery pipeline.
	PassesPreFilter     bool   `json:"passes_prefilter"`
	KeywordScore        int    `json:"keyword_score"`
	EscalationTriggered bool   `json:"escalation_triggered"`
	RecommendedLead     string `json:"recommended_lead,omitempty"`
}

var validate = validator.New()

// NewOpportunity builds an Opportunity and fails fast when the identity
// fields are missing. A record without an ID or title is a bug in the
// source that produced it, not a condition to recover from downstream.
func NewOpportunity(id, title string, source FundingSource) (*Opportunity, error) {
	opp := &Opportunity{
		ID:     id,
		Title:  title,
		Status: StatusOpen,
		Source: source,
	}
	if err := opp.Validate(); err != nil {
		return nil, err
	}
	return opp, nil
}

// Validate checks the identity invariants.
func (o *Opportunity) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid opportunity: %w", err)
	}
	return nil
}

// MatchText returns the lowercase concatenation of the fields the scorer
// and lead recommender operate on.
func (o *Opportunity) MatchText() string {
	parts := []string{
		o.Title,
		o.Description,
		o.Eligibility,
		strings.Join(o.Tags, " "),
		o.RawText,
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// FilterText is the pre-filter's text blob. It additionally includes the
// agency name, which often carries the only regional mention.
func (o *Opportunity) FilterText() string {
	parts := []string{
		o.Title,
		o.Description,
		o.Eligibility,
		o.Agency,
		strings.Join(o.Tags, " "),
		o.RawText,
	}
	return strings.ToLower(strings.Join(parts, " "))
}

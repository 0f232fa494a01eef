package match

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// PassedPreFilterReason is the reason string returned when every check passes.
const PassedPreFilterReason = "passed all pre-filter checks"

var regionPattern = regexp.MustCompile(`\b(illinois|il)\b`)

// Phrases denoting higher-education/university eligibility. Substring
// containment, so "public universit" covers both singular and plural.
var eligibleAudiences = []string{
	"higher education",
	"public universit",
	"college",
	"academic institution",
	"research institution",
	"university of illinois",
	"uis",
	"u of i",
	"state university",
}

// PreFilter is the deterministic eligibility gate run before scoring.
// Checks run in order and the first failure wins:
//
//  1. a deadline strictly before ref fails as expired;
//  2. the text must mention Illinois or IL as a whole word, unless the
//     opportunity comes from a federal source category;
//  3. the text must name a higher-education audience.
//
// Pure predicate: the caller, not this function, records the result on
// the opportunity.
func PreFilter(opp *models.Opportunity, ref time.Time) (bool, string) {
	if opp.Deadline != nil && opp.Deadline.Before(ref) {
		return false, fmt.Sprintf("deadline %s is in the past", opp.Deadline.Format(time.RFC3339))
	}

	text := opp.FilterText()

	if !opp.Source.IsFederal() && !regionPattern.MatchString(text) {
		return false, "does not mention Illinois or IL"
	}

	for _, audience := range eligibleAudiences {
		if strings.Contains(text, audience) {
			return true, PassedPreFilterReason
		}
	}
	return false, "not eligible for higher education or public universities"
}

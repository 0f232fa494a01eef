package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mpart-uis/grant-scout/internal/models"
)

const icsProdID = "-//MPART Grant Scout//Deadlines//EN"

// WriteDeadlinesICS renders an iCalendar feed with one all-day event per
// opportunity that has a deadline. Opportunities without a deadline are
// skipped. now stamps DTSTAMP so output is reproducible in tests.
func WriteDeadlinesICS(w io.Writer, opps []models.Opportunity, now time.Time) error {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + icsProdID)
	line("CALSCALE:GREGORIAN")

	stamp := now.UTC().Format("20060102T150405Z")

	for _, o := range opps {
		if o.Deadline == nil {
			continue
		}
		line("BEGIN:VEVENT")
		line("UID:" + escapeICS(o.ID) + "@grant-scout")
		line("DTSTAMP:" + stamp)
		line("DTSTART;VALUE=DATE:" + o.Deadline.UTC().Format("20060102"))
		line("SUMMARY:" + escapeICS("Grant deadline: "+o.Title))

		desc := o.Agency
		if o.AwardAmount != "" {
			desc = fmt.Sprintf("%s (award: %s)", desc, o.AwardAmount)
		}
		if desc != "" {
			line("DESCRIPTION:" + escapeICS(desc))
		}
		if o.URL != "" {
			line("URL:" + o.URL)
		}
		line("END:VEVENT")
	}

	line("END:VCALENDAR")

	_, err := io.WriteString(w, b.String())
	return err
}

// escapeICS escapes the characters RFC 5545 reserves in text values.
func escapeICS(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}

package sources

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	rpdf "rsc.io/pdf"
)

var deadlineSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+20\d{2}\b`),
}

var deadlineDateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
}

// ExtractPDFText pulls the text fragments out of a PDF document. The
// parser panics on some malformed files, so the panic is converted to an
// error here.
func ExtractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// FindDeadlineInText scans free text (typically a NOFO attachment) for
// date tokens and returns the latest future date relative to ref, on the
// assumption that the last upcoming date in an announcement is the
// submission deadline. Returns nil when nothing parses.
func FindDeadlineInText(text string, ref time.Time) *time.Time {
	var candidates []time.Time
	seen := make(map[string]bool)

	for _, expr := range deadlineSnippetRegexes {
		for _, token := range expr.FindAllString(text, -1) {
			token = normalizeSpace(token)
			if seen[token] {
				continue
			}
			seen[token] = true
			if parsed, ok := parseDeadlineToken(token); ok && parsed.After(ref) {
				candidates = append(candidates, parsed)
			}
		}
	}

	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })
	deadline := candidates[len(candidates)-1]
	return &deadline
}

func parseDeadlineToken(token string) (time.Time, bool) {
	for _, layout := range deadlineDateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var htmlSanitizer = bluemonday.StrictPolicy()

// normalizeSpace collapses runs of whitespace into single spaces and trims.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SanitizeHTML strips all markup from scraped HTML, leaving plain text.
func SanitizeHTML(html string) string {
	return normalizeSpace(htmlSanitizer.Sanitize(html))
}

// HTMLToText extracts the visible text of an HTML fragment.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return SanitizeHTML(html)
	}
	return normalizeSpace(doc.Text())
}

// TruncateText cuts a string to maxLen, appending an ellipsis when cut.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return text[:maxLen-3] + "..."
	}
	return text[:maxLen]
}

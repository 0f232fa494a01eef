package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tealeg/xlsx/v2"

	"github.com/mpart-uis/grant-scout/internal/models"
)

// WriteMatchesXLSX renders a workbook with a Summary sheet (headline
// counts and lead distribution) and a Matches sheet with one row per
// match.
func WriteMatchesXLSX(w io.Writer, matches []models.Match) error {
	file := xlsx.NewFile()

	if err := addSummarySheet(file, matches); err != nil {
		return err
	}
	if err := addMatchesSheet(file, matches); err != nil {
		return err
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func addSummarySheet(file *xlsx.File, matches []models.Match) error {
	sheet, err := file.AddSheet("Summary")
	if err != nil {
		return fmt.Errorf("adding summary sheet: %w", err)
	}

	deep, heuristic, filtered := 0, 0, 0
	leadCounts := make(map[string]int)
	for _, m := range matches {
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

	addKV := func(key string, value int) {
		row := sheet.AddRow()
		row.AddCell().SetString(key)
		row.AddCell().SetInt(value)
	}

	addKV("Total matches", len(matches))
	addKV("Deep analysis", deep)
	addKV("Heuristic only", heuristic)
	addKV("Filtered out", filtered)

	sheet.AddRow()
	header := sheet.AddRow()
	header.AddCell().SetString("Lead")
	header.AddCell().SetString("Matches")

	leads := make([]string, 0, len(leadCounts))
	for lead := range leadCounts {
		leads = append(leads, lead)
	}
	sort.Strings(leads)
	for _, lead := range leads {
		addKV(lead, leadCounts[lead])
	}
	return nil
}

func addMatchesSheet(file *xlsx.File, matches []models.Match) error {
	sheet, err := file.AddSheet("Matches")
	if err != nil {
		return fmt.Errorf("adding matches sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, col := range matchCSVHeader {
		header.AddCell().SetString(col)
	}

	for _, m := range matches {
		row := sheet.AddRow()
		row.AddCell().SetString(m.GrantID)
		row.AddCell().SetString(m.GrantTitle)
		row.AddCell().SetInt(m.MatchScore)
		row.AddCell().SetInt(m.KeywordScore)
		row.AddCell().SetString(string(m.ResearchDepth))
		row.AddCell().SetString(m.RecommendedLead)
		row.AddCell().SetString(m.RecommendedAction)
		row.AddCell().SetString(m.Rationale)
		row.AddCell().SetString(strings.Join(m.AlignmentPoints, "; "))
		row.AddCell().SetString(m.GeneratedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

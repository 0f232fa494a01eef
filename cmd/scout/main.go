package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/mpart-uis/grant-scout/internal/ai"
	"github.com/mpart-uis/grant-scout/internal/config"
	"github.com/mpart-uis/grant-scout/internal/db"
	"github.com/mpart-uis/grant-scout/internal/discover"
	"github.com/mpart-uis/grant-scout/internal/export"
	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/models"
	"github.com/mpart-uis/grant-scout/internal/sources"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("SCOUT_CONFIG"), "path to settings YAML")
		keyword    = flag.String("keyword", "", "restrict discovery to one keyword")
		maxResults = flag.Int("max", 0, "cap results per source (0 = source default)")
		format     = flag.String("format", "table", "output format: table, json, csv, xlsx, ics, opps-csv")
		output     = flag.String("o", "", "output file (default stdout)")
		save       = flag.Bool("save", false, "persist the run to the database")
		all        = flag.Bool("all", false, "include filtered-out results in output")
	)
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var store discover.RunStore
	if *save {
		pool, err := db.Connect(ctx)
		if err != nil {
			log.Fatalf("Failed to connect to database (required for -save): %v", err)
		}
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store = db.NewStore(pool)
	}

	runner, err := buildRunner(settings, store)
	if err != nil {
		log.Fatalf("Failed to build discovery runner: %v", err)
	}

	report, err := runner.Run(ctx, match.Filters{Keyword: *keyword, MaxResults: *maxResults})
	if err != nil {
		log.Fatalf("Discovery run failed: %v", err)
	}

	matches := report.Matches
	if !*all {
		kept := matches[:0]
		for _, m := range matches {
			if m.ResearchDepth != models.DepthFilteredOut {
				kept = append(kept, m)
			}
		}
		matches = kept
	}

	out := io.Writer(os.Stdout)
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}

	if err := render(out, *format, report, matches); err != nil {
		log.Fatalf("Failed to render output: %v", err)
	}

	fmt.Fprintf(os.Stderr, "\n%d sources (%d failed), %d opportunities, %d kept\n",
		report.SourcesTotal, report.SourcesFailed, report.Found, report.Kept)
}

func render(out io.Writer, format string, report *discover.RunReport, matches []*models.Match) error {
	switch format {
	case "table":
		renderTable(out, matches)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	case "csv":
		return export.WriteMatchesCSV(out, deref(matches))
	case "xlsx":
		return export.WriteMatchesXLSX(out, deref(matches))
	case "ics":
		opps := make([]models.Opportunity, 0, len(report.Opportunities))
		for _, o := range report.Opportunities {
			if o.PassesPreFilter {
				opps = append(opps, *o)
			}
		}
		return export.WriteDeadlinesICS(out, opps, time.Now())
	case "opps-csv":
		opps := make([]models.Opportunity, 0, len(report.Opportunities))
		for _, o := range report.Opportunities {
			opps = append(opps, *o)
		}
		return export.WriteOpportunitiesCSV(out, opps)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func renderTable(out io.Writer, matches []*models.Match) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Score", "Depth", "Lead", "Title", "Action"})

	for _, m := range matches {
		title := sources.TruncateText(m.GrantTitle, 60)
		t.AppendRow(table.Row{m.MatchScore, m.ResearchDepth, m.RecommendedLead, title, m.RecommendedAction})
	}
	t.Render()
}

func deref(matches []*models.Match) []models.Match {
	out := make([]models.Match, 0, len(matches))
	for _, m := range matches {
		out = append(out, *m)
	}
	return out
}

// buildRunner mirrors the server wiring, minus alerting: CLI runs print
// their results instead of emailing them.
func buildRunner(settings *config.Settings, store discover.RunStore) (*discover.Runner, error) {
	registry, err := sources.LoadRegistry("internal/sources/config/sources.yaml")
	if err != nil {
		return nil, err
	}

	scorer := match.NewScorer(settings.ScorerWeights())
	pipeline := discover.NewPipeline(scorer)
	pipeline.EscalationThreshold = settings.Thresholds.Escalation

	for _, cfg := range registry.Sources {
		if !cfg.Enabled {
			continue
		}
		switch cfg.ID {
		case "illinois_gata":
			if settings.Sources.IllinoisGATA {
				pipeline.Register(sources.NewGATASource(cfg, nil))
			}
		case "grants_gov":
			if settings.Sources.GrantsGov {
				pipeline.Register(sources.NewGrantsGovSource(cfg))
			}
		}
	}

	adapter := match.NewAdapter(pipeline)
	adapter.Scorer = scorer
	adapter.Threshold = settings.Thresholds.DeepAnalysis

	runner := &discover.Runner{
		Pipeline: pipeline,
		Adapter:  adapter,
		Store:    store,
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		client := ai.NewOllamaClient(host, os.Getenv("OLLAMA_EMBED_MODEL"), os.Getenv("OLLAMA_GEN_MODEL"))
		adapter.Analyzer = ai.NewLLMAnalyzer(client, adapter.Leads)
		runner.Embedder = client
		if es, ok := store.(discover.EmbeddingStore); ok {
			runner.Embeddings = es
		}
	}

	return runner, nil
}

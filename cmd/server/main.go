package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/mpart-uis/grant-scout/internal/ai"
	"github.com/mpart-uis/grant-scout/internal/api"
	"github.com/mpart-uis/grant-scout/internal/config"
	"github.com/mpart-uis/grant-scout/internal/db"
	"github.com/mpart-uis/grant-scout/internal/discover"
	"github.com/mpart-uis/grant-scout/internal/match"
	"github.com/mpart-uis/grant-scout/internal/notify"
	"github.com/mpart-uis/grant-scout/internal/sources"
)

func main() {
	_ = godotenv.Load()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	settings, err := config.Load(os.Getenv("SCOUT_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	runner, err := buildRunner(settings, db.NewStore(pool))
	if err != nil {
		log.Fatalf("Failed to build discovery runner: %v", err)
	}

	if settings.DiscoverySchedule != "" {
		c := cron.New()
		_, err := c.AddFunc(settings.DiscoverySchedule, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			report, err := runner.Run(runCtx, match.Filters{})
			if err != nil {
				log.Printf("Scheduled discovery failed: %v", err)
				return
			}
			log.Printf("Scheduled discovery complete: %d found, %d kept", report.Found, report.Kept)

			digest := notify.Digest{
				Organization: settings.Organization,
				RunAt:        time.Now(),
				SourcesTotal: report.SourcesTotal,
				SourcesFail:  report.SourcesFailed,
			}
			for _, m := range report.Matches {
				digest.Matches = append(digest.Matches, *m)
			}
			mailer := notify.NewMailer(settings.SMTP)
			if err := mailer.SendDigest(settings.Organization+" grant discovery digest", digest.Render()); err != nil {
				log.Printf("Digest send failed: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Invalid discovery schedule %q: %v", settings.DiscoverySchedule, err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Scheduled discovery: %s", settings.DiscoverySchedule)
	}

	srv := api.NewServer(pool, runner, settings)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}

// buildRunner wires the source registry, pipeline, and matching adapter
// from settings.
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
			if !settings.Sources.IllinoisGATA {
				continue
			}
			pipeline.Register(sources.NewGATASource(cfg, nil))
		case "grants_gov":
			if !settings.Sources.GrantsGov {
				continue
			}
			pipeline.Register(sources.NewGrantsGovSource(cfg))
		default:
			log.Printf("Unknown source %q in registry, skipping", cfg.ID)
		}
	}

	adapter := match.NewAdapter(pipeline)
	adapter.Scorer = scorer
	adapter.Threshold = settings.Thresholds.DeepAnalysis

	runner := &discover.Runner{
		Pipeline:       pipeline,
		Adapter:        adapter,
		Store:          store,
		Alerts:         notify.NewMailer(settings.SMTP),
		AlertThreshold: settings.Thresholds.Alert,
	}

	// Opt into LLM escalation and embedding enrichment when an Ollama
	// host is configured; the adapter degrades to heuristics whenever the
	// analyzer fails, and a failed embedding never fails a run.
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		client := ai.NewOllamaClient(host, os.Getenv("OLLAMA_EMBED_MODEL"), os.Getenv("OLLAMA_GEN_MODEL"))
		adapter.Analyzer = ai.NewLLMAnalyzer(client, adapter.Leads)
		runner.Embedder = client
		if es, ok := store.(discover.EmbeddingStore); ok {
			runner.Embeddings = es
		}
		log.Printf("Deep analysis: LLM via %s", host)
	}

	return runner, nil
}

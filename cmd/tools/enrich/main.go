package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mpart-uis/grant-scout/internal/ai"
	"github.com/mpart-uis/grant-scout/internal/db"
)

// Backfills the embedding column for saved opportunities that do not
// have a vector yet. Scheduled runs embed as they go; this tool covers
// rows saved before an Ollama host was configured.
func main() {
	_ = godotenv.Load()

	limit := flag.Int("limit", 100, "max opportunities to embed in one pass")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	client := ai.NewOllamaClient(os.Getenv("OLLAMA_HOST"), os.Getenv("OLLAMA_EMBED_MODEL"), "")

	opps, err := store.ListOpportunitiesWithoutEmbedding(ctx, *limit)
	if err != nil {
		log.Fatalf("Failed to list opportunities: %v", err)
	}
	if len(opps) == 0 {
		log.Print("Nothing to embed")
		return
	}
	log.Printf("Embedding %d opportunities via %s", len(opps), client.BaseURL)

	embedded, failed := 0, 0
	for _, opp := range opps {
		vec, err := client.GenerateEmbedding(ctx, opp.MatchText())
		if err != nil {
			log.Printf("Embedding %s failed: %v", opp.ID, err)
			failed++
			continue
		}
		if err := store.SetOpportunityEmbedding(ctx, opp.ID, vec); err != nil {
			log.Printf("Storing embedding for %s failed: %v", opp.ID, err)
			failed++
			continue
		}
		embedded++
	}
	log.Printf("Done: %d embedded, %d failed", embedded, failed)
}

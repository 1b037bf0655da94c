package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/qooldab/internal/config"
	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/migrations"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := database.Direction(os.Args[1])
	if direction != database.Up && direction != database.Down {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	ran, err := database.Migrate(context.Background(), db, migrations.FS, direction)
	for _, name := range ran {
		log.Printf("Ran migration: %s", name)
	}
	if err != nil {
		log.Fatalf("Migrate: %v", err)
	}

	log.Printf("Successfully ran %d migration(s) %s", len(ran), direction)
}

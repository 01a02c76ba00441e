package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/adapters/postgres"
	"github.com/cheapgasoline/fuelmap/internal/adapters/seedfile"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/config"
	"github.com/cheapgasoline/fuelmap/internal/pkg/logging"
)

const usage = "usage: migrate <up|seed [file.json]>"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load("fuelmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", "fuelmap-migrate")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Source.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		applied, err := db.Migrate(ctx)
		if err != nil {
			log.Fatalf("migrate: %v", err)
		}
		for _, f := range applied {
			fmt.Printf("OK  %s\n", f)
		}
	case "seed":
		path := ""
		if len(os.Args) > 2 {
			path = os.Args[2]
		}
		raw, err := seedfile.New(path).Stations(ctx)
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		n, err := db.ImportStations(ctx, usecases.Normalize(raw), "seed")
		if err != nil {
			log.Fatalf("import: %v", err)
		}
		fmt.Printf("imported %d stations\n", n)
	default:
		log.Fatalf("unknown command: %s\n%s", os.Args[1], usage)
	}
}

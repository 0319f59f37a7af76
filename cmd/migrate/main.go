package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/samirrijal/ecoleta/internal/adapters/postgres"
	"github.com/samirrijal/ecoleta/internal/pkg/config"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down|status>")
	}

	_ = godotenv.Load()

	cfg, err := config.Load("ecoleta-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(logging.Options{Level: cfg.Log.Level, Format: "text", Output: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if os.Args[1] == "status" {
		migrations, err := postgres.Migrations()
		if err != nil {
			log.Fatalf("migrations: %v", err)
		}
		for _, m := range migrations {
			fmt.Printf("%s\n", m.Name)
		}
		return
	}

	db, err := postgres.New(ctx, cfg.Database.DSN(), 2)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "up":
		err = postgres.MigrateUp(ctx, db)
	case "down":
		err = postgres.MigrateDown(ctx, db)
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", os.Args[1], err)
	}
	log.Printf("migrate %s: done", os.Args[1])
}

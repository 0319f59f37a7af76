package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/ecoleta/internal/adapters/nats"
	"github.com/samirrijal/ecoleta/internal/adapters/postgres"
	"github.com/samirrijal/ecoleta/internal/adapters/registry"
	"github.com/samirrijal/ecoleta/internal/pkg/config"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
	"github.com/samirrijal/ecoleta/internal/workflows"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("ecoleta-submitter")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(logging.Options{Service: "ecoleta-submitter", Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx := context.Background()

	acts := &workflows.RegistrationActivities{
		Registry: registry.New(cfg.Registry.BaseURL, cfg.Registry.Timeout),
	}

	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		acts.Submissions = postgres.NewSubmissionRepo(db)
	}

	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, point.registered will not be published", "error", err)
		} else {
			defer pub.Close()
			acts.Publisher = pub
		}
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		Logger:    slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.RegistrationWorkflow)
	w.RegisterActivity(acts)

	slog.Info("submitter worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

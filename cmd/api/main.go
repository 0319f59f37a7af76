package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/ecoleta/internal/adapters/http"
	"github.com/samirrijal/ecoleta/internal/adapters/ibge"
	natsadapter "github.com/samirrijal/ecoleta/internal/adapters/nats"
	"github.com/samirrijal/ecoleta/internal/adapters/postgres"
	"github.com/samirrijal/ecoleta/internal/adapters/registry"
	"github.com/samirrijal/ecoleta/internal/adapters/valkey"
	"github.com/samirrijal/ecoleta/internal/core/ports"
	"github.com/samirrijal/ecoleta/internal/core/usecases"
	"github.com/samirrijal/ecoleta/internal/pkg/config"
	"github.com/samirrijal/ecoleta/internal/pkg/imagepreview"
	"github.com/samirrijal/ecoleta/internal/pkg/logging"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
	"github.com/samirrijal/ecoleta/internal/pkg/telemetry"
	"github.com/samirrijal/ecoleta/internal/workflows"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load("ecoleta-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logging.Setup(logging.Options{Service: cfg.Telemetry.ServiceName, Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	deps := &http.Dependencies{Version: version}
	regDeps := usecases.RegistrationDeps{
		Previewer: imagepreview.New(cfg.Sessions.PreviewSize, 75),
	}

	// Database (submission audit)
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database unavailable, submissions will not be audited", "error", err)
		} else {
			defer db.Close()
			deps.DB = db
			regDeps.Submissions = postgres.NewSubmissionRepo(db)
			go reportPoolStats(ctx, db)
		}
	}

	// Cache
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr, cfg.Cache.KeyPrefix, cfg.Cache.LocalTTL)
		if err != nil {
			slog.Warn("valkey unavailable, catalog reads are not cached", "error", err)
		} else {
			defer vc.Close()
			cache = vc
			deps.Cache = vc
		}
	}

	// Upstream clients
	catalog := usecases.NewCatalogService(
		registry.New(cfg.Registry.BaseURL, cfg.Registry.Timeout),
		ibge.New(cfg.IBGE.BaseURL, cfg.IBGE.Timeout),
		cache,
		usecases.CatalogTTL{Items: cfg.Cache.ItemsTTL, Localities: cfg.Cache.LocalitiesTTL},
	)
	regDeps.Registry = catalog
	regDeps.Localities = catalog

	// Temporal (deferred submissions)
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
			Logger:    slog.Default(),
		})
		if err != nil {
			slog.Warn("temporal unavailable, deferred submission disabled", "error", err)
		} else {
			defer tc.Close()
			regDeps.Scheduler = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue, cfg.Temporal.MaxPayloadBytes)
		}
	}

	browser := usecases.NewBrowserService(catalog, usecases.BrowserOptions{
		IdleTTL:      cfg.Sessions.IdleTTL,
		FetchTimeout: cfg.Sessions.FetchTimeout,
	})

	// NATS: publish new points, refresh browser sessions on new points
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			deps.NATS = pub
			regDeps.Publisher = pub

			sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
			if err != nil {
				slog.Warn("nats subscriber unavailable", "error", err)
			} else {
				defer sub.Close()
				if err := sub.SubscribePointRegistered(ctx, browser.PointRegistered); err != nil {
					slog.Warn("point.registered subscription failed", "error", err)
				}
			}
		}
	}

	registrations := usecases.NewRegistrationService(regDeps, usecases.RegistrationOptions{
		IdleTTL:       cfg.Sessions.IdleTTL,
		FetchTimeout:  cfg.Sessions.FetchTimeout,
		MaxImageBytes: cfg.Sessions.MaxImageBytes,
		SyncFallback:  cfg.Temporal.SyncFallback,
	})

	// Session janitors
	go browser.Run(ctx)
	go registrations.Run(ctx)

	deps.Catalog = catalog
	deps.Browser = browser
	deps.Registrations = registrations

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		AppName:      "Ecoleta Gateway",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.CORSOrigins, ", "),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders:    "Location, Link, ETag, X-Request-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps, http.Options{
		RateLimit:      cfg.Server.RateLimit,
		RequestTimeout: cfg.Sessions.FetchTimeout + 5*time.Second,
	})

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "version", version)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	// Stops the janitors, which close every open session.
	cancel()

	slog.Info("server stopped")
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		case <-ctx.Done():
			return
		}
	}
}

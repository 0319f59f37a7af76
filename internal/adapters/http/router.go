package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/ecoleta/api"
	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// Options tunes the middleware chain.
type Options struct {
	RateLimit      int           // requests per minute per IP
	RequestTimeout time.Duration // per-request deadline for /v1 routes
}

func (o Options) withDefaults() Options {
	if o.RateLimit <= 0 {
		o.RateLimit = 240
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 20 * time.Second
	}
	return o
}

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies, opts Options) {
	opts = opts.withDefaults()

	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestLoggerMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting per IP
	app.Use(limiter.New(limiter.Config{
		Max:        opts.RateLimit,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return newError(c, fiber.StatusTooManyRequests, "rate_limited", "too many requests, please try again later")
		},
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	limit := func(h fiber.Handler) fiber.Handler {
		return timeout.NewWithContext(h, opts.RequestTimeout)
	}

	v1 := app.Group("/v1")

	// Catalog (stateless)
	v1.Get("/items", limit(ListItemsHandler(deps)))
	v1.Get("/points", limit(ListPointsHandler(deps)))
	v1.Get("/states", limit(ListStatesHandler(deps)))
	v1.Get("/states/:uf/cities", limit(ListCitiesHandler(deps)))

	// Point browser sessions
	v1.Post("/browser", limit(OpenBrowserHandler(deps)))
	v1.Get("/browser/:id", GetBrowserHandler(deps))
	v1.Delete("/browser/:id", CloseBrowserHandler(deps))
	v1.Post("/browser/:id/position", BrowserPositionHandler(deps))
	v1.Post("/browser/:id/items/toggle", limit(BrowserBatchToggleHandler(deps)))
	v1.Post("/browser/:id/items/:item/toggle", limit(BrowserToggleHandler(deps)))
	v1.Post("/browser/:id/refresh", limit(BrowserRefreshHandler(deps)))

	// Registration form sessions
	v1.Post("/registrations", limit(OpenRegistrationHandler(deps)))
	v1.Get("/registrations/:id", GetRegistrationHandler(deps))
	v1.Delete("/registrations/:id", CloseRegistrationHandler(deps))
	v1.Post("/registrations/:id/reload", limit(ReloadRegistrationHandler(deps)))
	v1.Post("/registrations/:id/position", RegistrationPositionHandler(deps))
	v1.Patch("/registrations/:id/fields", RegistrationFieldsHandler(deps))
	v1.Put("/registrations/:id/state", limit(RegistrationStateHandler(deps)))
	v1.Put("/registrations/:id/city", RegistrationCityHandler(deps))
	v1.Post("/registrations/:id/location", RegistrationLocationHandler(deps))
	v1.Post("/registrations/:id/items/:item/toggle", RegistrationToggleHandler(deps))
	v1.Post("/registrations/:id/image", RegistrationImageHandler(deps))
	v1.Get("/registrations/:id/image/preview", RegistrationPreviewHandler(deps))
	v1.Post("/registrations/:id/submit", limit(SubmitRegistrationHandler(deps)))
	v1.Get("/registrations/:id/attempts", limit(RegistrationAttemptsHandler(deps)))

	// GraphQL
	app.Post("/graphql", limit(GraphQLHandler(deps)))

	// API documentation (Swagger UI)
	SetupDocs(app, api.OpenAPI)

	// WebSocket
	app.Get("/ws/browser/:id", BrowserSocketGuard(deps), websocket.New(BrowserSocketHandler(deps)))
}

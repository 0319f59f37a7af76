package http

import (
	"context"

	"github.com/samirrijal/ecoleta/internal/core/usecases"
)

// Pinger is a backend whose reachability is reported by /v1/ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
// Backends are optional; a nil Pinger is reported as "not configured".
type Dependencies struct {
	Catalog       *usecases.CatalogService
	Browser       *usecases.BrowserService
	Registrations *usecases.RegistrationService
	DB            Pinger
	NATS          Pinger
	Cache         Pinger
	Version       string
}

package ports

import (
	"context"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

// Registry is the remote collection-point API.
type Registry interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	ListPoints(ctx context.Context, q domain.PointQuery) ([]domain.Point, error)
	CreatePoint(ctx context.Context, reg *domain.PointRegistration) error
}

// LocalityDirectory lists states and their cities (IBGE).
type LocalityDirectory interface {
	ListStates(ctx context.Context) ([]domain.State, error)
	ListCities(ctx context.Context, uf string) ([]domain.City, error)
}

// ImagePreviewer renders a small preview of an uploaded image.
type ImagePreviewer interface {
	// Inspect validates data is an image and returns its content type.
	Inspect(data []byte) (contentType string, err error)
	Preview(data []byte) ([]byte, error)
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishPointRegistered(ctx context.Context, event *domain.PointRegistered) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePointRegistered(ctx context.Context, handler func(ctx context.Context, event *domain.PointRegistered) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// SubmissionScheduler hands a registration to a durable background workflow.
type SubmissionScheduler interface {
	Schedule(ctx context.Context, sub *domain.Submission, reg *domain.PointRegistration) (workflowID string, err error)
}

package ports

import (
	"context"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

// CatalogUpdate announces that the station source changed.
type CatalogUpdate struct {
	Version string `json:"version"`
	Count   int    `json:"count"`
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishStationSelected(ctx context.Context, sessionID string, station *domain.Station) error
	PublishCatalogUpdated(ctx context.Context, update CatalogUpdate) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeCatalogUpdates(ctx context.Context, handler func(ctx context.Context, update CatalogUpdate) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

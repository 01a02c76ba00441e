package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
)

// Pinger is a backing service that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Stations  *usecases.StationService
	Catalog   *usecases.Catalog
	Views     *usecases.MapViews
	Selector  *proximity.Selector
	Location  *usecases.LocationService
	Publisher ports.EventPublisher
	MapView   usecases.MapViewConfig
	TileURL   string
	NATS      *nats.Conn
	Source    Pinger // database or sqlite file, nil for seed/remote sources
	Cache     Pinger
}

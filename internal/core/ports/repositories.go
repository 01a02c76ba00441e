package ports

import (
	"context"
	"errors"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

// ErrSurfaceClosed is returned by a MapSurface once the underlying map has been torn down.
var ErrSurfaceClosed = errors.New("map surface closed")

// ErrGeolocationUnavailable is returned when the platform offers no geolocation capability.
var ErrGeolocationUnavailable = errors.New("geolocation unavailable")

// MarkerHandle identifies a marker rendered on a MapSurface.
type MarkerHandle interface {
	// StationID returns the ID of the station the marker represents.
	StationID() string
}

// MapSurface is the interactive map a view draws on.
type MapSurface interface {
	Init(ctx context.Context, center domain.GeoPoint, zoom int) error
	AddMarker(ctx context.Context, station domain.Station, onClick func()) (MarkerHandle, error)
	RemoveMarker(ctx context.Context, handle MarkerHandle) error
	FlyTo(ctx context.Context, point domain.GeoPoint, zoom int) error
	Center() domain.GeoPoint
	// OnViewportChange registers a listener for move-end and zoom-end events.
	// The returned func detaches it.
	OnViewportChange(fn func(domain.ViewportEvent)) (unsubscribe func())
}

// GeolocationProvider resolves the device position. It may never answer.
type GeolocationProvider interface {
	CurrentPosition(ctx context.Context) (domain.Position, error)
}

// StationSource loads the full candidate set of stations.
type StationSource interface {
	Stations(ctx context.Context) ([]domain.Station, error)
}

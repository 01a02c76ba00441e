package usecases

import "errors"

var (
	// ErrStationNotFound is returned when no station has the requested ID.
	ErrStationNotFound = errors.New("station not found")
	// ErrCatalogEmpty is returned when the station source yields no usable station.
	ErrCatalogEmpty = errors.New("station catalog is empty")
)

package domain

import (
	"fmt"

	"github.com/paulmach/orb"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Valid reports whether the point lies inside the WGS 84 coordinate range.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Point converts to an orb point (lon, lat order).
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// GeoPointFromOrb converts an orb point back to a GeoPoint.
func GeoPointFromOrb(pt orb.Point) GeoPoint {
	return GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()}
}

// Key returns the coordinate-derived identity used for points without an ID.
func (p GeoPoint) Key() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Viewport is the visible map region, described by its center and zoom level.
type Viewport struct {
	Center GeoPoint `json:"center"`
	Zoom   int      `json:"zoom"`
}

// ViewportEventKind distinguishes the map events that settle a viewport.
type ViewportEventKind string

const (
	ViewportMoveEnd ViewportEventKind = "moveend"
	ViewportZoomEnd ViewportEventKind = "zoomend"
)

// ViewportEvent is emitted by a map surface after the user pans or zooms.
type ViewportEvent struct {
	Kind     ViewportEventKind `json:"kind"`
	Viewport Viewport          `json:"viewport"`
}

// Position is a resolved user location.
type Position struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Accuracy float64 `json:"accuracy"` // meters, 0 when unknown
	Fallback bool    `json:"fallback"`
}

// Point returns the position as a GeoPoint.
func (p Position) Point() GeoPoint {
	return GeoPoint{Lat: p.Lat, Lon: p.Lon}
}

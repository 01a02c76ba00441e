package geospatial

import (
	"math"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

const earthRadiusKm = 6371.0

// HaversineKm calculates the great-circle distance in kilometers between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Distance is HaversineKm for domain points.
func Distance(a, b domain.GeoPoint) float64 {
	return HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Offset returns the point reached by moving distanceKm from p along a bearing (degrees).
// Used to place points at known distances in tests and fixtures.
func Offset(p domain.GeoPoint, distanceKm, bearingDeg float64) domain.GeoPoint {
	d := distanceKm / earthRadiusKm
	brng := toRad(bearingDeg)
	lat1 := toRad(p.Lat)
	lon1 := toRad(p.Lon)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(math.Sin(brng)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return domain.GeoPoint{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

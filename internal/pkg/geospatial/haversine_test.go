package geospatial_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/pkg/geospatial"
)

var (
	tbilisi = domain.GeoPoint{Lat: 41.7151, Lon: 44.8271}
	batumi  = domain.GeoPoint{Lat: 41.6168, Lon: 41.6367}
	kutaisi = domain.GeoPoint{Lat: 42.2679, Lon: 42.6946}
)

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	for _, p := range []domain.GeoPoint{tbilisi, batumi, {Lat: 0, Lon: 0}, {Lat: -33.86, Lon: 151.2}} {
		assert.Equal(t, 0.0, geospatial.Distance(p, p))
	}
}

func TestHaversineKm_Symmetric(t *testing.T) {
	pairs := [][2]domain.GeoPoint{
		{tbilisi, batumi},
		{batumi, kutaisi},
		{tbilisi, {Lat: 41.70, Lon: 44.80}},
	}
	for _, p := range pairs {
		assert.Equal(t, geospatial.Distance(p[0], p[1]), geospatial.Distance(p[1], p[0]))
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Tbilisi to Batumi is roughly 265 km in a straight line.
	d := geospatial.Distance(tbilisi, batumi)
	assert.InDelta(t, 265, d, 5)

	// One degree of latitude is ~111.19 km on a 6371 km sphere.
	d = geospatial.HaversineKm(0, 0, 1, 0)
	assert.InDelta(t, 111.19, d, 0.01)
}

func TestOffset_RoundTrip(t *testing.T) {
	for _, km := range []float64{0.5, 1, 10, 150, 480} {
		for _, bearing := range []float64{0, 45, 90, 200, 315} {
			p := geospatial.Offset(tbilisi, km, bearing)
			got := geospatial.Distance(tbilisi, p)
			if math.Abs(got-km) > 1e-6*km+1e-9 {
				t.Errorf("offset %.1f km @ %.0f°: distance %.9f", km, bearing, got)
			}
		}
	}
}

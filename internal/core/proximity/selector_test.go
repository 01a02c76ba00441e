package proximity_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/pkg/geospatial"
)

var center = domain.GeoPoint{Lat: 41.7151, Lon: 44.8271}

// stationsAt places one station per distance, spreading bearings around the center.
func stationsAt(distancesKm ...float64) []domain.Station {
	out := make([]domain.Station, len(distancesKm))
	for i, d := range distancesKm {
		out[i] = domain.Station{
			ID:       fmt.Sprintf("st-%03d", i+1),
			Name:     fmt.Sprintf("Station %d", i+1),
			Location: geospatial.Offset(center, d, float64(i*37%360)),
		}
	}
	return out
}

func TestSelect_EmptyCandidates(t *testing.T) {
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, nil)
	assert.Empty(t, sel.Items)
	assert.False(t, sel.Fallback)
	assert.Zero(t, sel.RadiusKm)
}

func TestSelect_BaseRadiusSatisfied(t *testing.T) {
	stations := stationsAt(0.5, 1, 2, 3, 4, 5, 6, 30, 50)
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)

	assert.Equal(t, 10.0, sel.RadiusKm)
	assert.False(t, sel.Fallback)
	assert.Len(t, sel.Items, 7)
}

func TestSelect_CapsAtMaxVisible(t *testing.T) {
	d := make([]float64, 40)
	for i := range d {
		d[i] = 0.2 + float64(i)*0.2
	}
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stationsAt(d...))

	require.Len(t, sel.Items, 15)
	assert.Equal(t, "st-001", sel.Items[0].Station.ID)
	assert.Equal(t, "st-015", sel.Items[14].Station.ID)
}

func TestSelect_ExpandsRadius(t *testing.T) {
	// 3 within 10 km, 5 within 200 km.
	stations := stationsAt(2, 5, 9, 35, 150, 400)
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)

	assert.Equal(t, 160.0, sel.RadiusKm)
	assert.False(t, sel.Fallback)
	require.Len(t, sel.Items, 5)
	assert.Greater(t, sel.Items[4].DistanceKm, 10.0)
}

func TestSelect_CeilingEvaluatedOnce(t *testing.T) {
	stations := stationsAt(199)
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)

	assert.Equal(t, 200.0, sel.RadiusKm)
	assert.False(t, sel.Fallback)
	assert.Len(t, sel.Items, 1)
}

func TestSelect_FallbackToGlobalNearest(t *testing.T) {
	d := make([]float64, 20)
	for i := range d {
		d[i] = 250 + float64(i)*10
	}
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stationsAt(d...))

	assert.True(t, sel.Fallback)
	require.Len(t, sel.Items, 15)
	assert.InDelta(t, 250, sel.Items[0].DistanceKm, 0.001)
	assert.InDelta(t, sel.Items[14].DistanceKm, sel.RadiusKm, 1e-9)
}

func TestSelect_TwentyPointScenario(t *testing.T) {
	stations := stationsAt(1, 3, 8, 15, 25, 39, 60, 90, 120, 170, 190, 230, 260, 300, 340, 380, 410, 450, 480, 500)
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)

	// 10 -> 3, 20 -> 4, 40 -> 6.
	assert.Equal(t, 40.0, sel.RadiusKm)
	assert.Len(t, sel.Items, 6)
	for _, it := range sel.Items {
		assert.LessOrEqual(t, it.DistanceKm, sel.RadiusKm)
	}
}

func TestSelect_TiesBrokenByID(t *testing.T) {
	stations := []domain.Station{
		{ID: "b", Location: center},
		{ID: "a", Location: center},
		{ID: "c", Location: center},
	}
	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)
	assert.Equal(t, []string{"a", "b", "c"}, sel.IDs())
}

func TestSelect_RandomSetsAreBoundedAndSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := proximity.NewSelector(proximity.DefaultConfig())

	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(60)
		d := make([]float64, n)
		for i := range d {
			d[i] = rng.Float64() * 600
		}
		sel := s.Select(center, stationsAt(d...))

		require.NotEmpty(t, sel.Items, "round %d", round)
		require.LessOrEqual(t, len(sel.Items), 15, "round %d", round)
		for i := 1; i < len(sel.Items); i++ {
			require.LessOrEqual(t, sel.Items[i-1].DistanceKm, sel.Items[i].DistanceKm, "round %d", round)
		}
	}
}

func TestSelect_DoesNotMutateCandidates(t *testing.T) {
	stations := stationsAt(50, 1, 20)
	before := append([]domain.Station(nil), stations...)
	proximity.NewSelector(proximity.DefaultConfig()).Select(center, stations)
	assert.Equal(t, before, stations)
}

func TestNewSelector_DefaultsInvalidConfig(t *testing.T) {
	s := proximity.NewSelector(proximity.Config{BaseRadiusKm: 50, MaxRadiusKm: 10})
	cfg := s.Config()

	assert.Equal(t, 15, cfg.MaxVisible)
	assert.Equal(t, 50.0, cfg.MaxRadiusKm)
	assert.Equal(t, 2.0, cfg.GrowthFactor)
	assert.Equal(t, 5, cfg.MinResults)
}

func TestSelect_CustomThresholds(t *testing.T) {
	s := proximity.NewSelector(proximity.Config{MaxVisible: 3, BaseRadiusKm: 1, MaxRadiusKm: 100, GrowthFactor: 3, MinResults: 5})
	sel := s.Select(center, stationsAt(0.5, 2, 2.5, 2.8, 50))

	// min(3, 5) = 3 results wanted: 1 -> 1, 3 -> 4.
	assert.Equal(t, 3.0, sel.RadiusKm)
	assert.Len(t, sel.Items, 3)
}

// Package proximity selects the stations visible around a map center.
package proximity

import (
	"math"
	"sort"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/pkg/geospatial"
)

// Config holds the selection thresholds.
type Config struct {
	MaxVisible   int     `mapstructure:"max_visible"`
	BaseRadiusKm float64 `mapstructure:"base_radius_km"`
	MaxRadiusKm  float64 `mapstructure:"max_radius_km"`
	GrowthFactor float64 `mapstructure:"growth_factor"`
	MinResults   int     `mapstructure:"min_results"`
}

// DefaultConfig returns the thresholds used by the map view.
func DefaultConfig() Config {
	return Config{
		MaxVisible:   15,
		BaseRadiusKm: 10,
		MaxRadiusKm:  200,
		GrowthFactor: 2,
		MinResults:   5,
	}
}

// withDefaults replaces unusable values with defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxVisible <= 0 {
		c.MaxVisible = d.MaxVisible
	}
	if c.BaseRadiusKm <= 0 {
		c.BaseRadiusKm = d.BaseRadiusKm
	}
	if c.MaxRadiusKm < c.BaseRadiusKm {
		c.MaxRadiusKm = c.BaseRadiusKm
	}
	if c.GrowthFactor <= 1 {
		c.GrowthFactor = d.GrowthFactor
	}
	if c.MinResults <= 0 {
		c.MinResults = d.MinResults
	}
	return c
}

// Selector picks the nearest stations using an expanding radius.
type Selector struct {
	cfg Config
}

// NewSelector creates a Selector. Zero or invalid thresholds fall back to defaults.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg.withDefaults()}
}

// Config returns the effective thresholds.
func (s *Selector) Config() Config {
	return s.cfg
}

// Select returns up to MaxVisible stations nearest to ref, nearest first.
//
// The radius starts at BaseRadiusKm and grows by GrowthFactor until at least
// min(MaxVisible, MinResults) stations fall inside it or MaxRadiusKm has been
// tried. If the ceiling still holds no station the globally nearest stations
// are returned and Fallback is set.
func (s *Selector) Select(ref domain.GeoPoint, candidates []domain.Station) domain.Selection {
	sel := domain.Selection{Center: ref}
	if len(candidates) == 0 {
		return sel
	}

	ranked := Rank(ref, candidates)
	want := s.cfg.MinResults
	if s.cfg.MaxVisible < want {
		want = s.cfg.MaxVisible
	}

	radius := s.cfg.BaseRadiusKm
	for {
		n := countWithin(ranked, radius)
		if n >= want || radius >= s.cfg.MaxRadiusKm {
			if n > 0 {
				sel.RadiusKm = radius
				sel.Items = head(ranked[:n], s.cfg.MaxVisible)
				return sel
			}
			break
		}
		radius = math.Min(radius*s.cfg.GrowthFactor, s.cfg.MaxRadiusKm)
	}

	sel.Fallback = true
	sel.Items = head(ranked, s.cfg.MaxVisible)
	sel.RadiusKm = sel.Items[len(sel.Items)-1].DistanceKm
	return sel
}

// Rank computes the distance from ref to every station and sorts ascending.
// Ties are broken by station ID so the order is deterministic.
func Rank(ref domain.GeoPoint, stations []domain.Station) []domain.RankedStation {
	ranked := make([]domain.RankedStation, len(stations))
	for i, st := range stations {
		ranked[i] = domain.RankedStation{Station: st, DistanceKm: geospatial.Distance(ref, st.Location)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].DistanceKm != ranked[j].DistanceKm {
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		}
		return ranked[i].Station.ID < ranked[j].Station.ID
	})
	return ranked
}

func countWithin(ranked []domain.RankedStation, radius float64) int {
	return sort.Search(len(ranked), func(i int) bool {
		return ranked[i].DistanceKm > radius
	})
}

func head(ranked []domain.RankedStation, n int) []domain.RankedStation {
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]domain.RankedStation, len(ranked))
	copy(out, ranked)
	return out
}

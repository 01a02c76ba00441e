package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
)

// CatalogStatus describes the current snapshot.
type CatalogStatus struct {
	Count    int       `json:"count"`
	Version  string    `json:"version"`
	LoadedAt time.Time `json:"loaded_at"`
	Source   string    `json:"source"`
}

type catalogSnapshot struct {
	stations []domain.Station
	byID     map[string]int
	status   CatalogStatus
}

// Catalog holds the read-only candidate set loaded from a StationSource.
// Snapshots are immutable and swapped atomically on Load.
type Catalog struct {
	source     ports.StationSource
	sourceName string
	snap       atomic.Pointer[catalogSnapshot]
}

// NewCatalog creates an empty Catalog backed by source.
func NewCatalog(source ports.StationSource, sourceName string) *Catalog {
	c := &Catalog{source: source, sourceName: sourceName}
	c.snap.Store(&catalogSnapshot{byID: map[string]int{}, status: CatalogStatus{Source: sourceName}})
	return c
}

// Load fetches stations from the source and replaces the snapshot.
// It reports whether the content changed. On error the previous snapshot is kept.
func (c *Catalog) Load(ctx context.Context) (bool, error) {
	start := time.Now()
	raw, err := c.source.Stations(ctx)
	metrics.CatalogLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CatalogLoads.WithLabelValues("error").Inc()
		return false, fmt.Errorf("load stations: %w", err)
	}

	stations := Normalize(raw)
	if len(stations) == 0 {
		metrics.CatalogLoads.WithLabelValues("empty").Inc()
		return false, ErrCatalogEmpty
	}

	version := Fingerprint(stations)
	prev := c.snap.Load()
	if prev.status.Version == version {
		metrics.CatalogLoads.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	byID := make(map[string]int, len(stations))
	for i, st := range stations {
		byID[st.ID] = i
	}
	c.snap.Store(&catalogSnapshot{
		stations: stations,
		byID:     byID,
		status: CatalogStatus{
			Count:    len(stations),
			Version:  version,
			LoadedAt: time.Now().UTC(),
			Source:   c.sourceName,
		},
	})

	metrics.CatalogLoads.WithLabelValues("ok").Inc()
	metrics.CatalogStations.Set(float64(len(stations)))
	slog.Info("station catalog loaded", "count", len(stations), "version", version, "source", c.sourceName)
	return true, nil
}

// Stations returns the current snapshot. Callers must not modify it.
func (c *Catalog) Stations() []domain.Station {
	return c.snap.Load().stations
}

// Get returns the station with the given ID.
func (c *Catalog) Get(id string) (domain.Station, bool) {
	s := c.snap.Load()
	i, ok := s.byID[id]
	if !ok {
		return domain.Station{}, false
	}
	return s.stations[i], true
}

// Status returns the snapshot metadata.
func (c *Catalog) Status() CatalogStatus {
	return c.snap.Load().status
}

// Normalize drops stations with invalid coordinates, derives missing IDs from
// coordinates, infers brands and fuel labels, and keeps the first of duplicate IDs.
func Normalize(in []domain.Station) []domain.Station {
	out := make([]domain.Station, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, st := range in {
		if !st.Location.Valid() {
			continue
		}
		if st.ID == "" {
			st.ID = st.Location.Key()
		}
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}

		if st.Brand == "" {
			st.Brand = domain.InferBrand(st.Name)
		}
		if len(st.FuelLabels) == 0 {
			if grades := domain.FuelGradesFor(st.Brand); len(grades) > 0 {
				st.FuelLabels = make(map[string]string, len(grades))
				for _, g := range grades {
					st.FuelLabels[g.ID] = g.Label
				}
			}
		}
		out = append(out, st)
	}
	return out
}

// Fingerprint returns a content hash of stations, stable for equal input.
func Fingerprint(stations []domain.Station) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range stations {
		_ = enc.Encode(&stations[i])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CachedSource serves station lists from a cache, falling back to the wrapped source.
type CachedSource struct {
	source ports.StationSource
	cache  ports.CacheService
	key    string
	ttl    int
}

// NewCachedSource wraps source with cache. ttlSeconds <= 0 defaults to 60.
func NewCachedSource(source ports.StationSource, cache ports.CacheService, key string, ttlSeconds int) *CachedSource {
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	return &CachedSource{source: source, cache: cache, key: key, ttl: ttlSeconds}
}

// Stations implements ports.StationSource.
func (s *CachedSource) Stations(ctx context.Context) ([]domain.Station, error) {
	if data, err := s.cache.Get(ctx, s.key); err == nil {
		var stations []domain.Station
		if err := json.Unmarshal(data, &stations); err == nil {
			metrics.CacheHits.WithLabelValues("stations").Inc()
			return stations, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("stations").Inc()

	stations, err := s.source.Stations(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(stations); err == nil {
		_ = s.cache.Set(ctx, s.key, data, s.ttl)
	}
	return stations, nil
}

// Invalidate drops the cached list.
func (s *CachedSource) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
	"github.com/cheapgasoline/fuelmap/internal/pkg/telemetry"
)

// SortMode orders station listings.
type SortMode string

const (
	SortNearest    SortMode = "nearest"
	SortWithPrices SortMode = "with_prices"
	SortCheapest   SortMode = "cheapest"
)

// Valid reports whether m is a known sort mode.
func (m SortMode) Valid() bool {
	switch m {
	case SortNearest, SortWithPrices, SortCheapest:
		return true
	}
	return false
}

// ListQuery filters and orders a station listing.
type ListQuery struct {
	Sort   SortMode
	Ref    *domain.GeoPoint
	Fuel   string // cheapest by this fuel instead of the overall minimum
	Offset int
	Limit  int
}

// ListResult is one page of stations.
type ListResult struct {
	Items []domain.RankedStation `json:"items"`
	Total int                    `json:"total"`
}

// StationSnapshotReader is a StationSnapshot with lookup by ID and the
// version of the snapshot being served.
type StationSnapshotReader interface {
	StationSnapshot
	Get(id string) (domain.Station, bool)
	Status() CatalogStatus
}

// StationService answers station queries against the catalog.
type StationService struct {
	catalog  StationSnapshotReader
	selector *proximity.Selector
	cache    ports.CacheService
}

// NewStationService creates a new StationService. cache may be nil.
func NewStationService(catalog StationSnapshotReader, selector *proximity.Selector, cache ports.CacheService) *StationService {
	return &StationService{catalog: catalog, selector: selector, cache: cache}
}

// Nearest returns the proximity selection around ref, capped at limit.
func (s *StationService) Nearest(ctx context.Context, ref domain.GeoPoint, limit int) (domain.Selection, error) {
	maxVisible := s.selector.Config().MaxVisible
	if limit <= 0 || limit > maxVisible {
		limit = maxVisible
	}

	ctx, span := telemetry.StartSpan(ctx, "stations.nearest",
		attribute.Float64("ref.lat", ref.Lat), attribute.Float64("ref.lon", ref.Lon))
	defer span.End()

	// keyed by catalog version so a reload never serves the previous snapshot
	cacheKey := fmt.Sprintf("stations:nearest:%s:%.4f:%.4f:%d", s.catalog.Status().Version, ref.Lat, ref.Lon, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var sel domain.Selection
			if err := json.Unmarshal(data, &sel); err == nil {
				metrics.CacheHits.WithLabelValues("nearest").Inc()
				return sel, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("nearest").Inc()
	}

	sel := s.selector.Select(ref, s.catalog.Stations())
	if len(sel.Items) > limit {
		sel.Items = sel.Items[:limit]
	}

	// Cache for 30 seconds, prices move
	if s.cache != nil {
		if data, err := json.Marshal(sel); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 30)
		}
	}

	return sel, nil
}

// List returns a page of stations ordered by q.Sort.
func (s *StationService) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if q.Sort == "" {
		q.Sort = SortNearest
	}
	if !q.Sort.Valid() {
		return ListResult{}, fmt.Errorf("unknown sort mode %q", q.Sort)
	}
	if q.Sort == SortNearest && q.Ref == nil {
		return ListResult{}, fmt.Errorf("sort %q requires a reference point", q.Sort)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	_, span := telemetry.StartSpan(ctx, "stations.list", attribute.String("sort", string(q.Sort)))
	defer span.End()

	stations := s.catalog.Stations()
	var ranked []domain.RankedStation
	if q.Ref != nil {
		ranked = proximity.Rank(*q.Ref, stations)
	} else {
		ranked = make([]domain.RankedStation, len(stations))
		for i, st := range stations {
			ranked[i] = domain.RankedStation{Station: st}
		}
	}

	switch q.Sort {
	case SortWithPrices:
		ranked = filter(ranked, func(r domain.RankedStation) bool { return r.Station.HasPrices() })
	case SortCheapest:
		ranked = filter(ranked, func(r domain.RankedStation) bool {
			_, ok := priceOf(r.Station, q.Fuel)
			return ok
		})
		sort.SliceStable(ranked, func(i, j int) bool {
			pi, _ := priceOf(ranked[i].Station, q.Fuel)
			pj, _ := priceOf(ranked[j].Station, q.Fuel)
			if pi != pj {
				return pi < pj
			}
			return ranked[i].DistanceKm < ranked[j].DistanceKm
		})
	}

	total := len(ranked)
	if q.Offset >= total {
		return ListResult{Items: []domain.RankedStation{}, Total: total}, nil
	}
	end := q.Offset + q.Limit
	if end > total {
		end = total
	}
	return ListResult{Items: ranked[q.Offset:end], Total: total}, nil
}

func priceOf(st domain.Station, fuel string) (float64, bool) {
	if fuel == "" {
		return st.MinPrice()
	}
	p := st.Prices[fuel]
	if p == nil {
		return math.Inf(1), false
	}
	return *p, true
}

func filter(in []domain.RankedStation, keep func(domain.RankedStation) bool) []domain.RankedStation {
	out := in[:0:0]
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// GetByID returns a single station.
func (s *StationService) GetByID(_ context.Context, id string) (*domain.Station, error) {
	st, ok := s.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("station %s: %w", id, ErrStationNotFound)
	}
	return &st, nil
}

// Directions holds navigation deep links to a station.
type Directions struct {
	StationID string `json:"station_id"`
	Google    string `json:"google"`
	Apple     string `json:"apple"`
	Waze      string `json:"waze"`
	Yandex    string `json:"yandex"`
}

// Directions builds navigation links to the station. from is optional and
// only used by providers that need an explicit origin.
func (s *StationService) Directions(ctx context.Context, id string, from *domain.GeoPoint) (*Directions, error) {
	st, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	to := st.Location
	d := &Directions{
		StationID: st.ID,
		Google:    fmt.Sprintf("https://www.google.com/maps/dir/?api=1&destination=%s&travelmode=driving", coord(to)),
		Apple:     fmt.Sprintf("http://maps.apple.com/?daddr=%s&dirflg=d", coord(to)),
		Waze:      fmt.Sprintf("https://waze.com/ul?ll=%s&navigate=yes", coord(to)),
		Yandex:    fmt.Sprintf("https://yandex.ru/maps/?rtext=~%s&rtt=auto", coord(to)),
	}
	if from != nil {
		d.Yandex = fmt.Sprintf("https://yandex.ru/maps/?rtext=%s~%s&rtt=auto", coord(*from), coord(to))
	}
	return d, nil
}

// ShareURL returns a link that opens the station location in Google Maps.
func (s *StationService) ShareURL(ctx context.Context, id string) (string, error) {
	st, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("https://www.google.com/maps/search/?api=1&query=%s", coord(st.Location)), nil
}

func coord(p domain.GeoPoint) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

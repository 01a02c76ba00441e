package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
)

// --- Mock MapSurface ---

type handle string

func (h handle) StationID() string { return string(h) }

type flight struct {
	Point domain.GeoPoint
	Zoom  int
}

type mockSurface struct {
	mu        sync.Mutex
	closed    bool
	initErr   error
	addErr    map[string]error
	removeErr error
	markers   map[string]func()
	adds      int
	removes   int
	flights   []flight
	center    domain.GeoPoint
	listeners map[int]func(domain.ViewportEvent)
	nextID    int
}

func newMockSurface() *mockSurface {
	return &mockSurface{
		markers:   make(map[string]func()),
		addErr:    make(map[string]error),
		listeners: make(map[int]func(domain.ViewportEvent)),
	}
}

func (m *mockSurface) Init(ctx context.Context, center domain.GeoPoint, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = center
	return m.initErr
}

func (m *mockSurface) AddMarker(ctx context.Context, st domain.Station, onClick func()) (ports.MarkerHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ports.ErrSurfaceClosed
	}
	if err := m.addErr[st.ID]; err != nil {
		return nil, err
	}
	if _, dup := m.markers[st.ID]; dup {
		return nil, fmt.Errorf("duplicate marker %s", st.ID)
	}
	m.markers[st.ID] = onClick
	m.adds++
	return handle(st.ID), nil
}

func (m *mockSurface) RemoveMarker(ctx context.Context, h ports.MarkerHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ports.ErrSurfaceClosed
	}
	if m.removeErr != nil {
		return m.removeErr
	}
	if _, ok := m.markers[h.StationID()]; !ok {
		return errors.New("unknown marker")
	}
	delete(m.markers, h.StationID())
	m.removes++
	return nil
}

func (m *mockSurface) FlyTo(ctx context.Context, p domain.GeoPoint, zoom int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ports.ErrSurfaceClosed
	}
	m.center = p
	m.flights = append(m.flights, flight{Point: p, Zoom: zoom})
	return nil
}

func (m *mockSurface) Center() domain.GeoPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.center
}

func (m *mockSurface) OnViewportChange(fn func(domain.ViewportEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *mockSurface) emit(kind domain.ViewportEventKind, center domain.GeoPoint) {
	m.mu.Lock()
	fns := make([]func(domain.ViewportEvent), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(domain.ViewportEvent{Kind: kind, Viewport: domain.Viewport{Center: center, Zoom: 13}})
	}
}

func (m *mockSurface) click(id string) {
	m.mu.Lock()
	fn := m.markers[id]
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *mockSurface) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockSurface) markerIDs() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.markers))
	for id := range m.markers {
		out[id] = true
	}
	return out
}

func (m *mockSurface) counts() (adds, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adds, m.removes
}

func (m *mockSurface) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *mockSurface) lastFlight() (flight, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.flights) == 0 {
		return flight{}, false
	}
	return m.flights[len(m.flights)-1], true
}

// --- Mock GeolocationProvider ---

type mockGeo struct {
	currentPositionFn func(ctx context.Context) (domain.Position, error)
}

func (m *mockGeo) CurrentPosition(ctx context.Context) (domain.Position, error) {
	if m.currentPositionFn != nil {
		return m.currentPositionFn(ctx)
	}
	return domain.Position{}, ports.ErrGeolocationUnavailable
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu       sync.Mutex
	selected []string
	updates  []ports.CatalogUpdate
}

func (m *mockPublisher) PublishStationSelected(ctx context.Context, sessionID string, st *domain.Station) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected = append(m.selected, st.ID)
	return nil
}

func (m *mockPublisher) PublishCatalogUpdated(ctx context.Context, u ports.CatalogUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, u)
	return nil
}

func (m *mockPublisher) selectedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.selected...)
}

// --- Mock StationSource ---

type mockSource struct {
	mu         sync.Mutex
	calls      int
	stationsFn func(ctx context.Context) ([]domain.Station, error)
}

func (m *mockSource) Stations(ctx context.Context) ([]domain.Station, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.stationsFn != nil {
		return m.stationsFn(ctx)
	}
	return nil, nil
}

func staticSource(stations ...domain.Station) *mockSource {
	return &mockSource{stationsFn: func(ctx context.Context) ([]domain.Station, error) {
		return stations, nil
	}}
}

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte), ttl: make(map[string]int)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttl[key] = ttlSeconds
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Fixtures ---

type fixedSnapshot []domain.Station

func (s fixedSnapshot) Stations() []domain.Station { return s }

func (s fixedSnapshot) Get(id string) (domain.Station, bool) {
	for _, st := range s {
		if st.ID == id {
			return st, true
		}
	}
	return domain.Station{}, false
}

func (s fixedSnapshot) Status() usecases.CatalogStatus {
	return usecases.CatalogStatus{Count: len(s), Version: usecases.Fingerprint(s), Source: "fixed"}
}

func price(v float64) *float64 { return &v }

package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
)

// SelectedZoom is the zoom level the map flies to when a marker is clicked.
const SelectedZoom = 16

// ReconcileResult counts the marker changes made by one reconciliation.
type ReconcileResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
}

// MarkerManager keeps the markers rendered on one map surface equal to the latest selection.
// Markers that stay selected across reconciliations are left untouched.
type MarkerManager struct {
	surface   ports.MapSurface
	publisher ports.EventPublisher
	sessionID string
	logger    *slog.Logger

	mu       sync.Mutex
	markers  map[string]ports.MarkerHandle
	stations map[string]domain.Station
	selected string
	disposed bool
}

// NewMarkerManager creates a MarkerManager for surface. publisher may be nil.
func NewMarkerManager(surface ports.MapSurface, publisher ports.EventPublisher, sessionID string) *MarkerManager {
	return &MarkerManager{
		surface:   surface,
		publisher: publisher,
		sessionID: sessionID,
		logger:    slog.Default().With("session_id", sessionID),
		markers:   make(map[string]ports.MarkerHandle),
		stations:  make(map[string]domain.Station),
	}
}

// Reconcile adds markers for stations new to sel and removes markers whose
// stations left it. Calling it twice with the same selection is a no-op the second time.
//
// A closed surface makes removal a silent no-op. Other add or remove failures
// are returned joined; a station whose add failed stays absent and is retried next time.
func (m *MarkerManager) Reconcile(ctx context.Context, sel domain.Selection) (ReconcileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res ReconcileResult
	if m.disposed {
		return res, nil
	}

	want := make(map[string]domain.Station, len(sel.Items))
	for _, it := range sel.Items {
		want[it.Station.ID] = it.Station
	}

	var errs []error

	for id, h := range m.markers {
		if _, ok := want[id]; ok {
			continue
		}
		if err := m.surface.RemoveMarker(ctx, h); err != nil && !errors.Is(err, ports.ErrSurfaceClosed) {
			metrics.MarkerErrors.WithLabelValues("remove").Inc()
			errs = append(errs, fmt.Errorf("remove marker %s: %w", id, err))
			continue
		}
		delete(m.markers, id)
		delete(m.stations, id)
		if m.selected == id {
			m.selected = ""
		}
		res.Removed++
	}

	// rank order so the nearest markers are drawn first
	for _, it := range sel.Items {
		st := it.Station
		if _, ok := m.markers[st.ID]; ok {
			res.Kept++
			continue
		}
		h, err := m.surface.AddMarker(ctx, st, m.clickHandler(st.ID))
		if err != nil {
			metrics.MarkerErrors.WithLabelValues("add").Inc()
			if errors.Is(err, ports.ErrSurfaceClosed) {
				m.logger.Debug("add marker on closed surface", "station_id", st.ID)
				continue
			}
			errs = append(errs, fmt.Errorf("add marker %s: %w", st.ID, err))
			continue
		}
		m.markers[st.ID] = h
		m.stations[st.ID] = st
		res.Added++
	}

	metrics.Reconciliations.Inc()
	metrics.MarkerChanges.WithLabelValues("add").Add(float64(res.Added))
	metrics.MarkerChanges.WithLabelValues("remove").Add(float64(res.Removed))

	return res, errors.Join(errs...)
}

func (m *MarkerManager) clickHandler(id string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.Select(ctx, id); err != nil {
			m.logger.Warn("marker click", "station_id", id, "error", err)
		}
	}
}

// Select marks the station selected, flies the surface to it and publishes the selection.
func (m *MarkerManager) Select(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	st, ok := m.stations[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("select %s: %w", id, ErrStationNotFound)
	}
	m.selected = id
	m.mu.Unlock()

	if err := m.surface.FlyTo(ctx, st.Location, SelectedZoom); err != nil && !errors.Is(err, ports.ErrSurfaceClosed) {
		return fmt.Errorf("fly to %s: %w", id, err)
	}

	if m.publisher != nil {
		if err := m.publisher.PublishStationSelected(ctx, m.sessionID, &st); err != nil {
			m.logger.Warn("publish station selected", "station_id", id, "error", err)
		}
	}
	return nil
}

// Selected returns the ID of the last clicked station, or "".
func (m *MarkerManager) Selected() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Visible returns the IDs of the rendered markers, sorted.
func (m *MarkerManager) Visible() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.markers))
	for id := range m.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Dispose removes every marker and makes further reconciles no-ops.
// Safe to call more than once.
func (m *MarkerManager) Dispose(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	for id, h := range m.markers {
		if err := m.surface.RemoveMarker(ctx, h); err != nil && !errors.Is(err, ports.ErrSurfaceClosed) {
			m.logger.Debug("remove marker on dispose", "station_id", id, "error", err)
		}
	}
	m.markers = make(map[string]ports.MarkerHandle)
	m.stations = make(map[string]domain.Station)
	m.selected = ""
}

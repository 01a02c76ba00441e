package usecases

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/pkg/debounce"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
	"github.com/cheapgasoline/fuelmap/internal/pkg/telemetry"
)

// Map view defaults.
const (
	DefaultInitialZoom = 13
	DefaultDebounce    = 250 * time.Millisecond
)

// StationSnapshot exposes the current read-only candidate set.
type StationSnapshot interface {
	Stations() []domain.Station
}

// MapViewConfig configures a MapView.
type MapViewConfig struct {
	InitialZoom int
	LocatedZoom int
	Debounce    time.Duration
}

func (c MapViewConfig) withDefaults() MapViewConfig {
	if c.InitialZoom <= 0 {
		c.InitialZoom = DefaultInitialZoom
	}
	if c.LocatedZoom <= 0 {
		c.LocatedZoom = SelectedZoom
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	return c
}

// MapView drives one map surface: it centers on the user, selects the nearest
// stations and keeps the markers in sync as the viewport settles.
type MapView struct {
	id       string
	surface  ports.MapSurface
	geo      ports.GeolocationProvider
	catalog  StationSnapshot
	selector *proximity.Selector
	location *LocationService
	markers  *MarkerManager
	cfg      MapViewConfig
	logger   *slog.Logger

	debouncer *debounce.Debouncer

	// mu serializes reconciliation
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closed      bool
	position    domain.Position
	last        domain.Selection
	runs        int

	centerMu  sync.Mutex
	latest    domain.GeoPoint
	hasLatest bool
}

// MapViewDeps groups the collaborators of a MapView.
type MapViewDeps struct {
	Surface   ports.MapSurface
	Geo       ports.GeolocationProvider
	Catalog   StationSnapshot
	Selector  *proximity.Selector
	Location  *LocationService
	Publisher ports.EventPublisher
}

// NewMapView creates a MapView. Call Start to draw it.
func NewMapView(id string, deps MapViewDeps, cfg MapViewConfig) *MapView {
	cfg = cfg.withDefaults()
	if deps.Selector == nil {
		deps.Selector = proximity.NewSelector(proximity.DefaultConfig())
	}
	if deps.Location == nil {
		deps.Location = NewLocationService(LocationConfig{})
	}
	v := &MapView{
		id:       id,
		surface:  deps.Surface,
		geo:      deps.Geo,
		catalog:  deps.Catalog,
		selector: deps.Selector,
		location: deps.Location,
		markers:  NewMarkerManager(deps.Surface, deps.Publisher, id),
		cfg:      cfg,
		logger:   slog.Default().With("session_id", id),
	}
	v.debouncer = debounce.New(cfg.Debounce, v.settled)
	return v
}

// ID returns the view identifier.
func (v *MapView) ID() string { return v.id }

// Markers returns the view's marker manager.
func (v *MapView) Markers() *MarkerManager { return v.markers }

// Start initializes the surface, centers it on the resolved location, draws
// the first selection and starts listening for viewport changes.
func (v *MapView) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ports.ErrSurfaceClosed
	}
	v.ctx, v.cancel = context.WithCancel(ctx)
	viewCtx := v.ctx
	v.mu.Unlock()

	fallback := v.location.Fallback()
	if err := v.surface.Init(viewCtx, fallback.Point(), v.cfg.InitialZoom); err != nil {
		if errors.Is(err, ports.ErrSurfaceClosed) {
			return err
		}
		// markers render without tiles
		metrics.TileErrors.Inc()
		v.logger.Warn("map surface init failed", "error", err)
	}

	pos := v.location.Resolve(viewCtx, v.geo)
	zoom := v.cfg.LocatedZoom
	if pos.Fallback {
		zoom = v.cfg.InitialZoom
	}
	if err := v.surface.FlyTo(viewCtx, pos.Point(), zoom); err != nil {
		if errors.Is(err, ports.ErrSurfaceClosed) {
			return err
		}
		v.logger.Warn("fly to location failed", "error", err)
	}

	v.mu.Lock()
	v.position = pos
	v.mu.Unlock()
	v.setLatest(pos.Point())

	if err := v.reconcile(viewCtx, pos.Point()); err != nil {
		v.logger.Warn("initial reconcile", "error", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ports.ErrSurfaceClosed
	}
	v.unsubscribe = v.surface.OnViewportChange(v.onViewport)
	return nil
}

func (v *MapView) onViewport(ev domain.ViewportEvent) {
	if !ev.Viewport.Center.Valid() {
		return
	}
	v.setLatest(ev.Viewport.Center)
	v.debouncer.Schedule()
}

// Refresh schedules a debounced reselection around the latest center.
func (v *MapView) Refresh() {
	v.debouncer.Schedule()
}

func (v *MapView) settled() {
	v.mu.Lock()
	ctx := v.ctx
	v.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	center, ok := v.latestCenter()
	if !ok {
		center = v.surface.Center()
	}
	if err := v.reconcile(ctx, center); err != nil {
		v.logger.Warn("reconcile", "error", err)
	}
}

func (v *MapView) reconcile(ctx context.Context, center domain.GeoPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "mapview.reconcile",
		attribute.String("session.id", v.id),
		attribute.Float64("center.lat", center.Lat),
		attribute.Float64("center.lon", center.Lon),
	)
	defer span.End()

	sel := v.selector.Select(center, v.catalog.Stations())
	if sel.Fallback {
		metrics.SelectionFallbacks.Inc()
	}
	if len(sel.Items) > 0 {
		metrics.SelectionRadius.Observe(sel.RadiusKm)
	}

	res, err := v.markers.Reconcile(ctx, sel)
	v.last = sel
	v.runs++

	span.SetAttributes(
		attribute.Int("markers.added", res.Added),
		attribute.Int("markers.removed", res.Removed),
		attribute.Float64("selection.radius_km", sel.RadiusKm),
	)
	v.logger.Debug("markers reconciled",
		"added", res.Added, "removed", res.Removed, "kept", res.Kept,
		"radius_km", sel.RadiusKm, "fallback", sel.Fallback)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Position returns the location resolved by Start.
func (v *MapView) Position() domain.Position {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.position
}

// LastSelection returns the most recently reconciled selection.
func (v *MapView) LastSelection() domain.Selection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Reconciliations returns how many reconciliations have run.
func (v *MapView) Reconciliations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.runs
}

func (v *MapView) setLatest(p domain.GeoPoint) {
	v.centerMu.Lock()
	v.latest = p
	v.hasLatest = true
	v.centerMu.Unlock()
}

func (v *MapView) latestCenter() (domain.GeoPoint, bool) {
	v.centerMu.Lock()
	defer v.centerMu.Unlock()
	return v.latest, v.hasLatest
}

// Close stops the debouncer, detaches listeners and removes the markers.
// Safe to call more than once.
func (v *MapView) Close(ctx context.Context) {
	v.debouncer.Stop()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
	if v.cancel != nil {
		v.cancel()
	}
	v.mu.Unlock()

	v.markers.Dispose(ctx)
}

// MapViews tracks the live map views of the process.
type MapViews struct {
	mu    sync.RWMutex
	views map[string]*MapView
}

// NewMapViews creates an empty registry.
func NewMapViews() *MapViews {
	return &MapViews{views: make(map[string]*MapView)}
}

// Add registers v.
func (r *MapViews) Add(v *MapView) {
	r.mu.Lock()
	r.views[v.ID()] = v
	n := len(r.views)
	r.mu.Unlock()
	metrics.ActiveMapViews.Set(float64(n))
}

// Remove unregisters the view with the given id.
func (r *MapViews) Remove(id string) {
	r.mu.Lock()
	delete(r.views, id)
	n := len(r.views)
	r.mu.Unlock()
	metrics.ActiveMapViews.Set(float64(n))
}

// Get returns the view with the given id.
func (r *MapViews) Get(id string) (*MapView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.views[id]
	return v, ok
}

// Len returns the number of live views.
func (r *MapViews) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// RefreshAll schedules a refresh on every live view.
func (r *MapViews) RefreshAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.views {
		v.Refresh()
	}
}

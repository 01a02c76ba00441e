package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/geospatial"
)

var batumi = domain.GeoPoint{Lat: 41.6168, Lon: 41.6367}

// twoCities has ten stations around Tbilisi and ten around Batumi.
func twoCities() fixedSnapshot {
	var out fixedSnapshot
	for i := 0; i < 10; i++ {
		out = append(out,
			domain.Station{ID: fmt.Sprintf("tb-%d", i), Location: geospatial.Offset(tbilisi, 0.5+float64(i)*0.5, float64(i*36))},
			domain.Station{ID: fmt.Sprintf("ba-%d", i), Location: geospatial.Offset(batumi, 0.5+float64(i)*0.5, float64(i*36))},
		)
	}
	return out
}

func newView(surface *mockSurface, geo ports.GeolocationProvider) *usecases.MapView {
	return usecases.NewMapView("view-1", usecases.MapViewDeps{
		Surface:  surface,
		Geo:      geo,
		Catalog:  twoCities(),
		Location: fastLocation(),
	}, usecases.MapViewConfig{Debounce: 40 * time.Millisecond})
}

func located(p domain.GeoPoint) *mockGeo {
	return &mockGeo{currentPositionFn: func(ctx context.Context) (domain.Position, error) {
		return domain.Position{Lat: p.Lat, Lon: p.Lon, Accuracy: 10}, nil
	}}
}

func allPrefixed(ids []string, prefix string) bool {
	for _, id := range ids {
		if len(id) < len(prefix) || id[:len(prefix)] != prefix {
			return false
		}
	}
	return true
}

func TestMapView_StartLocated(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, located(batumi))

	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, batumi, f.Point)
	assert.Equal(t, 16, f.Zoom)

	assert.Len(t, v.Markers().Visible(), 10)
	assert.True(t, allPrefixed(v.Markers().Visible(), "ba-"))
	assert.Equal(t, 1, v.Reconciliations())
	assert.Equal(t, 1, surface.listenerCount())
}

func TestMapView_StartFallback(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, nil)

	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	assert.True(t, v.Position().Fallback)
	f, _ := surface.lastFlight()
	assert.Equal(t, 13, f.Zoom)
	assert.True(t, allPrefixed(v.Markers().Visible(), "tb-"))
}

func TestMapView_TileFailureDoesNotBlockMarkers(t *testing.T) {
	surface := newMockSurface()
	surface.initErr = errors.New("tile server unreachable")
	v := newView(surface, nil)

	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	assert.NotEmpty(t, v.Markers().Visible())
}

func TestMapView_RapidMovesReconcileOnceWithLatestCenter(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, nil)
	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())
	require.Equal(t, 1, v.Reconciliations())

	surface.emit(domain.ViewportMoveEnd, tbilisi)
	time.Sleep(10 * time.Millisecond)
	surface.emit(domain.ViewportMoveEnd, batumi)

	assert.Eventually(t, func() bool { return v.Reconciliations() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, v.Reconciliations())

	assert.Equal(t, batumi, v.LastSelection().Center)
	assert.True(t, allPrefixed(v.Markers().Visible(), "ba-"))
}

func TestMapView_ZoomEndTriggersReconcile(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, located(tbilisi))
	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	surface.emit(domain.ViewportZoomEnd, batumi)
	assert.Eventually(t, func() bool { return v.Reconciliations() == 2 }, time.Second, 5*time.Millisecond)
}

func TestMapView_RefreshReselects(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, located(tbilisi))
	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	v.Refresh()
	assert.Eventually(t, func() bool { return v.Reconciliations() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, tbilisi, v.LastSelection().Center)
}

func TestMapView_CloseCancelsPendingAndDetaches(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, nil)
	require.NoError(t, v.Start(context.Background()))

	surface.emit(domain.ViewportMoveEnd, batumi)
	v.Close(context.Background())
	v.Close(context.Background())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, v.Reconciliations())
	assert.Equal(t, 0, surface.listenerCount())
	assert.Empty(t, surface.markerIDs())
}

func TestMapView_CloseOnTornDownSurface(t *testing.T) {
	surface := newMockSurface()
	v := newView(surface, nil)
	require.NoError(t, v.Start(context.Background()))

	surface.close()
	assert.NotPanics(t, func() { v.Close(context.Background()) })
}

func TestMapViews_Registry(t *testing.T) {
	reg := usecases.NewMapViews()
	surface := newMockSurface()
	v := newView(surface, nil)
	require.NoError(t, v.Start(context.Background()))
	defer v.Close(context.Background())

	reg.Add(v)
	assert.Equal(t, 1, reg.Len())
	got, ok := reg.Get("view-1")
	require.True(t, ok)
	assert.Same(t, v, got)

	reg.RefreshAll()
	assert.Eventually(t, func() bool { return v.Reconciliations() == 2 }, time.Second, 5*time.Millisecond)

	reg.Remove("view-1")
	assert.Equal(t, 0, reg.Len())
}

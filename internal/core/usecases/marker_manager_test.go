package usecases_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/geospatial"
)

var tbilisi = domain.GeoPoint{Lat: 41.7151, Lon: 44.8271}

func selectionOf(ids ...string) domain.Selection {
	sel := domain.Selection{Center: tbilisi}
	for i, id := range ids {
		sel.Items = append(sel.Items, domain.RankedStation{
			Station:    domain.Station{ID: id, Name: id, Location: geospatial.Offset(tbilisi, float64(i+1), 90)},
			DistanceKm: float64(i + 1),
		})
	}
	return sel
}

func TestMarkerManager_ReconcileAddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")

	res, err := m.Reconcile(ctx, selectionOf("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, usecases.ReconcileResult{Added: 3}, res)

	res, err = m.Reconcile(ctx, selectionOf("b", "c", "d"))
	require.NoError(t, err)
	assert.Equal(t, usecases.ReconcileResult{Added: 1, Removed: 1, Kept: 2}, res)

	assert.Equal(t, []string{"b", "c", "d"}, m.Visible())
	assert.Equal(t, map[string]bool{"b": true, "c": true, "d": true}, surface.markerIDs())
}

func TestMarkerManager_ReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")
	sel := selectionOf("a", "b", "c")

	_, err := m.Reconcile(ctx, sel)
	require.NoError(t, err)
	res, err := m.Reconcile(ctx, sel)
	require.NoError(t, err)

	assert.Equal(t, usecases.ReconcileResult{Kept: 3}, res)
	adds, removes := surface.counts()
	assert.Equal(t, 3, adds)
	assert.Equal(t, 0, removes)
}

func TestMarkerManager_EmptySelectionClears(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")

	_, _ = m.Reconcile(ctx, selectionOf("a", "b"))
	res, err := m.Reconcile(ctx, domain.Selection{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Removed)
	assert.Empty(t, m.Visible())
	assert.Empty(t, surface.markerIDs())
}

func TestMarkerManager_RemoveOnClosedSurfaceIsNoop(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")

	_, _ = m.Reconcile(ctx, selectionOf("a", "b"))
	surface.close()

	res, err := m.Reconcile(ctx, domain.Selection{})
	assert.NoError(t, err)
	assert.Equal(t, 2, res.Removed)
	assert.Empty(t, m.Visible())
}

func TestMarkerManager_AddFailureRetriedNextReconcile(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	surface.addErr["b"] = errors.New("icon failed")
	m := usecases.NewMarkerManager(surface, nil, "s1")
	sel := selectionOf("a", "b")

	res, err := m.Reconcile(ctx, sel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add marker b")
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{"a"}, m.Visible())

	delete(surface.addErr, "b")
	res, err = m.Reconcile(ctx, sel)
	require.NoError(t, err)
	assert.Equal(t, usecases.ReconcileResult{Added: 1, Kept: 1}, res)
	assert.Equal(t, []string{"a", "b"}, m.Visible())
}

func TestMarkerManager_RemoveFailureKeepsMarker(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")
	_, _ = m.Reconcile(ctx, selectionOf("a", "b"))

	surface.removeErr = errors.New("layer busy")
	_, err := m.Reconcile(ctx, selectionOf("a"))
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, m.Visible())

	surface.removeErr = nil
	_, err = m.Reconcile(ctx, selectionOf("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, m.Visible())
}

func TestMarkerManager_ClickSelectsAndFlies(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	pub := &mockPublisher{}
	m := usecases.NewMarkerManager(surface, pub, "s1")
	sel := selectionOf("a", "b")
	_, _ = m.Reconcile(ctx, sel)

	surface.click("b")

	assert.Equal(t, "b", m.Selected())
	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, usecases.SelectedZoom, f.Zoom)
	assert.Equal(t, sel.Items[1].Station.Location, f.Point)
	assert.Equal(t, []string{"b"}, pub.selectedIDs())
}

func TestMarkerManager_SelectionClearedWhenMarkerLeaves(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")
	_, _ = m.Reconcile(ctx, selectionOf("a", "b"))

	surface.click("a")
	require.Equal(t, "a", m.Selected())

	_, err := m.Reconcile(ctx, selectionOf("b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, m.Visible())
	assert.Empty(t, m.Selected())

	surface.click("b")
	_, err = m.Reconcile(ctx, selectionOf("b", "c"))
	require.NoError(t, err)
	assert.Equal(t, "b", m.Selected())
}

func TestMarkerManager_SelectUnknownStation(t *testing.T) {
	m := usecases.NewMarkerManager(newMockSurface(), nil, "s1")
	err := m.Select(context.Background(), "nope")
	assert.ErrorIs(t, err, usecases.ErrStationNotFound)
}

func TestMarkerManager_DisposeIgnoresFurtherReconciles(t *testing.T) {
	ctx := context.Background()
	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")
	_, _ = m.Reconcile(ctx, selectionOf("a", "b"))

	m.Dispose(ctx)
	m.Dispose(ctx)
	assert.Empty(t, surface.markerIDs())

	res, err := m.Reconcile(ctx, selectionOf("c"))
	assert.NoError(t, err)
	assert.Equal(t, usecases.ReconcileResult{}, res)
	assert.Empty(t, surface.markerIDs())
}

func TestMarkerManager_TwentyPointScenario(t *testing.T) {
	distances := []float64{1, 3, 8, 15, 25, 39, 60, 90, 120, 170, 190, 230, 260, 300, 340, 380, 410, 450, 480, 500}
	stations := make([]domain.Station, len(distances))
	for i, d := range distances {
		stations[i] = domain.Station{
			ID:       fmt.Sprintf("st-%02d", i),
			Location: geospatial.Offset(tbilisi, d, float64(i*17)),
		}
	}

	sel := proximity.NewSelector(proximity.DefaultConfig()).Select(tbilisi, stations)
	within := 0
	for _, st := range stations {
		if geospatial.Distance(tbilisi, st.Location) <= sel.RadiusKm {
			within++
		}
	}

	surface := newMockSurface()
	m := usecases.NewMarkerManager(surface, nil, "s1")
	_, err := m.Reconcile(context.Background(), sel)
	require.NoError(t, err)

	assert.Len(t, surface.markerIDs(), min(15, within))
	assert.Len(t, m.Visible(), 6)
}

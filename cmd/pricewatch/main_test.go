package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
)

type fakeSource struct {
	stations []domain.Station
	err      error
}

func (s *fakeSource) Stations(context.Context) ([]domain.Station, error) {
	return s.stations, s.err
}

type fakePublisher struct {
	updates []ports.CatalogUpdate
}

func (p *fakePublisher) PublishStationSelected(context.Context, string, *domain.Station) error {
	return nil
}

func (p *fakePublisher) PublishCatalogUpdated(_ context.Context, u ports.CatalogUpdate) error {
	p.updates = append(p.updates, u)
	return nil
}

func TestWatcher_PublishesOnlyOnChange(t *testing.T) {
	src := &fakeSource{stations: []domain.Station{
		{ID: "st-1", Name: "SOCAR Vake", Location: domain.GeoPoint{Lat: 41.71, Lon: 44.76}},
	}}
	pub := &fakePublisher{}
	invalidated := 0
	w := &watcher{
		catalog:   usecases.NewCatalog(src, "seed"),
		publisher: pub,
		invalidate: func(context.Context) error {
			invalidated++
			return nil
		},
	}
	ctx := context.Background()

	w.poll(ctx)
	w.poll(ctx)
	require.Len(t, pub.updates, 1)
	assert.Equal(t, 1, pub.updates[0].Count)
	assert.Equal(t, 1, invalidated)

	p := 2.89
	src.stations[0].Prices = map[string]*float64{"n95": &p}
	w.poll(ctx)
	require.Len(t, pub.updates, 2)
	assert.NotEqual(t, pub.updates[0].Version, pub.updates[1].Version)
	assert.Equal(t, 2, invalidated)
}

func TestWatcher_SourceErrorPublishesNothing(t *testing.T) {
	pub := &fakePublisher{}
	w := &watcher{
		catalog:   usecases.NewCatalog(&fakeSource{err: errors.New("connection refused")}, "remote"),
		publisher: pub,
	}
	w.poll(context.Background())
	assert.Empty(t, pub.updates)
}

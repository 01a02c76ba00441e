package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

// StationSource implements ports.StationSource with pgx. It only reads the
// station and priceupdate tables maintained by the station backend.
type StationSource struct {
	db *DB
}

// NewStationSource creates a new StationSource.
func NewStationSource(db *DB) *StationSource {
	return &StationSource{db: db}
}

type stationRow struct {
	ID         string  `db:"id"`
	Name       string  `db:"name"`
	Brand      string  `db:"brand"`
	Lat        float64 `db:"lat"`
	Lng        float64 `db:"lng"`
	FuelConfig string  `db:"fuel_config"`
}

// Stations implements ports.StationSource.
func (s *StationSource) Stations(ctx context.Context) ([]domain.Station, error) {
	latest, err := s.latestPrices(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT id::text AS id, COALESCE(name, '') AS name, COALESCE(brand, '') AS brand,
		       lat, lng, COALESCE(fuel_config, '') AS fuel_config
		FROM station
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[stationRow])
	if err != nil {
		return nil, fmt.Errorf("scan stations: %w", err)
	}

	out := make([]domain.Station, 0, len(recs))
	for _, r := range recs {
		st := domain.Station{
			ID:       r.ID,
			Name:     r.Name,
			Brand:    r.Brand,
			Location: domain.GeoPoint{Lat: r.Lat, Lon: r.Lng},
		}
		grades, err := domain.ParseFuelConfig(r.FuelConfig)
		if err != nil {
			slog.Warn("station fuel config", "station_id", r.ID, "error", err)
		}
		st.ApplyFuelGrades(grades, latest[r.ID])
		out = append(out, st)
	}
	return out, nil
}

// latestPrices returns station id -> fuel -> most recent price.
func (s *StationSource) latestPrices(ctx context.Context) (map[string]map[string]float64, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT DISTINCT ON (station_id, fuel_type) station_id::text, fuel_type, price
		FROM priceupdate
		WHERE price IS NOT NULL
		ORDER BY station_id, fuel_type, timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			stationID, fuel string
			price           float64
		)
		if err := rows.Scan(&stationID, &fuel, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		if out[stationID] == nil {
			out[stationID] = make(map[string]float64)
		}
		out[stationID][fuel] = price
	}
	return out, rows.Err()
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

// Source implements ports.StationSource over a station database and an
// optional price database. Both are only read.
type Source struct {
	stations *sql.DB
	prices   *sql.DB
}

// Open opens the databases. pricesPath may be empty.
func Open(stationsPath, pricesPath string) (*Source, error) {
	st, err := sql.Open("sqlite", stationsPath)
	if err != nil {
		return nil, fmt.Errorf("open stations db: %w", err)
	}
	s := &Source{stations: st}
	if pricesPath != "" {
		pr, err := sql.Open("sqlite", pricesPath)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open prices db: %w", err)
		}
		s.prices = pr
	}
	return s, nil
}

// Ping checks the station database is readable.
func (s *Source) Ping(ctx context.Context) error {
	return s.stations.PingContext(ctx)
}

// Stations implements ports.StationSource.
func (s *Source) Stations(ctx context.Context) ([]domain.Station, error) {
	latest, err := s.latestPrices(ctx)
	if err != nil {
		// stations still render without prices
		slog.Warn("sqlite prices unavailable", "error", err)
		latest = nil
	}

	rows, err := s.stations.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(brand, ''), lat, lng, COALESCE(fuel_config, '')
		FROM station
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var out []domain.Station
	for rows.Next() {
		var (
			id         int64
			st         domain.Station
			fuelConfig string
		)
		if err := rows.Scan(&id, &st.Name, &st.Brand, &st.Location.Lat, &st.Location.Lon, &fuelConfig); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		st.ID = strconv.FormatInt(id, 10)
		grades, err := domain.ParseFuelConfig(fuelConfig)
		if err != nil {
			slog.Warn("station fuel config", "station_id", st.ID, "error", err)
		}
		st.ApplyFuelGrades(grades, latest[st.ID])
		out = append(out, st)
	}
	return out, rows.Err()
}

// latestPrices returns station id -> fuel -> most recent price.
func (s *Source) latestPrices(ctx context.Context) (map[string]map[string]float64, error) {
	if s.prices == nil {
		return nil, nil
	}
	// ascending so later rows overwrite earlier ones
	rows, err := s.prices.QueryContext(ctx, `
		SELECT station_id, fuel_type, price
		FROM priceupdate
		WHERE price IS NOT NULL
		ORDER BY timestamp, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var (
			stationID int64
			fuel      string
			price     float64
		)
		if err := rows.Scan(&stationID, &fuel, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		key := strconv.FormatInt(stationID, 10)
		if out[key] == nil {
			out[key] = make(map[string]float64)
		}
		out[key][fuel] = price
	}
	return out, rows.Err()
}

// Close releases both databases.
func (s *Source) Close() error {
	err := s.stations.Close()
	if s.prices != nil {
		if perr := s.prices.Close(); err == nil {
			err = perr
		}
	}
	return err
}

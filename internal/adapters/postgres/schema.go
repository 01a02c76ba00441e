package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the station and priceupdate schema. Every script is idempotent.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrations.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(script)); err != nil {
			return nil, fmt.Errorf("exec %s: %w", name, err)
		}
		slog.Info("migration applied", "file", name)
	}
	return names, nil
}

// ImportStations inserts stations and their known prices in one transaction.
// Station IDs are assigned by the database. It returns the number of stations written.
func (db *DB) ImportStations(ctx context.Context, stations []domain.Station, source string) (int, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, st := range stations {
		var id int
		err := tx.QueryRow(ctx,
			`INSERT INTO station (name, brand, lat, lng, fuel_config) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			st.Name, st.Brand, st.Location.Lat, st.Location.Lon, fuelConfig(st),
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("insert station %q: %w", st.Name, err)
		}

		batch := &pgx.Batch{}
		for fuel, p := range st.Prices {
			if p == nil {
				continue
			}
			batch.Queue(`INSERT INTO priceupdate (station_id, fuel_type, price, source) VALUES ($1, $2, $3, $4)`,
				id, fuel, *p, source)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return 0, fmt.Errorf("insert prices for %q: %w", st.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(stations), nil
}

// fuelConfig encodes the station's fuel labels in the station.fuel_config format.
func fuelConfig(st domain.Station) *string {
	if len(st.FuelLabels) == 0 {
		return nil
	}
	grades := make([]domain.FuelGrade, 0, len(st.FuelLabels))
	for id, label := range st.FuelLabels {
		grades = append(grades, domain.FuelGrade{ID: id, Label: label})
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].ID < grades[j].ID })
	b, err := json.Marshal(grades)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

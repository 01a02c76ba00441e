package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/adapters/postgres"
	"github.com/cheapgasoline/fuelmap/internal/adapters/remoteapi"
	"github.com/cheapgasoline/fuelmap/internal/adapters/seedfile"
	"github.com/cheapgasoline/fuelmap/internal/adapters/sqlite"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/config"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Opened is a ready station source and the resources behind it.
type Opened struct {
	Source  ports.StationSource
	Kind    string
	Pinger  Pinger // nil for seed and remote sources
	closers []func()
}

// Close releases the underlying connections.
func (o *Opened) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
	o.closers = nil
}

// CacheKey is the cache key holding the station snapshot of a source kind.
func CacheKey(kind string) string {
	return "catalog:" + kind
}

// Open builds the source named by cfg.Kind. When cache is non-nil and
// cfg.CacheTTL is positive the source is wrapped with a cached snapshot.
func Open(ctx context.Context, cfg config.SourceConfig, cache ports.CacheService) (*Opened, error) {
	o := &Opened{Kind: cfg.Kind}

	switch cfg.Kind {
	case config.SourceSeed:
		o.Source = seedfile.New(cfg.SeedFile)

	case config.SourceRemote:
		o.Source = remoteapi.New(cfg.Remote.BaseURL, cfg.Remote.Timeout, nil)

	case config.SourcePostgres:
		db, err := postgres.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres source: %w", err)
		}
		poolCtx, stop := context.WithCancel(ctx)
		go db.ReportPoolStats(poolCtx, 15*time.Second)
		o.Source = postgres.NewStationSource(db)
		o.Pinger = db
		o.closers = append(o.closers, stop, db.Close)

	case config.SourceSQLite:
		src, err := sqlite.Open(cfg.SQLite.StationsPath, cfg.SQLite.PricesPath)
		if err != nil {
			return nil, fmt.Errorf("sqlite source: %w", err)
		}
		o.Source = src
		o.Pinger = src
		o.closers = append(o.closers, func() {
			if err := src.Close(); err != nil {
				slog.Warn("close sqlite source", "error", err)
			}
		})

	default:
		return nil, fmt.Errorf("unknown station source %q", cfg.Kind)
	}

	if cache != nil && cfg.CacheTTL > 0 {
		o.Source = usecases.NewCachedSource(o.Source, cache, CacheKey(cfg.Kind), cfg.CacheTTL)
	}

	slog.Info("station source opened", "kind", cfg.Kind, "cached", cache != nil && cfg.CacheTTL > 0)
	return o, nil
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsadapter "github.com/cheapgasoline/fuelmap/internal/adapters/nats"
	"github.com/cheapgasoline/fuelmap/internal/adapters/sources"
	"github.com/cheapgasoline/fuelmap/internal/adapters/valkey"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/config"
	"github.com/cheapgasoline/fuelmap/internal/pkg/logging"
)

const defaultPollInterval = time.Minute

func main() {
	cfg, err := config.Load("fuelmap-pricewatch")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", cfg.Telemetry.ServiceName)

	if cfg.NATS.URL == "" {
		log.Fatal("pricewatch needs nats.url to announce catalog updates")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// always read the source itself, never a cached snapshot
	src, err := sources.Open(ctx, cfg.Source, nil)
	if err != nil {
		log.Fatalf("station source: %v", err)
	}
	defer src.Close()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer pub.Close()

	var invalidate func(context.Context) error
	if cfg.Valkey.Addr != "" && cfg.Source.CacheTTL > 0 {
		cache, err := valkey.New(cfg.Valkey.Addr, "fuelmap:")
		if err != nil {
			slog.Warn("valkey unavailable, cached snapshots expire on their own", "error", err)
		} else {
			defer cache.Close()
			cached := usecases.NewCachedSource(src.Source, cache, sources.CacheKey(src.Kind), cfg.Source.CacheTTL)
			invalidate = cached.Invalidate
		}
	}

	interval := cfg.Source.RefreshEvery
	if interval <= 0 {
		interval = defaultPollInterval
	}

	w := &watcher{
		catalog:    usecases.NewCatalog(src.Source, src.Kind),
		publisher:  pub,
		invalidate: invalidate,
	}

	slog.Info("pricewatch started", "source", src.Kind, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	w.poll(ctx)
	for {
		select {
		case <-ticker.C:
			w.poll(ctx)
		case <-ctx.Done():
			return
		case sig := <-quit:
			slog.Info("shutting down pricewatch", "signal", sig.String())
			return
		}
	}
}

// watcher announces a catalog.updated event whenever the source content changes.
type watcher struct {
	catalog    *usecases.Catalog
	publisher  ports.EventPublisher
	invalidate func(context.Context) error
}

func (w *watcher) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	changed, err := w.catalog.Load(ctx)
	if err != nil {
		slog.Warn("poll station source", "error", err)
		return
	}
	if !changed {
		return
	}

	status := w.catalog.Status()
	if w.invalidate != nil {
		if err := w.invalidate(ctx); err != nil {
			slog.Warn("invalidate cached catalog", "error", err)
		}
	}
	if err := w.publisher.PublishCatalogUpdated(ctx, ports.CatalogUpdate{Version: status.Version, Count: status.Count}); err != nil {
		slog.Error("publish catalog update", "version", status.Version, "error", err)
		return
	}
	slog.Info("catalog update published", "version", status.Version, "count", status.Count)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"

	"github.com/cheapgasoline/fuelmap/internal/adapters/http"
	natsadapter "github.com/cheapgasoline/fuelmap/internal/adapters/nats"
	"github.com/cheapgasoline/fuelmap/internal/adapters/sources"
	"github.com/cheapgasoline/fuelmap/internal/adapters/valkey"
	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/core/proximity"
	"github.com/cheapgasoline/fuelmap/internal/core/usecases"
	"github.com/cheapgasoline/fuelmap/internal/pkg/config"
	"github.com/cheapgasoline/fuelmap/internal/pkg/logging"
	"github.com/cheapgasoline/fuelmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("fuelmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.SampleRatio)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown(context.Background())
		}
	}

	// Cache (optional)
	var cache *valkey.Cache
	var cacheSvc ports.CacheService
	if cfg.Valkey.Addr != "" {
		cache, err = valkey.New(cfg.Valkey.Addr, "fuelmap:")
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			cacheSvc = cache
		}
	}

	// Station source
	src, err := sources.Open(ctx, cfg.Source, cacheSvc)
	if err != nil {
		log.Fatalf("station source: %v", err)
	}
	defer src.Close()

	catalog := usecases.NewCatalog(src.Source, src.Kind)
	if _, err := catalog.Load(ctx); err != nil {
		// readiness stays red until a refresh succeeds
		slog.Error("initial catalog load failed", "error", err)
	}

	// NATS (optional)
	var publisher ports.EventPublisher
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publisher = pub
			natsConn = pub.Conn()
		}
	}

	selector := proximity.NewSelector(proximity.Config(cfg.Proximity))
	location := usecases.NewLocationService(usecases.LocationConfig{
		Timeout:    cfg.Location.Timeout,
		GuardSlack: cfg.Location.GuardSlack,
		Fallback:   domain.GeoPoint{Lat: cfg.Location.FallbackLat, Lon: cfg.Location.FallbackLon},
	})
	views := usecases.NewMapViews()

	reload := func(ctx context.Context, reason string) {
		changed, err := catalog.Load(ctx)
		if err != nil {
			slog.Warn("catalog reload failed", "reason", reason, "error", err)
			return
		}
		if changed {
			slog.Info("catalog changed, refreshing map views", "reason", reason, "views", views.Len())
			views.RefreshAll()
		}
	}

	if cfg.NATS.URL != "" {
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			err := sub.SubscribeCatalogUpdates(ctx, func(ctx context.Context, u ports.CatalogUpdate) error {
				if u.Version == catalog.Status().Version {
					return nil
				}
				if c, ok := src.Source.(*usecases.CachedSource); ok {
					if err := c.Invalidate(ctx); err != nil {
						slog.Warn("invalidate cached catalog", "error", err)
					}
				}
				reload(ctx, "catalog.updated")
				return nil
			})
			if err != nil {
				slog.Warn("subscribe catalog updates", "error", err)
			}
		}
	}

	if cfg.Source.RefreshEvery > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Source.RefreshEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reload(ctx, "interval")
				}
			}
		}()
	}

	deps := &http.Dependencies{
		Stations:  usecases.NewStationService(catalog, selector, cacheSvc),
		Catalog:   catalog,
		Views:     views,
		Selector:  selector,
		Location:  location,
		Publisher: publisher,
		MapView: usecases.MapViewConfig{
			InitialZoom: cfg.Map.InitialZoom,
			LocatedZoom: cfg.Map.LocatedZoom,
			Debounce:    cfg.Map.Debounce,
		},
		TileURL: cfg.Map.TileURL,
		NATS:    natsConn,
	}
	if src.Pinger != nil {
		deps.Source = src.Pinger
	}
	if cache != nil {
		deps.Cache = cache
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024,
		AppName:      "Fuelmap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "source", src.Kind, "stations", catalog.Status().Count)
		if err := app.Listen(addr); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

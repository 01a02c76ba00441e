package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler answers liveness probes with the process uptime and the
// catalog version being served.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": "dev",
		}
		if deps.Catalog != nil {
			body["catalog_version"] = deps.Catalog.Status().Version
		}
		return c.JSON(body)
	}
}

type probe struct {
	name string
	// run is nil when the dependency is not configured.
	run func(ctx context.Context) error
}

var errCatalogEmpty = errors.New("empty")

func readinessProbes(deps *Dependencies) []probe {
	probes := []probe{{name: "catalog", run: func(context.Context) error {
		if deps.Catalog == nil || deps.Catalog.Status().Count == 0 {
			return errCatalogEmpty
		}
		return nil
	}}}

	p := probe{name: "source"}
	if deps.Source != nil {
		p.run = deps.Source.Ping
	}
	probes = append(probes, p)

	p = probe{name: "nats"}
	if deps.NATS != nil {
		conn := deps.NATS
		p.run = func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	probes = append(probes, p)

	p = probe{name: "cache"}
	if deps.Cache != nil {
		p.run = deps.Cache.Ping
	}
	return append(probes, p)
}

// ReadyHandler reports whether the catalog holds stations and every configured
// backing service answers. Services left unconfigured do not fail it.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true
		for _, p := range readinessProbes(deps) {
			if p.run == nil {
				checks[p.name] = "not configured"
				continue
			}
			if err := p.run(ctx); err != nil {
				checks[p.name] = err.Error()
				ready = false
				continue
			}
			checks[p.name] = "ok"
		}

		if !ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready", "checks": checks})
		}
		return c.JSON(fiber.Map{"status": "ready", "checks": checks})
	}
}

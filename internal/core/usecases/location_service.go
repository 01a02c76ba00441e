package usecases

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cheapgasoline/fuelmap/internal/core/domain"
	"github.com/cheapgasoline/fuelmap/internal/core/ports"
	"github.com/cheapgasoline/fuelmap/internal/pkg/metrics"
)

// Default location settings.
const (
	DefaultGeolocationTimeout = 8000 * time.Millisecond
	DefaultGuardSlack         = 500 * time.Millisecond
)

// DefaultFallback is the Tbilisi city center.
var DefaultFallback = domain.GeoPoint{Lat: 41.7151, Lon: 44.8271}

// LocationConfig configures a LocationService.
type LocationConfig struct {
	Timeout    time.Duration
	GuardSlack time.Duration
	Fallback   domain.GeoPoint
}

// LocationService resolves a best-effort user position. Resolve never fails.
type LocationService struct {
	cfg LocationConfig
}

// NewLocationService creates a LocationService; zero fields take the defaults.
func NewLocationService(cfg LocationConfig) *LocationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGeolocationTimeout
	}
	if cfg.GuardSlack <= 0 {
		cfg.GuardSlack = DefaultGuardSlack
	}
	if cfg.Fallback == (domain.GeoPoint{}) {
		cfg.Fallback = DefaultFallback
	}
	return &LocationService{cfg: cfg}
}

// Fallback returns the position used when geolocation fails.
func (s *LocationService) Fallback() domain.Position {
	return domain.Position{Lat: s.cfg.Fallback.Lat, Lon: s.cfg.Fallback.Lon, Fallback: true}
}

type positionResult struct {
	pos domain.Position
	err error
}

// Resolve asks provider for the current position. On error, absence or
// timeout it returns the fallback. A guard timer slightly longer than the
// timeout forces the fallback when the provider ignores its context.
func (s *LocationService) Resolve(ctx context.Context, provider ports.GeolocationProvider) domain.Position {
	if provider == nil {
		metrics.GeolocationOutcomes.WithLabelValues("unavailable").Inc()
		return s.Fallback()
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ch := make(chan positionResult, 1)
	go func() {
		pos, err := provider.CurrentPosition(reqCtx)
		ch <- positionResult{pos: pos, err: err}
	}()

	guard := time.NewTimer(s.cfg.Timeout + s.cfg.GuardSlack)
	defer guard.Stop()

	select {
	case r := <-ch:
		return s.outcome(r)
	case <-guard.C:
		slog.Debug("geolocation guard timer fired")
		metrics.GeolocationOutcomes.WithLabelValues("timeout").Inc()
		return s.Fallback()
	case <-ctx.Done():
		metrics.GeolocationOutcomes.WithLabelValues("error").Inc()
		return s.Fallback()
	}
}

func (s *LocationService) outcome(r positionResult) domain.Position {
	switch {
	case r.err == nil:
		if !r.pos.Point().Valid() {
			metrics.GeolocationOutcomes.WithLabelValues("error").Inc()
			return s.Fallback()
		}
		metrics.GeolocationOutcomes.WithLabelValues("ok").Inc()
		r.pos.Fallback = false
		return r.pos
	case errors.Is(r.err, ports.ErrGeolocationUnavailable):
		metrics.GeolocationOutcomes.WithLabelValues("unavailable").Inc()
	case errors.Is(r.err, context.DeadlineExceeded):
		metrics.GeolocationOutcomes.WithLabelValues("timeout").Inc()
	default:
		slog.Debug("geolocation failed", "error", r.err)
		metrics.GeolocationOutcomes.WithLabelValues("error").Inc()
	}
	return s.Fallback()
}

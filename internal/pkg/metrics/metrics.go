package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fuelmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fuelmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Map view metrics
	Reconciliations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "reconciliations_total",
		Help:      "Total marker reconciliations executed",
	})

	MarkerChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "marker_changes_total",
		Help:      "Markers added or removed by reconciliation",
	}, []string{"op"})

	MarkerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "marker_errors_total",
		Help:      "Marker operations that failed",
	}, []string{"op"})

	SelectionRadius = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "selection_radius_km",
		Help:      "Radius that satisfied the proximity selection",
		Buckets:   []float64{10, 20, 40, 80, 160, 200, 500, 1000},
	})

	SelectionFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "selection_fallbacks_total",
		Help:      "Selections that fell back to the globally nearest stations",
	})

	GeolocationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "geolocation_outcomes_total",
		Help:      "Geolocation resolutions by outcome",
	}, []string{"outcome"})

	TileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "map",
		Name:      "tile_errors_total",
		Help:      "Tile or layer initialization failures reported by map surfaces",
	})

	ActiveMapViews = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelmap",
		Subsystem: "ws",
		Name:      "active_map_views",
		Help:      "Current number of live map views",
	})

	// Catalog metrics
	CatalogStations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelmap",
		Subsystem: "catalog",
		Name:      "stations",
		Help:      "Stations in the current catalog snapshot",
	})

	CatalogLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "catalog",
		Name:      "loads_total",
		Help:      "Catalog loads by result",
	}, []string{"result"})

	CatalogLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fuelmap",
		Subsystem: "catalog",
		Name:      "load_duration_seconds",
		Help:      "Duration of catalog loads from the station source",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fuelmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fuelmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		// route pattern keeps :id paths low-cardinality
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
func UpdateDBPoolMetrics(stat interface{}) {
	// accepts *pgxpool.Stat without importing pgxpool here
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}

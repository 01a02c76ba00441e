package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Station source kinds.
const (
	SourceSeed     = "seed"
	SourceRemote   = "remote"
	SourcePostgres = "postgres"
	SourceSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Source    SourceConfig    `mapstructure:"source"`
	Proximity ProximityConfig `mapstructure:"proximity"`
	Map       MapConfig       `mapstructure:"map"`
	Location  LocationConfig  `mapstructure:"location"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// SourceConfig selects where stations are read from.
type SourceConfig struct {
	Kind         string         `mapstructure:"kind"`
	SeedFile     string         `mapstructure:"seed_file"` // empty uses the embedded seed
	RefreshEvery time.Duration  `mapstructure:"refresh_every"`
	CacheTTL     int            `mapstructure:"cache_ttl"` // seconds, 0 disables the Valkey snapshot
	Remote       RemoteConfig   `mapstructure:"remote"`
	Database     DatabaseConfig `mapstructure:"database"`
	SQLite       SQLiteConfig   `mapstructure:"sqlite"`
}

type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// SQLiteConfig points at the station and price databases.
type SQLiteConfig struct {
	StationsPath string `mapstructure:"stations_path"`
	PricesPath   string `mapstructure:"prices_path"` // optional
}

type ProximityConfig struct {
	MaxVisible   int     `mapstructure:"max_visible"`
	BaseRadiusKm float64 `mapstructure:"base_radius_km"`
	MaxRadiusKm  float64 `mapstructure:"max_radius_km"`
	GrowthFactor float64 `mapstructure:"growth_factor"`
	MinResults   int     `mapstructure:"min_results"`
}

type MapConfig struct {
	InitialZoom int           `mapstructure:"initial_zoom"`
	LocatedZoom int           `mapstructure:"located_zoom"`
	Debounce    time.Duration `mapstructure:"debounce"`
	TileURL     string        `mapstructure:"tile_url"`
}

type LocationConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	GuardSlack  time.Duration `mapstructure:"guard_slack"`
	FallbackLat float64       `mapstructure:"fallback_lat"`
	FallbackLon float64       `mapstructure:"fallback_lon"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"` // empty disables events
}

type ValkeyConfig struct {
	Addr string `mapstructure:"addr"` // empty disables caching
}

type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Enabled      bool    `mapstructure:"enabled"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment variables.
func Load(service string) (*Config, error) {
	_ = godotenv.Load() // OK if missing

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FUELMAP_SOURCE_KIND → source.kind
	v.SetEnvPrefix("FUELMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)

	v.SetDefault("source.kind", SourceSeed)
	v.SetDefault("source.seed_file", "")
	v.SetDefault("source.refresh_every", 5*time.Minute)
	v.SetDefault("source.cache_ttl", 60)
	v.SetDefault("source.remote.base_url", "http://localhost:8000")
	v.SetDefault("source.remote.timeout", 10*time.Second)
	v.SetDefault("source.database.host", "localhost")
	v.SetDefault("source.database.port", 5432)
	v.SetDefault("source.database.user", "fuelmap")
	v.SetDefault("source.database.password", "")
	v.SetDefault("source.database.dbname", "fuelmap")
	v.SetDefault("source.database.sslmode", "disable")
	v.SetDefault("source.sqlite.stations_path", "stations.db")
	v.SetDefault("source.sqlite.prices_path", "prices.db")

	v.SetDefault("proximity.max_visible", 15)
	v.SetDefault("proximity.base_radius_km", 10.0)
	v.SetDefault("proximity.max_radius_km", 200.0)
	v.SetDefault("proximity.growth_factor", 2.0)
	v.SetDefault("proximity.min_results", 5)

	v.SetDefault("map.initial_zoom", 13)
	v.SetDefault("map.located_zoom", 16)
	v.SetDefault("map.debounce", 250*time.Millisecond)
	v.SetDefault("map.tile_url", "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png")

	v.SetDefault("location.timeout", 8000*time.Millisecond)
	v.SetDefault("location.guard_slack", 500*time.Millisecond)
	v.SetDefault("location.fallback_lat", 41.7151)
	v.SetDefault("location.fallback_lon", 44.8271)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")

	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Source.Kind {
	case SourceSeed:
	case SourceRemote:
		if c.Source.Remote.BaseURL == "" {
			errs = append(errs, "source.remote.base_url is required for remote source")
		}
	case SourcePostgres:
		d := c.Source.Database
		if d.Host == "" {
			errs = append(errs, "source.database.host is required")
		}
		if d.Port <= 0 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("source.database.port must be 1-65535, got %d", d.Port))
		}
		if d.User == "" {
			errs = append(errs, "source.database.user is required")
		}
		if d.DBName == "" {
			errs = append(errs, "source.database.dbname is required")
		}
	case SourceSQLite:
		if c.Source.SQLite.StationsPath == "" {
			errs = append(errs, "source.sqlite.stations_path is required for sqlite source")
		}
	default:
		errs = append(errs, fmt.Sprintf("source.kind must be one of seed, remote, postgres, sqlite; got %q", c.Source.Kind))
	}
	if c.Source.RefreshEvery < 0 {
		errs = append(errs, "source.refresh_every must not be negative")
	}

	p := c.Proximity
	if p.MaxVisible <= 0 {
		errs = append(errs, "proximity.max_visible must be positive")
	}
	if p.BaseRadiusKm <= 0 {
		errs = append(errs, "proximity.base_radius_km must be positive")
	}
	if p.MaxRadiusKm < p.BaseRadiusKm {
		errs = append(errs, "proximity.max_radius_km must be >= base_radius_km")
	}
	if p.GrowthFactor <= 1 {
		errs = append(errs, "proximity.growth_factor must be greater than 1")
	}
	if p.MinResults <= 0 {
		errs = append(errs, "proximity.min_results must be positive")
	}

	if c.Map.InitialZoom < 0 || c.Map.InitialZoom > 22 || c.Map.LocatedZoom < 0 || c.Map.LocatedZoom > 22 {
		errs = append(errs, "map zoom levels must be 0-22")
	}
	if c.Map.Debounce <= 0 {
		errs = append(errs, "map.debounce must be positive")
	}

	if c.Location.Timeout <= 0 {
		errs = append(errs, "location.timeout must be positive")
	}
	if c.Location.GuardSlack < 0 {
		errs = append(errs, "location.guard_slack must not be negative")
	}
	if c.Location.FallbackLat < -90 || c.Location.FallbackLat > 90 || c.Location.FallbackLon < -180 || c.Location.FallbackLon > 180 {
		errs = append(errs, "location fallback coordinate out of range")
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, "telemetry.sample_ratio must be 0-1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

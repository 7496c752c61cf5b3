package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/pickup-cli/internal/boundary"
	"github.com/sells-group/pickup-cli/internal/grid"
	"github.com/sells-group/pickup-cli/internal/resilience"
	"github.com/sells-group/pickup-cli/pkg/dhl"
	"github.com/sells-group/pickup-cli/pkg/geocode"
	"github.com/sells-group/pickup-cli/pkg/overpass"
	"github.com/sells-group/pickup-cli/pkg/postnl"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Grid      GridConfig      `yaml:"grid" mapstructure:"grid"`
	Boundary  BoundaryConfig  `yaml:"boundary" mapstructure:"boundary"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GridConfig configures adaptive collection for capped providers.
type GridConfig struct {
	SpacingKm           float64 `yaml:"spacing_km" mapstructure:"spacing_km"`
	InitialRadiusMeters int     `yaml:"initial_radius_meters" mapstructure:"initial_radius_meters"`
	MinRadiusMeters     int     `yaml:"min_radius_meters" mapstructure:"min_radius_meters"`
	Cap                 int     `yaml:"cap" mapstructure:"cap"`
	DelayMs             int     `yaml:"delay_ms" mapstructure:"delay_ms"`
	OffsetFactor        float64 `yaml:"offset_factor" mapstructure:"offset_factor"`
}

// Delay is the pause between provider calls.
func (g GridConfig) Delay() time.Duration {
	return time.Duration(g.DelayMs) * time.Millisecond
}

// Alias maps a region name as written in region lists to the name of its
// boundary relation, with an optional municipality code.
type Alias struct {
	Name     string `yaml:"name" mapstructure:"name"`
	Official string `yaml:"official" mapstructure:"official"`
	Code     string `yaml:"code" mapstructure:"code"`
}

// BoundaryConfig configures boundary resolution.
type BoundaryConfig struct {
	OverpassURL          string  `yaml:"overpass_url" mapstructure:"overpass_url"`
	MaxAttempts          int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoffSecs      int     `yaml:"base_backoff_secs" mapstructure:"base_backoff_secs"`
	TimeoutSecs          int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	AdminLevel           int     `yaml:"admin_level" mapstructure:"admin_level"`
	CountryISO           string  `yaml:"country_iso" mapstructure:"country_iso"`
	FallbackRadiusMeters int     `yaml:"fallback_radius_meters" mapstructure:"fallback_radius_meters"`
	Aliases              []Alias `yaml:"aliases" mapstructure:"aliases"`
}

// Retry builds the relation lookup retry policy.
func (b BoundaryConfig) Retry() resilience.RetryConfig {
	return resilience.FromRetryConfig(resilience.BoundaryRetryConfig(),
		b.MaxAttempts, time.Duration(b.BaseBackoffSecs)*time.Second, 0, -1)
}

// Mappings merges the configured aliases over the built-in tables. Map
// keys keep their case, which viper would not preserve for a map section.
func (b BoundaryConfig) Mappings() (names, codes map[string]string) {
	names = maps.Clone(boundary.DefaultNameMapping)
	codes = maps.Clone(boundary.DefaultCodeMapping)
	for _, a := range b.Aliases {
		if a.Official != "" {
			names[a.Name] = a.Official
		}
		if a.Code != "" {
			codes[a.Name] = a.Code
		}
	}
	return names, codes
}

// GeocodeConfig configures the coarse geocoder cascade.
type GeocodeConfig struct {
	Providers    []string `yaml:"providers" mapstructure:"providers"`
	NominatimURL string   `yaml:"nominatim_url" mapstructure:"nominatim_url"`
	PDOKURL      string   `yaml:"pdok_url" mapstructure:"pdok_url"`
	RateLimit    float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent    string   `yaml:"user_agent" mapstructure:"user_agent"`
	CountryCodes string   `yaml:"country_codes" mapstructure:"country_codes"`
}

// EndpointConfig configures one provider API.
type EndpointConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ProvidersConfig selects and tunes the pickup-point providers.
type ProvidersConfig struct {
	Enabled             []string       `yaml:"enabled" mapstructure:"enabled"`
	UserAgent           string         `yaml:"user_agent" mapstructure:"user_agent"`
	RetryAttempts       int            `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerThreshold    int            `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int            `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
	DHL                 EndpointConfig `yaml:"dhl" mapstructure:"dhl"`
	PostNL              EndpointConfig `yaml:"postnl" mapstructure:"postnl"`
}

// Retry builds the per-call provider retry policy.
func (p ProvidersConfig) Retry() resilience.RetryConfig {
	return resilience.FromRetryConfig(resilience.DefaultRetryConfig(), p.RetryAttempts, 0, 0, -1)
}

// Breaker builds the per-provider circuit breaker settings.
func (p ProvidersConfig) Breaker() resilience.BreakerConfig {
	return resilience.FromBreakerConfig(p.BreakerThreshold, time.Duration(p.BreakerCooldownSecs)*time.Second)
}

// BatchConfig configures multi-region runs.
type BatchConfig struct {
	Concurrency         int     `yaml:"concurrency" mapstructure:"concurrency"`
	NearDuplicateMeters float64 `yaml:"near_duplicate_meters" mapstructure:"near_duplicate_meters"`
	RegionsFile         string  `yaml:"regions_file" mapstructure:"regions_file"`
}

// OutputConfig configures file sinks.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
	Indent  bool     `yaml:"indent" mapstructure:"indent"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// Output formats.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
)

// Load reads configuration from an optional .env file, the config file
// and the environment. An empty path searches ./config.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PICKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "pickup.db")
	v.SetDefault("grid.spacing_km", grid.DefaultSpacingKm(10))
	v.SetDefault("grid.initial_radius_meters", 10_000)
	v.SetDefault("grid.min_radius_meters", 2_000)
	v.SetDefault("grid.cap", 50)
	v.SetDefault("grid.delay_ms", 500)
	v.SetDefault("grid.offset_factor", grid.ChildOffsetFactor)
	v.SetDefault("boundary.overpass_url", overpass.DefaultURL)
	v.SetDefault("boundary.max_attempts", 5)
	v.SetDefault("boundary.base_backoff_secs", 3)
	v.SetDefault("boundary.timeout_secs", 90)
	v.SetDefault("boundary.admin_level", 8)
	v.SetDefault("boundary.country_iso", "NL")
	v.SetDefault("boundary.fallback_radius_meters", 20_000)
	v.SetDefault("geocode.providers", []string{"nominatim", "pdok"})
	v.SetDefault("geocode.nominatim_url", geocode.NominatimURL)
	v.SetDefault("geocode.pdok_url", geocode.PDOKURL)
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.user_agent", geocode.DefaultUserAgent)
	v.SetDefault("geocode.country_codes", "nl")
	v.SetDefault("providers.enabled", []string{"DHL", "PostNL"})
	v.SetDefault("providers.user_agent", geocode.DefaultUserAgent)
	v.SetDefault("providers.retry_attempts", 3)
	v.SetDefault("providers.breaker_threshold", 5)
	v.SetDefault("providers.breaker_cooldown_secs", 60)
	v.SetDefault("providers.dhl.base_url", dhl.DefaultURL)
	v.SetDefault("providers.dhl.rate_limit", 2.0)
	v.SetDefault("providers.postnl.base_url", postnl.DefaultURL)
	v.SetDefault("providers.postnl.rate_limit", 2.0)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.near_duplicate_meters", 10.0)
	v.SetDefault("batch.regions_file", "")
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.formats", []string{FormatGeoJSON})
	v.SetDefault("output.indent", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. command is the cobra
// command name.
func (c *Config) Validate(command string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		add("log.level %q is not a level", c.Log.Level)
	}

	switch command {
	case "grid", "fetch":
		g := c.Grid
		if g.InitialRadiusMeters <= 0 || g.MinRadiusMeters <= 0 {
			add("grid radii must be positive")
		} else if g.MinRadiusMeters > g.InitialRadiusMeters {
			add("grid.min_radius_meters %d exceeds grid.initial_radius_meters %d", g.MinRadiusMeters, g.InitialRadiusMeters)
		}
		if g.SpacingKm <= 0 {
			add("grid.spacing_km must be positive")
		} else if !grid.CoverageSpacingOK(g.SpacingKm, float64(g.InitialRadiusMeters)/1000) {
			add("grid.spacing_km %.1f leaves gaps between %d m circles; use at most %.1f",
				g.SpacingKm, g.InitialRadiusMeters, grid.DefaultSpacingKm(float64(g.InitialRadiusMeters)/1000))
		}
		if g.Cap <= 0 {
			add("grid.cap must be positive")
		}
	}

	switch command {
	case "boundary", "fetch":
		if c.Boundary.CountryISO == "" {
			add("boundary.country_iso is required")
		}
		if c.Boundary.FallbackRadiusMeters <= 0 {
			add("boundary.fallback_radius_meters must be positive")
		}
		for _, name := range c.Geocode.Providers {
			if name != "nominatim" && name != "pdok" {
				add("geocode.providers: unknown geocoder %q", name)
			}
		}
	}

	if command == "fetch" {
		if len(c.Providers.Enabled) == 0 {
			add("providers.enabled is empty")
		}
		for _, f := range c.Output.Formats {
			if f != FormatGeoJSON && f != FormatShapefile {
				add("output.formats: unknown format %q", f)
			}
		}
	}

	switch command {
	case "fetch", "runs", "serve":
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				add("store.sqlite_path is required for the sqlite driver")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for the postgres driver")
			}
		case "none":
			if command != "fetch" {
				add("store.driver none has no run history for %s", command)
			}
		default:
			add("store.driver %q is not sqlite, postgres or none", c.Store.Driver)
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", command, strings.Join(errs, "; "))
	}
	return nil
}

// HasFormat reports whether f is among the output formats.
func (o OutputConfig) HasFormat(f string) bool {
	return slices.Contains(o.Formats, f)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

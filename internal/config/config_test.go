package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/pickup-cli/pkg/dhl"
)

// inTempDir runs the test from an empty directory so no config.yaml or
// .env is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "pickup.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 14.0, cfg.Grid.SpacingKm, 1e-9)
	assert.Equal(t, 10_000, cfg.Grid.InitialRadiusMeters)
	assert.Equal(t, 2_000, cfg.Grid.MinRadiusMeters)
	assert.Equal(t, 50, cfg.Grid.Cap)
	assert.Equal(t, 500*time.Millisecond, cfg.Grid.Delay())
	assert.InDelta(t, 0.7, cfg.Grid.OffsetFactor, 1e-9)
	assert.Equal(t, 5, cfg.Boundary.MaxAttempts)
	assert.Equal(t, 90, cfg.Boundary.TimeoutSecs)
	assert.Equal(t, 8, cfg.Boundary.AdminLevel)
	assert.Equal(t, "NL", cfg.Boundary.CountryISO)
	assert.Equal(t, 20_000, cfg.Boundary.FallbackRadiusMeters)
	assert.Equal(t, []string{"nominatim", "pdok"}, cfg.Geocode.Providers)
	assert.InDelta(t, 1.0, cfg.Geocode.RateLimit, 1e-9)
	assert.Equal(t, []string{"DHL", "PostNL"}, cfg.Providers.Enabled)
	assert.Equal(t, dhl.DefaultURL, cfg.Providers.DHL.BaseURL)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, []string{FormatGeoJSON}, cfg.Output.Formats)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.NoError(t, cfg.Validate("fetch"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := inTempDir(t)

	yaml := `
log:
  level: debug
  format: console
store:
  driver: postgres
  database_url: postgres://localhost/pickup
grid:
  spacing_km: 7
  initial_radius_meters: 5000
boundary:
  max_attempts: 3
  aliases:
    - name: "Bergen (NH.)"
      official: Bergen
      code: "0373"
    - name: Den Bosch
      official: "'s-Hertogenbosch"
providers:
  enabled: [DHL]
output:
  formats: [geojson, shapefile]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.InDelta(t, 7.0, cfg.Grid.SpacingKm, 1e-9)
	assert.Equal(t, 5000, cfg.Grid.InitialRadiusMeters)
	assert.Equal(t, 3, cfg.Boundary.MaxAttempts)
	assert.Equal(t, []string{"DHL"}, cfg.Providers.Enabled)
	assert.True(t, cfg.Output.HasFormat(FormatShapefile))

	require.Len(t, cfg.Boundary.Aliases, 2)
	assert.Equal(t, "Bergen (NH.)", cfg.Boundary.Aliases[0].Name)

	names, codes := cfg.Boundary.Mappings()
	assert.Equal(t, "'s-Hertogenbosch", names["Den Bosch"])
	assert.Equal(t, "Nuenen c.a.", names["Nuenen"], "built-in entries kept")
	assert.Equal(t, "0373", codes["Bergen (NH.)"])
	assert.Equal(t, "0893", codes["Bergen (L.)"])

	assert.NoError(t, cfg.Validate("fetch"))
}

func TestLoadExplicitPath(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  concurrency: 9\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Batch.Concurrency)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	inTempDir(t)
	t.Setenv("PICKUP_STORE_DRIVER", "postgres")
	t.Setenv("PICKUP_STORE_DATABASE_URL", "postgres://env/pickup")
	t.Setenv("PICKUP_BATCH_CONCURRENCY", "2")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://env/pickup", cfg.Store.DatabaseURL)
	assert.Equal(t, 2, cfg.Batch.Concurrency)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PICKUP_OUTPUT_DIR=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PICKUP_OUTPUT_DIR") }) //nolint:errcheck

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Output.Dir)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("grid: [unclosed"), 0o644))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	inTempDir(t)
	cfg, err := Load("")
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		command string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults boundary", "boundary", func(*Config) {}, ""},
		{"bad log level", "runs", func(c *Config) { c.Log.Level = "loud" }, `log.level "loud"`},
		{"spacing too wide", "grid", func(c *Config) { c.Grid.SpacingKm = 20 }, "leaves gaps"},
		{"floor above start", "fetch", func(c *Config) { c.Grid.MinRadiusMeters = 20_000 }, "exceeds grid.initial_radius_meters"},
		{"zero cap", "grid", func(c *Config) { c.Grid.Cap = 0 }, "grid.cap"},
		{"grid checks skipped for runs", "runs", func(c *Config) { c.Grid.Cap = 0 }, ""},
		{"unknown geocoder", "boundary", func(c *Config) { c.Geocode.Providers = []string{"google"} }, `unknown geocoder "google"`},
		{"no providers", "fetch", func(c *Config) { c.Providers.Enabled = nil }, "providers.enabled"},
		{"unknown format", "fetch", func(c *Config) { c.Output.Formats = []string{"kml"} }, `unknown format "kml"`},
		{"postgres without url", "serve", func(c *Config) { c.Store.Driver = "postgres" }, "store.database_url"},
		{"unknown driver", "runs", func(c *Config) { c.Store.Driver = "mysql" }, `store.driver "mysql"`},
		{"no store for fetch", "fetch", func(c *Config) { c.Store.Driver = "none" }, ""},
		{"no store for runs", "runs", func(c *Config) { c.Store.Driver = "none" }, "no run history"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate(tt.command)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryAndBreakerSettings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Boundary.MaxAttempts = 4
	cfg.Boundary.BaseBackoffSecs = 1

	r := cfg.Boundary.Retry()
	assert.Equal(t, 4, r.MaxAttempts)
	assert.Equal(t, time.Second, r.InitialBackoff)
	assert.Zero(t, r.JitterFraction)

	b := cfg.Providers.Breaker()
	assert.Equal(t, 5, b.FailureThreshold)
	assert.Equal(t, time.Minute, b.Cooldown)
	assert.Equal(t, 3, cfg.Providers.Retry().MaxAttempts)
}

func TestInitLogger(t *testing.T) {
	orig := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(orig) })

	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "nope"}))
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		isolate(t)
		cfg, err := Load(nil, "")
		require.NoError(t, err)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, filepath.Join(os.TempDir(), "nimbusurf.log"), cfg.Logging.File)
		assert.Equal(t, 25, cfg.Listing.CacheSize)
		assert.Zero(t, cfg.Listing.Timeout)
		assert.Equal(t, 10, cfg.Navigation.CursorCacheSize)
		assert.Equal(t, ".", cfg.Transfer.Destination)
		assert.Zero(t, cfg.Transfer.RateLimit)
		assert.Equal(t, DriverAWS, cfg.S3.Driver)
		assert.True(t, cfg.S3.UseSSL)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		isolate(t)
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
listing:
  cache_size: 50
  timeout: 30s
gcs:
  project: analytics
s3:
  driver: MinIO
  endpoint: localhost:9000
  use_ssl: false
`), 0o600))

		cfg, err := Load(nil, path)
		require.NoError(t, err)
		assert.Equal(t, 50, cfg.Listing.CacheSize)
		assert.Equal(t, 30*time.Second, cfg.Listing.Timeout)
		assert.Equal(t, "analytics", cfg.GCS.Project)
		assert.Equal(t, DriverMinio, cfg.S3.Driver)
		assert.False(t, cfg.S3.UseSSL)
		assert.Equal(t, 10, cfg.Navigation.CursorCacheSize, "unset keys keep defaults")
	})

	t.Run("DefaultPathIsOptionalButRead", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("XDG_CONFIG_HOME", dir)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nimbusurf"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nimbusurf", "config.yaml"), []byte("transfer:\n  destination: /data\n"), 0o600))

		cfg, err := Load(nil, "")
		require.NoError(t, err)
		assert.Equal(t, "/data", cfg.Transfer.Destination)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		isolate(t)
		_, err := Load(nil, filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		isolate(t)
		t.Setenv("NIMBUSURF_LOGGING_LEVEL", "debug")
		t.Setenv("NIMBUSURF_LISTING_CACHE_SIZE", "5")
		t.Setenv("NIMBUSURF_TRANSFER_RATE_LIMIT", "2.5")
		t.Setenv("NIMBUSURF_S3_PROFILE", "staging")

		cfg, err := Load(nil, "")
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Listing.CacheSize)
		assert.Equal(t, 2.5, cfg.Transfer.RateLimit)
		assert.Equal(t, "staging", cfg.S3.Profile)
	})

	t.Run("ExplicitValuesWinOverEnv", func(t *testing.T) {
		isolate(t)
		t.Setenv("NIMBUSURF_GCS_PROJECT", "from-env")

		v := viper.New()
		v.Set("gcs.project", "from-flag")
		cfg, err := Load(v, "")
		require.NoError(t, err)
		assert.Equal(t, "from-flag", cfg.GCS.Project)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		isolate(t)
		t.Setenv("NIMBUSURF_LISTING_CACHE_SIZE", "0")

		_, err := Load(nil, "")
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "listing.cache_size", verr.Field)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Listing:    ListingConfig{CacheSize: 25},
			Navigation: NavigationConfig{CursorCacheSize: 10},
			S3:         S3Config{Driver: DriverAWS},
		}
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero cursor cache", mutate: func(c *Config) { c.Navigation.CursorCacheSize = 0 }, wantField: "navigation.cursor_cache_size"},
		{name: "negative timeout", mutate: func(c *Config) { c.Listing.Timeout = -time.Second }, wantField: "listing.timeout"},
		{name: "negative rate", mutate: func(c *Config) { c.Transfer.RateLimit = -1 }, wantField: "transfer.rate_limit"},
		{name: "unknown driver", mutate: func(c *Config) { c.S3.Driver = "ceph" }, wantField: "s3.driver"},
		{name: "minio without endpoint", mutate: func(c *Config) { c.S3.Driver = DriverMinio }, wantField: "s3.endpoint"},
		{name: "half credentials", mutate: func(c *Config) { c.S3.AccessKeyID = "AKIA" }, wantField: "s3.access_key_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, err.Error(), "config: "+tt.wantField)
		})
	}
}

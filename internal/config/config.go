// Package config loads nimbusurf configuration from flags, environment,
// an optional YAML file and built-in defaults, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// NIMBUSURF_LOGGING_LEVEL for logging.level.
const EnvPrefix = "NIMBUSURF"

// S3 drivers.
const (
	DriverAWS   = "aws"
	DriverMinio = "minio"
)

// Config is the resolved configuration handed to the command layer. Core
// packages receive the pieces they need explicitly.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Listing    ListingConfig    `mapstructure:"listing"`
	Navigation NavigationConfig `mapstructure:"navigation"`
	Transfer   TransferConfig   `mapstructure:"transfer"`
	GCS        GCSConfig        `mapstructure:"gcs"`
	S3         S3Config         `mapstructure:"s3"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`

	// File receives logs in interactive mode, where stderr belongs to the UI.
	File string `mapstructure:"file"`
}

// ListingConfig controls the listing cache.
type ListingConfig struct {
	CacheSize int `mapstructure:"cache_size"`

	// Timeout bounds a synchronous listing. Zero disables the bound.
	Timeout time.Duration `mapstructure:"timeout"`
}

// NavigationConfig controls the navigator.
type NavigationConfig struct {
	CursorCacheSize int `mapstructure:"cursor_cache_size"`
}

// TransferConfig controls bulk download and delete.
type TransferConfig struct {
	Destination string `mapstructure:"destination"`

	// RateLimit caps processed objects per second; zero is unlimited.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// GCSConfig selects the Google Cloud project and credentials.
type GCSConfig struct {
	Project         string `mapstructure:"project"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// S3Config selects the S3 driver and its connection settings.
type S3Config struct {
	Driver          string `mapstructure:"driver"`
	Region          string `mapstructure:"region"`
	Profile         string `mapstructure:"profile"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// ValidationError reports an invalid configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// SetDefaults registers every known key on v. Keys must be registered for
// environment overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", filepath.Join(os.TempDir(), "nimbusurf.log"))

	v.SetDefault("listing.cache_size", 25)
	v.SetDefault("listing.timeout", "0s")

	v.SetDefault("navigation.cursor_cache_size", 10)

	v.SetDefault("transfer.destination", ".")
	v.SetDefault("transfer.rate_limit", 0.0)

	v.SetDefault("gcs.project", "")
	v.SetDefault("gcs.credentials_file", "")

	v.SetDefault("s3.driver", DriverAWS)
	v.SetDefault("s3.region", "")
	v.SetDefault("s3.profile", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.force_path_style", false)
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.use_ssl", true)
}

// DefaultPath returns $XDG_CONFIG_HOME/nimbusurf/config.yaml, falling back
// to the user config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "nimbusurf", "config.yaml")
}

// Load resolves configuration into a Config. A nil v uses a fresh viper
// instance. An explicit path must exist; the default path is optional.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if def := DefaultPath(); def != "" {
		if _, err := os.Stat(def); err == nil {
			v.SetConfigFile(def)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", def, err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.S3.Driver = strings.ToLower(strings.TrimSpace(cfg.S3.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Listing.CacheSize <= 0 {
		errs = append(errs, &ValidationError{Field: "listing.cache_size", Message: "must be positive"})
	}
	if c.Listing.Timeout < 0 {
		errs = append(errs, &ValidationError{Field: "listing.timeout", Message: "must not be negative"})
	}
	if c.Navigation.CursorCacheSize <= 0 {
		errs = append(errs, &ValidationError{Field: "navigation.cursor_cache_size", Message: "must be positive"})
	}
	if c.Transfer.RateLimit < 0 {
		errs = append(errs, &ValidationError{Field: "transfer.rate_limit", Message: "must not be negative"})
	}
	switch c.S3.Driver {
	case DriverAWS:
	case DriverMinio:
		if c.S3.Endpoint == "" {
			errs = append(errs, &ValidationError{Field: "s3.endpoint", Message: "required for the minio driver"})
		}
	default:
		errs = append(errs, &ValidationError{Field: "s3.driver", Message: fmt.Sprintf("unknown driver %q (supported: aws, minio)", c.S3.Driver)})
	}
	if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, &ValidationError{Field: "s3.access_key_id", Message: "access_key_id and secret_access_key must be set together"})
	}
	return errors.Join(errs...)
}

// Package s3 implements the provider interface for AWS S3 and S3-compatible
// stores reached through aws-sdk-go-v2.
package s3

import "github.com/3leaps/nimbusurf/pkg/provider"

// Config configures an S3 provider. No bucket is named here: the browser
// spans buckets and every call carries its bucket in the location.
//
// Credentials resolve through the SDK default chain unless both static keys
// are set: environment, shared credentials and config files (honouring
// Profile), then instance or task roles.
type Config struct {
	// Region defaults to us-east-1 for AWS. It is left empty for custom
	// endpoints so the store can pick.
	Region string

	// Endpoint addresses an S3-compatible store; empty means AWS.
	Endpoint string

	// Profile selects a shared-config profile and doubles as the "project"
	// shown in the browser title.
	Profile string

	// AccessKeyID and SecretAccessKey are static credentials, set together
	// or not at all.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle puts the bucket in the URL path. Most S3-compatible
	// stores need it.
	ForcePathStyle bool

	// MaxKeys is the list page size; zero means DefaultMaxKeys and larger
	// values are clamped to MaxAllowedKeys.
	MaxKeys int
}

const (
	// DefaultMaxKeys is the list page size used when MaxKeys is zero.
	DefaultMaxKeys = 1000

	// MaxAllowedKeys is the largest page S3 returns.
	MaxAllowedKeys = 1000

	// DefaultAWSRegion is used for AWS when no region resolves.
	DefaultAWSRegion = "us-east-1"
)

// Validate rejects half-specified credentials and negative page sizes.
func (c *Config) Validate() error {
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if c.MaxKeys < 0 {
		return &ConfigError{Field: "MaxKeys", Message: "must not be negative"}
	}
	return nil
}

// ConfigError is a Config validation failure. It matches
// provider.ErrInvalidConfiguration.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}

func (e *ConfigError) Unwrap() error { return provider.ErrInvalidConfiguration }

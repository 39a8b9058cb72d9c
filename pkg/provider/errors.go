package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Sentinel errors for provider operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates valid credentials with insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrInvalidCredentials indicates authentication failed or expired.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidConfiguration indicates the active project or profile does not exist.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidArgument indicates the operation was called with an unsuitable location.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrProviderUnavailable indicates the provider service is unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrThrottled indicates the request was rate limited by the provider.
	ErrThrottled = errors.New("request throttled")
)

// ProviderError wraps provider-specific errors with context.
type ProviderError struct {
	// Op is the operation that failed (e.g., "ListPrefix", "DeleteBlob").
	Op string

	// Provider is the provider scheme (e.g., "s3").
	Provider cloudpath.Scheme

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key or prefix, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RequireBlob returns an ErrInvalidArgument ProviderError unless loc is a
// blob inside a bucket.
func RequireBlob(op string, loc cloudpath.Path) error {
	if loc.IsBlob() && loc.BucketName() != "" {
		return nil
	}
	return &ProviderError{
		Op:       op,
		Provider: loc.Scheme(),
		Bucket:   loc.BucketName(),
		Key:      loc.FullPrefix(),
		Err:      fmt.Errorf("%w: %s expects a blob location, got %s", ErrInvalidArgument, op, loc),
	}
}

// RequireBucket returns an ErrInvalidArgument ProviderError when loc is the
// all-buckets location.
func RequireBucket(op string, loc cloudpath.Path) error {
	if !loc.IsRoot() {
		return nil
	}
	return &ProviderError{
		Op:       op,
		Provider: loc.Scheme(),
		Err:      fmt.Errorf("%w: %s needs a bucket", ErrInvalidArgument, op),
	}
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsInvalidConfiguration returns true if the active project or profile is unusable.
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsInvalidArgument returns true if the operation rejected its input.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsProviderUnavailable returns true if the error indicates the provider service is unavailable.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsThrottled returns true if the error indicates the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsCancelled returns true if the operation stopped because its context was cancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsForbidden groups permission and authentication failures: both mean the
// user has to change identity before retrying.
func IsForbidden(err error) bool {
	return IsAccessDenied(err) || IsInvalidCredentials(err)
}

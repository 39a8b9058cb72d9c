package minio

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// mapError translates a MinIO SDK error into a *provider.ProviderError
// carrying the matching provider sentinel.
func mapError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := &provider.ProviderError{
		Op:       op,
		Provider: cloudpath.SchemeS3,
		Bucket:   bucket,
		Key:      key,
		Err:      err,
	}

	// Context cancellation / deadline stay as they are.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrapped
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	var resp miniogo.ErrorResponse
	if !errors.As(err, &resp) {
		return wrapped
	}

	// Codes are more specific than status, check them first.
	switch resp.Code {
	case "NoSuchBucket":
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrBucketNotFound, err)
		return wrapped
	case "NoSuchKey", "NoSuchUpload":
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		return wrapped
	case "AccessDenied", "AllAccessDisabled":
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrAccessDenied, err)
		return wrapped
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
		return wrapped
	case "SlowDown", "RequestTimeout":
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrThrottled, err)
		return wrapped
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case http.StatusForbidden:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrAccessDenied, err)
	case http.StatusUnauthorized:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
	case http.StatusBadRequest:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
	case http.StatusTooManyRequests:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrThrottled, err)
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		wrapped.Err = fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
	}
	return wrapped
}

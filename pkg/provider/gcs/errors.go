package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/3leaps/nimbusurf/pkg/provider"
)

// ErrNoProject is returned when buckets are listed without a project.
var ErrNoProject = fmt.Errorf("%w: no GCP project configured", provider.ErrInvalidConfiguration)

// wrapError maps GCS client errors onto provider sentinels, keeping the
// original error in the chain.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
	case errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("%w: %w", provider.ErrBucketNotFound, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusBadRequest:
			if isInvalidProject(gerr) {
				return fmt.Errorf("%w: %w", provider.ErrInvalidConfiguration, err)
			}
			return fmt.Errorf("%w: %w", provider.ErrInvalidArgument, err)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %w", provider.ErrAccessDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", provider.ErrNotFound, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", provider.ErrThrottled, err)
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %w", provider.ErrProviderUnavailable, err)
		}
		return err
	}

	// Credential discovery fails before any request is made.
	if strings.Contains(err.Error(), "could not find default credentials") {
		return fmt.Errorf("%w: %w", provider.ErrInvalidCredentials, err)
	}
	return err
}

// isInvalidProject reports a 400 whose message or detail items name an
// invalid project.
func isInvalidProject(gerr *googleapi.Error) bool {
	if strings.Contains(gerr.Message, "Invalid project") {
		return true
	}
	for _, item := range gerr.Errors {
		if strings.Contains(item.Message, "Invalid project") {
			return true
		}
	}
	return false
}

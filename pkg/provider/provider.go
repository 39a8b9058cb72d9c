// Package provider defines the storage capability consumed by the browser.
//
// Providers implement a small surface area: bucket and one-level listing for
// navigation, recursive listing for bulk operations, and single-object
// download/delete. Authentication uses SDK default credential chains unless a
// provider config supplies explicit credentials.
//
// Every method takes a context. Cancellation is cooperative: implementations
// check the context at page and item boundaries and return context.Canceled.
package provider

import (
	"context"
	"time"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Provider abstracts an object-storage service.
//
// Implementations should:
//   - Use SDK default credential chains (AWS default config, GCP ADC)
//   - Follow pagination to completion inside each call
//   - Be safe for concurrent use
type Provider interface {
	// Scheme identifies the locations this provider serves.
	Scheme() cloudpath.Scheme

	// Project names the active project (GCS) or profile (S3) for titles and
	// error reporting.
	Project() string

	// ListBuckets enumerates buckets visible to the current credentials.
	ListBuckets(ctx context.Context) ([]cloudpath.Path, error)

	// ListPrefix returns the immediate children of loc (sub-prefixes and
	// blobs) sorted by full prefix. A directory marker object whose key equals
	// the prefix itself is excluded.
	ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error)

	// ListAllBlobs returns every blob below loc, recursively. Order is
	// unspecified.
	ListAllBlobs(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error)

	// Download writes the blob to dest, creating parent directories.
	Download(ctx context.Context, blob cloudpath.Path, dest string) error

	// DeleteBlob removes a single blob. Returns ErrInvalidArgument for
	// non-blob locations; an already-absent blob is not an error.
	DeleteBlob(ctx context.Context, blob cloudpath.Path) error

	// Close releases any resources held by the provider.
	Close() error
}

// Reconfigurer is implemented by providers whose project or profile can be
// switched at runtime. The underlying client is rebuilt lazily; an invalid
// name surfaces as ErrInvalidConfiguration on the next call, not here.
type Reconfigurer interface {
	SetProject(name string)
}

// ObjectSummary is the provider-neutral form of a listed object, used by the
// SDK adapters before conversion to cloudpath values.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// Package cloudpath defines the immutable location value used to address
// buckets, prefixes and blobs across object-storage providers.
//
// A Path is identified by (scheme, bucket, full prefix, blob flag). Blob size
// and modification time travel with the value but are not part of its
// identity; use Key for map keys and Equal for comparisons.
package cloudpath

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scheme identifies the storage provider a Path belongs to.
type Scheme string

const (
	// SchemeGCS addresses Google Cloud Storage.
	SchemeGCS Scheme = "gs"

	// SchemeS3 addresses AWS S3 and S3-compatible stores.
	SchemeS3 Scheme = "s3"
)

// String returns the URI scheme, e.g. "gs".
func (s Scheme) String() string {
	return string(s)
}

// Valid reports whether s is a supported scheme.
func (s Scheme) Valid() bool {
	return s == SchemeGCS || s == SchemeS3
}

// ErrInvalidPath indicates a Path could not be constructed.
var ErrInvalidPath = errors.New("invalid cloud path")

// Path is a bucket, prefix or blob location. The zero value is not valid;
// construct values with Root, Bucket, New, NewBlob or the *FromKey helpers.
type Path struct {
	scheme   Scheme
	bucket   string
	segments []string
	blob     bool

	hasSize bool
	size    int64
	updated time.Time
}

// Key is the comparable identity of a Path.
type Key struct {
	Scheme     Scheme
	Bucket     string
	FullPrefix string
	Blob       bool
}

// Root returns the all-buckets location for a scheme.
func Root(s Scheme) Path {
	return Path{scheme: s}
}

// Bucket returns the root location of a single bucket.
func Bucket(s Scheme, name string) Path {
	return Path{scheme: s, bucket: name}
}

// New returns a container (bucket or prefix) location.
func New(s Scheme, bucket string, segments ...string) (Path, error) {
	if !s.Valid() {
		return Path{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPath, s)
	}
	if bucket == "" && len(segments) > 0 {
		return Path{}, fmt.Errorf("%w: path segments without a bucket", ErrInvalidPath)
	}
	return Path{scheme: s, bucket: bucket, segments: cloneSegments(segments)}, nil
}

// NewBlob returns a blob location. A blob always has a bucket and at least one
// path segment; size must be non-negative.
func NewBlob(s Scheme, bucket string, segments []string, size int64, updated time.Time) (Path, error) {
	if !s.Valid() {
		return Path{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPath, s)
	}
	if bucket == "" || len(segments) == 0 {
		return Path{}, fmt.Errorf("%w: a blob needs a bucket and a name", ErrInvalidPath)
	}
	if size < 0 {
		return Path{}, fmt.Errorf("%w: negative blob size %d", ErrInvalidPath, size)
	}
	return Path{
		scheme:   s,
		bucket:   bucket,
		segments: cloneSegments(segments),
		blob:     true,
		hasSize:  true,
		size:     size,
		updated:  updated,
	}, nil
}

// PrefixFromKey builds a container location from a provider key such as
// "a/b/". An empty key yields the bucket location.
func PrefixFromKey(s Scheme, bucket, key string) (Path, error) {
	return New(s, bucket, splitKey(key)...)
}

// BlobFromKey builds a blob location from a provider object key.
func BlobFromKey(s Scheme, bucket, key string, size int64, updated time.Time) (Path, error) {
	return NewBlob(s, bucket, splitKey(key), size, updated)
}

func splitKey(key string) []string {
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return nil
	}
	return strings.Split(key, "/")
}

func cloneSegments(segments []string) []string {
	if len(segments) == 0 {
		return nil
	}
	out := make([]string, len(segments))
	copy(out, segments)
	return out
}

// Scheme returns the provider scheme.
func (p Path) Scheme() Scheme { return p.scheme }

// BucketName returns the bucket, empty for the all-buckets location.
func (p Path) BucketName() string { return p.bucket }

// Segments returns a copy of the path segments below the bucket.
func (p Path) Segments() []string { return cloneSegments(p.segments) }

// IsBlob reports whether p addresses a single object.
func (p Path) IsBlob() bool { return p.blob }

// IsBucket reports whether p has no path segments. The all-buckets location
// is also a bucket-level location; use IsRoot to tell them apart.
func (p Path) IsBucket() bool { return len(p.segments) == 0 }

// IsRoot reports whether p is the all-buckets location.
func (p Path) IsRoot() bool { return p.bucket == "" }

// IsContainer reports whether p can be navigated into.
func (p Path) IsContainer() bool { return !p.blob }

// Size returns the blob size, if known.
func (p Path) Size() (int64, bool) { return p.size, p.hasSize }

// UpdatedAt returns the blob modification time, if known.
func (p Path) UpdatedAt() (time.Time, bool) { return p.updated, !p.updated.IsZero() }

// FullPrefix joins the segments with "/", adding a trailing "/" for
// containers. It is empty when there are no segments.
func (p Path) FullPrefix() string {
	if len(p.segments) == 0 {
		return ""
	}
	joined := strings.Join(p.segments, "/")
	if !p.blob {
		joined += "/"
	}
	return joined
}

// FullPath is the bucket-qualified path without scheme, e.g. "b/x/y/".
func (p Path) FullPath() string {
	if p.bucket == "" {
		return ""
	}
	return p.bucket + "/" + p.FullPrefix()
}

// Name is the label of p inside its parent listing: the bucket name for
// buckets, otherwise the last segment with a trailing "/" for prefixes.
func (p Path) Name() string {
	if len(p.segments) == 0 {
		return p.bucket
	}
	name := p.segments[len(p.segments)-1]
	if !p.blob {
		name += "/"
	}
	return name
}

// Parent returns the enclosing location. The all-buckets location is its own
// parent; a bucket's parent is the all-buckets location; otherwise the last
// segment is dropped.
func (p Path) Parent() Path {
	if p.bucket == "" {
		return Root(p.scheme)
	}
	if len(p.segments) == 0 {
		return Root(p.scheme)
	}
	return Path{
		scheme:   p.scheme,
		bucket:   p.bucket,
		segments: cloneSegments(p.segments[:len(p.segments)-1]),
	}
}

// Key returns the comparable identity of p.
func (p Path) Key() Key {
	return Key{Scheme: p.scheme, Bucket: p.bucket, FullPrefix: p.FullPrefix(), Blob: p.blob}
}

// Equal compares identity only; size and modification time are ignored.
func (p Path) Equal(o Path) bool {
	return p.Key() == o.Key()
}

// String renders p as a URI, e.g. "gs://bucket/a/b/".
func (p Path) String() string {
	if p.bucket == "" {
		return p.scheme.String() + "://"
	}
	return p.scheme.String() + "://" + p.bucket + "/" + p.FullPrefix()
}

// Title is the heading shown for p while browsing.
func (p Path) Title(project string) string {
	if p.bucket == "" {
		return "list of buckets in project: " + project
	}
	return p.String()
}

// RelativeTo returns p's full prefix with base's full prefix removed. ok is
// false when p is not below base.
func (p Path) RelativeTo(base Path) (rel string, ok bool) {
	if p.scheme != base.scheme || p.bucket != base.bucket {
		return "", false
	}
	bp := base.FullPrefix()
	fp := p.FullPrefix()
	if !strings.HasPrefix(fp, bp) {
		return "", false
	}
	return strings.TrimPrefix(fp, bp), true
}

package cloudpath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedScheme indicates the URI scheme is not supported.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// Parse parses a browse address into a container location.
//
// Supported formats:
//   - gs:// or s3://             (all buckets)
//   - gs://bucket                (bucket root)
//   - gs://bucket/prefix/        (prefix)
//   - gs://bucket/prefix         (normalised to prefix/)
//
// Browsing always lands on a container, so a trailing "/" is optional.
func Parse(uri string) (Path, error) {
	scheme, bucket, key, err := split(uri)
	if err != nil {
		return Path{}, err
	}
	if bucket == "" {
		return Root(scheme), nil
	}
	return PrefixFromKey(scheme, bucket, key)
}

// ParseTarget parses a transfer target. Unlike Parse, a key without a trailing
// "/" addresses a single blob whose size is not yet known.
func ParseTarget(uri string) (Path, error) {
	scheme, bucket, key, err := split(uri)
	if err != nil {
		return Path{}, err
	}
	if bucket == "" {
		return Path{}, fmt.Errorf("%w: missing bucket name in %s", ErrInvalidURI, uri)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return PrefixFromKey(scheme, bucket, key)
	}
	return Path{scheme: scheme, bucket: bucket, segments: splitKey(key), blob: true}, nil
}

// ParseScheme validates a scheme name. "gcs" is accepted as an alias of "gs".
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gs", "gcs":
		return SchemeGCS, nil
	case "s3":
		return SchemeS3, nil
	default:
		return "", fmt.Errorf("%w: %s (supported: gs, s3)", ErrUnsupportedScheme, s)
	}
}

func split(uri string) (Scheme, string, string, error) {
	if uri == "" {
		return "", "", "", fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	schemeEnd := strings.Index(uri, "://")
	if schemeEnd == -1 {
		return "", "", "", fmt.Errorf("%w: missing scheme (expected gs://... or s3://...)", ErrInvalidURI)
	}

	scheme, err := ParseScheme(uri[:schemeEnd])
	if err != nil {
		return "", "", "", err
	}

	remainder := uri[schemeEnd+3:]
	var bucket, key string
	if slashIdx := strings.Index(remainder, "/"); slashIdx == -1 {
		bucket = remainder
	} else {
		bucket = remainder[:slashIdx]
		key = remainder[slashIdx+1:]
	}

	if bucket == "" && key != "" {
		return "", "", "", fmt.Errorf("%w: missing bucket name in %s", ErrInvalidURI, uri)
	}

	// Basic validation; provider-specific bucket rules are enforced server-side.
	if bucket != "" {
		if _, err := url.Parse(scheme.String() + "://" + bucket + "/"); err != nil {
			return "", "", "", fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
		}
	}

	return scheme, bucket, key, nil
}

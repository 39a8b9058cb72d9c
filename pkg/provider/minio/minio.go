// Package minio provides a provider.Provider backed by minio-go for
// S3-compatible stores (MinIO, Ceph, Wasabi and friends).
//
// Usage:
//
//	p, err := minio.New(minio.Config{Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin"})
//	if err != nil { ... }
//	defer p.Close()
//
//	buckets, err := p.ListBuckets(ctx)
package minio

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// Config configures the MinIO client.
type Config struct {
	// Endpoint is host[:port], optionally with a scheme which is stripped.
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ErrMissingEndpoint is returned by New when Config.Endpoint is empty.
var ErrMissingEndpoint = errors.New("minio: endpoint is required")

// Provider is a MinIO implementation of provider.Provider.
// It is safe for concurrent use by multiple goroutines.
type Provider struct {
	client   *miniogo.Client
	endpoint string
}

var _ provider.Provider = (*Provider)(nil)

// cleanEndpoint removes any scheme and path components from the endpoint URL.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", ErrMissingEndpoint
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid endpoint URL: no host in %q", endpoint)
	}
	return u.Host, nil
}

// New builds the client. No request is made until the first call.
func New(cfg Config) (*Provider, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidConfiguration, err)
	}

	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", provider.ErrInvalidConfiguration, err)
	}
	return &Provider{client: client, endpoint: endpoint}, nil
}

// Scheme returns cloudpath.SchemeS3; MinIO speaks the S3 protocol.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeS3 }

// Project returns the endpoint host, the closest thing MinIO has to a project.
func (p *Provider) Project() string { return p.endpoint }

// ListBuckets returns all buckets accessible with the configured credentials.
func (p *Provider) ListBuckets(ctx context.Context) ([]cloudpath.Path, error) {
	raw, err := p.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError("ListBuckets", "", "", err)
	}
	out := make([]cloudpath.Path, len(raw))
	for i, b := range raw {
		out[i] = cloudpath.Bucket(cloudpath.SchemeS3, b.Name)
	}
	provider.SortByFullPrefix(out)
	return out, nil
}

// ListPrefix lists one level below loc. Non-recursive MinIO listings report
// common prefixes as entries whose key ends in "/".
func (p *Provider) ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if loc.IsRoot() {
		return p.ListBuckets(ctx)
	}
	prefix := loc.FullPrefix()
	var page provider.DelimiterPage
	for obj := range p.client.ListObjects(ctx, loc.BucketName(), miniogo.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, mapError("ListPrefix", loc.BucketName(), prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, provider.Delimiter) && obj.Key != prefix {
			page.CommonPrefixes = append(page.CommonPrefixes, obj.Key)
			continue
		}
		page.Objects = append(page.Objects, provider.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return provider.BuildListing(cloudpath.SchemeS3, loc.BucketName(), prefix, page)
}

// ListAllBlobs lists every object below loc recursively.
func (p *Provider) ListAllBlobs(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if err := provider.RequireBucket("ListAllBlobs", loc); err != nil {
		return nil, err
	}
	prefix := loc.FullPrefix()
	var objects []provider.ObjectSummary
	opts := miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for obj := range p.client.ListObjects(ctx, loc.BucketName(), opts) {
		if obj.Err != nil {
			return nil, mapError("ListAllBlobs", loc.BucketName(), prefix, obj.Err)
		}
		objects = append(objects, provider.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return provider.BuildBlobs(cloudpath.SchemeS3, loc.BucketName(), objects)
}

// Download streams one object to dest.
func (p *Provider) Download(ctx context.Context, blob cloudpath.Path, dest string) error {
	if err := provider.RequireBlob("Download", blob); err != nil {
		return err
	}
	key := blob.FullPrefix()
	obj, err := p.client.GetObject(ctx, blob.BucketName(), key, miniogo.GetObjectOptions{})
	if err != nil {
		return mapError("Download", blob.BucketName(), key, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; Stat surfaces a missing key before a temp file is created.
	if _, err := obj.Stat(); err != nil {
		return mapError("Download", blob.BucketName(), key, err)
	}
	if err := provider.WriteFile(ctx, dest, obj); err != nil {
		return mapError("Download", blob.BucketName(), key, err)
	}
	return nil
}

// DeleteBlob removes one object. S3 semantics make deleting a missing key a no-op.
func (p *Provider) DeleteBlob(ctx context.Context, blob cloudpath.Path) error {
	if err := provider.RequireBlob("DeleteBlob", blob); err != nil {
		return err
	}
	key := blob.FullPrefix()
	err := p.client.RemoveObject(ctx, blob.BucketName(), key, miniogo.RemoveObjectOptions{})
	if err != nil {
		wrapped := mapError("DeleteBlob", blob.BucketName(), key, err)
		if provider.IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// Close is a no-op; the SDK client holds no persistent connections.
func (p *Provider) Close() error { return nil }

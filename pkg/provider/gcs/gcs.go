// Package gcs implements provider.Provider for Google Cloud Storage.
//
// Credentials follow Application Default Credentials unless a service
// account file is configured. The client is built on first use and
// rebuilt after SetProject.
package gcs

import (
	"context"
	"errors"
	"os"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// Config configures the GCS provider.
type Config struct {
	// Project is the GCP project whose buckets are listed at the root.
	// Empty falls back to GOOGLE_CLOUD_PROJECT.
	Project string

	// CredentialsFile is an optional service account JSON file.
	CredentialsFile string
}

// ProjectEnvVar is consulted when Config.Project is empty.
const ProjectEnvVar = "GOOGLE_CLOUD_PROJECT"

// Provider is a GCS implementation of provider.Provider.
type Provider struct {
	mu      sync.Mutex
	cfg     Config
	client  *storage.Client
	project string

	// retired holds clients replaced by SetProject. Listings started before
	// the switch may still be using them, so they are closed with Close.
	retired []*storage.Client
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Reconfigurer = (*Provider)(nil)
)

// New returns a provider. No network call is made until the first listing.
func New(cfg Config) *Provider {
	project := cfg.Project
	if project == "" {
		project = os.Getenv(ProjectEnvVar)
	}
	return &Provider{cfg: cfg, project: project}
}

// Scheme returns cloudpath.SchemeGCS.
func (p *Provider) Scheme() cloudpath.Scheme { return cloudpath.SchemeGCS }

// Project returns the active GCP project id.
func (p *Provider) Project() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.project
}

// SetProject switches the project. The current client is retired rather
// than closed and the next call builds a new one.
func (p *Provider) SetProject(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.retired = append(p.retired, p.client)
	}
	p.project = name
	p.client = nil
}

func (p *Provider) getClient(ctx context.Context) (*storage.Client, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, p.project, nil
	}

	var opts []option.ClientOption
	if p.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, "", &provider.ProviderError{
			Op:       "New",
			Provider: cloudpath.SchemeGCS,
			Err:      wrapError(err),
		}
	}
	p.client = client
	return client, p.project, nil
}

// ListBuckets enumerates the buckets of the active project.
func (p *Provider) ListBuckets(ctx context.Context) ([]cloudpath.Path, error) {
	client, project, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}
	if project == "" {
		return nil, &provider.ProviderError{
			Op:       "ListBuckets",
			Provider: cloudpath.SchemeGCS,
			Err:      ErrNoProject,
		}
	}

	var out []cloudpath.Path
	it := client.Buckets(ctx, project)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, p.wrap("ListBuckets", "", "", err)
		}
		out = append(out, cloudpath.Bucket(cloudpath.SchemeGCS, attrs.Name))
	}
	provider.SortByFullPrefix(out)
	return out, nil
}

// ListPrefix lists one level below loc with a "/" delimiter.
func (p *Provider) ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if loc.IsRoot() {
		return p.ListBuckets(ctx)
	}
	prefix := loc.FullPrefix()
	page, err := p.listObjects(ctx, "ListPrefix", loc.BucketName(), prefix, provider.Delimiter)
	if err != nil {
		return nil, err
	}
	return provider.BuildListing(cloudpath.SchemeGCS, loc.BucketName(), prefix, page)
}

// ListAllBlobs lists every object below loc.
func (p *Provider) ListAllBlobs(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if err := provider.RequireBucket("ListAllBlobs", loc); err != nil {
		return nil, err
	}
	page, err := p.listObjects(ctx, "ListAllBlobs", loc.BucketName(), loc.FullPrefix(), "")
	if err != nil {
		return nil, err
	}
	return provider.BuildBlobs(cloudpath.SchemeGCS, loc.BucketName(), page.Objects)
}

func (p *Provider) listObjects(ctx context.Context, op, bucket, prefix, delimiter string) (provider.DelimiterPage, error) {
	var page provider.DelimiterPage
	client, _, err := p.getClient(ctx)
	if err != nil {
		return page, err
	}

	q := &storage.Query{Prefix: prefix, Delimiter: delimiter}
	if err := q.SetAttrSelection([]string{"Name", "Size", "Updated", "Prefix"}); err != nil {
		return page, err
	}

	it := client.Bucket(bucket).Objects(ctx, q)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return page, p.wrap(op, bucket, prefix, err)
		}
		if attrs.Prefix != "" {
			page.CommonPrefixes = append(page.CommonPrefixes, attrs.Prefix)
			continue
		}
		page.Objects = append(page.Objects, provider.ObjectSummary{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return page, nil
}

// Download streams one object to dest.
func (p *Provider) Download(ctx context.Context, blob cloudpath.Path, dest string) error {
	if err := provider.RequireBlob("Download", blob); err != nil {
		return err
	}
	client, _, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	key := blob.FullPrefix()
	r, err := client.Bucket(blob.BucketName()).Object(key).NewReader(ctx)
	if err != nil {
		return p.wrap("Download", blob.BucketName(), key, err)
	}
	defer func() { _ = r.Close() }()

	if err := provider.WriteFile(ctx, dest, r); err != nil {
		return p.wrap("Download", blob.BucketName(), key, err)
	}
	return nil
}

// DeleteBlob deletes one object; a missing object counts as deleted.
func (p *Provider) DeleteBlob(ctx context.Context, blob cloudpath.Path) error {
	if err := provider.RequireBlob("DeleteBlob", blob); err != nil {
		return err
	}
	client, _, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	key := blob.FullPrefix()
	if err := client.Bucket(blob.BucketName()).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return p.wrap("DeleteBlob", blob.BucketName(), key, err)
	}
	return nil
}

// Close releases the current client and every client retired by SetProject.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, c := range append(p.retired, p.client) {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	p.client, p.retired = nil, nil
	return errors.Join(errs...)
}

func (p *Provider) wrap(op, bucket, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: cloudpath.SchemeGCS,
		Bucket:   bucket,
		Key:      key,
		Err:      wrapError(err),
	}
}

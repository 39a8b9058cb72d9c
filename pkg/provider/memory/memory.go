// Package memory implements provider.Provider over an in-process object
// map. It backs the offline demo and the tests of the listing, navigator
// and transfer packages, which steer it through hooks to inject latency,
// faults and blocking.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// ListHook runs at the start of every listing call. Returning an error
// fails the call; blocking delays it.
type ListHook func(ctx context.Context, op string, loc cloudpath.Path) error

// ObjectHook runs before every Download and DeleteBlob.
type ObjectHook func(ctx context.Context, op string, blob cloudpath.Path) error

type object struct {
	data    []byte
	updated time.Time
}

// Provider is safe for concurrent use.
type Provider struct {
	mu       sync.Mutex
	scheme   cloudpath.Scheme
	project  string
	projects map[string]bool
	buckets  map[string]map[string]object
	latency  time.Duration
	listHook ListHook
	objHook  ObjectHook
	calls    map[string]int
	now      func() time.Time
}

var (
	_ provider.Provider     = (*Provider)(nil)
	_ provider.Reconfigurer = (*Provider)(nil)
)

// New returns an empty store for scheme.
func New(scheme cloudpath.Scheme, project string) *Provider {
	return &Provider{
		scheme:  scheme,
		project: project,
		buckets: make(map[string]map[string]object),
		calls:   make(map[string]int),
		now:     time.Now,
	}
}

// CreateBucket adds an empty bucket.
func (p *Provider) CreateBucket(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.buckets[name]; !ok {
		p.buckets[name] = make(map[string]object)
	}
}

// PutObject stores data under bucket/key, creating the bucket if needed.
func (p *Provider) PutObject(bucket, key string, data []byte) {
	p.PutObjectAt(bucket, key, data, p.now().UTC())
}

// PutObjectAt stores data with an explicit modification time.
func (p *Provider) PutObjectAt(bucket, key string, data []byte, updated time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[bucket]
	if !ok {
		b = make(map[string]object)
		p.buckets[bucket] = b
	}
	b[key] = object{data: append([]byte(nil), data...), updated: updated}
}

// Has reports whether bucket/key exists.
func (p *Provider) Has(bucket, key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.buckets[bucket][key]
	return ok
}

// Keys returns the sorted object keys of bucket.
func (p *Provider) Keys(bucket string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.buckets[bucket]))
	for k := range p.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetLatency delays every call by d, honouring context cancellation.
func (p *Provider) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency = d
}

// SetListHook installs h for listing calls; nil removes it.
func (p *Provider) SetListHook(h ListHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listHook = h
}

// SetObjectHook installs h for Download and DeleteBlob; nil removes it.
func (p *Provider) SetObjectHook(h ObjectHook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objHook = h
}

// SetValidProjects restricts SetProject to names; listing under any other
// project fails with provider.ErrInvalidConfiguration.
func (p *Provider) SetValidProjects(names ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.projects = make(map[string]bool, len(names))
	for _, n := range names {
		p.projects[n] = true
	}
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// Scheme returns the scheme given to New.
func (p *Provider) Scheme() cloudpath.Scheme { return p.scheme }

// Project returns the active project.
func (p *Provider) Project() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.project
}

// SetProject switches project; validation happens on the next listing.
func (p *Provider) SetProject(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.project = name
}

func (p *Provider) enter(ctx context.Context, op string) (time.Duration, error) {
	p.mu.Lock()
	p.calls[op]++
	latency := p.latency
	bad := p.projects != nil && !p.projects[p.project]
	project := p.project
	p.mu.Unlock()

	if bad {
		return 0, &provider.ProviderError{
			Op:       op,
			Provider: p.scheme,
			Err:      fmt.Errorf("%w: unknown project %q", provider.ErrInvalidConfiguration, project),
		}
	}
	return latency, ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Provider) beforeList(ctx context.Context, op string, loc cloudpath.Path) error {
	latency, err := p.enter(ctx, op)
	if err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.listHook
	p.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, op, loc); err != nil {
			return err
		}
	}
	return sleep(ctx, latency)
}

func (p *Provider) beforeObject(ctx context.Context, op string, blob cloudpath.Path) error {
	if err := provider.RequireBlob(op, blob); err != nil {
		return err
	}
	latency, err := p.enter(ctx, op)
	if err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.objHook
	p.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, op, blob); err != nil {
			return err
		}
	}
	return sleep(ctx, latency)
}

// ListBuckets returns every bucket, sorted.
func (p *Provider) ListBuckets(ctx context.Context) ([]cloudpath.Path, error) {
	if err := p.beforeList(ctx, "ListBuckets", cloudpath.Root(p.scheme)); err != nil {
		return nil, err
	}
	p.mu.Lock()
	out := make([]cloudpath.Path, 0, len(p.buckets))
	for name := range p.buckets {
		out = append(out, cloudpath.Bucket(p.scheme, name))
	}
	p.mu.Unlock()
	provider.SortByFullPrefix(out)
	return out, nil
}

// ListPrefix lists one level below loc.
func (p *Provider) ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if loc.IsRoot() {
		return p.ListBuckets(ctx)
	}
	if err := p.beforeList(ctx, "ListPrefix", loc); err != nil {
		return nil, err
	}
	prefix := loc.FullPrefix()
	objects, err := p.snapshot("ListPrefix", loc.BucketName(), prefix)
	if err != nil {
		return nil, err
	}

	var page provider.DelimiterPage
	seen := make(map[string]bool)
	for _, obj := range objects {
		rest := strings.TrimPrefix(obj.Key, prefix)
		if i := strings.Index(rest, provider.Delimiter); i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				page.CommonPrefixes = append(page.CommonPrefixes, cp)
			}
			continue
		}
		page.Objects = append(page.Objects, obj)
	}
	return provider.BuildListing(p.scheme, loc.BucketName(), prefix, page)
}

// ListAllBlobs lists every object below loc.
func (p *Provider) ListAllBlobs(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if err := provider.RequireBucket("ListAllBlobs", loc); err != nil {
		return nil, err
	}
	if err := p.beforeList(ctx, "ListAllBlobs", loc); err != nil {
		return nil, err
	}
	objects, err := p.snapshot("ListAllBlobs", loc.BucketName(), loc.FullPrefix())
	if err != nil {
		return nil, err
	}
	return provider.BuildBlobs(p.scheme, loc.BucketName(), objects)
}

func (p *Provider) snapshot(op, bucket, prefix string) ([]provider.ObjectSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.buckets[bucket]
	if !ok {
		return nil, &provider.ProviderError{Op: op, Provider: p.scheme, Bucket: bucket, Err: provider.ErrBucketNotFound}
	}
	var out []provider.ObjectSummary
	for key, obj := range b {
		if strings.HasPrefix(key, prefix) {
			out = append(out, provider.ObjectSummary{Key: key, Size: int64(len(obj.data)), LastModified: obj.updated})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Download writes the object to dest.
func (p *Provider) Download(ctx context.Context, blob cloudpath.Path, dest string) error {
	if err := p.beforeObject(ctx, "Download", blob); err != nil {
		return err
	}
	key := blob.FullPrefix()
	p.mu.Lock()
	obj, ok := p.buckets[blob.BucketName()][key]
	p.mu.Unlock()
	if !ok {
		return &provider.ProviderError{Op: "Download", Provider: p.scheme, Bucket: blob.BucketName(), Key: key, Err: provider.ErrNotFound}
	}
	return provider.WriteFile(ctx, dest, bytes.NewReader(obj.data))
}

// DeleteBlob removes the object; a missing object is not an error.
func (p *Provider) DeleteBlob(ctx context.Context, blob cloudpath.Path) error {
	if err := p.beforeObject(ctx, "DeleteBlob", blob); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buckets[blob.BucketName()], blob.FullPrefix())
	return nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

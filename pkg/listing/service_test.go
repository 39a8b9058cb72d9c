package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/provider/memory"
)

// stubProvider answers listings from a function and ignores cancellation,
// so tests control exactly when and with what each fetch completes.
type stubProvider struct {
	provider.Provider
	listPrefix  func(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error)
	listBuckets func(ctx context.Context) ([]cloudpath.Path, error)
}

func (s *stubProvider) ListPrefix(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	return s.listPrefix(ctx, loc)
}

func (s *stubProvider) ListBuckets(ctx context.Context) ([]cloudpath.Path, error) {
	return s.listBuckets(ctx)
}

type recorder struct {
	mu      sync.Mutex
	success [][]cloudpath.Path
	errs    []error
}

func (r *recorder) onSuccess(_ uint64, entries []cloudpath.Path) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, entries)
}

func (r *recorder) onError(_ uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.success), len(r.errs)
}

func blob(t *testing.T, key string) cloudpath.Path {
	t.Helper()
	p, err := cloudpath.BlobFromKey(cloudpath.SchemeGCS, "b", key, 1, time.Time{})
	require.NoError(t, err)
	return p
}

func names(locs []cloudpath.Path) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.Name()
	}
	return out
}

func TestRefreshAsync_UnchangedDoesNotNotify(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	mem.PutObject("b", "a", []byte("1"))
	mem.PutObject("b", "b", []byte("2"))
	svc := New(mem, Options{})
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")

	_, err := svc.Fetch(context.Background(), loc)
	require.NoError(t, err)

	var rec recorder
	svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	svc.Wait()
	ok, errs := rec.counts()
	assert.Zero(t, ok, "same listing must not notify")
	assert.Zero(t, errs)

	mem.PutObject("b", "c", []byte("3"))
	svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	svc.Wait()

	ok, _ = rec.counts()
	require.Equal(t, 1, ok)
	assert.Equal(t, []string{"a", "b", "c"}, names(rec.success[0]))

	cached, found := svc.GetCached(loc)
	require.True(t, found)
	assert.Equal(t, []string{"a", "b", "c"}, names(cached))
}

func TestRefreshAsync_FirstFetchAlwaysNotifies(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	mem.CreateBucket("empty")
	svc := New(mem, Options{})

	var rec recorder
	svc.RefreshAsync(cloudpath.Bucket(cloudpath.SchemeGCS, "empty"), rec.onSuccess, rec.onError)
	svc.Wait()

	ok, _ := rec.counts()
	require.Equal(t, 1, ok, "an empty first listing still ends the loading state")
	assert.Empty(t, rec.success[0])
}

func TestRefreshAsync_SupersededResultIsDropped(t *testing.T) {
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	oldEntries := []cloudpath.Path{blob(t, "old")}
	newEntries := []cloudpath.Path{blob(t, "new")}

	stub := &stubProvider{listPrefix: func(context.Context, cloudpath.Path) ([]cloudpath.Path, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return oldEntries, nil
		}
		return newEntries, nil
	}}
	svc := New(stub, Options{})

	var first, second recorder
	g1 := svc.RefreshAsync(loc, first.onSuccess, first.onError)
	<-entered
	g2 := svc.RefreshAsync(loc, second.onSuccess, second.onError)
	assert.Greater(t, g2, g1)

	require.Eventually(t, func() bool {
		ok, _ := second.counts()
		return ok == 1
	}, time.Second, 5*time.Millisecond)

	close(release)
	svc.Wait()

	ok, errs := first.counts()
	assert.Zero(t, ok, "superseded refresh must not call back")
	assert.Zero(t, errs)
	assert.False(t, svc.IsCurrent(loc, g1))
	assert.True(t, svc.IsCurrent(loc, g2))

	cached, found := svc.GetCached(loc)
	require.True(t, found)
	assert.Equal(t, []string{"new"}, names(cached), "a late stale result must not overwrite the cache")
}

func TestRefreshAsync_ErrorKeepsCache(t *testing.T) {
	boom := errors.New("network down")
	var fail atomic.Bool
	entries := []cloudpath.Path{blob(t, "a")}
	stub := &stubProvider{listPrefix: func(context.Context, cloudpath.Path) ([]cloudpath.Path, error) {
		if fail.Load() {
			return nil, boom
		}
		return entries, nil
	}}
	svc := New(stub, Options{})
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")

	_, err := svc.Fetch(context.Background(), loc)
	require.NoError(t, err)

	fail.Store(true)
	var rec recorder
	svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	svc.Wait()

	_, errs := rec.counts()
	require.Equal(t, 1, errs)
	assert.ErrorIs(t, rec.errs[0], boom)

	cached, found := svc.GetCached(loc)
	require.True(t, found)
	assert.Equal(t, []string{"a"}, names(cached))

	// nil callbacks are allowed
	svc.RefreshAsync(loc, nil, nil)
	svc.Wait()
}

func TestRefreshAsync_CancellationIsSilent(t *testing.T) {
	stub := &stubProvider{listPrefix: func(context.Context, cloudpath.Path) ([]cloudpath.Path, error) {
		return nil, context.Canceled
	}}
	svc := New(stub, Options{})

	var rec recorder
	svc.RefreshAsync(cloudpath.Bucket(cloudpath.SchemeGCS, "b"), rec.onSuccess, rec.onError)
	svc.Wait()

	ok, errs := rec.counts()
	assert.Zero(t, ok)
	assert.Zero(t, errs)
}

func TestRefreshAsync_RootListsBuckets(t *testing.T) {
	mem := memory.New(cloudpath.SchemeS3, "p")
	mem.CreateBucket("one")
	mem.CreateBucket("two")
	svc := New(mem, Options{})

	var rec recorder
	svc.RefreshAsync(cloudpath.Root(cloudpath.SchemeS3), rec.onSuccess, rec.onError)
	svc.Wait()

	ok, _ := rec.counts()
	require.Equal(t, 1, ok)
	assert.Equal(t, []string{"one", "two"}, names(rec.success[0]))
	assert.Equal(t, 1, mem.Calls("ListBuckets"))
}

func TestClear_DropsCacheAndInflight(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	entries := []cloudpath.Path{blob(t, "a")}
	stub := &stubProvider{listPrefix: func(context.Context, cloudpath.Path) ([]cloudpath.Path, error) {
		if calls.Add(1) == 2 {
			close(entered)
			<-release
		}
		return entries, nil
	}}
	svc := New(stub, Options{})
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")

	_, err := svc.Fetch(context.Background(), loc)
	require.NoError(t, err)

	var rec recorder
	gen := svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	<-entered
	svc.Clear()

	_, found := svc.GetCached(loc)
	assert.False(t, found)
	assert.False(t, svc.IsCurrent(loc, gen))

	close(release)
	svc.Wait()

	ok, _ := rec.counts()
	assert.Zero(t, ok)
	_, found = svc.GetCached(loc)
	assert.False(t, found, "an invalidated fetch must not repopulate the cache")
}

func TestCancel_StopsInflightFetch(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	mem.PutObject("b", "a", nil)
	started := make(chan struct{})
	mem.SetListHook(func(ctx context.Context, _ string, _ cloudpath.Path) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	svc := New(mem, Options{})
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")

	var rec recorder
	gen := svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	<-started
	svc.Cancel(loc)
	svc.Wait()

	ok, errs := rec.counts()
	assert.Zero(t, ok)
	assert.Zero(t, errs)
	assert.False(t, svc.IsCurrent(loc, gen))
}

func TestClose_CancelsEverything(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	mem.CreateBucket("x")
	mem.CreateBucket("y")
	mem.SetListHook(func(ctx context.Context, _ string, _ cloudpath.Path) error {
		<-ctx.Done()
		return ctx.Err()
	})
	svc := New(mem, Options{})

	var rec recorder
	svc.RefreshAsync(cloudpath.Bucket(cloudpath.SchemeGCS, "x"), rec.onSuccess, rec.onError)
	svc.RefreshAsync(cloudpath.Bucket(cloudpath.SchemeGCS, "y"), rec.onSuccess, rec.onError)
	svc.Close()

	ok, errs := rec.counts()
	assert.Zero(t, ok)
	assert.Zero(t, errs)
}

func TestFetch_CachesAndEvicts(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	for _, b := range []string{"one", "two", "three"} {
		mem.PutObject(b, "f", []byte(b))
	}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	svc := New(mem, Options{CacheSize: 2, Now: func() time.Time { return now }})
	ctx := context.Background()

	for _, b := range []string{"one", "two", "three"} {
		entries, err := svc.Fetch(ctx, cloudpath.Bucket(cloudpath.SchemeGCS, b))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	}

	_, found := svc.GetCached(cloudpath.Bucket(cloudpath.SchemeGCS, "one"))
	assert.False(t, found, "oldest listing evicted")

	snap, found := svc.Snapshot(cloudpath.Bucket(cloudpath.SchemeGCS, "three"))
	require.True(t, found)
	assert.Equal(t, now, snap.FetchedAt)
	assert.Len(t, snap.Signature, 1)

	_, err := svc.Fetch(ctx, cloudpath.Bucket(cloudpath.SchemeGCS, "missing"))
	assert.True(t, provider.IsBucketNotFound(err))
}

func TestGetCached_ReturnsCopy(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	mem.PutObject("b", "a", nil)
	svc := New(mem, Options{})
	loc := cloudpath.Bucket(cloudpath.SchemeGCS, "b")

	_, err := svc.Fetch(context.Background(), loc)
	require.NoError(t, err)

	got, _ := svc.GetCached(loc)
	got[0] = cloudpath.Bucket(cloudpath.SchemeGCS, "mutated")

	again, _ := svc.GetCached(loc)
	assert.Equal(t, "a", again[0].Name())
}

func TestRefreshAsync_ParallelLocations(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "p")
	locs := make([]cloudpath.Path, 0, 8)
	for i := 0; i < 8; i++ {
		name := string(rune('a' + i))
		mem.PutObject(name, "f", nil)
		locs = append(locs, cloudpath.Bucket(cloudpath.SchemeGCS, name))
	}
	mem.SetLatency(5 * time.Millisecond)
	svc := New(mem, Options{})

	var rec recorder
	for _, loc := range locs {
		svc.RefreshAsync(loc, rec.onSuccess, rec.onError)
	}
	svc.Wait()

	ok, errs := rec.counts()
	assert.Equal(t, len(locs), ok)
	assert.Zero(t, errs)
	assert.Equal(t, svc.Provider(), provider.Provider(mem))
}

func TestGenerations_StayBounded(t *testing.T) {
	release := make(chan struct{})
	entries := []cloudpath.Path{blob(t, "f")}
	stub := &stubProvider{listPrefix: func(_ context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
		if loc.BucketName() == "held" {
			<-release
		}
		return entries, nil
	}}
	svc := New(stub, Options{CacheSize: 2})
	ctx := context.Background()

	held := cloudpath.Bucket(cloudpath.SchemeGCS, "held")
	var rec recorder
	heldGen := svc.RefreshAsync(held, rec.onSuccess, rec.onError)

	var last cloudpath.Path
	for i := 0; i < 50; i++ {
		last = cloudpath.Bucket(cloudpath.SchemeGCS, fmt.Sprintf("b%02d", i))
		_, err := svc.Fetch(ctx, last)
		require.NoError(t, err)
	}
	lastGen := svc.RefreshAsync(last, nil, nil)

	svc.mu.Lock()
	size := len(svc.generations)
	svc.mu.Unlock()
	assert.LessOrEqual(t, size, 4)
	assert.True(t, svc.IsCurrent(last, lastGen))
	assert.True(t, svc.IsCurrent(held, heldGen), "in-flight generations are kept")

	close(release)
	svc.Wait()
	ok, _ := rec.counts()
	assert.Equal(t, 1, ok)
	_, found := svc.GetCached(held)
	assert.True(t, found)

	svc.Clear()
	svc.mu.Lock()
	size = len(svc.generations)
	svc.mu.Unlock()
	assert.Zero(t, size)
	assert.False(t, svc.IsCurrent(last, lastGen))
}

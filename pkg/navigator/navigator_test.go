package navigator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/listing"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/provider/memory"
)

type harness struct {
	t       *testing.T
	mem     *memory.Provider
	svc     *listing.Service
	nav     *Navigator
	signals []error
	renders int
}

func newHarness(t *testing.T, start cloudpath.Path) *harness {
	t.Helper()
	mem := memory.New(cloudpath.SchemeGCS, "proj")
	mem.PutObject("b", "alpha", []byte("a"))
	mem.PutObject("b", "beta", []byte("b"))
	mem.PutObject("b", "gamma", []byte("c"))
	mem.PutObject("b", "dir/one.txt", []byte("1"))
	mem.PutObject("b", "dir/two.txt", []byte("2"))
	mem.PutObject("other", "x.bin", []byte("x"))

	h := &harness{t: t, mem: mem}
	h.svc = listing.New(mem, listing.Options{})
	h.nav = New(h.svc, start, Options{
		OnSignal: func(err error) { h.signals = append(h.signals, err) },
		OnRender: func(View) { h.renders++ },
	})
	t.Cleanup(h.svc.Close)
	return h
}

// pump applies the next background event.
func (h *harness) pump() bool {
	h.t.Helper()
	select {
	case ev := <-h.nav.Events():
		return h.nav.Handle(ev)
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for a listing event")
		return false
	}
}

// quiet asserts no event arrives once background work has settled.
func (h *harness) quiet() {
	h.t.Helper()
	h.svc.Wait()
	select {
	case ev := <-h.nav.Events():
		h.t.Fatalf("unexpected event %#v", ev)
	default:
	}
}

func names(locs []cloudpath.Path) []string {
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.Name()
	}
	return out
}

func bucket(name string) cloudpath.Path {
	return cloudpath.Bucket(cloudpath.SchemeGCS, name)
}

func TestRequestListing_CacheMissThenHit(t *testing.T) {
	h := newHarness(t, bucket("b"))

	assert.False(t, h.nav.RefreshContents(), "nothing cached yet")
	assert.True(t, h.nav.Loading())
	assert.Empty(t, h.nav.Entries())

	require.True(t, h.pump())
	assert.False(t, h.nav.Loading())
	assert.Equal(t, []string{"alpha", "beta", "dir/", "gamma"}, names(h.nav.Entries()))

	h.nav.GoTo(bucket("other"))
	h.pump()
	h.nav.GoTo(bucket("b"))
	assert.False(t, h.nav.Loading(), "cached listing is shown at once")
	assert.Len(t, h.nav.Entries(), 4)
	h.quiet()
	assert.Equal(t, 3, h.mem.Calls("ListPrefix"), "cached location is still revalidated")
}

func TestRequestListing_RevalidationUpdatesView(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()
	h.nav.SetCursor(3)

	h.mem.PutObject("b", "delta", []byte("d"))
	assert.True(t, h.nav.RefreshContents())
	require.True(t, h.pump())
	assert.Equal(t, []string{"alpha", "beta", "delta", "dir/", "gamma"}, names(h.nav.Entries()))
	assert.Equal(t, 3, h.nav.Cursor(), "refreshing in place keeps the cursor")
}

func TestCursorRestore(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()
	h.nav.SetCursor(2)

	h.nav.GoTo(bucket("other"))
	h.pump()
	assert.Equal(t, 0, h.nav.Cursor())

	h.nav.GoTo(bucket("b"))
	assert.Equal(t, 2, h.nav.Cursor())
	sel, ok := h.nav.SelectedEntry()
	require.True(t, ok)
	assert.Equal(t, "dir/", sel.Name())
	h.quiet()
}

func TestCursorRestore_ClampedWhenListShrinks(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()
	h.nav.SetCursor(3)

	h.nav.Back()
	h.pump()

	ctx := context.Background()
	for _, key := range []string{"alpha", "beta", "gamma"} {
		blob, err := cloudpath.ParseTarget("gs://b/" + key)
		require.NoError(t, err)
		require.NoError(t, h.mem.DeleteBlob(ctx, blob))
	}
	h.nav.ClearCache()

	h.nav.GoTo(bucket("b"))
	assert.True(t, h.nav.Loading())
	h.pump()
	assert.Equal(t, []string{"dir/"}, names(h.nav.Entries()))
	assert.Equal(t, 0, h.nav.Cursor())
}

func TestBack(t *testing.T) {
	root := cloudpath.Root(cloudpath.SchemeGCS)
	h := newHarness(t, root)

	assert.False(t, h.nav.Back(), "back at the all-buckets location is a no-op")
	assert.True(t, h.nav.CurrentLocation().Equal(root))

	dir, err := cloudpath.New(cloudpath.SchemeGCS, "b", "dir")
	require.NoError(t, err)
	h.nav.GoTo(dir)
	h.pump()

	require.True(t, h.nav.Back())
	assert.True(t, h.nav.CurrentLocation().Equal(bucket("b")))
	h.pump()
	require.True(t, h.nav.Back())
	assert.True(t, h.nav.CurrentLocation().IsRoot())
	h.pump()
	assert.Equal(t, []string{"b", "other"}, names(h.nav.Entries()))
	assert.Equal(t, "list of buckets in project: proj", h.nav.Title())
}

func TestSelect(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()

	h.nav.SetCursor(0)
	assert.False(t, h.nav.SelectCursor(), "blobs are not navigable")
	assert.True(t, h.nav.CurrentLocation().Equal(bucket("b")))

	h.nav.SetCursor(2)
	require.True(t, h.nav.SelectCursor())
	assert.Equal(t, "gs://b/dir/", h.nav.CurrentLocation().String())
	h.pump()
	assert.Equal(t, []string{"one.txt", "two.txt"}, names(h.nav.Entries()))
}

func TestStaleResultIgnoredAfterNavigatingAway(t *testing.T) {
	h := newHarness(t, bucket("b"))
	release := make(chan struct{})
	h.mem.SetListHook(func(_ context.Context, _ string, loc cloudpath.Path) error {
		if loc.BucketName() == "b" {
			<-release
		}
		return nil
	})

	h.nav.RefreshContents()
	h.nav.GoTo(bucket("other"))
	require.True(t, h.pump())
	assert.Equal(t, []string{"x.bin"}, names(h.nav.Entries()))

	close(release)
	assert.False(t, h.pump(), "listing of a location the user left is ignored")
	assert.True(t, h.nav.CurrentLocation().Equal(bucket("other")))
	assert.Equal(t, []string{"x.bin"}, names(h.nav.Entries()))
}

func TestHandle_RejectsWrongGeneration(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()

	stale := Loaded{Location: bucket("b"), Generation: 0, Entries: nil}
	assert.False(t, h.nav.Handle(stale))
	assert.Len(t, h.nav.Entries(), 4)

	assert.False(t, h.nav.Handle(nil))
}

func TestSignals_AccessForbidden(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.mem.SetListHook(func(_ context.Context, op string, loc cloudpath.Path) error {
		return &provider.ProviderError{Op: op, Provider: cloudpath.SchemeGCS, Bucket: loc.BucketName(), Err: provider.ErrAccessDenied}
	})

	h.nav.RefreshContents()
	require.True(t, h.pump())
	assert.False(t, h.nav.Loading())
	require.Len(t, h.signals, 1)

	var forbidden *AccessForbidden
	require.True(t, errors.As(h.signals[0], &forbidden))
	assert.Equal(t, "gs://b/", forbidden.Path)
	assert.True(t, provider.IsAccessDenied(forbidden))
	assert.Equal(t, "forbidden to access: gs://b/", forbidden.Error())
}

func TestSignals_InvalidProject(t *testing.T) {
	h := newHarness(t, cloudpath.Root(cloudpath.SchemeGCS))
	h.mem.SetValidProjects("proj")
	h.mem.SetProject("no-such-project")

	h.nav.RefreshContents()
	h.pump()
	require.Len(t, h.signals, 1)

	var invalid *InvalidProject
	require.True(t, errors.As(h.signals[0], &invalid))
	assert.Equal(t, "no-such-project", invalid.Project)
	assert.True(t, provider.IsInvalidConfiguration(invalid))

	h.mem.SetProject("proj")
	h.nav.ClearCache()
	h.nav.RefreshContents()
	h.pump()
	assert.Equal(t, []string{"b", "other"}, names(h.nav.Entries()))
}

func TestSignals_OtherErrorsOnlyWhenNothingCached(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()

	boom := errors.New("connection reset")
	h.mem.SetListHook(func(context.Context, string, cloudpath.Path) error { return boom })

	h.nav.RefreshContents()
	assert.False(t, h.pump(), "failed revalidation keeps the cached view")
	assert.Empty(t, h.signals)
	assert.Len(t, h.nav.Entries(), 4)

	h.nav.GoTo(bucket("other"))
	h.pump()
	require.Len(t, h.signals, 1)
	var failed *ListingFailed
	require.True(t, errors.As(h.signals[0], &failed))
	assert.ErrorIs(t, failed, boom)
	assert.Empty(t, h.nav.Entries())
	assert.False(t, h.nav.Loading())
}

func TestSearch(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	h.pump()
	// alpha, beta, dir/, gamma

	h.nav.SetCursor(3)
	require.True(t, h.nav.Search("al"), "wraps past the end")
	assert.Equal(t, 0, h.nav.Cursor())

	require.True(t, h.nav.Search("a"))
	assert.Equal(t, 1, h.nav.Cursor(), "search starts after the cursor")

	assert.False(t, h.nav.Search("zzz"))
	assert.Equal(t, 1, h.nav.Cursor())

	require.True(t, h.nav.Search("d*"), "glob terms match whole names")
	assert.Equal(t, 2, h.nav.Cursor())

	require.True(t, h.nav.Search("?amma"))
	assert.Equal(t, 3, h.nav.Cursor())

	assert.False(t, h.nav.Search(""))
}

func TestSearch_OnlyMatchIsCurrent(t *testing.T) {
	h := newHarness(t, bucket("other"))
	h.nav.RefreshContents()
	h.pump()

	assert.True(t, h.nav.Search("x.b"))
	assert.Equal(t, 0, h.nav.Cursor())
}

func TestSearch_MatchesKeyWithinBucket(t *testing.T) {
	dir, err := cloudpath.PrefixFromKey(cloudpath.SchemeGCS, "b", "dir/")
	require.NoError(t, err)
	h := newHarness(t, dir)
	h.nav.RefreshContents()
	h.pump()
	require.Equal(t, []string{"one.txt", "two.txt"}, names(h.nav.Entries()))

	require.True(t, h.nav.Search("dir/t"), "the key includes the enclosing prefixes")
	assert.Equal(t, 1, h.nav.Cursor())

	require.True(t, h.nav.Search("o*"), "glob terms still match names")
	assert.Equal(t, 0, h.nav.Cursor())
}

func TestSearch_RootMatchesBucketNames(t *testing.T) {
	h := newHarness(t, cloudpath.Root(cloudpath.SchemeGCS))
	h.nav.RefreshContents()
	h.pump()
	require.Equal(t, []string{"b", "other"}, names(h.nav.Entries()))

	require.True(t, h.nav.Search("th"))
	assert.Equal(t, 1, h.nav.Cursor())
}

func TestRenderAndView(t *testing.T) {
	h := newHarness(t, bucket("b"))
	h.nav.RefreshContents()
	before := h.renders
	h.pump()
	assert.Greater(t, h.renders, before)

	v := h.nav.View()
	assert.Equal(t, "gs://b/", v.Title)
	assert.Len(t, v.Entries, 4)
	assert.False(t, v.Loading)

	h.nav.MoveCursor(10)
	assert.Equal(t, 3, h.nav.Cursor())
	h.nav.MoveCursor(-10)
	assert.Equal(t, 0, h.nav.Cursor())
}

func TestPostOption(t *testing.T) {
	mem := memory.New(cloudpath.SchemeGCS, "default")
	mem.PutObject("b", "k", nil)
	svc := listing.New(mem, listing.Options{})
	defer svc.Close()

	ch := make(chan Event, 1)
	nav := New(svc, bucket("b"), Options{Post: func(ev Event) { ch <- ev }})
	assert.Nil(t, nav.Events())

	nav.RefreshContents()
	select {
	case ev := <-ch:
		loaded, ok := ev.(Loaded)
		require.True(t, ok, fmt.Sprintf("%T", ev))
		assert.True(t, nav.Handle(loaded))
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
}

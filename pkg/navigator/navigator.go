// Package navigator holds the browsing state: the current location, its
// rendered entries, the highlighted row and whether a first fetch is still
// loading.
//
// A Navigator is owned by a single goroutine (the UI loop). Background
// listing results never touch it directly; they are posted as Events and
// applied by Handle, which drops any result whose generation or location
// is no longer current.
package navigator

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/listing"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/recent"
)

// DefaultCursorCacheSize is the number of remembered cursor positions.
const DefaultCursorCacheSize = 10

// DefaultEventBuffer sizes the internal event channel used when no Post
// function is configured.
const DefaultEventBuffer = 64

// View is a snapshot of what the presentation layer should draw.
type View struct {
	Location cloudpath.Path
	Title    string
	Entries  []cloudpath.Path
	Cursor   int
	Loading  bool
}

// Options configures a Navigator.
type Options struct {
	CursorCacheSize int

	// Logger receives debug events; nil disables logging.
	Logger *zap.Logger

	// Post hands a background event to the owning goroutine. It may be
	// called from any goroutine. When nil, events go to the channel
	// returned by Events.
	Post func(Event)

	// OnSignal receives *AccessForbidden, *InvalidProject and
	// *ListingFailed.
	OnSignal func(error)

	// OnRender is called at the end of every transition that changes what
	// is shown.
	OnRender func(View)
}

// Navigator is the navigation state machine.
type Navigator struct {
	svc      *listing.Service
	log      *zap.Logger
	post     func(Event)
	events   chan Event
	onSignal func(error)
	onRender func(View)

	cursors *recent.Cache[cloudpath.Key, int]

	current cloudpath.Path
	entries []cloudpath.Path
	cursor  int
	loading bool
	pending uint64
	restore bool
}

// New returns a navigator positioned at start. Nothing is fetched until
// RefreshContents or a navigation call.
func New(svc *listing.Service, start cloudpath.Path, opts Options) *Navigator {
	if opts.CursorCacheSize <= 0 {
		opts.CursorCacheSize = DefaultCursorCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	n := &Navigator{
		svc:      svc,
		log:      opts.Logger,
		post:     opts.Post,
		onSignal: opts.OnSignal,
		onRender: opts.OnRender,
		cursors:  recent.New[cloudpath.Key, int](opts.CursorCacheSize),
		current:  start,
		restore:  true,
	}
	if n.post == nil {
		n.events = make(chan Event, DefaultEventBuffer)
		n.post = func(ev Event) { n.events <- ev }
	}
	return n
}

// Events returns the channel background results are delivered on when no
// Post function was configured; nil otherwise.
func (n *Navigator) Events() <-chan Event {
	return n.events
}

// Service returns the listing service backing n.
func (n *Navigator) Service() *listing.Service {
	return n.svc
}

// CurrentLocation returns the location being shown.
func (n *Navigator) CurrentLocation() cloudpath.Path {
	return n.current
}

// Entries returns a copy of the rendered entries.
func (n *Navigator) Entries() []cloudpath.Path {
	return slices.Clone(n.entries)
}

// Cursor returns the highlighted row.
func (n *Navigator) Cursor() int {
	return n.cursor
}

// Loading reports whether the first fetch of the current location is in flight.
func (n *Navigator) Loading() bool {
	return n.loading
}

// Title is the heading for the current location.
func (n *Navigator) Title() string {
	return n.current.Title(n.svc.Provider().Project())
}

// View returns a snapshot of the current state.
func (n *Navigator) View() View {
	return View{
		Location: n.current,
		Title:    n.Title(),
		Entries:  n.Entries(),
		Cursor:   n.cursor,
		Loading:  n.loading,
	}
}

// SelectedEntry returns the highlighted entry, if any.
func (n *Navigator) SelectedEntry() (cloudpath.Path, bool) {
	if n.cursor < 0 || n.cursor >= len(n.entries) {
		return cloudpath.Path{}, false
	}
	return n.entries[n.cursor], true
}

// GoTo navigates to loc, remembering the cursor of the location being left.
func (n *Navigator) GoTo(loc cloudpath.Path) {
	if !n.loading && len(n.entries) > 0 {
		n.cursors.Put(n.current.Key(), n.cursor)
	}
	n.log.Debug("navigate", zap.String("from", n.current.String()), zap.String("uri", loc.String()))
	n.current = loc
	n.restore = true
	n.RequestListing()
}

// Select navigates into entry if it is a bucket or prefix. Blobs are not
// navigable; Select returns false for them.
func (n *Navigator) Select(entry cloudpath.Path) bool {
	if !entry.IsContainer() {
		return false
	}
	n.GoTo(entry)
	return true
}

// SelectCursor selects the highlighted entry.
func (n *Navigator) SelectCursor() bool {
	entry, ok := n.SelectedEntry()
	if !ok {
		return false
	}
	return n.Select(entry)
}

// Back navigates to the parent location. It is a no-op at the all-buckets
// location and reports whether the location changed.
func (n *Navigator) Back() bool {
	if n.current.IsRoot() {
		return false
	}
	n.GoTo(n.current.Parent())
	return true
}

// RequestListing shows the cached listing of the current location, if any,
// and starts a background refresh either way. It reports whether cached
// entries were shown.
func (n *Navigator) RequestListing() bool {
	loc := n.current
	cached, ok := n.svc.GetCached(loc)
	if ok {
		n.loading = false
		n.applyEntries(cached)
	} else {
		n.loading = true
		n.entries = nil
		n.cursor = 0
	}

	n.pending = n.svc.RefreshAsync(loc,
		func(gen uint64, entries []cloudpath.Path) {
			n.post(Loaded{Location: loc, Generation: gen, Entries: entries})
		},
		func(gen uint64, err error) {
			n.post(Failed{Location: loc, Generation: gen, Err: err})
		},
	)
	n.render()
	return ok
}

// RefreshContents re-derives the listing of the current location. The
// result reports whether cached entries could be shown immediately;
// background outcomes arrive later through Handle.
func (n *Navigator) RefreshContents() bool {
	return n.RequestListing()
}

// ClearCache drops every cached listing. Callers normally follow it with
// RefreshContents.
func (n *Navigator) ClearCache() {
	n.svc.Clear()
}

// Handle applies a background event. Events for a superseded generation or
// a location the user has since left are ignored. It reports whether the
// state changed.
func (n *Navigator) Handle(ev Event) bool {
	switch ev := ev.(type) {
	case Loaded:
		if !n.accept(ev.Location, ev.Generation) {
			return false
		}
		n.loading = false
		n.applyEntries(ev.Entries)
		n.render()
		return true
	case Failed:
		if !n.accept(ev.Location, ev.Generation) {
			return false
		}
		return n.fail(ev)
	default:
		return false
	}
}

func (n *Navigator) accept(loc cloudpath.Path, gen uint64) bool {
	if gen != n.pending || !loc.Equal(n.current) || !n.svc.IsCurrent(loc, gen) {
		n.log.Debug("stale listing event dropped", zap.String("uri", loc.String()), zap.Uint64("generation", gen))
		return false
	}
	return true
}

func (n *Navigator) fail(ev Failed) bool {
	if provider.IsCancelled(ev.Err) {
		return false
	}
	initial := n.loading
	n.loading = false

	switch {
	case provider.IsForbidden(ev.Err):
		n.signal(&AccessForbidden{Path: n.Title(), Location: ev.Location, Err: ev.Err})
	case provider.IsInvalidConfiguration(ev.Err):
		n.signal(&InvalidProject{Project: n.svc.Provider().Project(), Err: ev.Err})
	case initial:
		n.signal(&ListingFailed{Location: ev.Location, Err: ev.Err})
	default:
		// Revalidation of a cached listing failed; keep showing the cache.
		n.log.Debug("background refresh failed", zap.String("uri", ev.Location.String()), zap.Error(ev.Err))
		return false
	}
	if initial {
		n.render()
	}
	return true
}

func (n *Navigator) signal(err error) {
	n.log.Debug("navigator signal", zap.Error(err))
	if n.onSignal != nil {
		n.onSignal(err)
	}
}

func (n *Navigator) applyEntries(entries []cloudpath.Path) {
	n.entries = entries
	if n.restore {
		n.cursor = 0
		if c, ok := n.cursors.Get(n.current.Key()); ok {
			n.cursor = c
		}
		n.restore = false
	}
	n.cursor = clamp(n.cursor, len(n.entries))
}

func (n *Navigator) render() {
	if n.onRender != nil {
		n.onRender(n.View())
	}
}

// MoveCursor moves the highlight by delta rows, clamped to the listing.
func (n *Navigator) MoveCursor(delta int) {
	n.SetCursor(n.cursor + delta)
}

// SetCursor highlights row i, clamped to the listing.
func (n *Navigator) SetCursor(i int) {
	c := clamp(i, len(n.entries))
	if c == n.cursor {
		return
	}
	n.cursor = c
	n.render()
}

// Search moves the cursor to the next entry whose path contains term,
// starting after the cursor and wrapping around. The path is the object
// key within the bucket, or the bucket name at the root. Terms containing
// glob metacharacters are matched as patterns against the entry name. It
// reports whether a match was found.
func (n *Navigator) Search(term string) bool {
	if term == "" || len(n.entries) == 0 {
		return false
	}
	match := substringMatcher(term)
	if strings.ContainsAny(term, "*?[{") && doublestar.ValidatePattern(term) {
		match = func(p cloudpath.Path) bool {
			ok, err := doublestar.Match(term, strings.TrimSuffix(p.Name(), "/"))
			return err == nil && ok
		}
	}

	size := len(n.entries)
	for i := 1; i <= size; i++ {
		idx := (n.cursor + i) % size
		if match(n.entries[idx]) {
			n.SetCursor(idx)
			return true
		}
	}
	return false
}

func substringMatcher(term string) func(cloudpath.Path) bool {
	return func(p cloudpath.Path) bool {
		key := p.FullPrefix()
		if key == "" {
			key = p.BucketName()
		}
		return strings.Contains(key, term)
	}
}

func clamp(i, size int) int {
	if size == 0 || i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}

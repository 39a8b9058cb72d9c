// Package listing caches directory listings and revalidates them in the
// background (stale-while-revalidate).
//
// Every refresh of a location takes a new generation number from a
// service-wide sequence. When a fetch completes, its result is applied only
// if its generation is still the latest for that location; superseded
// results are dropped without touching the cache or calling back. The
// generation table keeps in-flight locations plus the most recently bumped
// ones, so it stays proportional to the cache size. The service mutex guards the cache and the
// generation table and is never held across provider I/O.
package listing

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/provider"
	"github.com/3leaps/nimbusurf/pkg/recent"
)

// DefaultCacheSize is the number of listings kept when Options.CacheSize is zero.
const DefaultCacheSize = 25

// SuccessFunc receives a fresh listing whose signature changed.
type SuccessFunc func(gen uint64, entries []cloudpath.Path)

// ErrorFunc receives the error of a current-generation fetch. Cancellation
// is never reported.
type ErrorFunc func(gen uint64, err error)

// Snapshot is one cached listing.
type Snapshot struct {
	Entries   []cloudpath.Path
	Signature Signature
	FetchedAt time.Time
}

// Options configures a Service.
type Options struct {
	// CacheSize bounds the number of cached locations.
	CacheSize int

	// Logger receives debug events; nil disables logging.
	Logger *zap.Logger

	// Now overrides the clock for FetchedAt.
	Now func() time.Time
}

type inflight struct {
	gen    uint64
	cancel context.CancelFunc
}

// Service is the listing cache. It is safe for concurrent use.
type Service struct {
	provider provider.Provider
	log      *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	cache       *recent.Cache[cloudpath.Key, Snapshot]
	limit       int
	seq         uint64
	generations map[cloudpath.Key]uint64
	inflight    map[cloudpath.Key]inflight

	wg sync.WaitGroup
}

// New returns a Service over p.
func New(p provider.Provider, opts Options) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		provider:    p,
		log:         opts.Logger,
		now:         opts.Now,
		cache:       recent.New[cloudpath.Key, Snapshot](opts.CacheSize),
		limit:       opts.CacheSize,
		generations: make(map[cloudpath.Key]uint64),
		inflight:    make(map[cloudpath.Key]inflight),
	}
}

// Provider returns the underlying storage provider.
func (s *Service) Provider() provider.Provider {
	return s.provider
}

// GetCached returns the cached entries for loc without fetching.
func (s *Service) GetCached(loc cloudpath.Path) ([]cloudpath.Path, bool) {
	snap, ok := s.Snapshot(loc)
	if !ok {
		return nil, false
	}
	return snap.Entries, true
}

// Snapshot returns the full cache entry for loc.
func (s *Service) Snapshot(loc cloudpath.Path) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.cache.Get(loc.Key())
	if !ok {
		return Snapshot{}, false
	}
	snap.Entries = slices.Clone(snap.Entries)
	return snap, true
}

// IsCurrent reports whether gen is still the latest generation for loc.
func (s *Service) IsCurrent(loc cloudpath.Path, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.generations[loc.Key()]
	return ok && cur == gen
}

// RefreshAsync starts a background fetch of loc and returns its generation.
// A previous in-flight fetch of the same location is cancelled and its
// result discarded. On completion the cache is written and onSuccess runs
// only if the listing differs from what was cached when the refresh began.
// Callbacks run on the fetching goroutine; either may be nil.
func (s *Service) RefreshAsync(loc cloudpath.Path, onSuccess SuccessFunc, onError ErrorFunc) uint64 {
	key := loc.Key()
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	gen := s.bumpLocked(key)
	s.inflight[key] = inflight{gen: gen, cancel: cancel}
	var prev Signature
	snap, hadCache := s.cache.Get(key)
	if hadCache {
		prev = snap.Signature
	}
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.log.With(zap.String("uri", loc.String()), zap.Uint64("generation", gen))
	log.Debug("refresh started", zap.Bool("cached", hadCache))

	go func() {
		defer s.wg.Done()
		defer cancel()

		entries, err := s.list(ctx, loc)

		s.mu.Lock()
		if s.generations[key] != gen {
			s.mu.Unlock()
			log.Debug("refresh superseded")
			return
		}
		if cur, ok := s.inflight[key]; ok && cur.gen == gen {
			delete(s.inflight, key)
		}
		if err != nil {
			s.mu.Unlock()
			if provider.IsCancelled(err) {
				return
			}
			log.Debug("refresh failed", zap.Error(err))
			if onError != nil {
				onError(gen, err)
			}
			return
		}
		sig := SignatureOf(entries)
		s.cache.Put(key, Snapshot{Entries: entries, Signature: sig, FetchedAt: s.now()})
		s.mu.Unlock()

		if hadCache && prev.Equal(sig) {
			log.Debug("refresh unchanged", zap.Int("entries", len(entries)))
			return
		}
		log.Debug("refresh changed", zap.Int("entries", len(entries)))
		if onSuccess != nil {
			onSuccess(gen, slices.Clone(entries))
		}
	}()

	return gen
}

// Fetch lists loc synchronously and caches the result. Any in-flight
// background refresh of loc is superseded.
func (s *Service) Fetch(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	key := loc.Key()
	s.mu.Lock()
	gen := s.bumpLocked(key)
	s.mu.Unlock()

	entries, err := s.list(ctx, loc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.generations[key] == gen {
		s.cache.Put(key, Snapshot{Entries: entries, Signature: SignatureOf(entries), FetchedAt: s.now()})
	}
	s.mu.Unlock()
	return slices.Clone(entries), nil
}

// Cancel stops any in-flight refresh of loc; its result will be dropped.
func (s *Service) Cancel(loc cloudpath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := loc.Key()
	if _, ok := s.inflight[key]; ok {
		s.bumpLocked(key)
	}
}

// CancelAll stops every in-flight refresh.
func (s *Service) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.inflight {
		s.bumpLocked(key)
	}
}

// Clear empties the cache and invalidates every outstanding generation.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Clear()
	for key, cur := range s.inflight {
		cur.cancel()
		delete(s.inflight, key)
	}
	clear(s.generations)
	s.log.Debug("listing cache cleared")
}

// Wait blocks until all background refreshes have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight work and waits for it to finish.
func (s *Service) Close() {
	s.CancelAll()
	s.Wait()
}

// bumpLocked advances the generation of key, cancelling a superseded
// in-flight fetch. Callers hold s.mu.
func (s *Service) bumpLocked(key cloudpath.Key) uint64 {
	if cur, ok := s.inflight[key]; ok {
		cur.cancel()
		delete(s.inflight, key)
	}
	s.seq++
	s.generations[key] = s.seq
	if len(s.generations) > 2*s.limit {
		s.pruneLocked()
	}
	return s.seq
}

// pruneLocked forgets the oldest generations of locations with no fetch in
// flight until at most limit entries remain. A forgotten location is never
// current, so a late result for it is dropped. Callers hold s.mu.
func (s *Service) pruneLocked() {
	type entry struct {
		key cloudpath.Key
		gen uint64
	}
	idle := make([]entry, 0, len(s.generations))
	for key, gen := range s.generations {
		if _, busy := s.inflight[key]; !busy {
			idle = append(idle, entry{key, gen})
		}
	}
	slices.SortFunc(idle, func(a, b entry) int { return cmp.Compare(a.gen, b.gen) })
	for _, e := range idle {
		if len(s.generations) <= s.limit {
			break
		}
		delete(s.generations, e.key)
	}
}

func (s *Service) list(ctx context.Context, loc cloudpath.Path) ([]cloudpath.Path, error) {
	if loc.IsRoot() {
		return s.provider.ListBuckets(ctx)
	}
	return s.provider.ListPrefix(ctx, loc)
}

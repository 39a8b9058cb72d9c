// Package transfer implements the bulk download and delete workers used by
// the browser and the non-interactive commands.
//
// A Job resolves its work list once and then processes items sequentially.
// Stopping is cooperative: Stop is observed between items, never mid-item.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
	"github.com/3leaps/nimbusurf/pkg/match"
	"github.com/3leaps/nimbusurf/pkg/output"
	"github.com/3leaps/nimbusurf/pkg/provider"
)

// Kind names a bulk operation.
type Kind string

const (
	KindDownload Kind = "download"
	KindDelete   Kind = "delete"
)

var (
	// ErrBucketDelete is returned when a delete targets a bucket or the
	// all-buckets location.
	ErrBucketDelete = errors.New("deleting buckets is not supported")

	// ErrUnsafePath is returned when an object key would resolve outside the
	// download destination.
	ErrUnsafePath = errors.New("unsafe destination path")

	// ErrNoTarget is returned when a download targets the all-buckets location.
	ErrNoTarget = errors.New("a bucket, prefix or object is required")
)

// Hooks observe item processing. Both run on the worker goroutine.
type Hooks struct {
	// Before runs before item index (0-based) of total is processed.
	Before func(index, total int, item cloudpath.Path)

	// After runs once item has been processed; err is nil on success and for
	// skipped items.
	After func(index, total int, item cloudpath.Path, err error)
}

// Config configures a Job.
type Config struct {
	// Destination is the local download root. Defaults to ".".
	Destination string

	// RateLimit caps processed items per second. Zero means unlimited.
	RateLimit float64

	// JobID correlates log lines and output records. Generated when empty.
	JobID string

	// Writer receives per-item transfer and error records. Optional.
	Writer output.Writer

	// Select narrows the work list of a prefix or bucket target. Nil
	// selects every blob.
	Select *match.Selector

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	Hooks Hooks
}

// Summary reports the outcome of a Run.
type Summary struct {
	Total   int64
	Done    int64
	Failed  int64
	Skipped int64
	Bytes   int64

	// Stopped is set when the run ended before the work list was exhausted.
	Stopped  bool
	Duration time.Duration
}

// Job is a bulk download or delete rooted at a target location.
type Job struct {
	kind    Kind
	prov    provider.Provider
	target  cloudpath.Path
	cfg     Config
	log     *zap.Logger
	limiter *rate.Limiter

	stopped atomic.Bool

	enumMu sync.Mutex
	items  []cloudpath.Path
	listed bool
}

// NewDownloader creates a job that downloads target below cfg.Destination.
func NewDownloader(p provider.Provider, target cloudpath.Path, cfg Config) (*Job, error) {
	if target.IsRoot() {
		return nil, ErrNoTarget
	}
	if cfg.Destination == "" {
		cfg.Destination = "."
	}
	return newJob(KindDownload, p, target, cfg), nil
}

// NewDeleter creates a job that deletes target. Buckets cannot be deleted.
func NewDeleter(p provider.Provider, target cloudpath.Path, cfg Config) (*Job, error) {
	if target.IsBucket() {
		return nil, ErrBucketDelete
	}
	return newJob(KindDelete, p, target, cfg), nil
}

func newJob(kind Kind, p provider.Provider, target cloudpath.Path, cfg Config) *Job {
	if cfg.JobID == "" {
		cfg.JobID = uuid.New().String()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	j := &Job{
		kind:   kind,
		prov:   p,
		target: target,
		cfg:    cfg,
		log:    log.With(zap.String("job_id", cfg.JobID), zap.String("op", string(kind))),
	}
	if cfg.RateLimit > 0 {
		j.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return j
}

// Kind returns the operation performed by the job.
func (j *Job) Kind() Kind { return j.kind }

// Target returns the location the job was created for.
func (j *Job) Target() cloudpath.Path { return j.target }

// ID returns the job correlation id.
func (j *Job) ID() string { return j.cfg.JobID }

// Stop requests a cooperative stop. The item in progress, if any, completes.
func (j *Job) Stop() { j.stopped.Store(true) }

// Stopped reports whether Stop has been called.
func (j *Job) Stopped() bool { return j.stopped.Load() }

func (j *Job) resume() { j.stopped.Store(false) }

// Enumerate resolves the work list: the target itself for a blob, otherwise
// every selected blob below it. A successful result is memoized.
func (j *Job) Enumerate(ctx context.Context) ([]cloudpath.Path, error) {
	j.enumMu.Lock()
	defer j.enumMu.Unlock()

	if j.listed {
		return slices.Clone(j.items), nil
	}
	var items []cloudpath.Path
	if j.target.IsBlob() {
		items = []cloudpath.Path{j.target}
	} else {
		all, err := j.prov.ListAllBlobs(ctx, j.target)
		if err != nil {
			return nil, err
		}
		items = all[:0]
		for _, item := range all {
			rel, ok := item.RelativeTo(j.target)
			if ok && j.cfg.Select.Match(rel, item) {
				items = append(items, item)
			}
		}
	}
	j.items = items
	j.listed = true
	j.log.Debug("work list resolved", zap.String("uri", j.target.String()), zap.Int("items", len(items)))
	return slices.Clone(items), nil
}

// Run processes the work list with the configured hooks.
func (j *Job) Run(ctx context.Context) (*Summary, error) {
	return j.run(ctx, j.cfg.Hooks)
}

func (j *Job) run(ctx context.Context, hooks Hooks) (*Summary, error) {
	start := time.Now()
	items, err := j.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	sum := &Summary{Total: int64(len(items))}
	total := len(items)
	for i, item := range items {
		if j.stopped.Load() || ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		if j.limiter != nil {
			if err := j.limiter.Wait(ctx); err != nil {
				sum.Stopped = true
				break
			}
		}
		if hooks.Before != nil {
			hooks.Before(i, total, item)
		}

		size, err := j.process(ctx, item)
		switch {
		case err == nil:
			sum.Done++
			sum.Bytes += size
		case provider.IsCancelled(err):
			sum.Stopped = true
		case j.kind == KindDownload && provider.IsNotFound(err):
			// Removed since the work list was resolved.
			sum.Skipped++
			j.log.Debug("object vanished", zap.String("uri", item.String()))
			err = nil
		default:
			sum.Failed++
			j.log.Warn("item failed", zap.String("uri", item.String()), zap.Error(err))
			j.writeError(ctx, item, err)
		}

		if hooks.After != nil {
			hooks.After(i, total, item, err)
		}
		if sum.Stopped {
			break
		}
	}

	sum.Duration = time.Since(start)
	j.log.Info("bulk operation finished",
		zap.String("uri", j.target.String()),
		zap.Int64("done", sum.Done),
		zap.Int64("failed", sum.Failed),
		zap.Int64("skipped", sum.Skipped),
		zap.Bool("stopped", sum.Stopped),
	)
	return sum, nil
}

func (j *Job) process(ctx context.Context, item cloudpath.Path) (int64, error) {
	size, _ := item.Size()
	switch j.kind {
	case KindDownload:
		dest, err := DestinationPath(j.cfg.Destination, j.target, item)
		if err != nil {
			return 0, err
		}
		if err := j.prov.Download(ctx, item, dest); err != nil {
			return 0, err
		}
		if _, known := item.Size(); !known {
			if info, err := os.Stat(dest); err == nil {
				size = info.Size()
			}
		}
		j.writeTransfer(ctx, item, dest, size)
		return size, nil
	case KindDelete:
		if err := j.prov.DeleteBlob(ctx, item); err != nil {
			return 0, err
		}
		j.writeTransfer(ctx, item, "", size)
		return size, nil
	default:
		return 0, fmt.Errorf("unknown job kind %q", j.kind)
	}
}

func (j *Job) writeTransfer(ctx context.Context, item cloudpath.Path, dest string, size int64) {
	if j.cfg.Writer == nil {
		return
	}
	rec := &output.TransferRecord{Op: string(j.kind), URI: item.String(), Dest: dest, Bytes: size}
	if err := j.cfg.Writer.WriteTransfer(ctx, rec); err != nil {
		j.log.Warn("failed to write transfer record", zap.Error(err))
	}
}

func (j *Job) writeError(ctx context.Context, item cloudpath.Path, err error) {
	if j.cfg.Writer == nil {
		return
	}
	rec := &output.ErrorRecord{Code: classifyErrCode(err), Message: err.Error(), URI: item.String()}
	if werr := j.cfg.Writer.WriteError(ctx, rec); werr != nil {
		j.log.Warn("failed to write error record", zap.Error(werr))
	}
}

// DestinationPath returns where item is written when downloading target
// below root. A blob target lands at root/<name>. For a container target a
// subfolder named after it is created and item keeps its path relative to
// the target.
func DestinationPath(root string, target, item cloudpath.Path) (string, error) {
	if target.IsBlob() {
		if !item.Equal(target) {
			return "", fmt.Errorf("%w: %s is not %s", ErrUnsafePath, item, target)
		}
		return localJoin(root, target.Name())
	}

	rel, ok := item.RelativeTo(target)
	if !ok || !item.IsBlob() {
		return "", fmt.Errorf("%w: %s is not below %s", ErrUnsafePath, item, target)
	}
	folder := strings.TrimSuffix(target.Name(), "/")
	return localJoin(root, folder, rel)
}

func localJoin(root string, parts ...string) (string, error) {
	rel := filepath.Join(parts...)
	for _, p := range parts {
		if !filepath.IsLocal(filepath.FromSlash(p)) {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
		}
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

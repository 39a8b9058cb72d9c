package transfer

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// State is the lifecycle of a bulk operation driven by a Controller.
type State int

const (
	// StateStopped is the initial state and the state after a user cancel.
	StateStopped State = iota
	// StateStarted means a run is in progress.
	StateStarted
	// StateFinished means the last run processed the whole work list.
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarted:
		return "started"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Start while a run is active or a stopped
// run has not yet wound down.
var ErrAlreadyRunning = errors.New("bulk operation already running")

// runSeq hands out run ids. Ids are unique across controllers so a worker
// left over from a replaced controller never matches a newer one.
var runSeq atomic.Uint64

// DefaultEventBuffer sizes the internal event channel.
const DefaultEventBuffer = 64

// Event is a message posted by the worker goroutine for the owner loop.
type Event interface {
	transferEvent()
}

// ItemStarted is posted before an item is processed.
type ItemStarted struct {
	Run   uint64
	Index int
	Total int
	Item  cloudpath.Path
}

// ItemDone is posted after an item is processed.
type ItemDone struct {
	Run   uint64
	Index int
	Total int
	Item  cloudpath.Path
	Err   error
}

// Done is posted when a run returns.
type Done struct {
	Run     uint64
	Summary *Summary
	Err     error
}

func (ItemStarted) transferEvent() {}
func (ItemDone) transferEvent()    {}
func (Done) transferEvent()        {}

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Post delivers worker events to the owner loop. When nil, events are
	// buffered on the channel returned by Events.
	Post func(Event)

	Logger *zap.Logger
}

// Controller drives a Job through Stopped, Started and Finished.
//
// A Controller is owned by a single goroutine: Start, Stop, Close and Handle
// must not be called concurrently. The worker only communicates through
// posted events.
type Controller struct {
	job    *Job
	log    *zap.Logger
	post   func(Event)
	events chan Event

	state   State
	run     uint64
	busy    bool
	summary *Summary
	err     error
}

// NewController wraps job.
func NewController(job *Job, opts ControllerOptions) *Controller {
	c := &Controller{job: job, post: opts.Post, log: opts.Logger}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.post == nil {
		c.events = make(chan Event, DefaultEventBuffer)
		c.post = func(ev Event) { c.events <- ev }
	}
	return c
}

// Job returns the controlled job.
func (c *Controller) Job() *Job { return c.job }

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.state }

// Events returns the internal event channel, or nil when Post was supplied.
func (c *Controller) Events() <-chan Event { return c.events }

// Busy reports whether the worker of the last run has not yet posted Done.
func (c *Controller) Busy() bool { return c.busy }

// Summary returns the result of the last completed run of the current
// generation, or nil.
func (c *Controller) Summary() *Summary { return c.summary }

// Err returns the error of the last completed run, if any.
func (c *Controller) Err() error { return c.err }

// Start begins a run in the background. It is allowed from Stopped and
// Finished; a previous run must have wound down first.
func (c *Controller) Start(ctx context.Context) error {
	if c.state == StateStarted || c.busy {
		return ErrAlreadyRunning
	}
	c.run = runSeq.Add(1)
	c.state = StateStarted
	c.busy = true
	c.summary, c.err = nil, nil
	c.job.resume()

	run := c.run
	post := c.post
	hooks := Hooks{
		Before: func(index, total int, item cloudpath.Path) {
			if h := c.job.cfg.Hooks.Before; h != nil {
				h(index, total, item)
			}
			post(ItemStarted{Run: run, Index: index, Total: total, Item: item})
		},
		After: func(index, total int, item cloudpath.Path, err error) {
			if h := c.job.cfg.Hooks.After; h != nil {
				h(index, total, item, err)
			}
			post(ItemDone{Run: run, Index: index, Total: total, Item: item, Err: err})
		},
	}
	c.log.Debug("bulk operation started", zap.String("job_id", c.job.ID()), zap.Uint64("run", run))
	go func() {
		sum, err := c.job.run(ctx, hooks)
		post(Done{Run: run, Summary: sum, Err: err})
	}()
	return nil
}

// Stop requests a cooperative stop and moves to Stopped. It is a no-op
// unless a run is in progress.
func (c *Controller) Stop() {
	if c.state != StateStarted {
		return
	}
	c.state = StateStopped
	c.job.Stop()
	c.log.Debug("bulk operation stop requested", zap.String("job_id", c.job.ID()))
}

// Close tears the controller down. A running job is asked to stop; the
// worker is not waited for.
func (c *Controller) Close() {
	c.Stop()
}

// Handle applies a worker event and reports whether it belongs to the
// current run.
func (c *Controller) Handle(ev Event) bool {
	switch e := ev.(type) {
	case ItemStarted:
		return e.Run == c.run && c.state == StateStarted
	case ItemDone:
		return e.Run == c.run && c.state == StateStarted
	case Done:
		if e.Run != c.run {
			return false
		}
		c.busy = false
		c.summary, c.err = e.Summary, e.Err
		if c.state != StateStarted {
			return true
		}
		if e.Err != nil || (e.Summary != nil && e.Summary.Stopped) {
			c.state = StateStopped
		} else {
			c.state = StateFinished
		}
		return true
	default:
		return false
	}
}

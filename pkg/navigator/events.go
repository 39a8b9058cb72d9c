package navigator

import (
	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Event is an immutable message posted by background work. Events are
// applied by Navigator.Handle on the goroutine that owns the navigator.
type Event interface {
	event()
}

// Loaded carries a fresh listing for Location.
type Loaded struct {
	Location   cloudpath.Path
	Generation uint64
	Entries    []cloudpath.Path
}

// Failed carries the error of a background listing of Location.
type Failed struct {
	Location   cloudpath.Path
	Generation uint64
	Err        error
}

func (Loaded) event() {}
func (Failed) event() {}

// AccessForbidden is signalled when the credentials cannot read Location.
type AccessForbidden struct {
	// Path is the heading of the location that was refused.
	Path     string
	Location cloudpath.Path
	Err      error
}

func (e *AccessForbidden) Error() string { return "forbidden to access: " + e.Path }
func (e *AccessForbidden) Unwrap() error { return e.Err }

// InvalidProject is signalled when the active project or profile does not exist.
type InvalidProject struct {
	Project string
	Err     error
}

func (e *InvalidProject) Error() string { return "invalid project name: " + e.Project }
func (e *InvalidProject) Unwrap() error { return e.Err }

// ListingFailed is signalled when a location with nothing cached could not
// be listed.
type ListingFailed struct {
	Location cloudpath.Path
	Err      error
}

func (e *ListingFailed) Error() string { return "listing " + e.Location.String() + ": " + e.Err.Error() }
func (e *ListingFailed) Unwrap() error { return e.Err }

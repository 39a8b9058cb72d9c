// Package output provides JSONL output for non-interactive commands.
//
// Output is structured as typed record envelopes containing listing
// entries, transfer results, errors and summaries. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: nimbusurf.<type>.v<version>
const (
	// TypeEntry identifies listing entry records.
	TypeEntry = "nimbusurf.entry.v1"

	// TypeError identifies error records.
	TypeError = "nimbusurf.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "nimbusurf.progress.v1"

	// TypeTransfer identifies per-object download/delete records.
	TypeTransfer = "nimbusurf.transfer.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "nimbusurf.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "nimbusurf.entry.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID is the correlation ID for this command run.
	JobID string `json:"job_id"`

	// Provider identifies the storage scheme (e.g., "s3", "gs").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// Entry kinds.
const (
	KindBucket = "bucket"
	KindPrefix = "prefix"
	KindBlob   = "blob"
)

// EntryRecord is one row of a listing.
type EntryRecord struct {
	// URI is the full address, e.g. "gs://bucket/dir/file.txt".
	URI string `json:"uri"`

	// Name is the label within the parent listing.
	Name string `json:"name"`

	// Kind is one of KindBucket, KindPrefix or KindBlob.
	Kind string `json:"kind"`

	// Size is the blob size in bytes; omitted for containers.
	Size *int64 `json:"size,omitempty"`

	// Updated is the blob modification time, when known.
	Updated *time.Time `json:"updated,omitempty"`
}

// ErrorRecord is the data payload for errors.
//
// Errors are emitted as records rather than failing the entire command,
// allowing partial results when some operations fail.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// URI is the location related to this error, if applicable.
	URI string `json:"uri,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission or authentication failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeInvalidConfiguration indicates an unknown project or profile.
	ErrCodeInvalidConfiguration = "INVALID_CONFIGURATION"

	// ErrCodeCancelled indicates the operation was cancelled.
	ErrCodeCancelled = "CANCELLED"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeProviderUnavailable indicates the provider service is unavailable.
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ProgressRecord is the data payload for progress updates of bulk
// operations.
type ProgressRecord struct {
	// Phase indicates the current phase.
	Phase string `json:"phase"`

	// Op is the bulk operation ("download" or "delete").
	Op string `json:"op"`

	// Done is the number of items processed so far.
	Done int `json:"done"`

	// Total is the number of items in the work list.
	Total int `json:"total"`

	// URI is the item being processed, if applicable.
	URI string `json:"uri,omitempty"`
}

// Progress phase constants.
const (
	// PhaseEnumerating indicates the work list is being resolved.
	PhaseEnumerating = "enumerating"

	// PhaseRunning indicates items are being processed.
	PhaseRunning = "running"

	// PhaseComplete indicates the operation has finished.
	PhaseComplete = "complete"
)

// TransferRecord reports one processed object.
type TransferRecord struct {
	// Op is "download" or "delete".
	Op string `json:"op"`

	// URI is the object address.
	URI string `json:"uri"`

	// Dest is the local path written by a download.
	Dest string `json:"dest,omitempty"`

	// Bytes is the object size, when known.
	Bytes int64 `json:"bytes"`
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Op is the bulk operation, or "ls".
	Op string `json:"op"`

	// Total is the number of items in the work list.
	Total int64 `json:"total"`

	// Done is the number of items completed.
	Done int64 `json:"done"`

	// Failed is the number of items that failed.
	Failed int64 `json:"failed"`

	// Skipped is the number of items skipped (e.g. vanished before download).
	Skipped int64 `json:"skipped"`

	// Bytes is the cumulative size of completed items.
	Bytes int64 `json:"bytes"`

	// Stopped reports a cooperative stop before the work list was exhausted.
	Stopped bool `json:"stopped"`

	// Duration is the total duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

package match

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/3leaps/nimbusurf/pkg/cloudpath"
)

// Filter evaluates whether a blob passes a metadata constraint.
//
// Filters only see what a listing returns (key, size and modification
// time). A blob whose metadata is unknown passes size and date filters.
type Filter interface {
	Match(blob cloudpath.Path) bool
	String() string
}

// Config holds selection criteria, typically from CLI flags.
type Config struct {
	// Includes are glob patterns a relative key must match (any).
	Includes []string

	// Excludes are glob patterns a relative key must not match.
	Excludes []string

	// MinSize and MaxSize are inclusive bounds such as "1KB" or "100MiB".
	MinSize string
	MaxSize string

	// After (inclusive) and Before (exclusive) bound the modification time.
	// Accepts "2024-01-15" or RFC 3339.
	After  string
	Before string

	// KeyRegex is applied to the full object key.
	KeyRegex string
}

// Empty reports whether cfg selects everything.
func (cfg Config) Empty() bool {
	return len(cfg.Includes) == 0 && len(cfg.Excludes) == 0 &&
		cfg.MinSize == "" && cfg.MaxSize == "" &&
		cfg.After == "" && cfg.Before == "" && cfg.KeyRegex == ""
}

// SizeFilter filters blobs by size range.
type SizeFilter struct {
	min int64 // -1 means no minimum
	max int64 // -1 means no maximum
}

// NewSizeFilter returns nil when neither bound is set.
func NewSizeFilter(minSize, maxSize string) (*SizeFilter, error) {
	if minSize == "" && maxSize == "" {
		return nil, nil
	}
	f := &SizeFilter{min: -1, max: -1}
	var err error
	if minSize != "" {
		if f.min, err = ParseSize(minSize); err != nil {
			return nil, fmt.Errorf("min size: %w", err)
		}
	}
	if maxSize != "" {
		if f.max, err = ParseSize(maxSize); err != nil {
			return nil, fmt.Errorf("max size: %w", err)
		}
	}
	if f.min >= 0 && f.max >= 0 && f.min > f.max {
		return nil, fmt.Errorf("%w: min (%d) > max (%d)", ErrInvalidSize, f.min, f.max)
	}
	return f, nil
}

// Match returns true if the blob size is within range.
func (f *SizeFilter) Match(blob cloudpath.Path) bool {
	size, ok := blob.Size()
	if !ok {
		return true
	}
	if f.min >= 0 && size < f.min {
		return false
	}
	if f.max >= 0 && size > f.max {
		return false
	}
	return true
}

func (f *SizeFilter) String() string {
	switch {
	case f.min >= 0 && f.max >= 0:
		return fmt.Sprintf("size: %s - %s", FormatSize(f.min), FormatSize(f.max))
	case f.min >= 0:
		return fmt.Sprintf("size: >= %s", FormatSize(f.min))
	default:
		return fmt.Sprintf("size: <= %s", FormatSize(f.max))
	}
}

// DateFilter filters blobs by modification time.
type DateFilter struct {
	after  time.Time // zero means no after constraint
	before time.Time // zero means no before constraint
}

// NewDateFilter returns nil when neither bound is set.
func NewDateFilter(after, before string) (*DateFilter, error) {
	if after == "" && before == "" {
		return nil, nil
	}
	f := &DateFilter{}
	var err error
	if after != "" {
		if f.after, err = ParseDate(after); err != nil {
			return nil, fmt.Errorf("after date: %w", err)
		}
	}
	if before != "" {
		if f.before, err = ParseDate(before); err != nil {
			return nil, fmt.Errorf("before date: %w", err)
		}
	}
	if !f.after.IsZero() && !f.before.IsZero() && !f.after.Before(f.before) {
		return nil, fmt.Errorf("%w: after (%s) >= before (%s)", ErrInvalidDate, f.after, f.before)
	}
	return f, nil
}

// Match returns true if the modification time is within range.
func (f *DateFilter) Match(blob cloudpath.Path) bool {
	updated, ok := blob.UpdatedAt()
	if !ok {
		return true
	}
	if !f.after.IsZero() && updated.Before(f.after) {
		return false
	}
	if !f.before.IsZero() && !updated.Before(f.before) {
		return false
	}
	return true
}

func (f *DateFilter) String() string {
	switch {
	case !f.after.IsZero() && !f.before.IsZero():
		return fmt.Sprintf("modified: %s to %s", f.after.Format(time.DateOnly), f.before.Format(time.DateOnly))
	case !f.after.IsZero():
		return fmt.Sprintf("modified: on/after %s", f.after.Format(time.DateOnly))
	default:
		return fmt.Sprintf("modified: before %s", f.before.Format(time.DateOnly))
	}
}

// RegexFilter filters blobs by full object key.
type RegexFilter struct {
	pattern *regexp.Regexp
}

// NewRegexFilter returns nil when pattern is empty.
func NewRegexFilter(pattern string) (*RegexFilter, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
	}
	return &RegexFilter{pattern: re}, nil
}

func (f *RegexFilter) Match(blob cloudpath.Path) bool {
	return f.pattern.MatchString(blob.FullPrefix())
}

func (f *RegexFilter) String() string {
	return "key_regex: " + f.pattern.String()
}

// Selector combines a Matcher with metadata filters (AND semantics). A nil
// Selector selects everything.
type Selector struct {
	matcher *Matcher
	filters []Filter
}

// New builds a Selector from cfg. It returns nil for an empty Config.
func New(cfg Config) (*Selector, error) {
	if cfg.Empty() {
		return nil, nil
	}
	m, err := NewMatcher(cfg.Includes, cfg.Excludes)
	if err != nil {
		return nil, err
	}
	s := &Selector{matcher: m}

	size, err := NewSizeFilter(cfg.MinSize, cfg.MaxSize)
	if err != nil {
		return nil, err
	}
	if size != nil {
		s.filters = append(s.filters, size)
	}
	date, err := NewDateFilter(cfg.After, cfg.Before)
	if err != nil {
		return nil, err
	}
	if date != nil {
		s.filters = append(s.filters, date)
	}
	re, err := NewRegexFilter(cfg.KeyRegex)
	if err != nil {
		return nil, err
	}
	if re != nil {
		s.filters = append(s.filters, re)
	}
	return s, nil
}

// Match reports whether blob is selected. rel is its key relative to the
// transfer target.
func (s *Selector) Match(rel string, blob cloudpath.Path) bool {
	if s == nil {
		return true
	}
	if !s.matcher.Match(rel) {
		return false
	}
	for _, f := range s.filters {
		if !f.Match(blob) {
			return false
		}
	}
	return true
}

// String describes the selection, e.g. for log lines.
func (s *Selector) String() string {
	if s == nil {
		return "all"
	}
	var parts []string
	if inc := s.matcher.IncludePatterns(); len(inc) > 0 {
		parts = append(parts, "include: "+strings.Join(inc, ","))
	}
	if exc := s.matcher.ExcludePatterns(); len(exc) > 0 {
		parts = append(parts, "exclude: "+strings.Join(exc, ","))
	}
	for _, f := range s.filters {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "; ")
}

// ParseSize parses a human-readable size. Both SI ("1KB" = 1000) and IEC
// ("1KiB" = 1024) units are accepted; a bare number is bytes.
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidSize, s)
	}
	return int64(n), nil
}

// FormatSize renders bytes with IEC units.
func FormatSize(n int64) string {
	return humanize.IBytes(uint64(n))
}

// ParseDate parses "2024-01-15" (start of day UTC) or an RFC 3339 time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

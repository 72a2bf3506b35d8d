package logindex

import (
	"fmt"
	"regexp"
	"time"

	"github.com/TimelordUK/mview/pkg/logformat"
)

// MaxFilters caps the number of registered predicates; each one owns a
// bit in the per-line filter mask.
const MaxFilters = 32

// FilterKind says whether a predicate admits or rejects matches.
type FilterKind int

const (
	FilterIn FilterKind = iota
	FilterOut
)

// TextFilter is one registered predicate over whole line bodies.
type TextFilter struct {
	index   int
	kind    FilterKind
	enabled bool
	pattern string
	re      *regexp.Regexp
}

// Index returns the filter's stable slot, i.e. its mask bit.
func (f *TextFilter) Index() int { return f.index }

// Kind returns whether the filter is IN or OUT.
func (f *TextFilter) Kind() FilterKind { return f.kind }

// Enabled reports whether the filter participates in masks.
func (f *TextFilter) Enabled() bool { return f.enabled }

// Pattern returns the source pattern text.
func (f *TextFilter) Pattern() string { return f.pattern }

// Matches tests the predicate against a line body.
func (f *TextFilter) Matches(body []byte) bool {
	return f.re.Match(body)
}

// FilterSet holds the registered predicates plus the extra filters
// that cannot be precomputed into the per-line mask.
type FilterSet struct {
	filters [MaxFilters]*TextFilter

	// Extra filters, tested lazily against line metadata. They must
	// stay idempotent and side-effect free.
	MinLevel   logformat.Level
	MarkedOnly bool
	MinTime    time.Time
	MaxTime    time.Time

	// Generation is bumped on every mutation so observers can tell
	// when the filtered projection needs rebuilding.
	Generation uint64
}

// NewFilterSet creates an empty filter set.
func NewFilterSet() *FilterSet {
	return &FilterSet{}
}

// Add registers a predicate in the first free slot, enabled.
// Patterns that fail to compile are rejected.
func (s *FilterSet) Add(kind FilterKind, pattern string) (*TextFilter, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("bad filter pattern %q: %w", pattern, err)
	}

	for i := 0; i < MaxFilters; i++ {
		if s.filters[i] != nil {
			continue
		}
		f := &TextFilter{
			index:   i,
			kind:    kind,
			enabled: true,
			pattern: pattern,
			re:      re,
		}
		s.filters[i] = f
		s.Generation++
		return f, nil
	}

	return nil, fmt.Errorf("filter limit of %d reached", MaxFilters)
}

// Remove unregisters a predicate. Its slot becomes free but the bits
// it left behind in filter states must be cleared by the caller.
func (s *FilterSet) Remove(index int) {
	if index >= 0 && index < MaxFilters && s.filters[index] != nil {
		s.filters[index] = nil
		s.Generation++
	}
}

// SetEnabled toggles a predicate without dropping its slot.
func (s *FilterSet) SetEnabled(index int, enabled bool) {
	if index >= 0 && index < MaxFilters && s.filters[index] != nil {
		if s.filters[index].enabled != enabled {
			s.filters[index].enabled = enabled
			s.Generation++
		}
	}
}

// Filters returns the registered predicates in slot order.
func (s *FilterSet) Filters() []*TextFilter {
	out := make([]*TextFilter, 0, MaxFilters)
	for _, f := range s.filters {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// EnabledMask returns the bit masks of enabled IN and OUT predicates.
func (s *FilterSet) EnabledMask() (in, out uint32) {
	for i, f := range s.filters {
		if f == nil || !f.enabled {
			continue
		}
		if f.kind == FilterIn {
			in |= 1 << uint(i)
		} else {
			out |= 1 << uint(i)
		}
	}
	return in, out
}

// MatchMask evaluates every enabled predicate against a line body and
// returns the bit pattern of those that matched.
func (s *FilterSet) MatchMask(body []byte) uint32 {
	var mask uint32
	for i, f := range s.filters {
		if f == nil || !f.enabled {
			continue
		}
		if f.Matches(body) {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// registeredMask returns the bits of all occupied slots.
func (s *FilterSet) registeredMask() uint32 {
	var mask uint32
	for i, f := range s.filters {
		if f != nil {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

// HasTimeWindow reports whether a min or max time is active.
func (s *FilterSet) HasTimeWindow() bool {
	return !s.MinTime.IsZero() || !s.MaxTime.IsZero()
}

// ClearTimeWindow removes the min/max time extra filters.
func (s *FilterSet) ClearTimeWindow() {
	s.MinTime = time.Time{}
	s.MaxTime = time.Time{}
	s.Generation++
}

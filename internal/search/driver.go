package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ReverseSearchOffset is how many rows before the current top a new
// search begins, so scrolling back lands on already-found matches.
const ReverseSearchOffset = 2000

// RowSource yields row text for the grep workers. Implementations
// must tolerate concurrent reads while the view thread appends rows;
// rows never mutate in place.
type RowSource interface {
	RowCount() int
	RowText(row int) (string, error)
}

// Match is one search hit, in view-row coordinates.
type Match struct {
	Row   int
	Start int
	End   int
}

// Driver orchestrates one grep worker per executed pattern. Workers
// only write to the pending queue; the view thread drains it before
// each redraw and posts hits into its bookmark store.
type Driver struct {
	src RowSource

	mu      sync.Mutex
	pending []Match

	re          *regexp.Regexp
	lastPattern string
	searchedTo  int

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewDriver creates a driver over a row source.
func NewDriver(src RowSource) *Driver {
	return &Driver{src: src}
}

// Execute starts a search for pattern with the view currently at top.
// A pattern that fails to compile degrades to a quoted literal; if
// that fails too the search state is left empty and the error
// surfaces to the caller.
func (d *Driver) Execute(pattern string, top int) error {
	if pattern == d.lastPattern && d.re != nil {
		return nil
	}

	d.Stop()
	d.mu.Lock()
	d.pending = nil
	d.mu.Unlock()

	d.re = nil
	d.lastPattern = pattern
	if pattern == "" {
		return nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		quoted := regexp.QuoteMeta(pattern)
		slog.Info("invalid search regex, using quoted", "pattern", quoted)
		re, err = regexp.Compile("(?i)" + quoted)
		if err != nil {
			return fmt.Errorf("compile search %q: %w", pattern, err)
		}
	}
	d.re = re

	start := top - ReverseSearchOffset
	if start < 0 {
		start = 0
	}
	end := d.src.RowCount()
	d.searchedTo = end

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	d.cancel = cancel
	d.group = group

	group.Go(func() error {
		if err := d.scanRange(ctx, re, start, end); err != nil {
			return err
		}
		// Wrap around for the rows above the starting point.
		return d.scanRange(ctx, re, 0, start)
	})

	return nil
}

// SearchNewData scans only the rows appended since the last pass.
func (d *Driver) SearchNewData() {
	if d.re == nil || d.group == nil {
		return
	}

	start := d.searchedTo
	end := d.src.RowCount()
	if start >= end {
		return
	}
	d.searchedTo = end

	re := d.re
	d.group.Go(func() error {
		return d.scanRange(context.Background(), re, start, end)
	})
}

// RedoSearch re-runs the current pattern from scratch, used after a
// full index rebuild invalidates row numbers.
func (d *Driver) RedoSearch(top int) {
	pattern := d.lastPattern
	d.lastPattern = ""
	if pattern != "" {
		if err := d.Execute(pattern, top); err != nil {
			slog.Error("search redo failed", "error", err)
		}
	}
}

// Drain returns and clears the pending matches. Called on the view
// thread before each redraw.
func (d *Driver) Drain() []Match {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pending
	d.pending = nil
	return out
}

// Stop cancels the in-flight worker and waits for it to exit.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
		d.group.Wait()
		d.cancel = nil
		d.group = nil
	}
}

// Regexp returns the compiled pattern, shared read-only with the
// view's highlighter.
func (d *Driver) Regexp() *regexp.Regexp {
	return d.re
}

// Pattern returns the last executed pattern text.
func (d *Driver) Pattern() string {
	return d.lastPattern
}

func (d *Driver) scanRange(ctx context.Context, re *regexp.Regexp, start, end int) error {
	for row := start; row < end; row++ {
		if row%256 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		text, err := d.src.RowText(row)
		if err != nil {
			continue
		}
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}

		d.mu.Lock()
		d.pending = append(d.pending, Match{Row: row, Start: loc[0], End: loc[1]})
		d.mu.Unlock()
	}
	return nil
}

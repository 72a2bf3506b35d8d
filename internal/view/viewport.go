package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/TimelordUK/mview/internal/config"
	"github.com/TimelordUK/mview/internal/logindex"
	"github.com/TimelordUK/mview/internal/render"
	"github.com/TimelordUK/mview/internal/search"
	"github.com/TimelordUK/mview/pkg/logformat"
)

// Viewport is the scrolling surface over the filtered index. It
// implements the View capability the indexer calls back into and the
// RowSource the search workers read.
type Viewport struct {
	idx       *logindex.Indexer
	renderer  *render.Renderer
	driver    *search.Driver
	bookmarks *logindex.BookmarkStore

	matchStyle lipgloss.Style

	width  int
	height int
	top    int

	paused    bool
	following bool
	flags     render.Flags
}

// NewViewport creates a viewport bound to an indexer and theme.
func NewViewport(idx *logindex.Indexer, cfg *config.Config, width, height int) *Viewport {
	return &Viewport{
		idx:        idx,
		bookmarks:  logindex.NewBookmarkStore(),
		matchStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.SearchMatch)).Bold(true),
		width:      width,
		height:     height,
	}
}

// SetRenderer installs the line renderer.
func (v *Viewport) SetRenderer(r *render.Renderer) { v.renderer = r }

// SetSearchDriver installs the search driver the view relays
// redo/new-data requests to.
func (v *Viewport) SetSearchDriver(d *search.Driver) { v.driver = d }

// IsPaused reports whether indexing should skip file observation.
func (v *Viewport) IsPaused() bool { return v.paused }

// SetPaused toggles observation.
func (v *Viewport) SetPaused(paused bool) { v.paused = paused }

// Top returns the first visible row.
func (v *Viewport) Top() int { return v.top }

// Bottom returns the last visible row.
func (v *Viewport) Bottom() int {
	bottom := v.top + v.height - 1
	if last := v.idx.RowCount() - 1; bottom > last {
		bottom = last
	}
	return bottom
}

// Bookmarks returns the view's bookmark store.
func (v *Viewport) Bookmarks() *logindex.BookmarkStore { return v.bookmarks }

// RedoSearch re-runs the active search from scratch.
func (v *Viewport) RedoSearch() {
	v.bookmarks.Get(logindex.BookmarkSearch).Clear()
	if v.driver != nil {
		v.driver.RedoSearch(v.top)
	}
}

// SearchNewData extends the active search over appended rows.
func (v *Viewport) SearchNewData() {
	if v.driver != nil {
		v.driver.SearchNewData()
	}
}

// ReloadData refreshes row-keyed state after the projection changed.
func (v *Viewport) ReloadData() {
	v.idx.UpdateMarks(v.bookmarks)
	v.clamp()
}

// RowCount implements search.RowSource.
func (v *Viewport) RowCount() int { return v.idx.RowCount() }

// RowText implements search.RowSource: the raw line body for a row.
func (v *Viewport) RowText(row int) (string, error) {
	if row < 0 || row >= v.idx.RowCount() {
		return "", fmt.Errorf("row %d out of range", row)
	}
	f, n := v.idx.Find(v.idx.At(row))
	if f == nil {
		return "", fmt.Errorf("row %d: file gone", row)
	}
	body, err := f.ReadLine(n)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DrainMatches folds pending search hits into the bookmark store.
// Called on the view thread before each redraw.
func (v *Viewport) DrainMatches() int {
	if v.driver == nil {
		return 0
	}
	matches := v.driver.Drain()
	set := v.bookmarks.Get(logindex.BookmarkSearch)
	for _, m := range matches {
		if m.Row < v.idx.RowCount() {
			set.InsertOnce(m.Row)
		}
	}
	return len(matches)
}

// SetSize updates the dimensions.
func (v *Viewport) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.clamp()
}

// Flags returns the current render flags.
func (v *Viewport) Flags() render.Flags { return v.flags }

// ToggleFlag flips a render flag.
func (v *Viewport) ToggleFlag(f render.Flags) {
	v.flags ^= f
}

// Following reports whether the view pins to the newest row.
func (v *Viewport) Following() bool { return v.following }

// SetFollowing toggles follow mode.
func (v *Viewport) SetFollowing(on bool) {
	v.following = on
	if on {
		v.GotoBottom()
	}
}

// ScrollDown moves down n rows.
func (v *Viewport) ScrollDown(n int) {
	v.top += n
	v.clamp()
}

// ScrollUp moves up n rows.
func (v *Viewport) ScrollUp(n int) {
	v.top -= n
	v.clamp()
}

// PageDown moves down one page.
func (v *Viewport) PageDown() { v.ScrollDown(v.height - 1) }

// PageUp moves up one page.
func (v *Viewport) PageUp() { v.ScrollUp(v.height - 1) }

// GotoTop jumps to the first row.
func (v *Viewport) GotoTop() { v.top = 0 }

// GotoBottom jumps so the last row is visible.
func (v *Viewport) GotoBottom() {
	v.top = v.idx.RowCount() - v.height
	v.clamp()
}

// GotoRow jumps to a specific row.
func (v *Viewport) GotoRow(row int) {
	v.top = row
	v.clamp()
}

// NextMatch jumps to the next search hit after the top.
func (v *Viewport) NextMatch() {
	if next := v.bookmarks.Get(logindex.BookmarkSearch).Next(v.top); next >= 0 {
		v.GotoRow(next)
	}
}

// PrevMatch jumps to the previous search hit before the top.
func (v *Viewport) PrevMatch() {
	if prev := v.bookmarks.Get(logindex.BookmarkSearch).Prev(v.top); prev >= 0 {
		v.GotoRow(prev)
	}
}

func (v *Viewport) clamp() {
	maxTop := v.idx.RowCount() - v.height
	if maxTop < 0 {
		maxTop = 0
	}
	if v.top > maxTop {
		v.top = maxTop
	}
	if v.top < 0 {
		v.top = 0
	}
}

// Render draws the visible rows.
func (v *Viewport) Render() string {
	if v.following {
		v.GotoBottom()
	}

	var sb strings.Builder
	count := v.idx.RowCount()

	for i := 0; i < v.height; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}

		row := v.top + i
		if row >= count {
			sb.WriteByte('~')
			continue
		}

		rendered, err := v.renderer.Row(row, v.flags, v.bookmarks)
		if err != nil {
			sb.WriteString(fmt.Sprintf("error: %v", err))
			continue
		}

		sb.WriteString(v.styleRow(rendered))
	}

	return sb.String()
}

// styleRow flattens a rendered row's style spans plus search match
// highlights into one ANSI string and drops in the boundary glyph.
func (v *Viewport) styleRow(r *render.RenderedRow) string {
	text := r.Text
	spans := r.Spans

	if v.flags&render.FlagRaw == 0 && v.driver != nil {
		if re := v.driver.Regexp(); re != nil {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				spans = append(spans, render.StyleSpan{
					Range: logformat.Range{Start: loc[0], End: loc[1]},
					Style: v.matchStyle,
				})
			}
		}
	}

	if len(spans) == 0 && r.Glyph == 0 {
		return text
	}

	// Later spans win where they overlap.
	styles := make([]*lipgloss.Style, len(text))
	for si := range spans {
		start, end := spans[si].Range.Start, spans[si].Range.End
		if end < 0 || end > len(text) {
			end = len(text)
		}
		if start < 0 {
			start = 0
		}
		for b := start; b < end; b++ {
			styles[b] = &spans[si].Style
		}
	}

	glyphBytes := []byte(text)
	if r.Glyph != 0 && r.GlyphCol >= 0 && r.GlyphCol < len(glyphBytes) {
		// The glyph column was reserved as a single space.
		out := make([]byte, 0, len(glyphBytes)+3)
		out = append(out, glyphBytes[:r.GlyphCol]...)
		out = append(out, []byte(string(r.Glyph))...)
		glyphInserted := len([]byte(string(r.Glyph))) - 1
		out = append(out, glyphBytes[r.GlyphCol+1:]...)
		if glyphInserted > 0 {
			// Styles are byte-indexed; pad the glyph's extra bytes.
			padded := make([]*lipgloss.Style, 0, len(styles)+glyphInserted)
			padded = append(padded, styles[:r.GlyphCol+1]...)
			for i := 0; i < glyphInserted; i++ {
				padded = append(padded, styles[r.GlyphCol])
			}
			padded = append(padded, styles[r.GlyphCol+1:]...)
			styles = padded
		}
		glyphBytes = out
	}

	var sb strings.Builder
	runStart := 0
	var runStyle *lipgloss.Style
	flush := func(end int) {
		if end <= runStart {
			return
		}
		segment := string(glyphBytes[runStart:end])
		if runStyle != nil {
			sb.WriteString(runStyle.Render(segment))
		} else {
			sb.WriteString(segment)
		}
	}
	for b := 0; b < len(glyphBytes); b++ {
		var s *lipgloss.Style
		if b < len(styles) {
			s = styles[b]
		}
		if s != runStyle {
			flush(b)
			runStart = b
			runStyle = s
		}
	}
	flush(len(glyphBytes))

	return sb.String()
}

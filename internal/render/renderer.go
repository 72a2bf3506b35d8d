package render

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/TimelordUK/mview/internal/config"
	"github.com/TimelordUK/mview/internal/logindex"
	"github.com/TimelordUK/mview/pkg/logformat"
)

// Flags select how a row is materialized.
type Flags uint32

const (
	// FlagRaw emits the line body verbatim with no attributes.
	FlagRaw Flags = 1 << iota
	// FlagFull materializes the whole multi-line message.
	FlagFull
	// FlagScrub strips terminal escapes via the format.
	FlagScrub
	// FlagRewrite lets the format re-render field values.
	FlagRewrite
)

// timeOffsetWidth is the offset column: 12 chars of duration plus the
// bar glyph.
const timeOffsetWidth = 13

// StyleSpan styles a byte range of the final row text.
type StyleSpan struct {
	Range logformat.Range
	Style lipgloss.Style
}

// RenderedRow is a materialized view row: final text, semantic attrs
// in final coordinates, and style overlays.
type RenderedRow struct {
	Text   string
	Attrs  []logformat.Attr
	Values []logformat.Value
	Spans  []StyleSpan

	Glyph      rune
	GlyphCol   int
	ShiftStart int
	ShiftSize  int

	Meta      *logindex.Metadata
	Partition *logindex.Metadata
}

// Renderer materializes rows of the filtered index for the view.
type Renderer struct {
	idx   *logindex.Indexer
	theme *config.ThemeConfig

	ShowFilename   bool
	ShowBasename   bool
	ShowTimeOffset bool

	levelStyles   map[logformat.Level]lipgloss.Style
	identStyles   []lipgloss.Style
	offsetStyle   lipgloss.Style
	adjustedStyle lipgloss.Style
	skewedStyle   lipgloss.Style
	altRowStyle   lipgloss.Style
	accelUpStyle  lipgloss.Style
	accelDnStyle  lipgloss.Style
	searchStyle   lipgloss.Style
	boundaryStyle lipgloss.Style

	syntax map[string]*SyntaxRenderer
}

// New creates a renderer bound to an indexer and theme.
func New(idx *logindex.Indexer, cfg *config.Config) *Renderer {
	theme := &cfg.Theme
	fg := func(c string) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(c))
	}

	r := &Renderer{
		idx:            idx,
		theme:          theme,
		ShowFilename:   cfg.Display.ShowFilename,
		ShowBasename:   cfg.Display.ShowBasename,
		ShowTimeOffset: cfg.Display.ShowTimeOffset,
		offsetStyle:    fg(theme.OffsetTime),
		adjustedStyle:  fg(theme.AdjustedTime),
		skewedStyle:    fg(theme.SkewedTime),
		altRowStyle:    fg(theme.AltRow),
		accelUpStyle:   fg(theme.AccelUp),
		accelDnStyle:   fg(theme.AccelDown),
		searchStyle:    lipgloss.NewStyle().Reverse(true),
		boundaryStyle:  fg(theme.FileBoundary),
		syntax:         make(map[string]*SyntaxRenderer),
		levelStyles: map[logformat.Level]lipgloss.Style{
			logformat.LevelUnknown:  lipgloss.NewStyle(),
			logformat.LevelTrace:    fg(theme.Levels.Trace),
			logformat.LevelDebug:    fg(theme.Levels.Debug),
			logformat.LevelInfo:     fg(theme.Levels.Info),
			logformat.LevelStats:    fg(theme.Levels.Stats),
			logformat.LevelNotice:   fg(theme.Levels.Notice),
			logformat.LevelWarning:  fg(theme.Levels.Warn),
			logformat.LevelError:    fg(theme.Levels.Error),
			logformat.LevelCritical: fg(theme.Levels.Critical),
			logformat.LevelFatal:    fg(theme.Levels.Fatal),
		},
	}

	for _, c := range theme.IdentPalette {
		r.identStyles = append(r.identStyles, fg(c))
	}
	if len(r.identStyles) == 0 {
		r.identStyles = []lipgloss.Style{lipgloss.NewStyle()}
	}

	return r
}

// Row materializes one view row.
func (r *Renderer) Row(row int, flags Flags, bm *logindex.BookmarkStore) (*RenderedRow, error) {
	cl := r.idx.At(row)
	file, lineNo := r.idx.Find(cl)
	if file == nil {
		return nil, fmt.Errorf("row %d: file for slot %d is gone", row, cl.Slot())
	}
	line := file.LineAt(lineNo)
	format := file.Format()

	if flags&FlagRaw != 0 {
		body, err := file.ReadLine(lineNo)
		if err != nil {
			return nil, err
		}
		return &RenderedRow{Text: string(body)}, nil
	}

	var text string
	if flags&FlagFull != 0 {
		msg, err := file.ReadFullMessage(lineNo)
		if err != nil {
			return nil, err
		}
		text = msg
	} else {
		body, err := file.ReadLine(lineNo)
		if err != nil {
			return nil, err
		}
		text = string(body)
	}

	if flags&FlagScrub != 0 {
		text = format.Scrub(text)
	}

	if format.Name() == "plain" {
		return r.plainRow(row, cl, file, text, bm)
	}

	attrs, values := format.Annotate([]byte(text))
	if line.SubOffset() != 0 && flags&FlagFull == 0 {
		attrs = nil
	}
	if flags&FlagRewrite != 0 {
		text = format.Rewrite(text, values)
	}

	out := &RenderedRow{Text: text, Attrs: attrs, Values: values}

	r.rewriteTimestamp(out, file, line, format)
	prefixLen := r.applyPrefix(out, file)
	if r.ShowTimeOffset {
		r.applyTimeOffset(out, row, line, bm)
		prefixLen += timeOffsetWidth
	}

	r.applyStyles(out, row, line, prefixLen, bm)
	out.Glyph = r.boundaryGlyph(row, bm)
	out.GlyphCol = prefixLen - 1
	r.applyMeta(out, row, cl, bm)

	return out, nil
}

// plainRow materializes a row of a file with no log structure: the
// body is syntax highlighted by filename instead of annotated. The
// highlighted text carries its own escapes, so no style spans are
// layered over it; the prefix and glyph columns still apply.
func (r *Renderer) plainRow(row int, cl logindex.ContentLine, file logindex.LogFile, text string, bm *logindex.BookmarkStore) (*RenderedRow, error) {
	out := &RenderedRow{Text: r.syntaxFor(file.Filename()).Render(text)}

	prefixLen := r.applyPrefix(out, file)
	out.Glyph = r.boundaryGlyph(row, bm)
	out.GlyphCol = prefixLen - 1
	r.applyMeta(out, row, cl, bm)

	return out, nil
}

// syntaxFor returns the cached highlighter for a filename.
func (r *Renderer) syntaxFor(filename string) *SyntaxRenderer {
	hl, ok := r.syntax[filename]
	if !ok {
		hl = NewSyntaxRenderer(filename)
		r.syntax[filename] = hl
	}
	return hl
}

// rewriteTimestamp reformats the native timestamp range to the
// canonical form when the file clock is adjusted or the native form is
// machine oriented. Later attrs shift uniformly by the size change.
func (r *Renderer) rewriteTimestamp(out *RenderedRow, file logindex.LogFile, line logindex.Line, format logformat.Format) {
	if !file.IsTimeAdjusted() && !format.MachineOriented() {
		return
	}

	var tsRange logformat.Range
	found := false
	for _, a := range out.Attrs {
		if a.Kind == logformat.AttrTimestamp {
			tsRange = a.Range
			found = true
			break
		}
	}
	if !found {
		return
	}

	canonical := logformat.FormatCanonical(line.Time())
	origLen := tsRange.Length()
	out.Text = out.Text[:tsRange.Start] + canonical + out.Text[tsRange.Start+origLen:]

	out.ShiftStart = tsRange.Start
	out.ShiftSize = len(canonical) - origLen
	if out.ShiftSize != 0 {
		r.shiftFrom(out, tsRange.Start+1, out.ShiftSize)
	}

	for i := range out.Attrs {
		if out.Attrs[i].Kind == logformat.AttrTimestamp {
			out.Attrs[i].Range = logformat.Range{
				Start: tsRange.Start,
				End:   tsRange.Start + len(canonical),
			}
		}
	}
}

// applyPrefix reserves the boundary-glyph column and, if enabled,
// prepends the padded file name. Returns the inserted width.
func (r *Renderer) applyPrefix(out *RenderedRow, file logindex.LogFile) int {
	var name string
	width := 0
	switch {
	case r.ShowFilename:
		name = file.Filename()
		width = r.idx.FilenameWidth()
	case r.ShowBasename:
		name = file.UniquePath()
		width = r.idx.BasenameWidth()
	}
	if width < len(name) {
		width = len(name)
	}

	prefix := name + strings.Repeat(" ", width-len(name)+1)
	out.Text = prefix + out.Text
	r.shiftFrom(out, 0, len(prefix))
	return len(prefix)
}

// applyTimeOffset prepends the 12-char delta to the nearest user mark
// plus the bar glyph column.
func (r *Renderer) applyTimeOffset(out *RenderedRow, row int, line logindex.Line, bm *logindex.BookmarkStore) {
	curr := line.TimeInMillis()

	var diff int64
	marks := bm.Get(logindex.BookmarkUser)
	if marks.Len() > 0 {
		// Against the previous mark if there is one, else the next.
		prev := marks.PrevOrEqual(row)
		if prev >= 0 {
			if l := r.idx.LineFor(r.idx.At(prev)); l != nil {
				diff = curr - l.TimeInMillis()
			}
		} else if next := marks.Next(-1); next >= 0 {
			if l := r.idx.LineFor(r.idx.At(next)); l != nil {
				diff = curr - l.TimeInMillis()
			}
		}
	} else if r.idx.RowCount() > 0 {
		if l := r.idx.LineFor(r.idx.At(0)); l != nil {
			diff = curr - l.TimeInMillis()
		}
	}

	rel := FormatDelta(diff)
	if len(rel) < timeOffsetWidth-1 {
		rel = strings.Repeat(" ", timeOffsetWidth-1-len(rel)) + rel
	}
	out.Text = rel + "|" + out.Text
	r.shiftFrom(out, 0, timeOffsetWidth)
}

// applyStyles layers the style overlays over the final coordinates.
func (r *Renderer) applyStyles(out *RenderedRow, row int, line logindex.Line, prefixLen int, bm *logindex.BookmarkStore) {
	textLen := len(out.Text)

	levelStyle := r.levelStyles[line.Level()]

	// Underline the row when the next row crosses a UTC day boundary.
	if row+1 < r.idx.RowCount() {
		if next := r.idx.LineFor(r.idx.At(row + 1)); next != nil {
			if dayNumber(next.Time()) > dayNumber(line.Time()) {
				levelStyle = levelStyle.Underline(true)
			}
		}
	}
	out.Spans = append(out.Spans, StyleSpan{
		Range: logformat.Range{Start: prefixLen, End: textLen},
		Style: levelStyle,
	})

	// Identifier tinting with a stable hash-derived color.
	for _, v := range out.Values {
		if !v.Identifier {
			continue
		}
		out.Spans = append(out.Spans, StyleSpan{
			Range: v.Origin,
			Style: r.identStyles[identHash(v.Text)%uint32(len(r.identStyles))],
		})
	}

	// Timestamp range overlays.
	var tsRange logformat.Range
	hasTS := false
	for _, a := range out.Attrs {
		if a.Kind == logformat.AttrTimestamp {
			tsRange = a.Range
			hasTS = true
			break
		}
	}
	if hasTS {
		epoch := line.Time().Unix()
		switch {
		case line.TimeSkewed():
			out.Spans = append(out.Spans, StyleSpan{Range: tsRange, Style: r.skewedStyle})
		case r.fileForRowAdjusted(row):
			out.Spans = append(out.Spans, StyleSpan{Range: tsRange, Style: r.adjustedStyle})
		case (epoch/300)%2 == 0 && !line.Continued():
			out.Spans = append(out.Spans, StyleSpan{Range: tsRange, Style: r.altRowStyle})
		}
	}

	// Boundary-glyph column: reverse video on a search hit.
	if bm.Get(logindex.BookmarkSearch).Contains(row) {
		glyphCol := prefixLen - 1
		out.Spans = append(out.Spans, StyleSpan{
			Range: logformat.Range{Start: glyphCol, End: glyphCol + 1},
			Style: r.searchStyle,
		})
	}

	// Offset-bar column colored by the acceleration trend.
	if r.ShowTimeOffset {
		var barStyle lipgloss.Style
		switch r.idx.AccelDirectionAt(row) {
		case logindex.AccelUp:
			barStyle = r.accelUpStyle
		case logindex.AccelDown:
			barStyle = r.accelDnStyle
		default:
			barStyle = r.offsetStyle
		}
		out.Spans = append(out.Spans, StyleSpan{
			Range: logformat.Range{Start: 0, End: timeOffsetWidth - 1},
			Style: r.offsetStyle,
		})
		out.Spans = append(out.Spans, StyleSpan{
			Range: logformat.Range{Start: timeOffsetWidth - 1, End: timeOffsetWidth},
			Style: barStyle,
		})
	}

	// A user-marked row is reversed end to end.
	if bm.Get(logindex.BookmarkUser).Contains(row) {
		out.Spans = append(out.Spans, StyleSpan{
			Range: logformat.Range{Start: prefixLen, End: textLen},
			Style: r.searchStyle,
		})
	}
}

// boundaryGlyph picks the file-boundary marker for the glyph column.
func (r *Renderer) boundaryGlyph(row int, bm *logindex.BookmarkStore) rune {
	files := bm.Get(logindex.BookmarkFileBoundary)
	first := files.Contains(row)
	last := files.Contains(row + 1)
	switch {
	case first && last:
		return '─'
	case first:
		return '⌐'
	case last:
		return '└'
	default:
		return '│'
	}
}

// applyMeta attaches the row's own annotation and the partition it
// falls under (the nearest prior annotated mark).
func (r *Renderer) applyMeta(out *RenderedRow, row int, cl logindex.ContentLine, bm *logindex.BookmarkStore) {
	out.Meta = r.idx.MarkMetadata(cl)

	meta := bm.Get(logindex.BookmarkMeta)
	if part := meta.PrevOrEqual(row); part >= 0 {
		partCL := r.idx.At(part)
		if m := r.idx.MarkMetadata(partCL); m != nil && m.Name != "" {
			out.Partition = m
		}
	}
}

// shiftFrom moves attr, value, and span ranges at or after start right
// by size.
func (r *Renderer) shiftFrom(out *RenderedRow, start, size int) {
	for i := range out.Attrs {
		out.Attrs[i].Range.Shift(start, size)
	}
	for i := range out.Values {
		out.Values[i].Origin.Shift(start, size)
	}
	for i := range out.Spans {
		out.Spans[i].Range.Shift(start, size)
	}
}

// fileForRowAdjusted reports whether the row's file has an adjusted
// clock.
func (r *Renderer) fileForRowAdjusted(row int) bool {
	f, _ := r.idx.Find(r.idx.At(row))
	return f != nil && f.IsTimeAdjusted()
}

// dayNumber buckets a time into its UTC day.
func dayNumber(t time.Time) int64 {
	return t.Unix() / 86400
}

func identHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

// FormatDelta renders a millisecond delta the way the offset column
// wants it: sign, then the largest two units.
func FormatDelta(millis int64) string {
	neg := millis < 0
	if neg {
		millis = -millis
	}

	d := time.Duration(millis) * time.Millisecond
	var s string
	switch {
	case d >= time.Hour:
		s = fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		s = fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	case d >= time.Second:
		s = fmt.Sprintf("%d.%03ds", int(d.Seconds()), millis%1000)
	default:
		s = fmt.Sprintf("%dms", millis)
	}

	if neg {
		return "-" + s
	}
	return s
}

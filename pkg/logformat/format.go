package logformat

import (
	"bytes"
	"regexp"

	"github.com/TimelordUK/mview/internal/config"
)

// AttrKind identifies what a byte range of a rendered line represents.
type AttrKind int

const (
	AttrTimestamp AttrKind = iota
	AttrLevel
	AttrBody
	AttrOriginalLine
	AttrValue
)

// Range is a half-open byte range within a line. End of -1 means
// "to the end of the line".
type Range struct {
	Start int
	End   int
}

// Length returns the range length, or -1 for an open range.
func (r Range) Length() int {
	if r.End < 0 {
		return -1
	}
	return r.End - r.Start
}

// Shift moves each endpoint at or after start right by size: Start and
// End are checked separately, and an open End (-1) stays open.
func (r *Range) Shift(start, size int) {
	if r.Start >= start {
		r.Start += size
	}
	if r.End >= start && r.End >= 0 {
		r.End += size
	}
}

// Attr tags a range of a line with a semantic kind.
type Attr struct {
	Range Range
	Kind  AttrKind
	Name  string
}

// Value is a field extracted from a line by a format.
type Value struct {
	Name       string
	Text       string
	Origin     Range
	Identifier bool
	Hidden     bool
	SubOffset  int
}

// Format is the capability a log format implementation provides to the
// index and renderer. Implementations must be safe for repeated calls
// with the same input.
type Format interface {
	Name() string

	// Annotate breaks a line body into semantic ranges and field values.
	Annotate(body []byte) ([]Attr, []Value)

	// Scrub removes terminal escapes and other noise from a line.
	Scrub(s string) string

	// Rewrite re-renders a line body using its extracted field values,
	// e.g. substituting pretty forms. Formats with nothing to rewrite
	// return the body unchanged.
	Rewrite(body string, values []Value) string

	// MachineOriented reports whether the native timestamp form is not
	// meant for humans (epoch seconds and the like), in which case the
	// renderer rewrites it to the canonical form.
	MachineOriented() bool

	// ParseTimestamp extracts the timestamp from a line body.
	ParseTimestamp(body []byte) (Timestamp, bool)

	// DetectLevel returns the severity for a line body.
	DetectLevel(body []byte) Level
}

var (
	ansiPattern  = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	fieldPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.-]*)=("[^"]*"|\S+)`)
)

// GenericFormat annotates free-form application logs: a leading
// timestamp, a level marker, and key=value fields whose values are
// treated as identifiers for stable tinting.
type GenericFormat struct {
	parser   *TimestampParser
	detector *LevelDetector
	machine  bool
}

// NewGenericFormat builds the default format from config patterns.
func NewGenericFormat(cfg *config.Config) *GenericFormat {
	return &GenericFormat{
		parser:   NewTimestampParser(),
		detector: NewLevelDetector(&cfg.LogLevels),
	}
}

func (f *GenericFormat) Name() string { return "generic" }

func (f *GenericFormat) MachineOriented() bool { return f.machine }

// SetMachineOriented is called by the file observer once it has seen
// the file's native timestamp form.
func (f *GenericFormat) SetMachineOriented(v bool) { f.machine = v }

func (f *GenericFormat) ParseTimestamp(body []byte) (Timestamp, bool) {
	return f.parser.Parse(body)
}

func (f *GenericFormat) DetectLevel(body []byte) Level {
	return f.detector.Detect(body)
}

func (f *GenericFormat) Annotate(body []byte) ([]Attr, []Value) {
	var attrs []Attr
	var values []Value
	line := string(body)

	bodyStart := 0
	if ts, ok := f.parser.Parse(body); ok {
		attrs = append(attrs, Attr{
			Range: Range{Start: ts.Start, End: ts.End},
			Kind:  AttrTimestamp,
		})
		bodyStart = ts.End
	}

	attrs = append(attrs, Attr{
		Range: Range{Start: bodyStart, End: len(line)},
		Kind:  AttrBody,
	})

	for _, m := range fieldPattern.FindAllStringSubmatchIndex(line, -1) {
		name := line[m[2]:m[3]]
		text := line[m[4]:m[5]]
		values = append(values, Value{
			Name:       name,
			Text:       text,
			Origin:     Range{Start: m[4], End: m[5]},
			Identifier: true,
		})
	}

	return attrs, values
}

func (f *GenericFormat) Scrub(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// Rewrite is a hook for formats that substitute field values; the
// generic format has no rewrites.
func (f *GenericFormat) Rewrite(body string, values []Value) string {
	return body
}

// PlainFormat is used for files with no recognizable log structure.
// Lines have no timestamp and no level; the renderer falls back to
// syntax highlighting for these.
type PlainFormat struct{}

func (PlainFormat) Name() string { return "plain" }
func (PlainFormat) MachineOriented() bool { return false }
func (PlainFormat) ParseTimestamp([]byte) (Timestamp, bool) { return Timestamp{}, false }
func (PlainFormat) DetectLevel([]byte) Level { return LevelUnknown }
func (PlainFormat) Scrub(s string) string { return ansiPattern.ReplaceAllString(s, "") }
func (PlainFormat) Rewrite(body string, _ []Value) string { return body }

func (PlainFormat) Annotate(body []byte) ([]Attr, []Value) {
	return []Attr{{Range: Range{Start: 0, End: len(body)}, Kind: AttrBody}}, nil
}

// detectProbeLines bounds how many lines DetectFormat inspects.
const detectProbeLines = 10

// DetectFormat probes the leading lines of a file sample and picks the
// format for it: the generic log format when any probed line carries a
// timestamp or a level marker, the plain format otherwise.
func DetectFormat(sample []byte, generic *GenericFormat) Format {
	probed := 0
	for _, line := range bytes.Split(sample, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if probed++; probed > detectProbeLines {
			break
		}
		if _, ok := generic.ParseTimestamp(line); ok {
			return generic
		}
		if generic.DetectLevel(line) != LevelUnknown {
			return generic
		}
	}
	return PlainFormat{}
}

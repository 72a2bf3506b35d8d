package logfile

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/TimelordUK/mview/internal/logindex"
	"github.com/TimelordUK/mview/pkg/logformat"
)

// ErrVanished is reported when the backing file disappears mid-session.
var ErrVanished = errors.New("log file vanished")

// Line is the indexed metadata for one physical line. Continuations
// inherit their head's time and level so the merge keeps messages
// together.
type Line struct {
	offset    int64
	time      time.Time
	level     logformat.Level
	continued bool
	skewed    bool
	subOffset int
	marked    bool
}

func (l *Line) Time() time.Time { return l.time }
func (l *Line) TimeInMillis() int64 { return l.time.UnixMilli() }
func (l *Line) Level() logformat.Level { return l.level }
func (l *Line) Continued() bool { return l.continued }
func (l *Line) TimeSkewed() bool { return l.skewed }
func (l *Line) SubOffset() int { return l.subOffset }
func (l *Line) Marked() bool { return l.marked }
func (l *Line) SetMark(on bool) { l.marked = on }

// File is a LogFile capability backed by a memory-mapped file. It owns
// the line offset index and per-line metadata; the Indexer drives it
// through Observe.
type File struct {
	mapped *MappedFile
	format logformat.Format
	path   string
	unique string

	lines       []Line
	indexedSize int64
	longestLine int

	timeOffset   time.Duration
	timeAdjusted bool
	pendingOrder bool
}

// Open maps a file and indexes its current contents.
func Open(path string, format logformat.Format) (*File, error) {
	mapped, err := OpenMapped(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	f := &File{
		mapped: mapped,
		format: format,
		path:   path,
		unique: filepath.Base(path),
	}
	if err := f.indexNewLines(); err != nil {
		mapped.Close()
		return nil, err
	}
	return f, nil
}

// Close releases the mapping.
func (f *File) Close() error {
	return f.mapped.Close()
}

// Path returns the file's full path.
func (f *File) Path() string { return f.path }

// Size returns the number of indexed lines.
func (f *File) Size() int { return len(f.lines) }

// ByteSize returns the mapped byte size.
func (f *File) ByteSize() int64 { return f.mapped.Size() }

// LineAt returns line i's metadata.
func (f *File) LineAt(i int) logindex.Line { return &f.lines[i] }

// LongestLineLength returns the longest indexed line's byte length.
func (f *File) LongestLineLength() int { return f.longestLine }

// Filename returns the base name for display.
func (f *File) Filename() string { return filepath.Base(f.path) }

// UniquePath returns the shortest path suffix that distinguishes this
// file from the other attached files.
func (f *File) UniquePath() string { return f.unique }

// IsTimeAdjusted reports whether a clock offset has been applied.
func (f *File) IsTimeAdjusted() bool { return f.timeAdjusted }

// Format returns the format capability annotating this file.
func (f *File) Format() logformat.Format { return f.format }

// SetTimeOffset shifts every line time by d, e.g. to reconcile hosts
// with skewed clocks. The next Observe reports a new order so the
// global index resorts.
func (f *File) SetTimeOffset(d time.Duration) {
	delta := d - f.timeOffset
	for i := range f.lines {
		f.lines[i].time = f.lines[i].time.Add(delta)
	}
	f.timeOffset = d
	f.timeAdjusted = d != 0
	f.pendingOrder = true
}

// Observe re-stats the file and folds in new content.
func (f *File) Observe() (logindex.ObserveResult, error) {
	if f.pendingOrder {
		f.pendingOrder = false
		return logindex.ObserveNewOrder, nil
	}

	delta, err := f.mapped.Remap()
	if err != nil {
		return logindex.ObserveInvalid, fmt.Errorf("%w: %s", ErrVanished, f.path)
	}

	if delta < 0 {
		// Truncated or rotated in place; the old index is garbage.
		f.lines = f.lines[:0]
		f.indexedSize = 0
		f.longestLine = 0
		if err := f.indexNewLines(); err != nil {
			return logindex.ObserveInvalid, err
		}
		return logindex.ObserveNewOrder, nil
	}

	if delta == 0 {
		return logindex.ObserveNoNewLines, nil
	}

	before := len(f.lines)
	if err := f.indexNewLines(); err != nil {
		return logindex.ObserveInvalid, err
	}
	if len(f.lines) == before {
		return logindex.ObserveNoNewLines, nil
	}
	return logindex.ObserveNewLines, nil
}

// ReobserveFrom is a replay hook for filter changes. Line metadata is
// immutable once indexed, so there is nothing to recompute here.
func (f *File) ReobserveFrom(i int) {}

// indexNewLines scans [indexedSize, mapped size) for complete lines
// and appends their metadata. A trailing partial line stays unindexed
// until its newline arrives.
func (f *File) indexNewLines() error {
	size := f.mapped.Size()
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize)

	pos := f.indexedSize
	lineStart := f.indexedSize
	for pos < size {
		readSize := chunkSize
		if pos+int64(readSize) > size {
			readSize = int(size - pos)
		}

		n, err := f.mapped.ReadAt(buf[:readSize], pos)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.path, err)
		}

		chunk := buf[:n]
		offset := 0
		for {
			idx := bytes.IndexByte(chunk[offset:], '\n')
			if idx == -1 {
				break
			}
			lineEnd := pos + int64(offset) + int64(idx)
			if err := f.appendLine(lineStart, lineEnd); err != nil {
				return err
			}
			lineStart = lineEnd + 1
			offset += idx + 1
		}

		pos += int64(n)
	}

	f.indexedSize = lineStart
	return nil
}

// appendLine parses one complete line's metadata.
func (f *File) appendLine(start, end int64) error {
	if len(f.lines) >= logindex.MaxLinesPerFile {
		return fmt.Errorf("%s: line limit reached", f.path)
	}

	body, err := f.mapped.ReadRange(start, end)
	if err != nil {
		return fmt.Errorf("read line at %d: %w", start, err)
	}
	body = bytes.TrimRight(body, "\r")

	if len(body) > f.longestLine {
		f.longestLine = len(body)
	}

	line := Line{offset: start}

	ts, ok := f.format.ParseTimestamp(body)
	if ok {
		if ts.Machine {
			if ms, setOK := f.format.(interface{ SetMachineOriented(bool) }); setOK {
				ms.SetMachineOriented(true)
			}
		}
		line.time = ts.Time.Add(f.timeOffset)
		line.level = f.format.DetectLevel(body)
		if len(f.lines) > 0 {
			prev := &f.lines[len(f.lines)-1]
			if line.time.Before(prev.time) {
				// Keep within-file order monotonic; flag the original
				// time as skewed for the renderer.
				line.skewed = true
				line.time = prev.time
			}
		}
	} else if len(f.lines) > 0 {
		prev := &f.lines[len(f.lines)-1]
		line.continued = true
		line.time = prev.time
		line.level = prev.level
		line.subOffset = prev.subOffset + 1
	} else {
		// A file leading with untimestamped content: treat the line as
		// a head at the zero time so it sorts first.
		line.level = f.format.DetectLevel(body)
	}

	f.lines = append(f.lines, line)
	return nil
}

// ReadLine returns line i's body without the trailing newline.
func (f *File) ReadLine(i int) ([]byte, error) {
	if i < 0 || i >= len(f.lines) {
		return nil, fmt.Errorf("line %d out of range", i)
	}
	start := f.lines[i].offset
	var end int64
	if i+1 < len(f.lines) {
		end = f.lines[i+1].offset - 1
	} else {
		end = f.indexedSize - 1
	}
	body, err := f.mapped.ReadRange(start, end)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(body, "\r"), nil
}

// ReadFullMessage returns the whole message containing line i: its
// head plus every continuation, joined by newlines.
func (f *File) ReadFullMessage(i int) (string, error) {
	head := i
	for head > 0 && f.lines[head].continued {
		head--
	}

	var sb strings.Builder
	for j := head; j < len(f.lines); j++ {
		if j > head && !f.lines[j].continued {
			break
		}
		body, err := f.ReadLine(j)
		if err != nil {
			return "", err
		}
		if j > head {
			sb.WriteByte('\n')
		}
		sb.Write(body)
	}
	return sb.String(), nil
}

// AssignUniquePaths gives each file the shortest trailing path that
// tells it apart from the others, lengthening colliding suffixes one
// directory at a time.
func AssignUniquePaths(files []*File) {
	depth := 1
	for {
		seen := make(map[string][]*File)
		for _, f := range files {
			f.unique = trailingPath(f.path, depth)
			seen[f.unique] = append(seen[f.unique], f)
		}

		collision := false
		for _, group := range seen {
			if len(group) > 1 {
				collision = true
			}
		}
		if !collision || depth > 8 {
			return
		}
		depth++
	}
}

func trailingPath(path string, depth int) string {
	parts := strings.Split(filepath.ToSlash(filepath.Clean(path)), "/")
	if depth >= len(parts) {
		depth = len(parts)
	}
	return strings.Join(parts[len(parts)-depth:], "/")
}

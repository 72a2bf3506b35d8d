package logindex

import (
	"time"

	"github.com/TimelordUK/mview/pkg/logformat"
)

// ObserveResult is what a LogFile reports after re-observing itself.
type ObserveResult int

const (
	// ObserveNoNewLines means the file is unchanged.
	ObserveNoNewLines ObserveResult = iota
	// ObserveNewLines means lines were appended past the indexed tail.
	ObserveNewLines
	// ObserveNewOrder means the file's own line order changed, e.g.
	// after truncation or a clock adjustment.
	ObserveNewOrder
	// ObserveInvalid means the file can no longer be read.
	ObserveInvalid
)

// Line exposes the per-line metadata the index and renderer need.
// SetMark mutates the underlying record, so implementations hand out
// stable references.
type Line interface {
	Time() time.Time
	TimeInMillis() int64
	Level() logformat.Level
	Continued() bool
	TimeSkewed() bool
	SubOffset() int
	Marked() bool
	SetMark(on bool)
}

// LogFile is the capability the indexer consumes for one attached
// file. Raw IO, rotation detection, and format parsing live behind it.
type LogFile interface {
	// Size returns the number of indexed lines.
	Size() int

	// LineAt returns metadata for line i. i must be < Size().
	LineAt(i int) Line

	// ReadLine returns the body of line i without its trailing newline.
	// The returned slice is only valid until the next Observe call.
	ReadLine(i int) ([]byte, error)

	// ReadFullMessage returns line i's whole message: the head line
	// plus its continuations, joined by newlines.
	ReadFullMessage(i int) (string, error)

	// Observe re-stats the file and folds in any new content.
	Observe() (ObserveResult, error)

	// ReobserveFrom replays line metadata observers from line i.
	ReobserveFrom(i int)

	LongestLineLength() int
	Filename() string
	UniquePath() string
	IsTimeAdjusted() bool
	Format() logformat.Format
}

// View is the host's scrolling surface. All methods are called on the
// view thread.
type View interface {
	IsPaused() bool
	Top() int
	Bottom() int
	Bookmarks() *BookmarkStore
	RedoSearch()
	SearchNewData()
	ReloadData()
}

// IndexDelegate observes index extension, one callback per admitted
// line, bracketed by start/complete.
type IndexDelegate interface {
	IndexStart()
	IndexLine(file LogFile, line int)
	IndexComplete()
}

package logindex

import (
	"fmt"
	"strings"
	"time"

	"github.com/TimelordUK/mview/pkg/logformat"
)

// fakeLine is an in-memory Line for driving the indexer in tests.
type fakeLine struct {
	t         time.Time
	level     logformat.Level
	continued bool
	skewed    bool
	subOffset int
	marked    bool
}

func (l *fakeLine) Time() time.Time { return l.t }
func (l *fakeLine) TimeInMillis() int64 { return l.t.UnixMilli() }
func (l *fakeLine) Level() logformat.Level { return l.level }
func (l *fakeLine) Continued() bool { return l.continued }
func (l *fakeLine) TimeSkewed() bool { return l.skewed }
func (l *fakeLine) SubOffset() int { return l.subOffset }
func (l *fakeLine) Marked() bool { return l.marked }
func (l *fakeLine) SetMark(on bool) { l.marked = on }

// fakeFile stages lines that become visible on the next Observe call,
// mimicking a growing file.
type fakeFile struct {
	name   string
	lines  []*fakeLine
	bodies []string

	stagedLines  []*fakeLine
	stagedBodies []string

	nextResult   ObserveResult
	haveOverride bool
	observeErr   error
}

func newFakeFile(name string) *fakeFile {
	return &fakeFile{name: name}
}

// stage queues a head line for the next observation.
func (f *fakeFile) stage(t time.Time, body string) *fakeFile {
	f.stagedLines = append(f.stagedLines, &fakeLine{
		t:     t,
		level: logformat.LevelInfo,
	})
	f.stagedBodies = append(f.stagedBodies, body)
	return f
}

// stageCont queues a continuation of the previously staged line.
func (f *fakeFile) stageCont(body string) *fakeFile {
	var prev *fakeLine
	if n := len(f.stagedLines); n > 0 {
		prev = f.stagedLines[n-1]
	} else {
		prev = f.lines[len(f.lines)-1]
	}
	f.stagedLines = append(f.stagedLines, &fakeLine{
		t:         prev.t,
		level:     prev.level,
		continued: true,
		subOffset: prev.subOffset + 1,
	})
	f.stagedBodies = append(f.stagedBodies, body)
	return f
}

func (f *fakeFile) stageLevel(level logformat.Level) *fakeFile {
	f.stagedLines[len(f.stagedLines)-1].level = level
	return f
}

func (f *fakeFile) forceResult(r ObserveResult) {
	f.nextResult = r
	f.haveOverride = true
}

func (f *fakeFile) Size() int { return len(f.lines) }
func (f *fakeFile) LineAt(i int) Line { return f.lines[i] }
func (f *fakeFile) Filename() string { return f.name }
func (f *fakeFile) UniquePath() string { return f.name }
func (f *fakeFile) IsTimeAdjusted() bool { return false }
func (f *fakeFile) ReobserveFrom(int) {}

func (f *fakeFile) Format() logformat.Format { return logformat.PlainFormat{} }

func (f *fakeFile) LongestLineLength() int {
	longest := 0
	for _, b := range f.bodies {
		if len(b) > longest {
			longest = len(b)
		}
	}
	return longest
}

func (f *fakeFile) ReadLine(i int) ([]byte, error) {
	if i < 0 || i >= len(f.bodies) {
		return nil, fmt.Errorf("line %d out of range", i)
	}
	return []byte(f.bodies[i]), nil
}

func (f *fakeFile) ReadFullMessage(i int) (string, error) {
	head := i
	for head > 0 && f.lines[head].continued {
		head--
	}
	var parts []string
	for j := head; j < len(f.lines); j++ {
		if j > head && !f.lines[j].continued {
			break
		}
		parts = append(parts, f.bodies[j])
	}
	return strings.Join(parts, "\n"), nil
}

func (f *fakeFile) Observe() (ObserveResult, error) {
	if f.observeErr != nil {
		err := f.observeErr
		f.observeErr = nil
		return ObserveInvalid, err
	}
	if f.haveOverride {
		f.haveOverride = false
		f.lines = append(f.lines, f.stagedLines...)
		f.bodies = append(f.bodies, f.stagedBodies...)
		f.stagedLines = nil
		f.stagedBodies = nil
		return f.nextResult, nil
	}
	if len(f.stagedLines) == 0 {
		return ObserveNoNewLines, nil
	}
	f.lines = append(f.lines, f.stagedLines...)
	f.bodies = append(f.bodies, f.stagedBodies...)
	f.stagedLines = nil
	f.stagedBodies = nil
	return ObserveNewLines, nil
}

// fakeView records the indexer's callbacks.
type fakeView struct {
	paused       bool
	bookmarks    *BookmarkStore
	redoCount    int
	newDataCount int
	reloadCount  int
}

func newFakeView() *fakeView {
	return &fakeView{bookmarks: NewBookmarkStore()}
}

func (v *fakeView) IsPaused() bool { return v.paused }
func (v *fakeView) Top() int { return 0 }
func (v *fakeView) Bottom() int { return 0 }
func (v *fakeView) Bookmarks() *BookmarkStore { return v.bookmarks }
func (v *fakeView) RedoSearch() { v.redoCount++ }
func (v *fakeView) SearchNewData() { v.newDataCount++ }
func (v *fakeView) ReloadData() { v.reloadCount++ }

// recordingDelegate captures index extension notifications.
type recordingDelegate struct {
	starts    int
	completes int
	lines     []int
}

func (d *recordingDelegate) IndexStart() { d.starts++ }
func (d *recordingDelegate) IndexComplete() { d.completes++ }
func (d *recordingDelegate) IndexLine(_ LogFile, line int) {
	d.lines = append(d.lines, line)
}

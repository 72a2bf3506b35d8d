package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/TimelordUK/mview/internal/config"
	"github.com/TimelordUK/mview/internal/export"
	"github.com/TimelordUK/mview/internal/logfile"
	"github.com/TimelordUK/mview/internal/logindex"
	"github.com/TimelordUK/mview/internal/render"
	"github.com/TimelordUK/mview/internal/search"
	"github.com/TimelordUK/mview/internal/view"
	"github.com/TimelordUK/mview/pkg/logformat"
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeFilterIn
	ModeFilterOut
	ModeGoto
)

type tickMsg time.Time

// ForceTick returns a tick message for driving the model headlessly,
// e.g. the one-shot export path.
func ForceTick() tea.Msg {
	return tickMsg(time.Now())
}

// Model is the main application model
type Model struct {
	cfg      *config.Config
	idx      *logindex.Indexer
	viewport *view.Viewport
	renderer *render.Renderer
	driver   *search.Driver
	history  *logindex.LocationHistory
	files    []*logfile.File

	input textinput.Model
	mode  Mode

	width  int
	height int

	statusStyle     lipgloss.Style
	statusTextStyle lipgloss.Style

	pollInterval time.Duration
	err          error
}

// NewModel wires the core for the given file paths.
func NewModel(paths []string, cfg *config.Config) (*Model, error) {
	generic := logformat.NewGenericFormat(cfg)

	var files []*logfile.File
	for _, path := range paths {
		f, err := logfile.Open(path, detectFormat(path, generic))
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, err
		}
		files = append(files, f)
	}
	logfile.AssignUniquePaths(files)

	idx := logindex.NewIndexer(nil, logindex.NewFilterSet())
	viewport := view.NewViewport(idx, cfg, 80, 24)
	idx.SetView(viewport)

	renderer := render.New(idx, cfg)
	viewport.SetRenderer(renderer)

	driver := search.NewDriver(viewport)
	viewport.SetSearchDriver(driver)

	for _, f := range files {
		if _, err := idx.AttachFile(f); err != nil {
			return nil, err
		}
	}

	ti := textinput.New()
	ti.CharLimit = 256

	interval := time.Duration(cfg.Display.PollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &Model{
		cfg:             cfg,
		idx:             idx,
		viewport:        viewport,
		renderer:        renderer,
		driver:          driver,
		history:         logindex.NewLocationHistory(idx, cfg.Display.HistorySize),
		files:           files,
		input:           ti,
		statusStyle:     lipgloss.NewStyle().Background(lipgloss.Color(cfg.Theme.StatusBar)),
		statusTextStyle: lipgloss.NewStyle().Background(lipgloss.Color(cfg.Theme.StatusBar)).Foreground(lipgloss.Color(cfg.Theme.StatusBarText)),
		pollInterval:    interval,
	}, nil
}

// detectFormat samples a file's head to decide whether it is a log or
// plain text; unreadable files fall back to the generic format so Open
// reports the real error.
func detectFormat(path string, generic *logformat.GenericFormat) logformat.Format {
	h, err := os.Open(path)
	if err != nil {
		return generic
	}
	defer h.Close()

	buf := make([]byte, 4096)
	n, _ := h.Read(buf)
	return logformat.DetectFormat(buf[:n], generic)
}

// Close releases files and stops search workers.
func (m *Model) Close() {
	m.driver.Stop()
	for _, f := range m.files {
		f.Close()
	}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return m.tick()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Two lines reserved for the status bar and prompt.
		m.viewport.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case tickMsg:
		if m.idx.RebuildIndex() != logindex.RebuildNoChange {
			m.viewport.ReloadData()
		}
		m.viewport.DrainMatches()
		return m, m.tick()
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.mode != ModeNormal {
		return m.handlePromptKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "j", "down":
		m.viewport.ScrollDown(1)
	case "k", "up":
		m.viewport.ScrollUp(1)
	case "f", "pgdown", " ", "ctrl+d":
		m.viewport.PageDown()
	case "b", "pgup", "ctrl+u":
		m.viewport.PageUp()

	case "g", "home":
		m.history.Push(m.viewport.Top())
		m.viewport.GotoTop()
	case "G", "end":
		m.history.Push(m.viewport.Top())
		m.viewport.GotoBottom()

	case "F":
		m.viewport.SetFollowing(!m.viewport.Following())
	case "p":
		m.viewport.SetPaused(!m.viewport.IsPaused())

	case "/":
		m.mode = ModeSearch
		m.input.Placeholder = "Search..."
		m.input.SetValue("")
		m.input.Focus()
	case "n":
		m.history.Push(m.viewport.Top())
		m.viewport.NextMatch()
	case "N":
		m.history.Push(m.viewport.Top())
		m.viewport.PrevMatch()

	case "i":
		m.mode = ModeFilterIn
		m.input.Placeholder = "Filter in (regex)..."
		m.input.SetValue("")
		m.input.Focus()
	case "o":
		m.mode = ModeFilterOut
		m.input.Placeholder = "Filter out (regex)..."
		m.input.SetValue("")
		m.input.Focus()
	case "c":
		for _, f := range m.idx.Filters().Filters() {
			m.idx.Filters().Remove(f.Index())
		}
		m.idx.TextFiltersChanged()

	case "L":
		m.cycleMinLevel()
	case "O":
		filters := m.idx.Filters()
		filters.MarkedOnly = !filters.MarkedOnly
		m.idx.TextFiltersChanged()

	case ":":
		m.mode = ModeGoto
		m.input.Placeholder = "Row number or HH:MM:SS..."
		m.input.SetValue("")
		m.input.Focus()

	case "m":
		if m.idx.RowCount() > 0 {
			m.idx.ToggleUserMark(m.idx.At(m.viewport.Top()))
			m.viewport.ReloadData()
		}

	case "e":
		m.jumpBookmark(logindex.BookmarkError, true)
	case "E":
		m.jumpBookmark(logindex.BookmarkError, false)
	case "w":
		m.jumpBookmark(logindex.BookmarkWarning, true)
	case "W":
		m.jumpBookmark(logindex.BookmarkWarning, false)
	case "u":
		m.jumpBookmark(logindex.BookmarkUser, true)
	case "U":
		m.jumpBookmark(logindex.BookmarkUser, false)
	case "]":
		m.jumpBookmark(logindex.BookmarkFileBoundary, true)
	case "[":
		m.jumpBookmark(logindex.BookmarkFileBoundary, false)

	case "ctrl+o":
		if row, ok := m.history.Back(m.viewport.Top()); ok {
			m.viewport.GotoRow(row)
		}
	case "tab":
		if row, ok := m.history.Forward(m.viewport.Top()); ok {
			m.viewport.GotoRow(row)
		}

	case "r":
		m.viewport.ToggleFlag(render.FlagRaw)
	case "M":
		m.viewport.ToggleFlag(render.FlagFull)
	case "S":
		m.viewport.ToggleFlag(render.FlagScrub)
	case "t":
		m.renderer.ShowTimeOffset = !m.renderer.ShowTimeOffset
	case "y":
		m.renderer.ShowBasename = !m.renderer.ShowBasename
	}

	return m, nil
}

func (m *Model) handlePromptKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = ModeNormal
		m.input.Blur()
		return m, nil

	case "enter":
		value := m.input.Value()
		mode := m.mode
		m.mode = ModeNormal
		m.input.Blur()
		m.submitPrompt(mode, value)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitPrompt(mode Mode, value string) {
	m.err = nil

	switch mode {
	case ModeSearch:
		m.history.Push(m.viewport.Top())
		if err := m.driver.Execute(value, m.viewport.Top()); err != nil {
			m.err = err
		}

	case ModeFilterIn, ModeFilterOut:
		if value == "" {
			return
		}
		kind := logindex.FilterIn
		if mode == ModeFilterOut {
			kind = logindex.FilterOut
		}
		if _, err := m.idx.Filters().Add(kind, value); err != nil {
			m.err = err
			return
		}
		m.idx.TextFiltersChanged()

	case ModeGoto:
		m.gotoTarget(value)
	}
}

func (m *Model) gotoTarget(value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}

	if n, err := strconv.Atoi(value); err == nil {
		m.history.Push(m.viewport.Top())
		m.viewport.GotoRow(n - 1)
		return
	}

	parser := logformat.NewTimestampParser()
	if ts, ok := parser.Parse([]byte(value)); ok {
		if row, found := m.idx.FromTime(ts.Time); found {
			m.history.Push(m.viewport.Top())
			m.viewport.GotoRow(row)
			return
		}
	}
	m.err = fmt.Errorf("cannot interpret %q as a row or time", value)
}

func (m *Model) jumpBookmark(kind logindex.BookmarkKind, forward bool) {
	set := m.viewport.Bookmarks().Get(kind)
	var target int
	if forward {
		target = set.Next(m.viewport.Top())
	} else {
		target = set.Prev(m.viewport.Top())
	}
	if target >= 0 {
		m.history.Push(m.viewport.Top())
		m.viewport.GotoRow(target)
	}
}

func (m *Model) cycleMinLevel() {
	filters := m.idx.Filters()
	switch filters.MinLevel {
	case logformat.LevelUnknown:
		filters.MinLevel = logformat.LevelInfo
	case logformat.LevelInfo:
		filters.MinLevel = logformat.LevelWarning
	case logformat.LevelWarning:
		filters.MinLevel = logformat.LevelError
	default:
		filters.MinLevel = logformat.LevelUnknown
	}
	m.idx.TextFiltersChanged()
}

// SetFollowing pins the view to the newest row.
func (m *Model) SetFollowing(on bool) {
	m.viewport.SetFollowing(on)
}

// Export writes the current merged view to path.
func (m *Model) Export(path string, prefix bool) (export.Result, error) {
	return export.WriteSnapshot(m.idx, path, export.Options{Prefix: prefix})
}

// View implements tea.Model
func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(m.viewport.Render())
	sb.WriteByte('\n')
	sb.WriteString(m.statusLine())
	sb.WriteByte('\n')

	if m.mode != ModeNormal {
		sb.WriteString(m.input.View())
	} else if m.err != nil {
		sb.WriteString(m.statusTextStyle.Render(fmt.Sprintf("error: %v", m.err)))
	}

	return sb.String()
}

func (m *Model) statusLine() string {
	var total int64
	for _, f := range m.files {
		total += f.ByteSize()
	}

	parts := []string{
		fmt.Sprintf("%d files", m.idx.FileCount()),
		fmt.Sprintf("%s rows", humanize.Comma(int64(m.idx.RowCount()))),
		humanize.Bytes(uint64(total)),
	}
	if m.idx.RowCount() < m.idx.TotalCount() {
		parts = append(parts, fmt.Sprintf("filtered from %s",
			humanize.Comma(int64(m.idx.TotalCount()))))
	}
	if p := m.driver.Pattern(); p != "" {
		parts = append(parts, fmt.Sprintf("/%s (%d hits)", p,
			m.viewport.Bookmarks().Get(logindex.BookmarkSearch).Len()))
	}
	if m.viewport.Following() {
		parts = append(parts, "following")
	}
	if m.viewport.IsPaused() {
		parts = append(parts, "paused")
	}

	line := " " + strings.Join(parts, " | ")
	if m.width > len(line) {
		line += strings.Repeat(" ", m.width-len(line))
	}
	return m.statusTextStyle.Render(line)
}

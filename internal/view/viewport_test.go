package view

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimelordUK/mview/internal/config"
	"github.com/TimelordUK/mview/internal/logfile"
	"github.com/TimelordUK/mview/internal/logindex"
	"github.com/TimelordUK/mview/internal/render"
	"github.com/TimelordUK/mview/internal/search"
	"github.com/TimelordUK/mview/pkg/logformat"
)

func buildStack(t *testing.T, content string) (*Viewport, *logindex.Indexer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := config.DefaultConfig()
	format := logformat.NewGenericFormat(cfg)
	f, err := logfile.Open(path, format)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	idx := logindex.NewIndexer(nil, logindex.NewFilterSet())
	vp := NewViewport(idx, cfg, 80, 10)
	idx.SetView(vp)
	vp.SetRenderer(render.New(idx, cfg))
	vp.SetSearchDriver(search.NewDriver(vp))

	_, err = idx.AttachFile(f)
	require.NoError(t, err)
	idx.RebuildIndex()
	vp.ReloadData()

	return vp, idx
}

const sample = "2024-01-15 10:00:01 INFO alpha\n" +
	"2024-01-15 10:00:02 WARN beta\n" +
	"2024-01-15 10:00:03 ERROR gamma\n" +
	"2024-01-15 10:00:04 INFO delta\n"

func TestViewportRenderShowsRows(t *testing.T) {
	vp, _ := buildStack(t, sample)

	out := vp.Render()
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "gamma")
	assert.Contains(t, out, "~", "short content pads with tildes")
}

func TestViewportScrollClamping(t *testing.T) {
	vp, _ := buildStack(t, sample)

	vp.ScrollUp(10)
	assert.Equal(t, 0, vp.Top())

	vp.ScrollDown(1000)
	assert.Equal(t, 0, vp.Top(), "four rows fit in a ten-row viewport")

	vp.SetSize(80, 2)
	vp.ScrollDown(1000)
	assert.Equal(t, 2, vp.Top())
	assert.Equal(t, 3, vp.Bottom())
}

func TestViewportRowSource(t *testing.T) {
	vp, idx := buildStack(t, sample)

	assert.Equal(t, idx.RowCount(), vp.RowCount())

	text, err := vp.RowText(1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15 10:00:02 WARN beta", text)

	_, err = vp.RowText(100)
	assert.Error(t, err)
}

func TestViewportDrainMatchesIntoBookmarks(t *testing.T) {
	vp, _ := buildStack(t, sample)

	require.NoError(t, vp.driver.Execute("beta|delta", 0))
	vp.driver.Stop()
	n := vp.DrainMatches()

	assert.Equal(t, 2, n)
	hits := vp.Bookmarks().Get(logindex.BookmarkSearch)
	assert.True(t, hits.Contains(1))
	assert.True(t, hits.Contains(3))
}

func TestViewportMatchNavigation(t *testing.T) {
	vp, _ := buildStack(t, sample)

	hits := vp.Bookmarks().Get(logindex.BookmarkSearch)
	hits.InsertOnce(1)
	hits.InsertOnce(3)

	vp.SetSize(80, 2)
	vp.NextMatch()
	assert.Equal(t, 1, vp.Top())
	vp.NextMatch()
	assert.Equal(t, 2, vp.Top(), "row 3 visible at max scroll")

	vp.PrevMatch()
	assert.Equal(t, 1, vp.Top())
}

func TestViewportReloadPopulatesMarks(t *testing.T) {
	vp, _ := buildStack(t, sample)

	bm := vp.Bookmarks()
	assert.Equal(t, []int{2}, bm.Get(logindex.BookmarkError).Rows())
	assert.Equal(t, []int{1}, bm.Get(logindex.BookmarkWarning).Rows())
	assert.Equal(t, []int{0}, bm.Get(logindex.BookmarkFileBoundary).Rows())
}

func TestViewportFollowPinsToBottom(t *testing.T) {
	vp, _ := buildStack(t, sample)
	vp.SetSize(80, 2)

	vp.SetFollowing(true)
	out := vp.Render()
	assert.Contains(t, out, "delta")
	assert.NotContains(t, strings.Split(out, "\n")[0], "alpha")
}

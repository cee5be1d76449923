package ui

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/stats"
)

func TestHudPresenterFileCompleted(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.ScanComplete, Total: 10, TotalSize: 10240}
	events <- Event{Type: event.FileCompleted, Path: "test/file.txt", Size: 1024}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)

	// Should contain the checkmark and file path.
	assert.Contains(t, out.String(), "file.txt")
	assert.Contains(t, out.String(), "✓")
}

func TestHudPresenterFileCompletedStyledPath(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.FileCompleted, Path: "some/dir/file.txt", Size: 1024}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)

	output := out.String()
	// Directory should be dimmed (ANSI dim code present).
	assert.Contains(t, output, ansiDim)
	// Filename should be present after reset.
	assert.Contains(t, output, "file.txt")
}

func TestHudPresenterFileSkippedReason(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.FileSkipped, Path: "blob.bin", Size: 4096, Reason: "binary"}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "blob.bin")
	assert.Contains(t, output, "skipped (binary)")
}

func TestHudPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesWritten(500)
	collector.AddBytesWritten(1024 * 1024 * 100)

	p := &hudPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "done")
	assert.Contains(t, s, "files 500")
}

func TestHudPresenterSummaryWithVerify(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesWritten(100)
	collector.AddBytesWritten(1024 * 1024)
	collector.AddFilesVerified(100)

	p := &hudPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "verified 100")
	assert.Contains(t, s, "errors 0")
}

func TestTruncPath(t *testing.T) {
	assert.Equal(t, "short.txt", truncPath("short.txt", 20))
	assert.Equal(t, "...ry/long/path.txt", truncPath("a/very/long/directory/long/path.txt", 19))
	assert.Equal(t, "ab", truncPath("abcdef", 2))
}

func TestStyledPath(t *testing.T) {
	p := &hudPresenter{}

	// File without directory, no dim prefix.
	assert.Equal(t, "file.txt", p.styledPath("file.txt"))

	// File with directory, directory is dimmed.
	styled := p.styledPath("some/dir/file.txt")
	assert.Contains(t, styled, ansiDim+"some/dir/"+ansiReset+"file.txt")

	// Single directory level.
	styled = p.styledPath("dir/file.txt")
	assert.Contains(t, styled, ansiDim+"dir/"+ansiReset+"file.txt")
}

func TestStyledPathWithDstRoot(t *testing.T) {
	p := &hudPresenter{dstRoot: "/home/user/restored"}

	// Absolute path gets root stripped, then styled.
	styled := p.styledPath("/home/user/restored/photos/img.jpg")
	assert.NotContains(t, styled, "/home/user/restored")
	assert.Contains(t, styled, ansiDim+"photos/"+ansiReset+"img.jpg")

	// File directly in root.
	styled = p.styledPath("/home/user/restored/file.txt")
	assert.Equal(t, "file.txt", styled)
}

func TestStripRoot(t *testing.T) {
	assert.Equal(t, "sub/file.txt", StripRoot("/home/user/dst", "/home/user/dst/sub/file.txt"))
	assert.Equal(t, "file.txt", StripRoot("/home/user/dst", "/home/user/dst/file.txt"))
	assert.Equal(t, "/other/path/file.txt", StripRoot("/home/user/dst", "/other/path/file.txt"))
	assert.Equal(t, "file.txt", StripRoot("", "file.txt"))
}

func TestHudClearHUDSequence(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{
		w:     &out,
		stats: stats.NewCollector(),
	}

	// Draw HUD then clear it.
	p.drawHUD()
	assert.True(t, p.hudDrawn)
	assert.Equal(t, 2, p.hudLineCount) // 2 lines in non-rate mode

	out.Reset()
	p.clearHUD()
	// Should contain ANSI escape for cursor up.
	assert.Contains(t, out.String(), "\033[")
	assert.False(t, p.hudDrawn)
}

func TestHudClearHUDRateMode(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{
		w:        &out,
		stats:    stats.NewCollector(),
		rateMode: true,
	}

	p.drawHUD()
	assert.True(t, p.hudDrawn)
	assert.Equal(t, 3, p.hudLineCount) // 3 lines in rate mode (sparkline + 2 HUD)

	out.Reset()
	p.clearHUD()
	// Should move up 3 lines.
	assert.Contains(t, out.String(), "\033[3A")
}

func TestHudAlwaysRedrawsAfterFeedLine(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.FileCompleted, Path: "a.txt", Size: 100}
	events <- Event{Type: event.FileCompleted, Path: "b.txt", Size: 200}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)

	output := out.String()
	// Both files should appear.
	assert.Contains(t, output, "a.txt")
	assert.Contains(t, output, "b.txt")
	// The progress bar character should appear (HUD was drawn).
	assert.Contains(t, output, "□")
}

func TestHudPresenterRestoreStarted(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.RestoreStarted, Total: 10, TotalSize: 10240}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "restoring 10 files")
}

func TestHudPresenterVerifyFailed(t *testing.T) {
	var out bytes.Buffer
	collector := stats.NewCollector()
	collector.SetTotals(10, 10240)

	p := &hudPresenter{
		w:         &out,
		stats:     collector,
		forceFeed: true,
	}

	events := make(chan Event, 10)
	events <- Event{Type: event.VerifyFailed, Path: "bad/file.txt"}
	close(events)

	err := p.Run(events)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "file.txt")
	assert.Contains(t, output, "CHECKSUM MISMATCH")
}

func TestHudRateSwitchNotice(t *testing.T) {
	var out bytes.Buffer
	// Verify the notice format.
	fmt.Fprintf(&out, "↯ rate view (%s files/s · use --feed to see individual files)\n",
		FormatCount(int64(612)))
	assert.Contains(t, out.String(), "↯ rate view")
	assert.Contains(t, out.String(), "612 files/s")
	assert.Contains(t, out.String(), "use --feed")
}

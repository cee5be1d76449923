package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/davidlu1001/file-combiner/internal/stats"
)

// plainPresenter outputs one line per completed file to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   *stats.Collector
	dstRoot string
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	path := StripRoot(p.dstRoot, ev.Path)
	switch ev.Type {
	case FileCompleted:
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s\n", path, FormatBytes(ev.Size), FormatRate(speed))
	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s  %s\n", path, FormatBytes(ev.Size), errMsg)
	case FileSkipped:
		if ev.Reason != "" {
			fmt.Fprintf(p.w, "%s  skipped (%s)\n", path, ev.Reason)
		} else {
			fmt.Fprintf(p.w, "%s  skipped\n", path)
		}
	case RestoreStarted:
		fmt.Fprintf(p.errW, "restoring %s files (%s)\n",
			FormatCount(ev.Total), FormatBytes(ev.TotalSize))
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", path)
	case ScanStarted, ScanComplete, FileStarted, DirCreated:
		// Totals live on the collector; nothing to print per event.
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesWritten) / float64(snap.BytesTotal) * 100
		speed := p.stats.RollingSpeed(10)
		eta := p.stats.ETA()
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
			pct,
			FormatBytes(snap.BytesWritten), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesWritten), FormatCount(snap.FilesTotal),
			FormatRate(speed),
			FormatETA(eta),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s written %s files\n",
			FormatBytes(snap.BytesWritten),
			FormatCount(snap.FilesWritten),
		)
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

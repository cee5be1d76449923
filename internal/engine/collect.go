package engine

import (
	"context"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
)

// packItem pairs a finished manifest record with the file it came from.
type packItem struct {
	rec *archive.Record
	abs string
}

// analyze classifies every candidate concurrently and produces the
// ordered manifest. Worker count bounds the open file descriptors.
// Unreadable files are dropped from the manifest and counted as
// failures; the walk order of the survivors is preserved.
func (c *combiner) analyze(ctx context.Context, cands []candidate) ([]packItem, error) {
	records := make([]*archive.Record, len(cands))

	var g errgroup.Group
	g.SetLimit(c.cfg.Workers)
	for i, cand := range cands {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := c.analyzeOne(cand)
			if err != nil {
				slog.Warn("cannot analyze file", "path", cand.rel, "error", err)
				emit(c.cfg.Events, event.Event{Type: event.FileFailed, Path: cand.rel, Error: err})
				c.st.AddFilesFailed(1)
				c.record(err)
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]packItem, 0, len(cands))
	for i, rec := range records {
		if rec == nil {
			continue
		}
		items = append(items, packItem{rec: rec, abs: cands[i].abs})
	}
	return items, nil
}

// analyzeOne opens a candidate and builds its record. Files whose
// extension marks them as text get a full content scan so the stored
// line-ending style and trailing-newline flag are exact. Everything
// else only needs the sniff window, unless a checksum over the whole
// payload was requested.
func (c *combiner) analyzeOne(cand candidate) (*archive.Record, error) {
	f, err := os.Open(cand.abs)
	if err != nil {
		return nil, &archive.WalkError{Path: cand.rel, Err: err}
	}
	defer f.Close()

	extText := archive.TextExtension(cand.rel)

	var a *archive.Analysis
	if !extText && !c.cfg.Checksum {
		buf := make([]byte, archive.SniffWindow)
		n, rerr := io.ReadFull(f, buf)
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			return nil, &archive.WalkError{Path: cand.rel, Err: rerr}
		}
		if archive.SniffBinary(buf[:n]) {
			a = &archive.Analysis{Size: cand.size, Binary: true}
		} else {
			if _, serr := f.Seek(0, io.SeekStart); serr != nil {
				return nil, &archive.WalkError{Path: cand.rel, Err: serr}
			}
		}
	}
	if a == nil {
		a, err = archive.AnalyzeReader(f, extText, c.cfg.Checksum)
		if err != nil {
			return nil, &archive.WalkError{Path: cand.rel, Err: err}
		}
	}

	if a.Binary && c.cfg.IgnoreBinary {
		emit(c.cfg.Events, event.Event{Type: event.FileSkipped, Path: cand.rel, Size: a.Size, Reason: "binary"})
		c.st.AddFilesSkipped(1)
		return nil, nil
	}

	rec := &archive.Record{
		Path:    cand.rel,
		Size:    a.Size,
		Stored:  a.StoredSize(),
		Binary:  a.Binary,
		TickRun: a.TickRun,
	}
	if a.Clean() {
		rec.Encoding = archive.EncodingUTF8
		rec.EOL = a.EOL()
		rec.TrailingNewline = a.TrailingNewline
	} else {
		rec.Encoding = archive.EncodingBase64
	}
	if c.cfg.Preserve {
		rec.Mode = cand.mode.Perm()
		rec.ModTime = cand.mtime
	}
	if c.cfg.Checksum {
		rec.Checksum = a.PayloadSum()
	}
	return rec, nil
}

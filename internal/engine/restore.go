package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/stats"
)

// Payloads up to this size are buffered and written on a worker so the
// decode loop keeps draining the archive. Larger payloads stream
// straight to disk to bound memory.
const asyncCopyMax = 256 * 1024

// splitter carries one split run. The decode loop stays single
// threaded against the archive stream; only file writes fan out.
type splitter struct {
	cfg     SplitConfig
	st      *stats.Collector
	limiter *rate.Limiter

	seen        map[string]bool // archive paths, duplicate detection
	dirs        map[string]bool // created or verified directories
	createdRoot bool
	verifyFails int64

	mu      sync.Mutex
	errs    []error
	written []string
}

func (s *splitter) run(ctx context.Context) error {
	var src io.Reader
	if s.cfg.In == "-" {
		src = os.Stdin
	} else {
		f, err := os.Open(s.cfg.In)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer f.Close()
		src = f
	}
	if s.limiter != nil {
		src = newRateLimitedReader(ctx, src, s.limiter)
	}

	rr, algo, err := archive.NewDecompressor(src)
	if err != nil {
		return err
	}
	br := bufio.NewReaderSize(rr, 64*1024)

	head, _ := br.Peek(512)
	hint := s.cfg.In
	if hint == "-" {
		hint = ""
	}
	format, err := archive.ResolveFormat(s.cfg.Format, head, hint)
	if err != nil {
		return err
	}

	dec, err := archive.NewDecoder(format, br)
	if err != nil {
		return err
	}
	hdr := dec.Header()
	slog.Debug("opened archive",
		"format", format.String(),
		"compression", algo,
		"files", hdr.FileCount,
		"size", hdr.TotalSize)
	s.st.SetTotals(int64(hdr.FileCount), hdr.TotalSize)
	emit(s.cfg.Events, event.Event{
		Type:      event.RestoreStarted,
		Total:     int64(hdr.FileCount),
		TotalSize: hdr.TotalSize,
	})

	if !s.cfg.DryRun {
		if _, serr := os.Stat(s.cfg.Dst); os.IsNotExist(serr) {
			if merr := os.MkdirAll(s.cfg.Dst, 0o755); merr != nil {
				return fmt.Errorf("create %s: %w", s.cfg.Dst, merr)
			}
			s.createdRoot = true
			s.st.AddDirsCreated(1)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	var fatal error
	for {
		if cerr := ctx.Err(); cerr != nil {
			fatal = cerr
			break
		}
		rec, payload, derr := dec.Next()
		if derr == io.EOF {
			break
		}
		if derr != nil {
			fatal = derr
			break
		}
		s.st.AddFilesScanned(1)

		if s.seen[rec.Path] {
			fatal = &archive.DecodeError{Path: rec.Path, Reason: "duplicate archive path"}
			break
		}
		s.seen[rec.Path] = true

		dst, jerr := archive.SafeJoin(s.cfg.Dst, rec.Path)
		if jerr != nil {
			if !s.cfg.Lenient {
				fatal = jerr
				break
			}
			slog.Warn("skipping unsafe path", "path", rec.Path, "error", jerr)
			emit(s.cfg.Events, event.Event{Type: event.FileSkipped, Path: rec.Path, Reason: "unsafe path"})
			s.st.AddFilesSkipped(1)
			continue
		}

		if s.cfg.DryRun {
			emit(s.cfg.Events, event.Event{Type: event.FileCompleted, Path: rec.Path, Size: rec.Size})
			s.st.AddFilesWritten(1)
			continue
		}

		if rerr := s.restoreOne(ctx, &g, rec, payload, dst); rerr != nil {
			fatal = rerr
			break
		}
	}

	g.Wait()
	if fatal != nil {
		s.cleanup()
		return fatal
	}
	if n := s.verifyFails; n > 0 {
		s.record(fmt.Errorf("%d files failed checksum verification", n))
	}
	return s.aggregate()
}

// restoreOne handles a single archive entry. A non-nil return means
// the archive stream itself is unusable and the split must abort;
// filesystem trouble with one destination is recorded and the loop
// moves on.
func (s *splitter) restoreOne(ctx context.Context, g *errgroup.Group, rec *archive.Record, payload io.Reader, dst string) error {
	emit(s.cfg.Events, event.Event{Type: event.FileStarted, Path: rec.Path, Size: rec.Size})

	if err := s.ensureDir(filepath.Dir(dst), path.Dir(rec.Path)); err != nil {
		s.fileFailed(rec, err)
		return nil
	}

	raw := archive.RawReader(rec, payload)
	var h *blake3.Hasher
	if s.cfg.Verify && rec.Checksum != "" {
		h = blake3.New()
		raw = io.TeeReader(raw, h)
	}

	if rec.Size <= asyncCopyMax {
		buf, err := io.ReadAll(raw)
		if err != nil {
			return decodeFailure(rec.Path, err)
		}
		s.checkVerify(rec, h)
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if werr := s.writeFile(dst, rec, bytes.NewReader(buf)); werr != nil {
				s.fileFailed(rec, werr)
				return nil
			}
			s.fileDone(rec)
			return nil
		})
		return nil
	}

	if err := s.writeFile(dst, rec, raw); err != nil {
		if isArchiveCorruption(err) {
			return err
		}
		s.fileFailed(rec, err)
		return nil
	}
	s.checkVerify(rec, h)
	s.fileDone(rec)
	return nil
}

// writeFile materializes one payload at dst via a temp file in the
// same directory, so a crash or failure never leaves a half written
// file under the real name. Metadata is applied before the rename
// makes the file visible.
func (s *splitter) writeFile(dst string, rec *archive.Record, raw io.Reader) error {
	tmp := filepath.Join(filepath.Dir(dst), tmpName(filepath.Base(dst)))
	RegisterTmp(tmp)
	success := false
	defer func() {
		DeregisterTmp(tmp)
		if !success {
			os.Remove(tmp)
		}
	}()

	mode := fs.FileMode(0o644)
	if s.cfg.Preserve && rec.Mode != 0 {
		mode = rec.Mode.Perm()
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", rec.Path, err)
	}

	var w io.Writer = f
	var ew *eolWriter
	if !rec.Binary && rec.Encoding == archive.EncodingUTF8 {
		ew = &eolWriter{w: f, crlf: runtime.GOOS == "windows"}
		w = ew
	}
	if _, err := io.Copy(w, raw); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", rec.Path, err)
	}
	if ew != nil {
		if err := ew.reconcile(f, rec.TrailingNewline); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", rec.Path, err)
		}
	}
	if s.cfg.Preserve && (rec.Mode != 0 || !rec.ModTime.IsZero()) {
		if err := restoreMetadata(f, rec.Mode, rec.ModTime); err != nil {
			slog.Warn("preserve metadata", "path", rec.Path, "error", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", rec.Path, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename %s: %w", rec.Path, err)
	}
	success = true
	s.track(dst)
	return nil
}

// ensureDir creates the destination directory for one entry the first
// time a file lands in it. Decode-loop thread only.
func (s *splitter) ensureDir(absDir, relDir string) error {
	if s.dirs[absDir] {
		return nil
	}
	if fi, err := os.Stat(absDir); err == nil && fi.IsDir() {
		s.dirs[absDir] = true
		return nil
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", relDir, err)
	}
	s.dirs[absDir] = true
	s.st.AddDirsCreated(1)
	emit(s.cfg.Events, event.Event{Type: event.DirCreated, Path: relDir})
	return nil
}

// checkVerify compares the recomputed payload digest against the
// manifest. A mismatch is reported and counted but the restored file
// stays in place for inspection.
func (s *splitter) checkVerify(rec *archive.Record, h *blake3.Hasher) {
	if h == nil {
		return
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if sum != rec.Checksum {
		slog.Warn("checksum mismatch", "path", rec.Path, "want", rec.Checksum, "got", sum)
		emit(s.cfg.Events, event.Event{Type: event.VerifyFailed, Path: rec.Path})
		s.st.AddVerifyFailed(1)
		s.verifyFails++
		return
	}
	s.st.AddFilesVerified(1)
}

func (s *splitter) fileDone(rec *archive.Record) {
	emit(s.cfg.Events, event.Event{Type: event.FileCompleted, Path: rec.Path, Size: rec.Size})
	s.st.AddFilesWritten(1)
	s.st.AddBytesWritten(rec.Size)
}

func (s *splitter) fileFailed(rec *archive.Record, err error) {
	slog.Warn("cannot restore file", "path", rec.Path, "error", err)
	emit(s.cfg.Events, event.Event{Type: event.FileFailed, Path: rec.Path, Error: err})
	s.st.AddFilesFailed(1)
	s.record(err)
}

func (s *splitter) track(p string) {
	s.mu.Lock()
	s.written = append(s.written, p)
	s.mu.Unlock()
}

func (s *splitter) record(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *splitter) aggregate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return joinErrs(s.errs)
}

// cleanup undoes a fatally aborted split: either the whole output root
// when this run created it, or just the files this run renamed into
// place. Registered temp files are handled by their own deferred
// removal.
func (s *splitter) cleanup() {
	if s.cfg.DryRun {
		return
	}
	if s.createdRoot {
		if err := os.RemoveAll(s.cfg.Dst); err != nil {
			slog.Warn("cleanup failed", "path", s.cfg.Dst, "error", err)
		}
		return
	}
	s.mu.Lock()
	written := append([]string(nil), s.written...)
	s.mu.Unlock()
	for _, p := range written {
		if err := os.Remove(p); err != nil {
			slog.Warn("cleanup failed", "path", p, "error", err)
		}
	}
}

// decodeFailure classifies a payload read error as archive corruption.
func decodeFailure(path string, err error) error {
	var derr *archive.DecodeError
	if errors.As(err, &derr) {
		return err
	}
	return &archive.DecodeError{Path: path, Reason: "read payload", Err: err}
}

// isArchiveCorruption distinguishes a broken archive stream from a
// broken destination while a large payload streams to disk. The former
// aborts the split, the latter fails only the one file.
func isArchiveCorruption(err error) bool {
	var derr *archive.DecodeError
	if errors.As(err, &derr) {
		return true
	}
	var b64 base64.CorruptInputError
	return errors.As(err, &b64)
}

// eolWriter rewrites the LF-normalized payload of a text file into the
// platform line-ending convention as it streams to disk, and fixes up
// the trailing newline afterwards to match the recorded flag.
type eolWriter struct {
	w       io.Writer
	crlf    bool
	scratch []byte
	wrote   int64 // bytes landed in the underlying file
	last    byte
}

func (ew *eolWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	out := p
	if ew.crlf && bytes.IndexByte(p, '\n') >= 0 {
		ew.scratch = ew.scratch[:0]
		for _, b := range p {
			if b == '\n' {
				ew.scratch = append(ew.scratch, '\r', '\n')
			} else {
				ew.scratch = append(ew.scratch, b)
			}
		}
		out = ew.scratch
	}
	n, err := ew.w.Write(out)
	ew.wrote += int64(n)
	if n > 0 {
		ew.last = out[n-1]
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (ew *eolWriter) eol() []byte {
	if ew.crlf {
		return []byte{'\r', '\n'}
	}
	return []byte{'\n'}
}

// reconcile makes the file's final newline agree with the recorded
// flag: append one when the flag is set and the payload lacked it,
// truncate the spurious one when the flag is clear.
func (ew *eolWriter) reconcile(f *os.File, trailing bool) error {
	endsNL := ew.last == '\n'
	switch {
	case trailing && !endsNL:
		n, err := f.Write(ew.eol())
		ew.wrote += int64(n)
		return err
	case !trailing && endsNL:
		return f.Truncate(ew.wrote - int64(len(ew.eol())))
	}
	return nil
}

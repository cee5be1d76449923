package engine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/filter"
	"github.com/davidlu1001/file-combiner/internal/stats"
)

// candidate is one file selected by the walk, before classification.
type candidate struct {
	rel   string // posix-style path relative to the source root
	abs   string
	size  int64
	mode  fs.FileMode
	mtime time.Time
}

// walker performs the sequential lexicographic descent that fixes the
// manifest order. Directories are visited in name order, excluded
// directories are pruned without descending, and a visited set of
// resolved paths guards against symlink cycles.
type walker struct {
	chain    *filter.Chain
	ignore   *filter.Ignore
	maxSize  int64
	maxDepth int
	follow   bool
	skipAbs  string // the output archive itself, never a candidate
	events   chan<- event.Event
	st       *stats.Collector
	onErr    func(error)
	visited  map[string]bool
	files    []candidate
}

func (c *combiner) walk(ctx context.Context) ([]candidate, error) {
	w := &walker{
		chain:    c.cfg.Filter,
		maxSize:  c.cfg.MaxFileSize,
		maxDepth: c.cfg.MaxDepth,
		follow:   c.cfg.FollowSymlinks,
		events:   c.cfg.Events,
		st:       c.st,
		onErr:    c.record,
		visited:  make(map[string]bool),
	}
	if c.cfg.Gitignore {
		w.ignore = filter.NewIgnore()
	}
	if c.cfg.Out != "-" {
		if abs, err := filepath.Abs(c.cfg.Out); err == nil {
			w.skipAbs = abs
		}
	}
	root, err := filepath.Abs(c.cfg.Src)
	if err != nil {
		return nil, fmt.Errorf("resolve source: %w", err)
	}
	if err := w.scanDir(ctx, root, "", 0, true); err != nil {
		return nil, err
	}
	return w.files, nil
}

func (w *walker) scanDir(ctx context.Context, absDir, relDir string, depth int, isRoot bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	resolved, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		slog.Warn("cannot resolve directory", "path", absDir, "error", err)
		return nil
	}
	if w.visited[resolved] {
		return nil
	}
	w.visited[resolved] = true

	if w.ignore != nil {
		if f, oerr := os.Open(filepath.Join(absDir, ".gitignore")); oerr == nil {
			perr := w.ignore.Push(relDir, f)
			f.Close()
			if perr != nil {
				slog.Warn("cannot parse .gitignore", "dir", relDir, "error", perr)
			} else {
				defer w.ignore.Pop()
			}
		}
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		if isRoot {
			return &archive.WalkError{Path: absDir, Err: err}
		}
		slog.Warn("cannot scan directory", "path", absDir, "error", err)
		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := path.Join(relDir, entry.Name())
		abs := filepath.Join(absDir, entry.Name())

		isDir, info, ok := w.resolveEntry(entry, rel, abs)
		if !ok {
			continue
		}

		if isDir {
			if w.pruned(rel) {
				continue
			}
			if w.maxDepth > 0 && depth+1 > w.maxDepth {
				slog.Warn("maximum depth reached", "dir", rel, "depth", w.maxDepth)
				continue
			}
			if err := w.scanDir(ctx, abs, rel, depth+1, false); err != nil {
				return err
			}
			continue
		}

		w.addFile(rel, abs, info)
	}
	return nil
}

// resolveEntry decides how to treat one directory entry. Symlinks to
// files are read through; symlinks to directories descend only when
// following is enabled; broken links are dropped. Sockets, devices,
// and pipes are never archivable.
func (w *walker) resolveEntry(entry fs.DirEntry, rel, abs string) (isDir bool, info fs.FileInfo, ok bool) {
	t := entry.Type()
	switch {
	case t.IsDir():
		return true, nil, true
	case t&fs.ModeSymlink != 0:
		ti, err := os.Stat(abs)
		if err != nil {
			slog.Debug("skipping broken symlink", "path", rel, "error", err)
			return false, nil, false
		}
		if ti.IsDir() {
			return true, nil, w.follow
		}
		if !ti.Mode().IsRegular() {
			return false, nil, false
		}
		return false, ti, true
	case t.IsRegular():
		info, err := entry.Info()
		if err != nil {
			w.fileFailed(rel, err)
			return false, nil, false
		}
		return false, info, true
	default:
		return false, nil, false
	}
}

func (w *walker) addFile(rel, abs string, info fs.FileInfo) {
	if w.skipAbs != "" && abs == w.skipAbs {
		return
	}
	if w.chain != nil && w.chain.Excluded(rel, false) {
		w.st.AddFilesSkipped(1)
		return
	}
	if w.ignore != nil && w.ignore.Ignored(rel, false) {
		w.st.AddFilesSkipped(1)
		return
	}
	if w.chain != nil && !w.chain.Admitted(rel, false) {
		w.st.AddFilesSkipped(1)
		return
	}
	if w.maxSize > 0 && info.Size() > w.maxSize {
		serr := &archive.SizeLimitError{Path: rel, Size: info.Size(), Limit: w.maxSize}
		slog.Warn("skipping oversized file", "path", rel, "size", info.Size(), "limit", w.maxSize)
		emit(w.events, event.Event{
			Type:   event.FileSkipped,
			Path:   rel,
			Size:   info.Size(),
			Reason: serr.Error(),
		})
		w.st.AddFilesSkipped(1)
		return
	}
	w.files = append(w.files, candidate{
		rel:   rel,
		abs:   abs,
		size:  info.Size(),
		mode:  info.Mode(),
		mtime: info.ModTime(),
	})
	w.st.AddFilesScanned(1)
}

// pruned reports whether a directory is cut off by exclude or ignore
// rules before descending into it.
func (w *walker) pruned(rel string) bool {
	if w.chain != nil && w.chain.Excluded(rel, true) {
		return true
	}
	if w.ignore != nil && w.ignore.Ignored(rel, true) {
		return true
	}
	return false
}

func (w *walker) fileFailed(rel string, err error) {
	werr := &archive.WalkError{Path: rel, Err: err}
	slog.Warn("cannot read file", "path", rel, "error", err)
	emit(w.events, event.Event{Type: event.FileFailed, Path: rel, Error: werr})
	w.st.AddFilesFailed(1)
	if w.onErr != nil {
		w.onErr(werr)
	}
}

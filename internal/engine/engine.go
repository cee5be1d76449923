// Package engine orchestrates the two archive pipelines: combine walks
// a source tree, classifies its files, and streams them through a
// format encoder into one archive; split decodes an archive and
// restores the tree. Progress flows out as events, counters live in a
// stats.Collector, and all fatal paths remove their partial artifacts.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/filter"
	"github.com/davidlu1001/file-combiner/internal/stats"
)

// CombineConfig describes a combine operation.
type CombineConfig struct {
	Src            string
	Out            string // "-" writes the archive to stdout
	Format         archive.Format
	Compression    string // "none", "gzip", or "zstd"
	Workers        int    // metadata phase parallelism
	MaxFileSize    int64  // skip files larger than this, 0 = unlimited
	MaxDepth       int    // walk depth limit, 0 = unlimited
	FollowSymlinks bool   // descend into symlinked directories
	IgnoreBinary   bool   // skip files classified as binary
	Preserve       bool   // capture mode and mtime per record
	Checksum       bool   // capture blake3 checksums per record
	Gitignore      bool   // honor layered .gitignore rules
	DryRun         bool
	SourceLabel    string // header source field
	Generator      string // header generator field
	BWLimit        int64  // source read throttle in bytes/sec, 0 = unlimited
	Filter         *filter.Chain
	Events         chan<- event.Event
	Stats          *stats.Collector
}

// SplitConfig describes a split operation.
type SplitConfig struct {
	In       string // "-" reads the archive from stdin
	Dst      string
	Format   archive.Format // FormatUnknown resolves from content and name
	Workers  int            // restore write parallelism
	Preserve bool           // restore recorded mode and mtime
	Verify   bool           // recompute checksums against the manifest
	Lenient  bool           // skip unsafe entries instead of aborting
	DryRun   bool
	BWLimit  int64 // archive read throttle in bytes/sec, 0 = unlimited
	Events   chan<- event.Event
	Stats    *stats.Collector
}

// Result is the outcome of a combine or split operation.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// Combine packs cfg.Src into a single archive at cfg.Out.
func Combine(ctx context.Context, cfg CombineConfig) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers()
	}
	c := &combiner{cfg: cfg, st: cfg.Stats}
	if cfg.BWLimit > 0 {
		c.limiter = NewBWLimiter(cfg.BWLimit)
	}
	err := c.run(ctx)
	return Result{Stats: cfg.Stats.Snapshot(), Err: err}
}

// Split restores the archive at cfg.In into the directory cfg.Dst.
func Split(ctx context.Context, cfg SplitConfig) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers()
	}
	s := &splitter{
		cfg:  cfg,
		st:   cfg.Stats,
		seen: make(map[string]bool),
		dirs: make(map[string]bool),
	}
	if cfg.BWLimit > 0 {
		s.limiter = NewBWLimiter(cfg.BWLimit)
	}
	err := s.run(ctx)
	return Result{Stats: cfg.Stats.Snapshot(), Err: err}
}

func defaultWorkers() int {
	return min(runtime.NumCPU()*2, 32)
}

// combiner carries one combine run. Per-file failures accumulate in
// errs; structural failures abort the run directly.
type combiner struct {
	cfg     CombineConfig
	st      *stats.Collector
	limiter *rate.Limiter

	mu   sync.Mutex
	errs []error
}

func (c *combiner) run(ctx context.Context) error {
	info, err := os.Stat(c.cfg.Src)
	if err != nil {
		return fmt.Errorf("source %s: %w", c.cfg.Src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", c.cfg.Src)
	}

	c.emit(event.Event{Type: event.ScanStarted, Path: c.cfg.Src})

	cands, err := c.walk(ctx)
	if err != nil {
		return err
	}
	items, err := c.analyze(ctx, cands)
	if err != nil {
		return err
	}

	var total int64
	for _, it := range items {
		total += it.rec.Size
	}
	c.st.SetTotals(int64(len(items)), total)
	c.emit(event.Event{
		Type:      event.ScanComplete,
		Total:     int64(len(items)),
		TotalSize: total,
	})

	if c.cfg.DryRun {
		for _, it := range items {
			c.emit(event.Event{Type: event.FileCompleted, Path: it.rec.Path, Size: it.rec.Size})
			c.st.AddFilesWritten(1)
		}
		return c.aggregate()
	}

	hdr := &archive.Header{
		Format:      c.cfg.Format,
		Version:     archive.Version,
		Generator:   c.cfg.Generator,
		Source:      c.cfg.SourceLabel,
		FileCount:   len(items),
		TotalSize:   total,
		Created:     time.Now().UTC(),
		Compression: c.cfg.Compression,
	}

	if err := c.writeArchive(ctx, hdr, items); err != nil {
		return err
	}
	return c.aggregate()
}

// writeArchive encodes items into cfg.Out through a temp file that is
// renamed into place only on success, so an aborted combine never
// leaves a partial archive behind.
func (c *combiner) writeArchive(ctx context.Context, hdr *archive.Header, items []packItem) (err error) {
	out := os.Stdout
	tmp := ""
	if c.cfg.Out != "-" {
		dir, base := filepath.Split(c.cfg.Out)
		tmp = filepath.Join(dir, tmpName(base))
		RegisterTmp(tmp)
		f, oerr := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if oerr != nil {
			DeregisterTmp(tmp)
			return fmt.Errorf("create archive: %w", oerr)
		}
		out = f
		defer func() {
			if err == nil {
				err = f.Close()
				if err == nil {
					err = os.Rename(tmp, c.cfg.Out)
				}
			} else {
				_ = f.Close()
			}
			if err != nil {
				_ = os.Remove(tmp)
			}
			DeregisterTmp(tmp)
		}()
	}

	comp, err := archive.NewCompressor(out, c.cfg.Compression)
	if err != nil {
		return err
	}
	enc, err := archive.NewEncoder(c.cfg.Format, comp)
	if err != nil {
		return err
	}
	if m, ok := enc.(interface{ SetManifest([]*archive.Record) }); ok {
		recs := make([]*archive.Record, len(items))
		for i, it := range items {
			recs[i] = it.rec
		}
		m.SetManifest(recs)
	}

	if err := enc.Begin(hdr); err != nil {
		return err
	}
	if err := c.encodeAll(ctx, enc, items); err != nil {
		return err
	}
	if err := enc.End(); err != nil {
		return err
	}
	return comp.Close()
}

func (c *combiner) emit(ev event.Event) {
	emit(c.cfg.Events, ev)
}

func (c *combiner) record(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *combiner) aggregate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return joinErrs(c.errs)
}

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	err := errs[0]
	if len(errs) > 1 {
		err = fmt.Errorf("%w (and %d more errors)", err, len(errs)-1)
	}
	return err
}

// emit sends an event with its timestamp filled in. A nil channel
// disables events entirely.
func emit(ch chan<- event.Event, ev event.Event) {
	if ch == nil {
		return
	}
	ev.Timestamp = time.Now()
	ch <- ev
}

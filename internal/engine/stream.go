package engine

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
)

const (
	chunkSize     = 64 * 1024
	prefetchDepth = 2
)

var chunkPool = sync.Pool{
	New: func() any {
		buf := make([]byte, chunkSize)
		return &buf
	},
}

type chunk struct {
	buf *[]byte
	n   int
	err error
}

// fileStream carries one file's content from the prefetch goroutine to
// the encoder. The chunk channel is closed when the file is exhausted
// or has failed.
type fileStream struct {
	item   packItem
	chunks chan chunk
}

// prefetch reads manifest files ahead of the encoder, one at a time,
// so the encoder never waits on a cold open. Depth is bounded by the
// chunk channel capacity.
func (c *combiner) prefetch(ctx context.Context, items []packItem, streams chan<- *fileStream) {
	defer close(streams)
	for _, item := range items {
		fs := &fileStream{item: item, chunks: make(chan chunk, prefetchDepth)}
		select {
		case streams <- fs:
		case <-ctx.Done():
			close(fs.chunks)
			return
		}
		c.readInto(ctx, fs)
	}
}

func (c *combiner) readInto(ctx context.Context, fs *fileStream) {
	defer close(fs.chunks)

	f, err := os.Open(fs.item.abs)
	if err != nil {
		fs.send(ctx, chunk{err: &archive.WalkError{Path: fs.item.rec.Path, Err: err}})
		return
	}
	defer f.Close()

	var r io.Reader = f
	if c.limiter != nil {
		r = newRateLimitedReader(ctx, f, c.limiter)
	}

	for {
		buf := chunkPool.Get().(*[]byte)
		n, rerr := io.ReadFull(r, *buf)
		if n > 0 {
			if !fs.send(ctx, chunk{buf: buf, n: n}) {
				chunkPool.Put(buf)
				return
			}
		} else {
			chunkPool.Put(buf)
		}
		if rerr != nil {
			if rerr == io.ErrUnexpectedEOF {
				rerr = io.EOF
			}
			if rerr != io.EOF {
				fs.send(ctx, chunk{err: &archive.WalkError{Path: fs.item.rec.Path, Err: rerr}})
			}
			return
		}
	}
}

func (fs *fileStream) send(ctx context.Context, ck chunk) bool {
	select {
	case fs.chunks <- ck:
		return true
	case <-ctx.Done():
		return false
	}
}

// chunkReader adapts a fileStream back into an io.Reader for the
// encoder. Buffers return to the pool as they drain.
type chunkReader struct {
	chunks <-chan chunk
	cur    *[]byte
	off    int
	n      int
	err    error
}

func (cr *chunkReader) Read(p []byte) (int, error) {
	for {
		if cr.cur != nil {
			n := copy(p, (*cr.cur)[cr.off:cr.n])
			cr.off += n
			if cr.off == cr.n {
				chunkPool.Put(cr.cur)
				cr.cur = nil
			}
			return n, nil
		}
		if cr.err != nil {
			return 0, cr.err
		}
		ck, ok := <-cr.chunks
		if !ok {
			cr.err = io.EOF
			return 0, io.EOF
		}
		if ck.err != nil {
			cr.err = ck.err
			continue
		}
		cr.cur = ck.buf
		cr.off = 0
		cr.n = ck.n
	}
}

// encodeAll drives the encoder over every manifest item in walk order.
// Any encode failure is fatal because a half written record corrupts
// the archive.
func (c *combiner) encodeAll(ctx context.Context, enc archive.Encoder, items []packItem) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streams := make(chan *fileStream, 1)
	go c.prefetch(sctx, items, streams)

	for fs := range streams {
		if err := sctx.Err(); err != nil {
			return err
		}
		rec := fs.item.rec
		emit(c.cfg.Events, event.Event{Type: event.FileStarted, Path: rec.Path, Size: rec.Size})

		cr := &chunkReader{chunks: fs.chunks}
		payload := archive.PayloadReader(rec, cr)
		if err := enc.Emit(rec, payload); err != nil {
			if cerr := sctx.Err(); cerr != nil {
				return cerr
			}
			emit(c.cfg.Events, event.Event{Type: event.FileFailed, Path: rec.Path, Error: err})
			return err
		}

		emit(c.cfg.Events, event.Event{Type: event.FileCompleted, Path: rec.Path, Size: rec.Size})
		c.st.AddFilesWritten(1)
		c.st.AddBytesWritten(rec.Size)
	}
	return sctx.Err()
}

package engine_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/event"
)

// srcFiles is the standard source tree: LF and CRLF text, text without
// a trailing newline, an empty file, binaries small and large, a
// markdown file full of fences, and a large text file that crosses the
// streaming thresholds.
func srcFiles() map[string][]byte {
	big := make([]byte, 320*1024)
	for i := range big {
		big[i] = byte(i % 251)
	}
	return map[string][]byte{
		"hello.txt":         []byte("hello world\n"),
		"crlf.txt":          []byte("line one\r\nline two\r\n"),
		"noeol.md":          []byte("# no trailing newline"),
		"empty.txt":         nil,
		"data.bin":          {0x00, 0x01, 0x02, 0xff, 0xfe, 0x00, 'P', 'N', 'G'},
		"big.bin":           big,
		"big.txt":           []byte(strings.Repeat("0123456789abcdef0123456789abcde\n", 9375)),
		"ticks.md":          []byte("```go\nfmt.Println(\"x\")\n```\n"),
		"sub/nested.go":     []byte("package sub\n\nfunc Nested() int { return 1 }\n"),
		"sub/deep/leaf.yml": []byte("leaf: true\n"),
		"with space.txt":    []byte("spaces in names\n"),
	}
}

// restoredFiles is srcFiles after one round trip: CRLF normalizes to
// LF, everything else is byte-identical.
func restoredFiles() map[string][]byte {
	m := srcFiles()
	m["crlf.txt"] = []byte("line one\nline two\n")
	return m
}

func writeTree(t *testing.T, root string, files map[string][]byte) {
	t.Helper()
	for rel, data := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
}

// verifyTree asserts root contains exactly the files in want, with
// matching content.
func verifyTree(t *testing.T, root string, want map[string][]byte) {
	t.Helper()
	got := map[string][]byte{}
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, rerr := filepath.Rel(root, p)
		require.NoError(t, rerr)
		data, rerr := os.ReadFile(p)
		require.NoError(t, rerr)
		got[filepath.ToSlash(rel)] = data
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for rel, data := range want {
		require.Contains(t, got, rel, "missing file %s", rel)
		assert.Equal(t, string(data), string(got[rel]), "content mismatch: %s", rel)
	}
}

func archiveExt(f archive.Format) string {
	if f == archive.FormatMarkdown {
		return "md"
	}
	return f.String()
}

// readManifest decodes an archive and returns its entry paths in
// stream order.
func readManifest(t *testing.T, path string, format archive.Format) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rr, _, err := archive.NewDecompressor(f)
	require.NoError(t, err)
	dec, err := archive.NewDecoder(format, rr)
	require.NoError(t, err)
	var paths []string
	for {
		rec, _, err := dec.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		paths = append(paths, rec.Path)
	}
	return paths
}

// drainEvents creates a buffered event channel, spawns a goroutine to
// drain it, and registers cleanup. Returns the channel for use in an
// engine config.
func drainEvents(t *testing.T) chan<- event.Event {
	t.Helper()
	ch := make(chan event.Event, 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		//nolint:revive // empty-block: intentionally draining event channel
		for range ch {
		}
	}()
	t.Cleanup(func() {
		close(ch)
		<-done
	})
	return ch
}

// collectEvents creates a buffered event channel that records all
// events. Returns the channel and a getter that closes the channel,
// waits for the drain goroutine, and returns the collected slice. The
// getter may be called at most once; if it is never called, t.Cleanup
// closes the channel on test exit.
func collectEvents(t *testing.T) (chan<- event.Event, func() []event.Event) {
	t.Helper()
	ch := make(chan event.Event, 4096)
	var collected []event.Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			collected = append(collected, ev)
		}
	}()
	var once sync.Once
	drain := func() {
		once.Do(func() { close(ch) })
		<-done
	}
	t.Cleanup(drain)
	return ch, func() []event.Event {
		drain()
		return collected
	}
}

// findTmpFiles returns any .fc-tmp files found under root.
func findTmpFiles(t *testing.T, root string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasSuffix(d.Name(), ".fc-tmp") {
			found = append(found, path)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

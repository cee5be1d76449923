package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidlu1001/file-combiner/internal/archive"
	"github.com/davidlu1001/file-combiner/internal/engine"
	"github.com/davidlu1001/file-combiner/internal/event"
	"github.com/davidlu1001/file-combiner/internal/filter"
)

func TestCombineSplitRoundTrip(t *testing.T) {
	t.Parallel()
	for _, format := range archive.Formats() {
		t.Run(format.String(), func(t *testing.T) {
			t.Parallel()
			work := t.TempDir()
			src := filepath.Join(work, "src")
			writeTree(t, src, srcFiles())

			out := filepath.Join(work, "combined."+archiveExt(format))
			res := engine.Combine(context.Background(), engine.CombineConfig{
				Src:      src,
				Out:      out,
				Format:   format,
				Checksum: true,
				Events:   drainEvents(t),
			})
			require.NoError(t, res.Err)
			assert.EqualValues(t, len(srcFiles()), res.Stats.FilesWritten)
			assert.Zero(t, res.Stats.FilesFailed)

			dst := filepath.Join(work, "restored")
			res = engine.Split(context.Background(), engine.SplitConfig{
				In:     out,
				Dst:    dst,
				Verify: true,
				Events: drainEvents(t),
			})
			require.NoError(t, res.Err)
			verifyTree(t, dst, restoredFiles())
			assert.EqualValues(t, len(srcFiles()), res.Stats.FilesVerified)
			assert.Zero(t, res.Stats.VerifyFailed)
			assert.Empty(t, findTmpFiles(t, work))
		})
	}
}

func TestCombineSplitCompressed(t *testing.T) {
	t.Parallel()
	for _, algo := range []string{archive.CompressionGzip, archive.CompressionZstd} {
		t.Run(algo, func(t *testing.T) {
			t.Parallel()
			work := t.TempDir()
			src := filepath.Join(work, "src")
			writeTree(t, src, srcFiles())

			out := filepath.Join(work, "combined.txt."+algo)
			res := engine.Combine(context.Background(), engine.CombineConfig{
				Src:         src,
				Out:         out,
				Format:      archive.FormatTxt,
				Compression: algo,
				Events:      drainEvents(t),
			})
			require.NoError(t, res.Err)

			// The split relies on the magic bytes alone.
			dst := filepath.Join(work, "restored")
			res = engine.Split(context.Background(), engine.SplitConfig{
				In:     out,
				Dst:    dst,
				Events: drainEvents(t),
			})
			require.NoError(t, res.Err)
			verifyTree(t, dst, restoredFiles())
		})
	}
}

func TestCombineOrdersManifest(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"b.txt":   []byte("b\n"),
		"a/z.txt": []byte("z\n"),
		"a/a.txt": []byte("a\n"),
		"c.txt":   []byte("c\n"),
	})

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		Events: drainEvents(t),
	})
	require.NoError(t, res.Err)

	assert.Equal(t,
		[]string{"a/a.txt", "a/z.txt", "b.txt", "c.txt"},
		readManifest(t, out, archive.FormatTxt))
}

func TestCombineRespectsFilter(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"app.go":        []byte("package app\n"),
		"debug.log":     []byte("noise\n"),
		"logs/more.log": []byte("noise\n"),
		"logs/keep.txt": []byte("kept\n"),
	})

	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("*.log"))

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		Filter: chain,
		Events: drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.Equal(t,
		[]string{"app.go", "logs/keep.txt"},
		readManifest(t, out, archive.FormatTxt))
	assert.EqualValues(t, 2, res.Stats.FilesSkipped)
}

func TestCombineIncludeAllowlist(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"main.go":    []byte("package main\n"),
		"util.go":    []byte("package main\n"),
		"readme.txt": []byte("docs\n"),
		"sub/x.go":   []byte("package sub\n"),
	})

	chain := filter.NewChain()
	require.NoError(t, chain.AddInclude("*.go"))

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		Filter: chain,
		Events: drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.Equal(t,
		[]string{"main.go", "sub/x.go", "util.go"},
		readManifest(t, out, archive.FormatTxt))
}

func TestCombineRespectsGitignore(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		".gitignore":     []byte("*.tmp\nscratch/\n"),
		"kept.txt":       []byte("kept\n"),
		"junk.tmp":       []byte("junk\n"),
		"scratch/sc.txt": []byte("scratch\n"),
		"sub/.gitignore": []byte("local.txt\n"),
		"sub/local.txt":  []byte("local\n"),
		"sub/kept.txt":   []byte("kept\n"),
	})

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:       src,
		Out:       out,
		Format:    archive.FormatTxt,
		Gitignore: true,
		Events:    drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.Equal(t,
		[]string{".gitignore", "kept.txt", "sub/.gitignore", "sub/kept.txt"},
		readManifest(t, out, archive.FormatTxt))
}

func TestCombineMaxFileSize(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"at-limit.txt":   make([]byte, 100),
		"over-limit.txt": make([]byte, 101),
	})

	events, getEvents := collectEvents(t)
	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:         src,
		Out:         out,
		Format:      archive.FormatTxt,
		MaxFileSize: 100,
		Events:      events,
	})
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"at-limit.txt"}, readManifest(t, out, archive.FormatTxt))
	assert.EqualValues(t, 1, res.Stats.FilesSkipped)

	var skips []event.Event
	for _, ev := range getEvents() {
		if ev.Type == event.FileSkipped {
			skips = append(skips, ev)
		}
	}
	require.Len(t, skips, 1)
	assert.Equal(t, "over-limit.txt", skips[0].Path)
	assert.Contains(t, skips[0].Reason, "exceeds limit")
}

func TestCombineIgnoreBinary(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"note.txt": []byte("text\n"),
		"blob.bin": {0x00, 0xff, 0x00, 0x01},
	})

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:          src,
		Out:          out,
		Format:       archive.FormatTxt,
		IgnoreBinary: true,
		Events:       drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"note.txt"}, readManifest(t, out, archive.FormatTxt))
	assert.EqualValues(t, 1, res.Stats.FilesSkipped)
}

func TestCombineDryRun(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, srcFiles())

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		DryRun: true,
		Events: drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.EqualValues(t, len(srcFiles()), res.Stats.FilesWritten)

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "dry run must not create the archive")
}

func TestCombineSkipsOwnOutput(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{
		"real.txt":     []byte("real\n"),
		"combined.txt": []byte("stale archive from a previous run\n"),
	})

	// Output lands inside the source tree under a pre-existing name.
	out := filepath.Join(src, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		Events: drainEvents(t),
	})
	require.NoError(t, res.Err)
	assert.Equal(t, []string{"real.txt"}, readManifest(t, out, archive.FormatTxt))
}

func TestCombineSourceErrors(t *testing.T) {
	t.Parallel()
	work := t.TempDir()

	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    filepath.Join(work, "missing"),
		Out:    filepath.Join(work, "out.txt"),
		Format: archive.FormatTxt,
	})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "source")

	file := filepath.Join(work, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	res = engine.Combine(context.Background(), engine.CombineConfig{
		Src:    file,
		Out:    filepath.Join(work, "out.txt"),
		Format: archive.FormatTxt,
	})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "not a directory")
}

func TestCombineCancelledContext(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, srcFiles())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(ctx, engine.CombineConfig{
		Src:    src,
		Out:    out,
		Format: archive.FormatTxt,
		Events: drainEvents(t),
	})
	require.ErrorIs(t, res.Err, context.Canceled)

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "cancelled combine must not leave an archive")
	assert.Empty(t, findTmpFiles(t, work))
}

func TestCombineEmitsEvents(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{"only.txt": []byte("only\n")})

	events, getEvents := collectEvents(t)
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:    src,
		Out:    filepath.Join(work, "combined.txt"),
		Format: archive.FormatTxt,
		Events: events,
	})
	require.NoError(t, res.Err)

	var types []event.Type
	for _, ev := range getEvents() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []event.Type{
		event.ScanStarted,
		event.ScanComplete,
		event.FileStarted,
		event.FileCompleted,
	}, types)
}

func TestCombineBWLimit(t *testing.T) {
	t.Parallel()
	work := t.TempDir()
	src := filepath.Join(work, "src")
	writeTree(t, src, map[string][]byte{"f.txt": []byte("throttled content\n")})

	// Limit far above the payload; verifies the throttled path stays
	// correct, not the throughput.
	out := filepath.Join(work, "combined.txt")
	res := engine.Combine(context.Background(), engine.CombineConfig{
		Src:     src,
		Out:     out,
		Format:  archive.FormatTxt,
		BWLimit: 1 << 20,
		Events:  drainEvents(t),
	})
	require.NoError(t, res.Err)

	dst := filepath.Join(work, "restored")
	res = engine.Split(context.Background(), engine.SplitConfig{
		In:      out,
		Dst:     dst,
		BWLimit: 1 << 20,
		Events:  drainEvents(t),
	})
	require.NoError(t, res.Err)
	verifyTree(t, dst, map[string][]byte{"f.txt": []byte("throttled content\n")})
}

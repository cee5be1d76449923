package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTmpName(t *testing.T) {
	t.Parallel()
	a := tmpName("report.txt")
	b := tmpName("report.txt")

	assert.True(t, strings.HasPrefix(a, ".report.txt."))
	assert.True(t, strings.HasSuffix(a, ".fc-tmp"))
	assert.NotEqual(t, a, b, "names must be unique per call")
}

func TestTmpRegistryCleanup(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, tmpName("kept"))
	swept := filepath.Join(dir, tmpName("swept"))
	require.NoError(t, os.WriteFile(kept, []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(swept, []byte("s"), 0o644))

	RegisterTmp(kept)
	RegisterTmp(swept)
	DeregisterTmp(kept)

	CleanupTmpFiles()

	_, err := os.Stat(kept)
	assert.NoError(t, err, "deregistered file must survive the sweep")
	_, err = os.Stat(swept)
	assert.True(t, os.IsNotExist(err), "registered file must be removed")
}

package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePath(t *testing.T) {
	valid := []string{"a.txt", "a/b/c.go", "dir with space/x", "weird!@#$.bin", "a/.hidden"}
	for _, p := range valid {
		assert.NoError(t, ValidatePath(p), "path=%q", p)
	}

	invalid := map[string]string{
		"":            "empty path",
		"/etc/passwd": "absolute path",
		"a//b":        "empty path segment",
		"a/":          "empty path segment",
		"..":          "parent-traversal",
		"../x":        "parent-traversal",
		"a/../b":      "parent-traversal",
		".":           "parent-traversal",
		"a/./b":       "parent-traversal",
		"nul\x00byte": "null byte",
	}
	for p, want := range invalid {
		err := ValidatePath(p)
		var serr *SecurityError
		require.ErrorAs(t, err, &serr, "path=%q", p)
		assert.Contains(t, err.Error(), want, "path=%q", p)
	}
}

func TestSafeJoin(t *testing.T) {
	root := t.TempDir()

	got, err := SafeJoin(root, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), got)

	var serr *SecurityError
	_, err = SafeJoin(root, "../outside.txt")
	require.ErrorAs(t, err, &serr)

	_, err = SafeJoin(root, "a/../../outside.txt")
	require.ErrorAs(t, err, &serr)
}

package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainAdmitsAll(t *testing.T) {
	c := NewChain()
	assert.False(t, c.Excluded("any/file.txt", false))
	assert.False(t, c.Excluded("any/dir", true))
	assert.True(t, c.Admitted("any/file.txt", false))
	assert.True(t, c.Empty())
}

func TestExcludePattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.log"))

	assert.True(t, c.Excluded("app.log", false))
	assert.True(t, c.Excluded("sub/debug.log", false))
	assert.False(t, c.Excluded("app.txt", false))
}

func TestExclusionBeatsInclusion(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("important.log"))
	require.NoError(t, c.AddExclude("*.log"))

	// Excludes are evaluated first regardless of rule order.
	assert.True(t, c.Excluded("important.log", false))
	assert.True(t, c.Excluded("debug.log", false))
}

func TestIncludeAllowlist(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("*.go"))

	assert.True(t, c.Admitted("main.go", false))
	assert.True(t, c.Admitted("internal/engine/engine.go", false))
	assert.False(t, c.Admitted("readme.md", false))
}

func TestIncludeNeverBlocksDirectories(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("*.go"))

	// Directories must stay reachable so the walk can find the
	// included files beneath them.
	assert.True(t, c.Admitted("internal", true))
	assert.True(t, c.Admitted("internal/engine", true))
}

func TestDirOnlyExclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("build/"))

	assert.True(t, c.Excluded("build", true))
	assert.False(t, c.Excluded("build", false)) // file named "build" is not excluded
}

func TestPathShapedExclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("./src/vendor"))

	// A literal path excludes the whole subtree.
	assert.True(t, c.Excluded("src/vendor", true))
	assert.True(t, c.Excluded("src/vendor/lib.go", false))
	assert.False(t, c.Excluded("src/vendored", true))
	assert.False(t, c.Excluded("other/src/vendor", true))
}

func TestPathShapedInclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("./docs"))

	assert.True(t, c.Admitted("docs/guide.md", false))
	assert.False(t, c.Admitted("readme.md", false))
}

func TestBadPatternError(t *testing.T) {
	c := NewChain()
	err := c.AddExclude("[z-a]")

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "[z-a]", ferr.Pattern)
}

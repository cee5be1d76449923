package filter

import "fmt"

// Error reports an invalid filter pattern. It is returned while a chain
// is being built, before any walking starts.
type Error struct {
	Pattern string
	Reason  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid filter pattern %q: %s", e.Pattern, e.Reason)
}

// Chain holds compiled exclude and include patterns. Exclusion always
// wins: a path matching any exclude is out, even when an include also
// matches it. Includes form an allowlist for files only; directories
// pass so the walk can descend into them.
type Chain struct {
	excludes []*compiledPattern
	includes []*compiledPattern
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude pattern.
func (c *Chain) AddExclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.excludes = append(c.excludes, cp)
	return nil
}

// AddInclude adds an include pattern.
func (c *Chain) AddInclude(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	c.includes = append(c.includes, cp)
	return nil
}

// Empty reports whether the chain has no rules.
func (c *Chain) Empty() bool {
	return len(c.excludes) == 0 && len(c.includes) == 0
}

// Excluded reports whether relPath matches any exclude pattern.
// relPath is posix-style and relative to the walk root.
func (c *Chain) Excluded(relPath string, isDir bool) bool {
	for _, cp := range c.excludes {
		if cp.match(relPath, isDir) {
			return true
		}
	}
	return false
}

// Admitted reports whether relPath passes the include allowlist. With
// no include patterns everything is admitted. Directories are always
// admitted; pruning is the exclude patterns' job.
func (c *Chain) Admitted(relPath string, isDir bool) bool {
	if isDir || len(c.includes) == 0 {
		return true
	}
	for _, cp := range c.includes {
		if cp.match(relPath, false) {
			return true
		}
	}
	return false
}

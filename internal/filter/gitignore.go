package filter

import (
	"bufio"
	"io"
	"regexp"
	"strings"
)

// Ignore evaluates layered .gitignore rules. The walker pushes a scope
// when it enters a directory containing a .gitignore and pops it on the
// way out. Deeper scopes take precedence over shallower ones, and
// within one file the last matching rule wins.
type Ignore struct {
	scopes []*ignoreScope
}

type ignoreScope struct {
	dir   string // root-relative posix dir, "" for the root itself
	rules []ignoreRule
}

type ignoreRule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
}

// NewIgnore creates an empty rule stack.
func NewIgnore() *Ignore {
	return &Ignore{}
}

// Push parses r as a .gitignore file scoped to dir and activates its
// rules. dir is root-relative and posix-style ("" for the root).
// Unparseable lines are skipped, matching git's own tolerance.
func (ig *Ignore) Push(dir string, r io.Reader) error {
	sc := &ignoreScope{dir: dir}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if rule, ok := parseIgnoreRule(scanner.Text()); ok {
			sc.rules = append(sc.rules, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	ig.scopes = append(ig.scopes, sc)
	return nil
}

// Pop deactivates the most recently pushed scope.
func (ig *Ignore) Pop() {
	if len(ig.scopes) > 0 {
		ig.scopes = ig.scopes[:len(ig.scopes)-1]
	}
}

// Ignored reports whether relPath is excluded by the active rule stack.
// Re-inclusion under an ignored parent is not evaluated here; the
// walker prunes ignored directories outright, which matches git.
func (ig *Ignore) Ignored(relPath string, isDir bool) bool {
	for i := len(ig.scopes) - 1; i >= 0; i-- {
		sc := ig.scopes[i]
		rel, ok := scopeRel(sc.dir, relPath)
		if !ok {
			continue
		}
		for j := len(sc.rules) - 1; j >= 0; j-- {
			rule := sc.rules[j]
			if rule.dirOnly && !isDir {
				continue
			}
			if rule.re.MatchString(rel) {
				return !rule.negate
			}
		}
	}
	return false
}

// scopeRel rewrites relPath relative to the scope dir, or reports that
// the path lies outside the scope.
func scopeRel(dir, relPath string) (string, bool) {
	if dir == "" {
		return relPath, true
	}
	if strings.HasPrefix(relPath, dir+"/") {
		return relPath[len(dir)+1:], true
	}
	return "", false
}

// parseIgnoreRule compiles one .gitignore line. The second return is
// false for blanks, comments, and lines that reduce to nothing.
func parseIgnoreRule(line string) (ignoreRule, bool) {
	var rule ignoreRule

	// Trailing spaces are ignored unless backslash-escaped.
	for strings.HasSuffix(line, " ") && !strings.HasSuffix(line, `\ `) {
		line = line[:len(line)-1]
	}
	line = strings.ReplaceAll(line, `\ `, " ")

	if line == "" || strings.HasPrefix(line, "#") {
		return rule, false
	}

	if strings.HasPrefix(line, "!") {
		rule.negate = true
		line = line[1:]
	}
	// \# and \! introduce literal # and ! patterns.
	if strings.HasPrefix(line, `\#`) || strings.HasPrefix(line, `\!`) {
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	// A slash anywhere anchors the pattern to the scope dir; otherwise
	// it floats and matches the basename at any depth below it.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule, false
	}

	reStr := globToRegex(line)
	if anchored {
		reStr = "^" + reStr + "$"
	} else {
		reStr = "(^|/)" + reStr + "$"
	}

	re, err := regexp.Compile(reStr)
	if err != nil {
		return rule, false
	}
	rule.re = re
	return rule, true
}

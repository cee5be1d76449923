package filter

import (
	"regexp"
	"strings"
)

// compiledPattern matches root-relative posix paths. Two shapes exist:
// path-shaped patterns ("./src/vendor", "/docs") become directory-prefix
// matchers covering the named path and everything beneath it, and
// glob-shaped patterns compile to an anchored or floating regexp.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	prefix   string // non-empty for path-shaped patterns
	anchored bool   // pattern contains /
	dirOnly  bool   // pattern ends with /
}

// compilePattern converts a glob or path pattern into a compiled matcher.
func compilePattern(pattern string) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	p := pattern

	// Trailing / means directory-only.
	if strings.HasSuffix(p, "/") {
		cp.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}

	// Path-shaped: an explicit path with no glob metacharacters turns
	// into a prefix match on the whole subtree.
	if pathShaped(p) {
		p = strings.TrimPrefix(p, "./")
		p = strings.TrimPrefix(p, "/")
		if p == "" {
			return nil, &Error{Pattern: pattern, Reason: "empty path"}
		}
		cp.prefix = p
		return cp, nil
	}

	// A leading ./ or / means anchored to root.
	if strings.HasPrefix(p, "./") {
		cp.anchored = true
		p = strings.TrimPrefix(p, "./")
	} else if strings.HasPrefix(p, "/") {
		cp.anchored = true
		p = strings.TrimPrefix(p, "/")
	} else if strings.Contains(p, "/") {
		// Contains a / but doesn't start with one, still anchored.
		cp.anchored = true
	}

	reStr := globToRegex(p)

	if cp.anchored {
		// Match from the start of the relative path.
		reStr = "^" + reStr + "$"
	} else {
		// Match against basename or any path suffix.
		reStr = "(^|/)" + reStr + "$"
	}

	re, err := regexp.Compile(reStr)
	if err != nil {
		return nil, &Error{Pattern: pattern, Reason: err.Error()}
	}
	cp.re = re
	return cp, nil
}

// pathShaped reports whether p names a literal path rather than a glob.
func pathShaped(p string) bool {
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "./") {
		return false
	}
	return !strings.ContainsAny(p, "*?[")
}

// match tests whether a relative path matches this pattern.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir && cp.prefix == "" {
		return false
	}
	if cp.prefix != "" {
		return relPath == cp.prefix || strings.HasPrefix(relPath, cp.prefix+"/")
	}
	return cp.re.MatchString(relPath)
}

// globToRegex converts a glob pattern to a regex string.
//
//nolint:gocyclo,revive // cognitive-complexity: character-by-character glob parser
func globToRegex(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				// ** matches anything including /
				if i+2 < len(pattern) && pattern[i+2] == '/' {
					b.WriteString("(.*/)?")
					i += 3
				} else {
					b.WriteString(".*")
					i += 2
				}
			} else {
				// * matches anything except /
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			// Character class, pass through to regex.
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				cls := pattern[i+1 : j]
				// Convert ! to ^ for negation.
				if strings.HasPrefix(cls, "!") {
					cls = "^" + cls[1:]
				}
				b.WriteString("[" + cls + "]")
				i = j + 1
			} else {
				b.WriteString(regexp.QuoteMeta(string(c)))
				i++
			}
		case '.', '(', ')', '+', '{', '}', '^', '$', '|', '\\':
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

package archive

import (
	"path/filepath"
	"runtime"
	"strings"
)

// ValidatePath enforces the relative-path invariant shared by the
// encoders and the restorer: posix-style, strictly relative, no
// parent-traversal segments, no embedded null bytes.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return &SecurityError{Path: p, Reason: "empty path"}
	case strings.ContainsRune(p, 0):
		return &SecurityError{Path: p, Reason: "embedded null byte"}
	case strings.HasPrefix(p, "/"):
		return &SecurityError{Path: p, Reason: "absolute path"}
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return &SecurityError{Path: p, Reason: "empty path segment"}
		case ".", "..":
			return &SecurityError{Path: p, Reason: "parent-traversal segment"}
		}
	}
	if runtime.GOOS == "windows" {
		// Backslashes and drive colons would re-introduce separators
		// and absolute paths after the posix checks above.
		if strings.ContainsAny(p, `\:`) {
			return &SecurityError{Path: p, Reason: "reserved character in path"}
		}
	}
	return nil
}

// SafeJoin joins rel beneath root and guarantees the result cannot
// resolve outside root. rel must already satisfy ValidatePath.
func SafeJoin(root, rel string) (string, error) {
	if err := ValidatePath(rel); err != nil {
		return "", err
	}
	dest := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, dest)
	if err != nil {
		return "", &SecurityError{Path: rel, Reason: "path escapes output root"}
	}
	if r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", &SecurityError{Path: rel, Reason: "path escapes output root"}
	}
	return dest, nil
}

package archive

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies one of the five archive grammars.
type Format int

const (
	FormatUnknown Format = iota
	FormatTxt
	FormatXML
	FormatJSON
	FormatMarkdown
	FormatYAML
)

// Version is the newest archive format version this build understands.
// Decoders fail closed on anything newer.
const Version = 1

// archiveTitle is the human-readable banner shared by the txt, yaml,
// and markdown grammars. The txt and yaml variants append an explicit
// format declaration; markdown's first line is the bare title.
const archiveTitle = "# Combined Files Archive"

var formatNames = [...]string{
	FormatUnknown:  "unknown",
	FormatTxt:      "txt",
	FormatXML:      "xml",
	FormatJSON:     "json",
	FormatMarkdown: "markdown",
	FormatYAML:     "yaml",
}

func (f Format) String() string {
	if f > FormatUnknown && int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

// Formats lists the supported grammars in declaration order.
func Formats() []Format {
	return []Format{FormatTxt, FormatXML, FormatJSON, FormatMarkdown, FormatYAML}
}

// ParseFormat maps a user-supplied format name. "auto" and the empty
// string map to FormatUnknown without error, deferring to detection.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatUnknown, nil
	case "txt", "text":
		return FormatTxt, nil
	case "xml":
		return FormatXML, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return FormatUnknown, fmt.Errorf("unknown format %q (txt, xml, json, markdown, yaml)", s)
}

// FormatForPath returns the extension hint for an archive filename,
// looking through compression suffixes.
func FormatForPath(name string) Format {
	name = strings.ToLower(name)
	for _, suffix := range []string{".gz", ".gzip", ".zst", ".zstd"} {
		name = strings.TrimSuffix(name, suffix)
	}
	switch filepath.Ext(name) {
	case ".txt":
		return FormatTxt
	case ".xml":
		return FormatXML
	case ".json":
		return FormatJSON
	case ".md", ".markdown":
		return FormatMarkdown
	case ".yml", ".yaml":
		return FormatYAML
	}
	return FormatUnknown
}

// DetectFormat recognizes an archive's self-identification from the
// first bytes of the decompressed stream.
func DetectFormat(head []byte) Format {
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte("<?xml")):
		return FormatXML
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	}

	line, _, _ := bytes.Cut(head, []byte("\n"))
	first := strings.TrimRight(string(line), "\r")
	switch {
	case strings.HasPrefix(first, archiveTitle+" -- format: txt"):
		return FormatTxt
	case strings.HasPrefix(first, archiveTitle+" -- format: yaml"):
		return FormatYAML
	case first == archiveTitle:
		return FormatMarkdown
	}
	return FormatUnknown
}

// ResolveFormat picks the grammar for a split: an explicit override is
// definitive; otherwise the archive's own signature decides, with the
// filename consulted only as a cross-check or fallback. A filename
// hint that contradicts the detected signature is a decode failure,
// never a silent coercion.
func ResolveFormat(override Format, head []byte, filename string) (Format, error) {
	if override != FormatUnknown {
		return override, nil
	}
	detected := DetectFormat(head)
	hint := FormatForPath(filename)
	switch {
	case detected != FormatUnknown && hint != FormatUnknown && detected != hint:
		return FormatUnknown, &DecodeError{
			Reason: fmt.Sprintf("filename suggests %s but content is %s", hint, detected),
		}
	case detected != FormatUnknown:
		return detected, nil
	case hint != FormatUnknown:
		return hint, nil
	}
	return FormatUnknown, &DecodeError{Reason: "unable to determine archive format"}
}

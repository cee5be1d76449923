package archive

import (
	"bytes"
	"encoding/hex"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

// SniffWindow is how many leading bytes are examined to classify text
// vs binary.
const SniffWindow = 8 * 1024

// printableFloor: content whose sniff window holds a lower share of
// printable bytes is classified binary.
const printableFloor = 0.7

// textExtensions fast-path classification for well-known source and
// config suffixes, skipping the content sniff entirely.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true,
	".py": true, ".js": true, ".html": true, ".css": true,
	".json": true, ".xml": true, ".yaml": true, ".yml": true,
	".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".sh": true, ".bash": true,
	".c": true, ".cpp": true, ".h": true,
	".java": true, ".go": true, ".rs": true, ".rb": true,
	".pl": true, ".php": true, ".swift": true, ".kt": true,
	".scala": true, ".clj": true, ".sql": true, ".r": true,
	".m": true, ".dockerfile": true, ".makefile": true, ".cmake": true,
}

// TextExtension reports whether path carries a well-known text suffix.
func TextExtension(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// SniffBinary classifies content from the leading bytes of a file. A
// null byte forces binary; otherwise files under 70% printable bytes
// are binary. Empty content is text.
func SniffBinary(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	printable := 0
	for _, b := range head {
		if (b >= 32 && b <= 126) || b == '\t' || b == '\n' || b == '\r' {
			printable++
		}
	}
	return float64(printable)/float64(len(head)) < printableFloor
}

// Analysis is the outcome of the metadata phase's single streaming
// pass over one file.
type Analysis struct {
	Size            int64
	Binary          bool
	CleanUTF8       bool  // valid UTF-8 with no control bytes besides tab/LF/CR
	LF, CR, CRLF    int64 // bare LF, bare CR, and CRLF pair counts
	TrailingNewline bool
	TickRun         int    // longest backtick run in the content
	RawSum          string // blake3 over the raw bytes, when requested
	NormSum         string // blake3 over the LF-normalized bytes, when requested
}

// Clean reports whether the content can travel as utf-8 text. Anything
// else is carried base64 over the raw bytes.
func (a *Analysis) Clean() bool {
	return !a.Binary && a.CleanUTF8
}

// EOL names the line-ending style found by the census.
func (a *Analysis) EOL() string {
	switch {
	case a.LF == 0 && a.CR == 0 && a.CRLF == 0:
		return ""
	case a.CR == 0 && a.CRLF == 0:
		return EOLLF
	case a.LF == 0 && a.CR == 0:
		return EOLCRLF
	case a.LF == 0 && a.CRLF == 0:
		return EOLCR
	default:
		return EOLMixed
	}
}

// StoredSize returns the payload size for the analyzed content: the
// LF-normalized byte count for clean text, the base64 length for
// everything else. Knowing this up front is what lets the line- and
// fence-oriented grammars frame payloads by exact length.
func (a *Analysis) StoredSize() int64 {
	if a.Clean() {
		return a.Size - a.CRLF
	}
	return Base64Len(a.Size)
}

// PayloadSum returns the checksum matching the payload form chosen by
// StoredSize: the normalized sum for clean text, the raw sum otherwise.
func (a *Analysis) PayloadSum() string {
	if a.Clean() {
		return a.NormSum
	}
	return a.RawSum
}

// Base64Len returns the standard-encoding base64 length of n raw bytes.
func Base64Len(n int64) int64 {
	return (n + 2) / 3 * 4
}

// AnalyzeReader streams r once, in fixed-size chunks, and returns the
// classification, line-ending census, trailing-newline flag, backtick
// census, and optional checksums. extText pins the classification to
// text, mirroring the extension fast path. Nothing is buffered beyond
// the sniff window and one chunk.
func AnalyzeReader(r io.Reader, extText, withSum bool) (*Analysis, error) {
	a := &Analysis{CleanUTF8: true}

	var (
		rawH, normH *blake3.Hasher
		norm        LineNormalizer
		normBuf     []byte
		head        = make([]byte, 0, SniffWindow)
		pending     []byte // undecided UTF-8 tail carried across chunks
		prev        byte
		run         int
		started     bool
	)
	if withSum {
		rawH = blake3.New()
		normH = blake3.New()
	}

	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			a.Size += int64(n)

			if len(head) < SniffWindow {
				take := min(SniffWindow-len(head), n)
				head = append(head, chunk[:take]...)
			}

			for _, b := range chunk {
				switch b {
				case '\n':
					if started && prev == '\r' {
						a.CRLF++
					} else {
						a.LF++
					}
				default:
					if started && prev == '\r' {
						a.CR++
					}
				}
				if b == '`' {
					run++
					if run > a.TickRun {
						a.TickRun = run
					}
				} else {
					run = 0
				}
				if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
					a.CleanUTF8 = false
				}
				prev = b
				started = true
			}

			if a.CleanUTF8 {
				pending = validateUTF8(&a.CleanUTF8, pending, chunk)
			}

			if withSum {
				rawH.Write(chunk)
				normBuf = norm.Transform(normBuf[:0], chunk)
				normH.Write(normBuf)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if started && prev == '\r' {
		a.CR++
	}
	if len(pending) > 0 {
		a.CleanUTF8 = false
	}
	a.TrailingNewline = started && (prev == '\n' || prev == '\r')
	a.Binary = !extText && SniffBinary(head)

	if withSum {
		a.RawSum = hex.EncodeToString(rawH.Sum(nil))
		a.NormSum = hex.EncodeToString(normH.Sum(nil))
	}
	return a, nil
}

// validateUTF8 checks chunk (prefixed by the pending tail from the
// previous chunk) and returns the new undecided tail.
func validateUTF8(clean *bool, pending, chunk []byte) []byte {
	v := chunk
	if len(pending) > 0 {
		v = append(pending, chunk...)
	}
	tail := trailingPartialRune(v)
	if !utf8.Valid(v[:len(v)-len(tail)]) {
		*clean = false
		return nil
	}
	return append([]byte(nil), tail...)
}

// trailingPartialRune returns the suffix of v that could be the start
// of a UTF-8 sequence completed by the next chunk.
func trailingPartialRune(v []byte) []byte {
	n := len(v)
	for i := 1; i <= 3 && i <= n; i++ {
		b := v[n-i]
		if b&0xC0 == 0x80 {
			continue // continuation byte, keep scanning back
		}
		var size int
		switch {
		case b&0x80 == 0:
			size = 1
		case b&0xE0 == 0xC0:
			size = 2
		case b&0xF0 == 0xE0:
			size = 3
		case b&0xF8 == 0xF0:
			size = 4
		default:
			return nil // invalid lead byte; Valid will reject it
		}
		if size > i {
			return v[n-i:]
		}
		return nil
	}
	return nil
}

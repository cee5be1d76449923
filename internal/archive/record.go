// Package archive defines the archive data model shared by the combine
// and split pipelines: file records, the archive header, the five
// format codecs, and the compression wrapper around them.
package archive

import (
	"io/fs"
	"strconv"
	"time"
)

// Transfer encodings for record payloads. Text that is valid UTF-8 and
// free of stray control bytes travels as utf-8 with line endings
// normalized to LF; everything else travels as base64 over the raw,
// untouched bytes.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// Line-ending styles recorded for text files at combine time.
const (
	EOLLF    = "lf"
	EOLCRLF  = "crlf"
	EOLCR    = "cr"
	EOLMixed = "mixed"
)

// Record describes one archived file. Content travels separately as a
// stream; a Record never holds a materialized payload.
type Record struct {
	Path            string // root-relative, posix separators
	Size            int64  // original size in bytes
	Stored          int64  // payload bytes as stored in the archive
	Binary          bool
	Encoding        string // EncodingUTF8 or EncodingBase64
	EOL             string // empty for binary and empty files
	TrailingNewline bool
	Mode            fs.FileMode // zero when not captured
	ModTime         time.Time   // zero when not captured
	Checksum        string      // blake3 hex over the payload's raw bytes, optional

	// TickRun is the longest backtick run in the payload, captured
	// during the metadata scan. Only the markdown encoder consults it;
	// it is never serialized.
	TickRun int
}

// Header describes the archive as a whole.
type Header struct {
	Format      Format
	Version     int
	Generator   string
	Source      string
	FileCount   int
	TotalSize   int64
	Created     time.Time
	Compression string
}

// wireRecord is the per-entry metadata block serialized into every
// format. Key names are shared across the five grammars so archives
// stay mutually translatable.
type wireRecord struct {
	Path            string `json:"path" yaml:"path"`
	Size            int64  `json:"size" yaml:"size"`
	Stored          int64  `json:"stored_size" yaml:"stored_size"`
	Binary          bool   `json:"is_binary" yaml:"is_binary"`
	Encoding        string `json:"encoding" yaml:"encoding"`
	EOL             string `json:"line_ending,omitempty" yaml:"line_ending,omitempty"`
	TrailingNewline bool   `json:"ends_with_newline" yaml:"ends_with_newline"`
	Mode            string `json:"mode,omitempty" yaml:"mode,omitempty"`
	ModTime         string `json:"mtime,omitempty" yaml:"mtime,omitempty"`
	Checksum        string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

type wireHeader struct {
	Format      string `json:"format" yaml:"format"`
	Version     int    `json:"version" yaml:"version"`
	Generator   string `json:"generator" yaml:"generator"`
	Source      string `json:"source" yaml:"source"`
	FileCount   int    `json:"file_count" yaml:"file_count"`
	TotalSize   int64  `json:"total_size" yaml:"total_size"`
	Created     string `json:"created" yaml:"created"`
	Compression string `json:"compression" yaml:"compression"`
}

func (r *Record) toWire() wireRecord {
	w := wireRecord{
		Path:            r.Path,
		Size:            r.Size,
		Stored:          r.Stored,
		Binary:          r.Binary,
		Encoding:        r.Encoding,
		EOL:             r.EOL,
		TrailingNewline: r.TrailingNewline,
		Checksum:        r.Checksum,
	}
	if r.Mode != 0 {
		w.Mode = "0" + strconv.FormatUint(uint64(r.Mode.Perm()), 8)
	}
	if !r.ModTime.IsZero() {
		w.ModTime = r.ModTime.UTC().Format(time.RFC3339)
	}
	return w
}

func (w wireRecord) toRecord() (*Record, error) {
	if w.Path == "" {
		return nil, &DecodeError{Reason: "entry missing path"}
	}
	r := &Record{
		Path:            w.Path,
		Size:            w.Size,
		Stored:          w.Stored,
		Binary:          w.Binary,
		Encoding:        w.Encoding,
		EOL:             w.EOL,
		TrailingNewline: w.TrailingNewline,
		Checksum:        w.Checksum,
	}
	if r.Encoding == "" {
		r.Encoding = EncodingUTF8
	}
	if r.Encoding != EncodingUTF8 && r.Encoding != EncodingBase64 {
		return nil, &DecodeError{Path: w.Path, Reason: "unknown transfer encoding " + strconv.Quote(w.Encoding)}
	}
	if r.Size < 0 || r.Stored < 0 {
		return nil, &DecodeError{Path: w.Path, Reason: "negative size"}
	}
	if w.Mode != "" {
		mode, err := strconv.ParseUint(w.Mode, 8, 32)
		if err != nil {
			return nil, &DecodeError{Path: w.Path, Reason: "bad mode " + strconv.Quote(w.Mode)}
		}
		r.Mode = fs.FileMode(mode).Perm()
	}
	if w.ModTime != "" {
		t, err := time.Parse(time.RFC3339, w.ModTime)
		if err != nil {
			return nil, &DecodeError{Path: w.Path, Reason: "bad mtime " + strconv.Quote(w.ModTime)}
		}
		r.ModTime = t
	}
	return r, nil
}

func (h *Header) toWire() wireHeader {
	return wireHeader{
		Format:      h.Format.String(),
		Version:     h.Version,
		Generator:   h.Generator,
		Source:      h.Source,
		FileCount:   h.FileCount,
		TotalSize:   h.TotalSize,
		Created:     h.Created.UTC().Format(time.RFC3339),
		Compression: h.Compression,
	}
}

func (w wireHeader) toHeader(expect Format) (*Header, error) {
	if w.Version > Version {
		return nil, &DecodeError{Reason: "unsupported archive version " + strconv.Itoa(w.Version)}
	}
	if w.Format != "" && w.Format != expect.String() {
		return nil, &DecodeError{Reason: "archive declares format " + w.Format + " but is being decoded as " + expect.String()}
	}
	h := &Header{
		Format:      expect,
		Version:     w.Version,
		Generator:   w.Generator,
		Source:      w.Source,
		FileCount:   w.FileCount,
		TotalSize:   w.TotalSize,
		Compression: w.Compression,
	}
	if w.Created != "" {
		t, err := time.Parse(time.RFC3339, w.Created)
		if err != nil {
			return nil, &DecodeError{Reason: "bad created timestamp " + strconv.Quote(w.Created)}
		}
		h.Created = t
	}
	return h, nil
}

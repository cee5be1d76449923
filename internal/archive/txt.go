package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// The txt grammar is line-oriented: a commented header block, then one
// block per file introduced by a separator line. Payloads are framed
// by the exact stored byte count carried in the metadata line, so
// content containing the separator text cannot break parsing.
const (
	txtSeparator      = "=== FILE_SEPARATOR ==="
	txtMetadataPrefix = "FILE_METADATA:"
	txtContentPrefix  = "CONTENT:"
)

type txtEncoder struct {
	w     *bufio.Writer
	hdr   *Header
	count int
}

func newTxtEncoder(w io.Writer) *txtEncoder {
	return &txtEncoder{w: bufio.NewWriterSize(w, 64*1024)}
}

func (e *txtEncoder) Begin(h *Header) error {
	e.hdr = h
	fmt.Fprintf(e.w, "%s -- format: txt, version: %d\n", archiveTitle, h.Version)
	fmt.Fprintf(e.w, "# Generator: %s\n", headerLabel(h.Generator))
	fmt.Fprintf(e.w, "# Source: %s\n", headerLabel(h.Source))
	fmt.Fprintf(e.w, "# Files: %d\n", h.FileCount)
	fmt.Fprintf(e.w, "# Total-Size: %d\n", h.TotalSize)
	fmt.Fprintf(e.w, "# Created: %s\n", h.Created.UTC().Format(time.RFC3339))
	fmt.Fprintf(e.w, "# Compression: %s\n", h.Compression)
	_, err := e.w.WriteString("\n")
	return err
}

func (e *txtEncoder) Emit(rec *Record, payload io.Reader) error {
	if err := ValidatePath(rec.Path); err != nil {
		return err
	}
	meta, err := json.Marshal(rec.toWire())
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "marshal metadata", Err: err}
	}
	fmt.Fprintf(e.w, "%s\n", txtSeparator)
	fmt.Fprintf(e.w, "%s %s\n", txtMetadataPrefix, meta)
	fmt.Fprintf(e.w, "%s\n", txtContentPrefix)

	n, err := io.Copy(e.w, payload)
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "stream content", Err: err}
	}
	if n != rec.Stored {
		return &EncodeError{Path: rec.Path, Reason: fmt.Sprintf("content changed during combine: wrote %d bytes, expected %d", n, rec.Stored)}
	}
	if _, err := e.w.WriteString("\n"); err != nil {
		return &EncodeError{Path: rec.Path, Reason: "write archive", Err: err}
	}
	e.count++
	return nil
}

func (e *txtEncoder) End() error {
	if e.hdr != nil && e.count != e.hdr.FileCount {
		return &EncodeError{Reason: fmt.Sprintf("emitted %d records, header declares %d", e.count, e.hdr.FileCount)}
	}
	if err := e.w.Flush(); err != nil {
		return &EncodeError{Reason: "flush archive", Err: err}
	}
	return nil
}

type txtDecoder struct {
	ls      lineScanner
	hdr     *Header
	pending *io.LimitedReader
	count   int
	done    bool
}

func newTxtDecoder(r io.Reader) (*txtDecoder, error) {
	d := &txtDecoder{ls: lineScanner{br: bufio.NewReaderSize(r, 64*1024)}}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *txtDecoder) Header() *Header { return d.hdr }

func (d *txtDecoder) readHeader() error {
	first, err := d.ls.ReadLine()
	if err != nil {
		return &DecodeError{Reason: "empty archive", Err: errOrNil(err)}
	}
	version, err := parseTitleLine(first, FormatTxt)
	if err != nil {
		return err
	}

	hdr := &Header{Format: FormatTxt, Version: version, Compression: CompressionNone}
	for {
		line, err := d.ls.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &DecodeError{Reason: "read header", Err: err}
		}
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "# "), ": ")
		if !strings.HasPrefix(line, "# ") || !ok {
			return &DecodeError{Reason: fmt.Sprintf("malformed header line %q", line)}
		}
		switch key {
		case "Generator":
			hdr.Generator = value
		case "Source":
			hdr.Source = value
		case "Files":
			n, err := strconv.Atoi(value)
			if err != nil {
				return &DecodeError{Reason: "bad file count " + strconv.Quote(value)}
			}
			hdr.FileCount = n
		case "Total-Size":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return &DecodeError{Reason: "bad total size " + strconv.Quote(value)}
			}
			hdr.TotalSize = n
		case "Created":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return &DecodeError{Reason: "bad created timestamp " + strconv.Quote(value)}
			}
			hdr.Created = t
		case "Compression":
			hdr.Compression = value
		}
	}
	d.hdr = hdr
	return nil
}

func (d *txtDecoder) Next() (*Record, io.Reader, error) {
	if d.done {
		return nil, nil, io.EOF
	}
	if err := d.finishPayload(); err != nil {
		return nil, nil, err
	}

	line, err := d.ls.ReadLine()
	if err == io.EOF {
		d.done = true
		if d.count != d.hdr.FileCount {
			return nil, nil, &DecodeError{Reason: fmt.Sprintf("archive truncated: found %d of %d files", d.count, d.hdr.FileCount)}
		}
		return nil, nil, io.EOF
	}
	if err != nil {
		return nil, nil, err
	}
	if line != txtSeparator {
		return nil, nil, &DecodeError{Reason: fmt.Sprintf("expected separator, got %q", line)}
	}

	metaLine, err := d.ls.ReadLine()
	if err != nil {
		return nil, nil, &DecodeError{Reason: "missing metadata line", Err: errOrNil(err)}
	}
	rest, ok := strings.CutPrefix(metaLine, txtMetadataPrefix+" ")
	if !ok {
		return nil, nil, &DecodeError{Reason: fmt.Sprintf("expected metadata, got %q", metaLine)}
	}
	var w wireRecord
	if err := json.Unmarshal([]byte(rest), &w); err != nil {
		return nil, nil, &DecodeError{Reason: "malformed metadata", Err: err}
	}
	rec, err := w.toRecord()
	if err != nil {
		return nil, nil, err
	}

	contentLine, err := d.ls.ReadLine()
	if err != nil || contentLine != txtContentPrefix {
		return nil, nil, &DecodeError{Path: rec.Path, Reason: "missing content marker", Err: errOrNil(err)}
	}

	d.pending = &io.LimitedReader{R: d.ls.br, N: rec.Stored}
	d.count++
	return rec, d.pending, nil
}

// finishPayload discards any undrained payload from the previous
// record and consumes its terminating newline.
func (d *txtDecoder) finishPayload() error {
	if d.pending == nil {
		return nil
	}
	if _, err := io.Copy(io.Discard, d.pending); err != nil {
		return &DecodeError{Reason: "skip content", Err: err}
	}
	d.pending = nil
	b, err := d.ls.br.ReadByte()
	if err != nil || b != '\n' {
		return &DecodeError{Reason: "content terminator missing; stored size disagrees with content", Err: errOrNil(err)}
	}
	return nil
}

// parseTitleLine validates the self-identifying first line shared by
// the txt and yaml grammars and returns the declared version.
func parseTitleLine(line string, f Format) (int, error) {
	want := fmt.Sprintf("%s -- format: %s, version: ", archiveTitle, f.String())
	rest, ok := strings.CutPrefix(line, want)
	if !ok {
		return 0, &DecodeError{Reason: fmt.Sprintf("not a %s archive: first line %q", f.String(), line)}
	}
	version, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, &DecodeError{Reason: "bad version " + strconv.Quote(rest)}
	}
	if version > Version {
		return 0, &DecodeError{Reason: fmt.Sprintf("unsupported archive version %d", version)}
	}
	return version, nil
}

// headerLabel folds newlines out of free-form header values so they
// cannot break the line-oriented grammars.
func headerLabel(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}

func errOrNil(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}

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

// The markdown grammar is documentation-first: a title, a metadata
// bullet list, a table of contents, then one section per file whose
// payload sits in a fenced code block. Machine-readable metadata rides
// in HTML comments so renderers hide it; headings and the TOC are
// decorative and never parsed back. Fences are sized one backtick
// longer than the longest backtick run in the payload so content can
// never close its own block.
const (
	mdMetaOpen  = "<!-- file-combiner:file "
	mdMetaClose = " -->"
	mdMinFence  = 3
)

type markdownEncoder struct {
	w        *bufio.Writer
	hdr      *Header
	manifest []*Record
	count    int
}

func newMarkdownEncoder(w io.Writer) *markdownEncoder {
	return &markdownEncoder{w: bufio.NewWriterSize(w, 64*1024)}
}

// SetManifest lets the encoder render a table of contents before the
// first record arrives. Optional; without it the TOC is omitted.
func (e *markdownEncoder) SetManifest(recs []*Record) {
	e.manifest = recs
}

func (e *markdownEncoder) Begin(h *Header) error {
	e.hdr = h
	fmt.Fprintf(e.w, "%s\n\n", archiveTitle)
	fmt.Fprintf(e.w, "- **Generator:** %s\n", headerLabel(h.Generator))
	fmt.Fprintf(e.w, "- **Source:** %s\n", headerLabel(h.Source))
	fmt.Fprintf(e.w, "- **Files:** %d\n", h.FileCount)
	fmt.Fprintf(e.w, "- **Total-Size:** %d\n", h.TotalSize)
	fmt.Fprintf(e.w, "- **Created:** %s\n", h.Created.UTC().Format(time.RFC3339))
	fmt.Fprintf(e.w, "- **Format-Version:** %d\n", h.Version)
	fmt.Fprintf(e.w, "- **Compression:** %s\n", h.Compression)

	if len(e.manifest) > 0 {
		fmt.Fprintf(e.w, "\n## Table of Contents\n\n")
		for i, rec := range e.manifest {
			fmt.Fprintf(e.w, "%d. %s\n", i+1, headerLabel(rec.Path))
		}
	}
	_, err := e.w.WriteString("\n")
	return err
}

func (e *markdownEncoder) Emit(rec *Record, payload io.Reader) error {
	if err := ValidatePath(rec.Path); err != nil {
		return err
	}
	meta, err := json.Marshal(rec.toWire())
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "marshal metadata", Err: err}
	}

	fence := strings.Repeat("`", fenceLen(rec))
	lang := "base64"
	if rec.Encoding == EncodingUTF8 {
		lang = Language(rec.Path)
	}

	fmt.Fprintf(e.w, "%s%s%s\n\n", mdMetaOpen, meta, mdMetaClose)
	fmt.Fprintf(e.w, "## %s\n\n", headerLabel(rec.Path))
	fmt.Fprintf(e.w, "%s%s\n", fence, lang)

	n, err := io.Copy(e.w, payload)
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "stream content", Err: err}
	}
	if n != rec.Stored {
		return &EncodeError{Path: rec.Path, Reason: fmt.Sprintf("content changed during combine: wrote %d bytes, expected %d", n, rec.Stored)}
	}
	if _, err := fmt.Fprintf(e.w, "\n%s\n\n", fence); err != nil {
		return &EncodeError{Path: rec.Path, Reason: "write archive", Err: err}
	}
	e.count++
	return nil
}

func (e *markdownEncoder) End() error {
	if e.hdr != nil && e.count != e.hdr.FileCount {
		return &EncodeError{Reason: fmt.Sprintf("emitted %d records, header declares %d", e.count, e.hdr.FileCount)}
	}
	if err := e.w.Flush(); err != nil {
		return &EncodeError{Reason: "flush archive", Err: err}
	}
	return nil
}

// fenceLen sizes a record's code fence. Base64 payloads never contain
// backticks, so they always use the minimum.
func fenceLen(rec *Record) int {
	if rec.Encoding != EncodingUTF8 {
		return mdMinFence
	}
	return max(mdMinFence, rec.TickRun+1)
}

type markdownDecoder struct {
	ls      lineScanner
	hdr     *Header
	pending *io.LimitedReader
	fence   string
	count   int
	done    bool
	stashed string // first meta comment line, found while parsing the header
	hasMeta bool
}

func newMarkdownDecoder(r io.Reader) (*markdownDecoder, error) {
	d := &markdownDecoder{ls: lineScanner{br: bufio.NewReaderSize(r, 64*1024)}}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *markdownDecoder) Header() *Header { return d.hdr }

func (d *markdownDecoder) readHeader() error {
	first, err := d.ls.ReadLine()
	if err != nil {
		return &DecodeError{Reason: "empty archive", Err: errOrNil(err)}
	}
	if first != archiveTitle {
		return &DecodeError{Reason: fmt.Sprintf("not a markdown archive: first line %q", first)}
	}

	hdr := &Header{Format: FormatMarkdown, Version: Version, Compression: CompressionNone}
	for {
		line, err := d.ls.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &DecodeError{Reason: "read header", Err: err}
		}
		if strings.HasPrefix(line, mdMetaOpen) {
			d.stashed, d.hasMeta = line, true
			break
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "- **"), ":** ")
		if !strings.HasPrefix(line, "- **") || !ok {
			continue // TOC entries, headings, blank lines
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
		case "Format-Version":
			v, err := strconv.Atoi(value)
			if err != nil {
				return &DecodeError{Reason: "bad version " + strconv.Quote(value)}
			}
			if v > Version {
				return &DecodeError{Reason: fmt.Sprintf("unsupported archive version %d", v)}
			}
			hdr.Version = v
		case "Compression":
			hdr.Compression = value
		}
	}
	d.hdr = hdr
	return nil
}

func (d *markdownDecoder) Next() (*Record, io.Reader, error) {
	if d.done {
		return nil, nil, io.EOF
	}
	if err := d.finishPayload(); err != nil {
		return nil, nil, err
	}

	metaLine, err := d.nextMetaLine()
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

	body := strings.TrimSuffix(strings.TrimPrefix(metaLine, mdMetaOpen), mdMetaClose)
	var w wireRecord
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return nil, nil, &DecodeError{Reason: "malformed metadata comment", Err: err}
	}
	rec, err := w.toRecord()
	if err != nil {
		return nil, nil, err
	}

	fence, err := d.nextFence(rec.Path)
	if err != nil {
		return nil, nil, err
	}
	d.fence = fence
	d.pending = &io.LimitedReader{R: d.ls.br, N: rec.Stored}
	d.count++
	return rec, d.pending, nil
}

// nextMetaLine scans past decorative lines to the next file comment.
func (d *markdownDecoder) nextMetaLine() (string, error) {
	if d.hasMeta {
		d.hasMeta = false
		return d.stashed, nil
	}
	for {
		line, err := d.ls.ReadLine()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(line, mdMetaOpen) && strings.HasSuffix(line, mdMetaClose) {
			return line, nil
		}
	}
}

// nextFence scans to the opening code fence and returns its backticks.
func (d *markdownDecoder) nextFence(path string) (string, error) {
	for {
		line, err := d.ls.ReadLine()
		if err != nil {
			return "", &DecodeError{Path: path, Reason: "missing code fence", Err: errOrNil(err)}
		}
		ticks := 0
		for ticks < len(line) && line[ticks] == '`' {
			ticks++
		}
		if ticks >= mdMinFence {
			return line[:ticks], nil
		}
	}
}

// finishPayload discards any undrained payload, then consumes the
// synthetic newline and the closing fence.
func (d *markdownDecoder) finishPayload() error {
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
	line, err := d.ls.ReadLine()
	if err != nil || line != d.fence {
		return &DecodeError{Reason: "closing fence missing; stored size disagrees with content", Err: errOrNil(err)}
	}
	return nil
}

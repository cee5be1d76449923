package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// The yaml grammar is a document stream: a title comment on the first
// line, a metadata document, then one document per file. Payloads are
// emitted as literal block scalars where the emitter allows it, so text
// content reads naturally; the emitter quotes anything a literal block
// cannot carry, which parses back to the same string either way.
type yamlEncoder struct {
	w     *bufio.Writer
	enc   *yaml.Encoder
	hdr   *Header
	count int
}

type yamlRecord struct {
	wireRecord `yaml:",inline"`
	Content    yamlLiteral `yaml:"content"`
}

// yamlLiteral asks the emitter for literal block style.
type yamlLiteral string

func (s yamlLiteral) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Style: yaml.LiteralStyle, Value: string(s)}, nil
}

func newYAMLEncoder(w io.Writer) *yamlEncoder {
	bw := bufio.NewWriterSize(w, 64*1024)
	enc := yaml.NewEncoder(bw)
	enc.SetIndent(2)
	return &yamlEncoder{w: bw, enc: enc}
}

func (e *yamlEncoder) Begin(h *Header) error {
	e.hdr = h
	fmt.Fprintf(e.w, "%s -- format: yaml, version: %d\n", archiveTitle, h.Version)
	if err := e.enc.Encode(h.toWire()); err != nil {
		return &EncodeError{Reason: "marshal header", Err: err}
	}
	return nil
}

func (e *yamlEncoder) Emit(rec *Record, payload io.Reader) error {
	if err := ValidatePath(rec.Path); err != nil {
		return err
	}
	var sb strings.Builder
	n, err := io.Copy(&sb, payload)
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "read content", Err: err}
	}
	if n != rec.Stored {
		return &EncodeError{Path: rec.Path, Reason: fmt.Sprintf("content changed during combine: read %d bytes, expected %d", n, rec.Stored)}
	}
	if err := e.enc.Encode(yamlRecord{rec.toWire(), yamlLiteral(sb.String())}); err != nil {
		return &EncodeError{Path: rec.Path, Reason: "marshal record", Err: err}
	}
	e.count++
	return nil
}

func (e *yamlEncoder) End() error {
	if e.hdr != nil && e.count != e.hdr.FileCount {
		return &EncodeError{Reason: fmt.Sprintf("emitted %d records, header declares %d", e.count, e.hdr.FileCount)}
	}
	if err := e.enc.Close(); err != nil {
		return &EncodeError{Reason: "finish archive", Err: err}
	}
	if err := e.w.Flush(); err != nil {
		return &EncodeError{Reason: "flush archive", Err: err}
	}
	return nil
}

type yamlDecoder struct {
	dec   *yaml.Decoder
	hdr   *Header
	count int
	done  bool
}

func newYAMLDecoder(r io.Reader) (*yamlDecoder, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	ls := &lineScanner{br: br}
	line, err := ls.ReadLine()
	if err != nil {
		return nil, &DecodeError{Reason: "missing archive title", Err: errOrNil(err)}
	}
	if _, err := parseTitleLine(line, FormatYAML); err != nil {
		return nil, err
	}
	d := &yamlDecoder{dec: yaml.NewDecoder(br)}
	var wh wireHeader
	if err := d.dec.Decode(&wh); err != nil {
		return nil, &DecodeError{Reason: "malformed metadata", Err: errOrNil(err)}
	}
	hdr, err := wh.toHeader(FormatYAML)
	if err != nil {
		return nil, err
	}
	d.hdr = hdr
	return d, nil
}

func (d *yamlDecoder) Header() *Header { return d.hdr }

func (d *yamlDecoder) Next() (*Record, io.Reader, error) {
	if d.done {
		return nil, nil, io.EOF
	}
	var doc yamlRecord
	if err := d.dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			d.done = true
			if d.count != d.hdr.FileCount {
				return nil, nil, &DecodeError{Reason: fmt.Sprintf("archive truncated: found %d of %d files", d.count, d.hdr.FileCount)}
			}
			return nil, nil, io.EOF
		}
		return nil, nil, &DecodeError{Reason: "malformed file entry", Err: err}
	}
	rec, err := doc.wireRecord.toRecord()
	if err != nil {
		return nil, nil, err
	}
	if int64(len(doc.Content)) != rec.Stored {
		return nil, nil, &DecodeError{Path: rec.Path, Reason: fmt.Sprintf("stored size %d disagrees with content length %d", rec.Stored, len(doc.Content))}
	}
	d.count++
	return rec, strings.NewReader(string(doc.Content)), nil
}

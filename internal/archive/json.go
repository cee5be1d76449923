package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// The json grammar is one object with a "metadata" header and a
// "files" array. Encoding lays the envelope out by hand so records are
// marshaled one at a time; decoding walks the token stream so payloads
// are materialized one record at a time, never all at once.
type jsonEncoder struct {
	w     *bufio.Writer
	hdr   *Header
	count int
}

// jsonRecord is a wireRecord plus its payload string.
type jsonRecord struct {
	wireRecord
	Content string `json:"content"`
}

func newJSONEncoder(w io.Writer) *jsonEncoder {
	return &jsonEncoder{w: bufio.NewWriterSize(w, 64*1024)}
}

func (e *jsonEncoder) Begin(h *Header) error {
	e.hdr = h
	meta, err := json.MarshalIndent(h.toWire(), "  ", "  ")
	if err != nil {
		return &EncodeError{Reason: "marshal header", Err: err}
	}
	e.w.WriteString("{\n  \"metadata\": ")
	e.w.Write(meta)
	_, err = e.w.WriteString(",\n  \"files\": [")
	return err
}

func (e *jsonEncoder) Emit(rec *Record, payload io.Reader) error {
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
	body, err := json.MarshalIndent(jsonRecord{rec.toWire(), sb.String()}, "    ", "  ")
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "marshal record", Err: err}
	}
	if e.count > 0 {
		e.w.WriteString(",")
	}
	e.w.WriteString("\n    ")
	if _, err := e.w.Write(body); err != nil {
		return &EncodeError{Path: rec.Path, Reason: "write archive", Err: err}
	}
	e.count++
	return nil
}

func (e *jsonEncoder) End() error {
	if e.hdr != nil && e.count != e.hdr.FileCount {
		return &EncodeError{Reason: fmt.Sprintf("emitted %d records, header declares %d", e.count, e.hdr.FileCount)}
	}
	if e.count > 0 {
		e.w.WriteString("\n  ")
	}
	e.w.WriteString("]\n}\n")
	if err := e.w.Flush(); err != nil {
		return &EncodeError{Reason: "flush archive", Err: err}
	}
	return nil
}

type jsonDecoder struct {
	dec   *json.Decoder
	hdr   *Header
	count int
	done  bool
}

func newJSONDecoder(r io.Reader) (*jsonDecoder, error) {
	d := &jsonDecoder{dec: json.NewDecoder(r)}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *jsonDecoder) Header() *Header { return d.hdr }

func (d *jsonDecoder) readHeader() error {
	if err := expectDelim(d.dec, '{', "archive object"); err != nil {
		return err
	}
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return &DecodeError{Reason: "read archive keys", Err: errOrNil(err)}
		}
		key, ok := tok.(string)
		if !ok {
			return &DecodeError{Reason: fmt.Sprintf("unexpected token %v", tok)}
		}
		switch key {
		case "metadata":
			var wh wireHeader
			if err := d.dec.Decode(&wh); err != nil {
				return &DecodeError{Reason: "malformed metadata", Err: err}
			}
			hdr, err := wh.toHeader(FormatJSON)
			if err != nil {
				return err
			}
			d.hdr = hdr
		case "files":
			if d.hdr == nil {
				return &DecodeError{Reason: "files array precedes metadata"}
			}
			return expectDelim(d.dec, '[', "files array")
		default:
			var skip json.RawMessage
			if err := d.dec.Decode(&skip); err != nil {
				return &DecodeError{Reason: "malformed archive", Err: err}
			}
		}
	}
}

func (d *jsonDecoder) Next() (*Record, io.Reader, error) {
	if d.done {
		return nil, nil, io.EOF
	}
	if d.dec.More() {
		var obj jsonRecord
		if err := d.dec.Decode(&obj); err != nil {
			return nil, nil, &DecodeError{Reason: "malformed file entry", Err: err}
		}
		rec, err := obj.wireRecord.toRecord()
		if err != nil {
			return nil, nil, err
		}
		if int64(len(obj.Content)) != rec.Stored {
			return nil, nil, &DecodeError{Path: rec.Path, Reason: fmt.Sprintf("stored size %d disagrees with content length %d", rec.Stored, len(obj.Content))}
		}
		d.count++
		return rec, strings.NewReader(obj.Content), nil
	}

	// End of the files array: consume the closers and verify counts.
	d.done = true
	if err := expectDelim(d.dec, ']', "files array end"); err != nil {
		return nil, nil, err
	}
	for {
		tok, err := d.dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &DecodeError{Reason: "malformed archive tail", Err: err}
		}
		if delim, ok := tok.(json.Delim); ok && delim == '}' {
			continue
		}
		// Trailing keys after the files array are tolerated.
		var skip json.RawMessage
		if err := d.dec.Decode(&skip); err != nil {
			return nil, nil, &DecodeError{Reason: "malformed archive tail", Err: err}
		}
	}
	if d.count != d.hdr.FileCount {
		return nil, nil, &DecodeError{Reason: fmt.Sprintf("archive truncated: found %d of %d files", d.count, d.hdr.FileCount)}
	}
	return nil, nil, io.EOF
}

func expectDelim(dec *json.Decoder, want json.Delim, what string) error {
	tok, err := dec.Token()
	if err != nil {
		return &DecodeError{Reason: "missing " + what, Err: errOrNil(err)}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return &DecodeError{Reason: fmt.Sprintf("expected %s, got %v", what, tok)}
	}
	return nil
}

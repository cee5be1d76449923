package archive

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// The xml grammar keeps record metadata in attributes of each <file>
// element and the payload as its character data, starting immediately
// after the opening tag. Only &, < and > are escaped in payloads, so
// text content stays readable; utf-8 payloads are LF-normalized before
// they reach the encoder, which keeps them clear of the CR folding XML
// parsers apply to character data.
type xmlEncoder struct {
	w     *bufio.Writer
	hdr   *Header
	count int
}

type xmlMetadata struct {
	Generator   string `xml:"generator"`
	Source      string `xml:"source"`
	FileCount   int    `xml:"file_count"`
	TotalSize   int64  `xml:"total_size"`
	Created     string `xml:"created"`
	Compression string `xml:"compression"`
}

func newXMLEncoder(w io.Writer) *xmlEncoder {
	return &xmlEncoder{w: bufio.NewWriterSize(w, 64*1024)}
}

func (e *xmlEncoder) Begin(h *Header) error {
	e.hdr = h
	wh := h.toWire()
	e.w.WriteString(xml.Header)
	e.w.WriteString("<archive")
	xmlAttr(e.w, "format", wh.Format)
	xmlAttr(e.w, "version", strconv.Itoa(wh.Version))
	e.w.WriteString(">\n  <metadata>\n")
	xmlElem(e.w, "    ", "generator", wh.Generator)
	xmlElem(e.w, "    ", "source", wh.Source)
	xmlElem(e.w, "    ", "file_count", strconv.Itoa(wh.FileCount))
	xmlElem(e.w, "    ", "total_size", strconv.FormatInt(wh.TotalSize, 10))
	xmlElem(e.w, "    ", "created", wh.Created)
	xmlElem(e.w, "    ", "compression", wh.Compression)
	e.w.WriteString("  </metadata>\n")
	_, err := e.w.WriteString("  <files>")
	return err
}

func (e *xmlEncoder) Emit(rec *Record, payload io.Reader) error {
	if err := ValidatePath(rec.Path); err != nil {
		return err
	}
	wr := rec.toWire()
	e.w.WriteString("\n    <file")
	xmlAttr(e.w, "path", wr.Path)
	xmlAttr(e.w, "size", strconv.FormatInt(wr.Size, 10))
	xmlAttr(e.w, "stored_size", strconv.FormatInt(wr.Stored, 10))
	xmlAttr(e.w, "is_binary", strconv.FormatBool(wr.Binary))
	xmlAttr(e.w, "encoding", wr.Encoding)
	if wr.EOL != "" {
		xmlAttr(e.w, "line_ending", wr.EOL)
	}
	xmlAttr(e.w, "ends_with_newline", strconv.FormatBool(wr.TrailingNewline))
	if wr.Mode != "" {
		xmlAttr(e.w, "mode", wr.Mode)
	}
	if wr.ModTime != "" {
		xmlAttr(e.w, "mtime", wr.ModTime)
	}
	if wr.Checksum != "" {
		xmlAttr(e.w, "checksum", wr.Checksum)
	}
	e.w.WriteByte('>')
	n, err := io.Copy(xmlEscaper{e.w}, payload)
	if err != nil {
		return &EncodeError{Path: rec.Path, Reason: "write archive", Err: err}
	}
	if n != rec.Stored {
		return &EncodeError{Path: rec.Path, Reason: fmt.Sprintf("content changed during combine: wrote %d bytes, expected %d", n, rec.Stored)}
	}
	if _, err := e.w.WriteString("</file>"); err != nil {
		return &EncodeError{Path: rec.Path, Reason: "write archive", Err: err}
	}
	e.count++
	return nil
}

func (e *xmlEncoder) End() error {
	if e.hdr != nil && e.count != e.hdr.FileCount {
		return &EncodeError{Reason: fmt.Sprintf("emitted %d records, header declares %d", e.count, e.hdr.FileCount)}
	}
	e.w.WriteString("\n  </files>\n</archive>\n")
	if err := e.w.Flush(); err != nil {
		return &EncodeError{Reason: "flush archive", Err: err}
	}
	return nil
}

func xmlElem(w *bufio.Writer, indent, name, value string) {
	w.WriteString(indent)
	w.WriteByte('<')
	w.WriteString(name)
	w.WriteByte('>')
	xml.EscapeText(w, []byte(value))
	w.WriteString("</")
	w.WriteString(name)
	w.WriteString(">\n")
}

func xmlAttr(w *bufio.Writer, name, value string) {
	w.WriteByte(' ')
	w.WriteString(name)
	w.WriteString(`="`)
	xml.EscapeText(w, []byte(value))
	w.WriteByte('"')
}

// xmlEscaper rewrites &, < and > on the way through. Write reports the
// pre-escape length so io.Copy counts payload bytes, not archive bytes.
type xmlEscaper struct {
	w io.Writer
}

func (e xmlEscaper) Write(p []byte) (int, error) {
	last := 0
	for i, b := range p {
		var rep string
		switch b {
		case '&':
			rep = "&amp;"
		case '<':
			rep = "&lt;"
		case '>':
			rep = "&gt;"
		default:
			continue
		}
		if _, err := e.w.Write(p[last:i]); err != nil {
			return last, err
		}
		if _, err := io.WriteString(e.w, rep); err != nil {
			return i, err
		}
		last = i + 1
	}
	if _, err := e.w.Write(p[last:]); err != nil {
		return last, err
	}
	return len(p), nil
}

type xmlDecoder struct {
	dec   *xml.Decoder
	hdr   *Header
	count int
	done  bool
}

func newXMLDecoder(r io.Reader) (*xmlDecoder, error) {
	d := &xmlDecoder{dec: xml.NewDecoder(r)}
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *xmlDecoder) Header() *Header { return d.hdr }

func (d *xmlDecoder) readHeader() error {
	var wh wireHeader
	seenRoot, seenMeta := false, false
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return &DecodeError{Reason: "missing archive element", Err: errOrNil(err)}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !seenRoot {
			if start.Name.Local != "archive" {
				return &DecodeError{Reason: "unexpected root element <" + start.Name.Local + ">"}
			}
			for _, a := range start.Attr {
				switch a.Name.Local {
				case "format":
					wh.Format = a.Value
				case "version":
					v, err := strconv.Atoi(a.Value)
					if err != nil {
						return &DecodeError{Reason: "bad archive version " + strconv.Quote(a.Value)}
					}
					wh.Version = v
				}
			}
			if wh.Version > Version {
				return &DecodeError{Reason: "unsupported archive version " + strconv.Itoa(wh.Version)}
			}
			seenRoot = true
			continue
		}
		switch start.Name.Local {
		case "metadata":
			var meta xmlMetadata
			if err := d.dec.DecodeElement(&meta, &start); err != nil {
				return &DecodeError{Reason: "malformed metadata", Err: err}
			}
			wh.Generator = meta.Generator
			wh.Source = meta.Source
			wh.FileCount = meta.FileCount
			wh.TotalSize = meta.TotalSize
			wh.Created = meta.Created
			wh.Compression = meta.Compression
			seenMeta = true
		case "files":
			if !seenMeta {
				return &DecodeError{Reason: "files element precedes metadata"}
			}
			hdr, err := wh.toHeader(FormatXML)
			if err != nil {
				return err
			}
			d.hdr = hdr
			return nil
		default:
			if err := d.dec.Skip(); err != nil {
				return &DecodeError{Reason: "malformed archive", Err: err}
			}
		}
	}
}

func (d *xmlDecoder) Next() (*Record, io.Reader, error) {
	if d.done {
		return nil, nil, io.EOF
	}
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, nil, &DecodeError{Reason: "archive truncated inside files element", Err: errOrNil(err)}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "file" {
				return nil, nil, &DecodeError{Reason: "unexpected element <" + t.Name.Local + ">"}
			}
			return d.readFile(&t)
		case xml.EndElement:
			d.done = true
			if d.count != d.hdr.FileCount {
				return nil, nil, &DecodeError{Reason: fmt.Sprintf("archive truncated: found %d of %d files", d.count, d.hdr.FileCount)}
			}
			return nil, nil, io.EOF
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return nil, nil, &DecodeError{Reason: "stray text between file elements"}
			}
		}
	}
}

func (d *xmlDecoder) readFile(start *xml.StartElement) (*Record, io.Reader, error) {
	var wr wireRecord
	var err error
	for _, a := range start.Attr {
		switch a.Name.Local {
		case "path":
			wr.Path = a.Value
		case "size":
			wr.Size, err = xmlIntAttr(a)
		case "stored_size":
			wr.Stored, err = xmlIntAttr(a)
		case "is_binary":
			wr.Binary, err = xmlBoolAttr(a)
		case "encoding":
			wr.Encoding = a.Value
		case "line_ending":
			wr.EOL = a.Value
		case "ends_with_newline":
			wr.TrailingNewline, err = xmlBoolAttr(a)
		case "mode":
			wr.Mode = a.Value
		case "mtime":
			wr.ModTime = a.Value
		case "checksum":
			wr.Checksum = a.Value
		}
		if err != nil {
			return nil, nil, err
		}
	}
	rec, err := wr.toRecord()
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return nil, nil, &DecodeError{Path: rec.Path, Reason: "archive truncated inside file element", Err: errOrNil(err)}
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if int64(buf.Len()) != rec.Stored {
				return nil, nil, &DecodeError{Path: rec.Path, Reason: fmt.Sprintf("stored size %d disagrees with content length %d", rec.Stored, buf.Len())}
			}
			d.count++
			return rec, bytes.NewReader(buf.Bytes()), nil
		case xml.Comment:
		default:
			return nil, nil, &DecodeError{Path: rec.Path, Reason: "unexpected markup inside file element"}
		}
	}
}

func xmlIntAttr(a xml.Attr) (int64, error) {
	v, err := strconv.ParseInt(a.Value, 10, 64)
	if err != nil {
		return 0, &DecodeError{Reason: "bad " + a.Name.Local + " attribute " + strconv.Quote(a.Value)}
	}
	return v, nil
}

func xmlBoolAttr(a xml.Attr) (bool, error) {
	v, err := strconv.ParseBool(a.Value)
	if err != nil {
		return false, &DecodeError{Reason: "bad " + a.Name.Local + " attribute " + strconv.Quote(a.Value)}
	}
	return v, nil
}

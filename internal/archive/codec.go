package archive

import (
	"bufio"
	"fmt"
	"io"
)

// Encoder serializes a header and an ordered record stream into one
// archive byte stream. Emit consumes exactly one record's payload,
// already in stored form (normalized utf-8 or base64), and never
// retains it.
type Encoder interface {
	Begin(h *Header) error
	Emit(rec *Record, payload io.Reader) error
	End() error
}

// Decoder is the symmetric contract. The header is parsed during
// construction, so malformed or unsupported archives fail before the
// caller has written anything. Next returns records in archive order
// with the payload exposed as a bounded stream; any undrained payload
// remainder is discarded by the following Next call. Next returns
// io.EOF at a clean end of archive.
//
// Next does not police entry paths. Callers deciding where a record
// lands must gate it through SafeJoin, which is what lets a restore
// skip a hostile entry and keep reading the ones after it.
type Decoder interface {
	Header() *Header
	Next() (*Record, io.Reader, error)
}

// NewEncoder returns the encoder variant for format f writing to w.
func NewEncoder(f Format, w io.Writer) (Encoder, error) {
	switch f {
	case FormatTxt:
		return newTxtEncoder(w), nil
	case FormatXML:
		return newXMLEncoder(w), nil
	case FormatJSON:
		return newJSONEncoder(w), nil
	case FormatMarkdown:
		return newMarkdownEncoder(w), nil
	case FormatYAML:
		return newYAMLEncoder(w), nil
	}
	return nil, fmt.Errorf("no encoder for format %q", f.String())
}

// NewDecoder returns the decoder variant for format f reading from r,
// with the header already parsed.
func NewDecoder(f Format, r io.Reader) (Decoder, error) {
	switch f {
	case FormatTxt:
		return newTxtDecoder(r)
	case FormatXML:
		return newXMLDecoder(r)
	case FormatJSON:
		return newJSONDecoder(r)
	case FormatMarkdown:
		return newMarkdownDecoder(r)
	case FormatYAML:
		return newYAMLDecoder(r)
	}
	return nil, fmt.Errorf("no decoder for format %q", f.String())
}

// maxLine caps metadata and framing lines in the line-oriented
// grammars. Payload bytes are never read through this limit.
const maxLine = 1 << 20

// lineScanner reads LF-terminated lines while keeping the underlying
// bufio.Reader positioned for exact-length payload reads.
type lineScanner struct {
	br *bufio.Reader
}

// ReadLine returns the next line without its terminator. A lone
// trailing CR is stripped so hand-edited archives still parse; payload
// bytes bypass this method entirely. io.EOF is returned only when the
// stream ends before any byte of a line.
func (ls *lineScanner) ReadLine() (string, error) {
	var line []byte
	for {
		frag, err := ls.br.ReadSlice('\n')
		switch err {
		case nil:
			line = append(line, frag[:len(frag)-1]...)
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return string(line), nil
		case bufio.ErrBufferFull:
			line = append(line, frag...)
			if len(line) > maxLine {
				return "", &DecodeError{Reason: "line exceeds maximum length"}
			}
		case io.EOF:
			if len(frag) == 0 && len(line) == 0 {
				return "", io.EOF
			}
			line = append(line, frag...)
			return string(line), nil
		default:
			return "", err
		}
	}
}

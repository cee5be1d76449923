package archive

import (
	"encoding/base64"
	"io"
)

// LineNormalizer rewrites CRLF and lone CR line endings to LF,
// preserving state across chunk boundaries.
type LineNormalizer struct {
	skipLF bool
}

// Transform appends the normalized form of src to dst and returns it.
func (ln *LineNormalizer) Transform(dst, src []byte) []byte {
	for _, b := range src {
		if ln.skipLF {
			ln.skipLF = false
			if b == '\n' {
				continue
			}
		}
		if b == '\r' {
			dst = append(dst, '\n')
			ln.skipLF = true
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// PayloadReader wraps a file's raw content stream into the payload
// form its record declares: LF-normalized for utf-8 text, base64 over
// the untouched bytes for everything else.
func PayloadReader(rec *Record, raw io.Reader) io.Reader {
	if rec.Encoding == EncodingBase64 {
		return NewBase64Reader(raw)
	}
	switch rec.EOL {
	case EOLCRLF, EOLCR, EOLMixed:
		return NewNormalizingReader(raw)
	}
	return raw
}

// RawReader reverses PayloadReader on the decode side: base64 payloads
// decode to raw bytes, utf-8 payloads pass through already normalized.
func RawReader(rec *Record, payload io.Reader) io.Reader {
	if rec.Encoding == EncodingBase64 {
		return base64.NewDecoder(base64.StdEncoding, payload)
	}
	return payload
}

// NewNormalizingReader wraps r so CRLF and lone CR read as LF.
func NewNormalizingReader(r io.Reader) io.Reader {
	return &normalizingReader{src: r}
}

type normalizingReader struct {
	src  io.Reader
	norm LineNormalizer
	raw  []byte
	out  []byte
	pos  int
	err  error
}

func (nr *normalizingReader) Read(p []byte) (int, error) {
	for nr.pos == len(nr.out) {
		if nr.err != nil {
			return 0, nr.err
		}
		if nr.raw == nil {
			nr.raw = make([]byte, 32*1024)
		}
		n, err := nr.src.Read(nr.raw)
		if err != nil {
			nr.err = err
		}
		nr.out = nr.norm.Transform(nr.out[:0], nr.raw[:n])
		nr.pos = 0
	}
	n := copy(p, nr.out[nr.pos:])
	nr.pos += n
	return n, nil
}

// b64Chunk is a multiple of 3 so base64 quanta never split mid-stream.
const b64Chunk = 48 * 1024

// NewBase64Reader returns a reader producing the standard base64
// encoding of src as one unwrapped run.
func NewBase64Reader(src io.Reader) io.Reader {
	return &base64Reader{src: src}
}

type base64Reader struct {
	src io.Reader
	raw []byte
	out []byte
	pos int
	err error
}

func (br *base64Reader) Read(p []byte) (int, error) {
	for br.pos == len(br.out) {
		if br.err != nil {
			return 0, br.err
		}
		if br.raw == nil {
			br.raw = make([]byte, b64Chunk)
			br.out = make([]byte, 0, base64.StdEncoding.EncodedLen(b64Chunk))
		}
		n, err := io.ReadFull(br.src, br.raw)
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			br.err = io.EOF
		default:
			br.err = err
			return 0, err
		}
		br.out = br.out[:base64.StdEncoding.EncodedLen(n)]
		base64.StdEncoding.Encode(br.out, br.raw[:n])
		br.pos = 0
	}
	n := copy(p, br.out[br.pos:])
	br.pos += n
	return n, nil
}

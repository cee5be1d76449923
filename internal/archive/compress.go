package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression algorithms understood by the wrapper.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ParseCompression maps a user-supplied compression name.
func ParseCompression(s string) (string, error) {
	switch s {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip, "gz":
		return CompressionGzip, nil
	case CompressionZstd, "zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("unknown compression %q (none, gzip, zstd)", s)
}

// CompressionForPath infers the compression algorithm from an archive
// filename suffix. Returns CompressionNone when no suffix matches.
func CompressionForPath(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"), strings.HasSuffix(name, ".gzip"):
		return CompressionGzip
	case strings.HasSuffix(name, ".zst"), strings.HasSuffix(name, ".zstd"):
		return CompressionZstd
	}
	return CompressionNone
}

// NewCompressor wraps w with the requested streaming compressor.
// CompressionNone returns a pass-through whose Close leaves w open.
func NewCompressor(w io.Writer, algo string) (io.WriteCloser, error) {
	switch algo {
	case "", CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, &CompressionError{Reason: "zstd encoder", Err: err}
		}
		return zw, nil
	}
	return nil, &CompressionError{Reason: fmt.Sprintf("unknown compression %q", algo)}
}

// NewDecompressor probes r for a known compression magic and wraps it
// transparently. The filename is never consulted; only the leading
// bytes decide. The returned name is the detected algorithm,
// CompressionNone for a plain stream.
func NewDecompressor(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, "", &CompressionError{Reason: "read archive head", Err: err}
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", &CompressionError{Reason: "gzip header", Err: err}
		}
		return zr, CompressionGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, "", &CompressionError{Reason: "zstd header", Err: err}
		}
		return zr.IOReadCloser(), CompressionZstd, nil
	}
	return br, CompressionNone, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

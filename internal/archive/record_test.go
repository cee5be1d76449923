package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordWireRoundTrip(t *testing.T) {
	rec := &Record{
		Path:            "src/app.py",
		Size:            10,
		Stored:          10,
		Encoding:        EncodingUTF8,
		EOL:             EOLLF,
		TrailingNewline: true,
		Mode:            0o755,
		ModTime:         testModTime,
		Checksum:        "abc123",
	}
	w := rec.toWire()
	assert.Equal(t, "0755", w.Mode)

	back, err := w.toRecord()
	require.NoError(t, err)
	assert.Equal(t, rec.Path, back.Path)
	assert.Equal(t, rec.Size, back.Size)
	assert.Equal(t, rec.Mode, back.Mode)
	assert.True(t, back.ModTime.Equal(rec.ModTime))
	assert.Equal(t, rec.Checksum, back.Checksum)
	assert.Equal(t, rec.EOL, back.EOL)
	assert.True(t, back.TrailingNewline)
}

func TestWireRecordDefaults(t *testing.T) {
	back, err := wireRecord{Path: "a.txt", Size: 1, Stored: 1}.toRecord()
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8, back.Encoding)
	assert.Zero(t, back.Mode)
	assert.True(t, back.ModTime.IsZero())
}

func TestWireRecordValidation(t *testing.T) {
	tests := []struct {
		name string
		w    wireRecord
	}{
		{"missing path", wireRecord{Size: 1, Stored: 1}},
		{"unknown encoding", wireRecord{Path: "a", Encoding: "hex"}},
		{"negative size", wireRecord{Path: "a", Size: -1}},
		{"negative stored size", wireRecord{Path: "a", Stored: -1}},
		{"bad mode", wireRecord{Path: "a", Mode: "rwxr"}},
		{"bad mtime", wireRecord{Path: "a", ModTime: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.w.toRecord()
			require.Error(t, err)
		})
	}
}

func TestHeaderVersionGate(t *testing.T) {
	var derr *DecodeError

	_, err := wireHeader{Version: Version + 1}.toHeader(FormatJSON)
	require.ErrorAs(t, err, &derr)

	_, err = wireHeader{Format: "txt", Version: Version}.toHeader(FormatJSON)
	require.ErrorAs(t, err, &derr)
	assert.Contains(t, err.Error(), "declares format txt")

	h, err := wireHeader{Format: "json", Version: Version, FileCount: 3}.toHeader(FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 3, h.FileCount)

	_, err = wireHeader{Version: Version, Created: "not a time"}.toHeader(FormatJSON)
	require.ErrorAs(t, err, &derr)
}

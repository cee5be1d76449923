package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeReconciled pushes payload through an eolWriter into a real file
// and returns the final content after trailing-newline reconciliation.
func writeReconciled(t *testing.T, crlf bool, payload string, trailing bool) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(p)
	require.NoError(t, err)

	ew := &eolWriter{w: f, crlf: crlf}
	_, err = io.Copy(ew, strings.NewReader(payload))
	require.NoError(t, err)
	require.NoError(t, ew.reconcile(f, trailing))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}

func TestEOLWriter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		crlf     bool
		payload  string
		trailing bool
		want     string
	}{
		{"lf passthrough", false, "a\nb\n", true, "a\nb\n"},
		{"crlf expansion", true, "a\nb\n", true, "a\r\nb\r\n"},
		{"append missing lf", false, "a\nb", true, "a\nb\n"},
		{"append missing crlf", true, "a\nb", true, "a\r\nb\r\n"},
		{"truncate spurious lf", false, "a\nb\n", false, "a\nb"},
		{"truncate spurious crlf", true, "a\nb\n", false, "a\r\nb"},
		{"empty stays empty", false, "", false, ""},
		{"empty gains newline when recorded", false, "", true, "\n"},
		{"no newlines at all", true, "plain", false, "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := writeReconciled(t, tt.crlf, tt.payload, tt.trailing)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The payload arrives in arbitrary chunks; expansion state must not
// depend on chunk boundaries.
func TestEOLWriterChunked(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "out")
	f, err := os.Create(p)
	require.NoError(t, err)

	ew := &eolWriter{w: f, crlf: true}
	for _, part := range []string{"one", "\n", "two\nthr", "ee\n"} {
		_, err = ew.Write([]byte(part))
		require.NoError(t, err)
	}
	require.NoError(t, ew.reconcile(f, true))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "one\r\ntwo\r\nthree\r\n", string(data))
}

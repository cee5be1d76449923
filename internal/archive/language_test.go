package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.py", "python"},
		{"TEST.PY", "python"},
		{"app.js", "javascript"},
		{"component.tsx", "typescript"},
		{"server.go", "go"},
		{"lib.rs", "rust"},
		{"Main.java", "java"},
		{"native.cpp", "cpp"},
		{"index.html", "html"},
		{"styles.css", "css"},
		{"data.json", "json"},
		{"config.yaml", "yaml"},
		{"config.yml", "yaml"},
		{"README.md", "markdown"},
		{"query.sql", "sql"},
		{"script.sh", "bash"},
		{"Dockerfile", "dockerfile"},
		{"Makefile", "makefile"},
		{"noext", ""},
		{"file.unknown", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Language(tt.path), "path=%s", tt.path)
	}
}

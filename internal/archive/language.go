package archive

import (
	"path/filepath"
	"strings"
)

// languages maps file extensions to the info strings used on markdown
// code fences.
var languages = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
	".scala": "scala",
	".clj":   "clojure",
	".sh":    "bash",
	".bash":  "bash",
	".zsh":   "bash",
	".fish":  "fish",
	".ps1":   "powershell",
	".pl":    "perl",
	".lua":   "lua",
	".r":     "r",
	".dart":  "dart",
	".sql":   "sql",
	".html":  "html",
	".htm":   "html",
	".css":   "css",
	".scss":  "scss",
	".less":  "less",
	".xml":   "xml",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".ini":   "ini",
	".cfg":   "ini",
	".md":    "markdown",
	".rst":   "rst",
	".tex":   "latex",
	".vim":   "vim",
}

// Language returns the syntax-highlighting language for a path, or ""
// when unknown. Matching is case-insensitive.
func Language(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch base {
	case "dockerfile":
		return "dockerfile"
	case "makefile":
		return "makefile"
	}
	return languages[filepath.Ext(base)]
}

package filter

// DefaultExcludes returns the exclude patterns applied before any user
// rules: version control metadata, dependency trees, build output,
// compiled artifacts, editor droppings, and secrets. Callers add these
// to a chain unless --no-default-excludes asks for the raw tree.
func DefaultExcludes() []string {
	return []string{
		// Version control
		".git/",
		".svn/",
		".hg/",
		".bzr/",
		// Dependencies
		"node_modules/",
		"__pycache__/",
		".pytest_cache/",
		"vendor/",
		".tox/",
		".venv/",
		"venv/",
		// Build artifacts
		"dist/",
		"build/",
		"target/",
		"out/",
		"*.egg-info/",
		".eggs/",
		// Compiled files
		"*.pyc",
		"*.pyo",
		"*.pyd",
		"*.class",
		"*.jar",
		"*.war",
		"*.o",
		"*.obj",
		"*.dll",
		"*.so",
		"*.dylib",
		// IDE files
		".vscode/",
		".idea/",
		"*.swp",
		"*.swo",
		"*~",
		".DS_Store",
		"Thumbs.db",
		"desktop.ini",
		// Logs and temporary files
		"*.log",
		"*.tmp",
		"*.temp",
		"*.cache",
		"*.pid",
		// Minified files
		"*.min.js",
		"*.min.css",
		"*.bundle.js",
		// Coverage and test artifacts
		".coverage",
		".nyc_output/",
		"coverage/",
		// Environment files
		".env",
		".env.*",
	}
}

// AddDefaultExcludes appends the default exclude set to the chain.
func (c *Chain) AddDefaultExcludes() error {
	for _, p := range DefaultExcludes() {
		if err := c.AddExclude(p); err != nil {
			return err
		}
	}
	return nil
}

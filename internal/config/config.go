package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional file-combiner configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Fields are pointers so
// that an unset key can be told apart from an explicit zero value.
type DefaultsConfig struct {
	Format       *string `toml:"format"`
	Compression  *string `toml:"compression"`
	Workers      *int    `toml:"workers"`
	Checksum     *bool   `toml:"checksum"`
	Preserve     *bool   `toml:"preserve"`
	IgnoreBinary *bool   `toml:"ignore_binary"`
	MaxSize      *string `toml:"max_size"`
	BWLimit      *string `toml:"bwlimit"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "file-combiner", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

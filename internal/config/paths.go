package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "TOPOSYNC_CONFIG"
	// ConfigFileName is the default config file name
	ConfigFileName = "toposync.yaml"
	// ConfigDirName is the config directory name under XDG
	ConfigDirName = "toposync"
)

// Candidate is one place a config file is looked for
type Candidate struct {
	Source string
	Path   string
}

// SearchPaths lists where a config file is looked for, highest priority
// first. Sources whose variable is unset are left out.
func SearchPaths() []Candidate {
	var out []Candidate
	if path := os.Getenv(EnvConfigPath); path != "" {
		out = append(out, Candidate{Source: "$" + EnvConfigPath, Path: path})
	}
	cwd := ConfigFileName
	if abs, err := filepath.Abs(ConfigFileName); err == nil {
		cwd = abs
	}
	out = append(out, Candidate{Source: "working directory", Path: cwd})
	out = append(out, userCandidates()...)
	return append(out, Candidate{Source: "system", Path: filepath.Join("/etc", ConfigDirName, "config.yaml")})
}

func userCandidates() []Candidate {
	var out []Candidate
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		out = append(out, Candidate{Source: "$XDG_CONFIG_HOME", Path: filepath.Join(xdgHome, ConfigDirName, "config.yaml")})
	}
	if home := os.Getenv("HOME"); home != "" {
		out = append(out, Candidate{Source: "home", Path: filepath.Join(home, ".config", ConfigDirName, "config.yaml")})
	}
	return out
}

// FindConfigPath returns the first SearchPaths entry that exists, or an
// empty string. A missing $TOPOSYNC_CONFIG falls through to the rest.
func FindConfigPath() string {
	for _, c := range SearchPaths() {
		if fileExists(c.Path) {
			return c.Path
		}
	}
	return ""
}

// DefaultConfigPath returns the preferred location for a new config file:
// the first per-user location, else the working directory
func DefaultConfigPath() string {
	if user := userCandidates(); len(user) > 0 {
		return user[0].Path
	}
	return ConfigFileName
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0o750)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

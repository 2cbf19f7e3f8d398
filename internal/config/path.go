// Package config resolves file locations and export settings for trucks.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// MemoryDB is the SQLite DSN for a throwaway in-memory database.
const MemoryDB = ":memory:"

// DataDir is where the database, certificates, exports and tokens live by
// default: $XDG_DATA_HOME/trucks, falling back to ~/.local/share/trucks.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "trucks")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".trucks")
	}
	return filepath.Join(home, ".local", "share", "trucks")
}

// DataPath joins name onto DataDir.
func DataPath(name string) string {
	return filepath.Join(DataDir(), name)
}

// ExpandPath resolves a configured path: a leading ~ becomes the home
// directory and $VAR references are expanded. MemoryDB is returned as is.
func ExpandPath(path string) string {
	if path == "" || path == MemoryDB {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = home + path[1:]
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

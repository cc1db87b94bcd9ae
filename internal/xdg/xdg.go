// Package xdg provides XDG Base Directory paths for stockclerk.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "stockclerk"

// ConfigDir returns the XDG config directory for stockclerk.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for stockclerk.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

// PluginsDir returns the user-wide plugin directory searched after the
// working directory and its parents.
func PluginsDir() string {
	return filepath.Join(DataDir(), "plugins")
}

func appDir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

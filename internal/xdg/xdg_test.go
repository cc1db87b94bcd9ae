package xdg_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stockclerk/stockclerk/internal/xdg"
)

func TestDataDir_UsesXDGDataHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/stockclerk", xdg.DataDir())
	assert.Equal(t, "/custom/data/stockclerk/plugins", xdg.PluginsDir())
}

func TestDataDir_FallsBackToHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/clerk")
	assert.Equal(t, filepath.Join("/home/clerk", ".local", "share", "stockclerk"), xdg.DataDir())
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/clerk")
	assert.Equal(t, "/home/clerk/.config/stockclerk", xdg.ConfigDir())

	t.Setenv("XDG_CONFIG_HOME", "/etc/xdg")
	assert.Equal(t, "/etc/xdg/stockclerk", xdg.ConfigDir())
}

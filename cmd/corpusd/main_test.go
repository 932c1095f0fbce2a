package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".config", "corpusd"), expandPath("~/.config/corpusd"))
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, "/var/lib/corpusd", expandPath("/var/lib/corpusd"))
	assert.Equal(t, "relative/path", expandPath("relative/path"))
	assert.Equal(t, ":memory:", expandPath(":memory:"))
}

func TestVersionCommand(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", cmd.Name())
}

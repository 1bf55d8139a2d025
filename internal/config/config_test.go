package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
root: /tmp/fakeroot
tag_index: lsblk
lsm:
  uri: megaraid://
  password: hunter2
  timeout: 10s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/fakeroot", cfg.Root)
	assert.Equal(t, "lsblk", cfg.TagIndex)
	assert.Equal(t, "megaraid://", cfg.LSM.URI)
	assert.Equal(t, "hunter2", cfg.LSM.Password)
	assert.Equal(t, 10*time.Second, cfg.LSM.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "/var/lib/blkdevctl/sim.db", cfg.Sim.State)
}

func TestLoadClearedValues(t *testing.T) {
	path := writeConfig(t, `
tag_index: ""
lsm:
  timeout: 0s
log:
  level: ""
sim:
  state: ""
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "lsm: [unterminated"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "lsm:\n  timeout: soon\n"))
	assert.Error(t, err)
}

func TestLoadDefaultLocations(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	chdir(t, t.TempDir())

	if _, err := os.Stat("/etc/blkdevctl/config.yaml"); err == nil {
		t.Skip("host has a system config")
	}

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	dir := filepath.Join(home, ".config/blkdevctl")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("tag_index: lsblk\n"), 0o644))

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "lsblk", cfg.TagIndex)
}

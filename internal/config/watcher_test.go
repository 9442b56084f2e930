package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	reloaded := make(chan *Config, 4)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	cfg := DefaultConfig()
	cfg.UX.Theme = "light"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-reloaded:
		assert.Equal(t, "light", got.UX.Theme)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Chdir(t.TempDir())

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) { reloaded <- c })
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1"), 0644))

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(600 * time.Millisecond):
	}
}

func TestWatcherStopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.yaml"), nil)
	require.NoError(t, err)
	w.Stop()
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	hw := filepath.Join(dir, ".hookwise")
	require.NoError(t, os.MkdirAll(hw, 0755))

	var reloaded atomic.Int32
	var gotEntries atomic.Int32

	w, err := NewWatcher(dir, func(cfg *Config) {
		reloaded.Add(1)
		gotEntries.Store(int32(cfg.Cache.L1MaxEntries))
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfgPath := filepath.Join(hw, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("cache:\n  l1_max_entries: 7\n"), 0644))

	deadline := time.After(3 * time.Second)
	for reloaded.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never fired a reload")
		case <-time.After(50 * time.Millisecond):
		}
	}

	require.Equal(t, int32(7), gotEntries.Load())
}

func TestWatcherMissingDirIsSafe(t *testing.T) {
	dir := t.TempDir() // no .hookwise inside

	w, err := NewWatcher(dir, func(*Config) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	w.Stop()
}

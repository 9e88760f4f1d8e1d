package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcher_FiresOnChange(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "wareform.yaml")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(watched, []byte("account_name: a\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	w := NewWatcher(zerolog.New(nil).Level(zerolog.Disabled), 20*time.Millisecond)
	go func() {
		done <- w.Watch(ctx, []string{watched}, func(path string) error {
			changed <- path
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(watched, []byte("account_name: b\n"), 0o644))

	select {
	case path := <-changed:
		require.Equal(t, watched, path)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDirectory(t *testing.T) {
	w := NewWatcher(zerolog.New(nil).Level(zerolog.Disabled), 0)

	err := w.Watch(context.Background(), []string{filepath.Join(t.TempDir(), "nope", "a.yaml")}, func(string) error { return nil })
	require.Error(t, err)
}

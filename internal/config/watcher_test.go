// Tests for the config file watcher: construction, event delivery for the
// watched file only, close semantics, and the polling fallback.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Constructor Tests
// ///////////////////////////////////////////////

func TestNewWatcher(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 2\n"), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if w.Events() == nil {
		t.Fatal("Events() returned nil channel")
	}
	// CI environments may lack inotify; only check the method is callable.
	_ = w.Polling()
}

func TestNewWatcher_MissingFile(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// ///////////////////////////////////////////////
// Event Tests
// ///////////////////////////////////////////////

func TestWatcher_FileChangeTriggersEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 2\n"), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("version = 2\n[watch]\nusers = [\"tim\"]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config change event")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow watcher test in short mode")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 2\n"), 0o644)

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if w.Polling() {
		t.Skip("fsnotify unavailable")
	}

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "daemon.log"), []byte("noise"), 0o644)

	select {
	case <-w.Events():
		t.Fatal("unexpected event for sibling file")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_PollingFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	os.WriteFile(path, []byte("version = 2\n"), 0o644)

	w, err := newWatcher(path, 20*time.Millisecond, true)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer w.Close()

	if !w.Polling() {
		t.Fatal("expected polling mode")
	}

	// Size changes are detected even when the mtime granularity is coarse.
	os.WriteFile(path, []byte("version = 2\n# edited\n"), 0o644)

	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled change event")
	}
}

func TestWatcher_PollingDetectsCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	w, err := newWatcher(path, 20*time.Millisecond, true)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("version = 2\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case <-w.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled create event")
	}
}

// ///////////////////////////////////////////////
// Close Tests
// ///////////////////////////////////////////////

func TestWatcher_CloseIdempotent(t *testing.T) {
	w, err := newWatcher(filepath.Join(t.TempDir(), "config.toml"), time.Second, true)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestWatcher_NotifyCoalesces(t *testing.T) {
	w, err := newWatcher(filepath.Join(t.TempDir(), "config.toml"), time.Hour, true)
	if err != nil {
		t.Fatalf("newWatcher: %v", err)
	}
	defer w.Close()

	w.notify()
	w.notify()
	w.notify()

	<-w.Events()
	select {
	case <-w.Events():
		t.Fatal("expected coalesced events")
	default:
	}
}

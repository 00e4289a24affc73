package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_OnChange(t *testing.T) {
	path := writeTempFile(t, "handlers:\n  print: [a]\n")

	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	changed := make(chan string, 8)
	w.OnChange(func(p string) { changed <- p })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// A sibling file does not trigger the callback.
	sibling := filepath.Join(filepath.Dir(path), "other.yaml")
	if err := os.WriteFile(sibling, []byte("x: 1\n"), 0644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	if err := os.WriteFile(path, []byte("handlers:\n  print: [b]\n"), 0644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		if got != want {
			t.Errorf("changed path = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewWatcher_MissingDir(t *testing.T) {
	if _, err := NewWatcher(filepath.Join(t.TempDir(), "nope", "config.yaml"), nil); err == nil {
		t.Error("expected error for missing directory")
	}
}

// +build linux

package nativewatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsWriteInWatchedDirectory(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}

	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-w.Events:
		if !e.HasCreate() && !e.HasWrite() {
			t.Fatalf("event %v has neither Create nor Write", e)
		}
	case err := <-w.Errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a watch event")
	}
}

func TestWatcherRemove(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Remove(dir); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := w.Remove(dir); err == nil {
		t.Fatal("expected error removing an already-removed watch")
	}
}

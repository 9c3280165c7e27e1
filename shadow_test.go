package filewatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestShadow(t *testing.T) (*shadowRepo, string) {
	t.Helper()
	root := t.TempDir()
	shadowRoot := filepath.Join(t.TempDir(), "shadow")
	log := logrus.New()
	log.SetOutput(testWriter{t})
	return newShadowRepo(root, shadowRoot, log), root
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestShadowSeedPreservesModTime(t *testing.T) {
	s, root := newTestShadow(t)
	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.seed(file); err != nil {
		t.Fatalf("seed: %v", err)
	}

	shadowPath, err := s.pathFor(file)
	if err != nil {
		t.Fatal(err)
	}
	srcInfo, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	shadowInfo, err := os.Stat(shadowPath)
	if err != nil {
		t.Fatalf("shadow not created: %v", err)
	}
	if !srcInfo.ModTime().Equal(shadowInfo.ModTime()) {
		t.Fatalf("shadow mtime %v != source mtime %v", shadowInfo.ModTime(), srcInfo.ModTime())
	}
	if ok, err := Identical(file, shadowPath); err != nil || !ok {
		t.Fatalf("Identical(file, shadow) = %v, %v; want true, nil", ok, err)
	}
}

func TestShadowSeedIsNoOpIfAlreadyPresent(t *testing.T) {
	s, root := newTestShadow(t)
	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.seed(file); err != nil {
		t.Fatal(err)
	}

	shadowPath, err := s.pathFor(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(shadowPath, []byte("stale but already present"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.seed(file); err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(shadowPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "stale but already present" {
		t.Fatal("seed overwrote an already-present shadow")
	}
}

func TestShadowRefreshAndPurge(t *testing.T) {
	s, root := newTestShadow(t)
	file := filepath.Join(root, "a.txt")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.seed(file); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.refresh(file); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	shadowPath, err := s.pathFor(file)
	if err != nil {
		t.Fatal(err)
	}
	content, err := os.ReadFile(shadowPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "v2" {
		t.Fatalf("shadow content = %q, want %q", content, "v2")
	}

	if err := s.purge(file); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if _, err := os.Stat(shadowPath); !os.IsNotExist(err) {
		t.Fatalf("shadow still exists after purge: err=%v", err)
	}

	// Purging an already-absent shadow is not an error.
	if err := s.purge(file); err != nil {
		t.Fatalf("purge of already-absent shadow: %v", err)
	}
}

func TestShadowPurgeAll(t *testing.T) {
	s, root := newTestShadow(t)
	file := filepath.Join(root, "sub", "a.txt")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.seed(file); err != nil {
		t.Fatal(err)
	}

	if err := s.purgeAll(); err != nil {
		t.Fatalf("purgeAll: %v", err)
	}
	if _, err := os.Stat(s.shadowRoot); !os.IsNotExist(err) {
		t.Fatalf("shadow root still exists after purgeAll: err=%v", err)
	}
}

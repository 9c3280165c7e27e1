package filewatch

import (
	"testing"

	"github.com/watchline/filewatch/internal/nativewatch"
)

func TestDirectoryWatchAddIsIdempotent(t *testing.T) {
	dw := newDirectoryWatch("/tmp/dir")
	obs := ObserverFunc(func(Event) {})

	dw.addObserver("/tmp/dir/a.txt", obs)
	dw.addObserver("/tmp/dir/a.txt", obs)

	snap, ok := dw.observerSnapshot("/tmp/dir/a.txt")
	if !ok || len(snap) != 1 {
		t.Fatalf("snapshot = %v, ok=%v; want 1 observer", snap, ok)
	}
}

func TestDirectoryWatchRemoveClearsFileWhenEmpty(t *testing.T) {
	dw := newDirectoryWatch("/tmp/dir")
	a := ObserverFunc(func(Event) {})
	b := ObserverFunc(func(Event) {})

	dw.addObserver("/tmp/dir/a.txt", a)
	dw.addObserver("/tmp/dir/a.txt", b)

	if gone := dw.removeObserver("/tmp/dir/a.txt", a); gone {
		t.Fatal("file should not be gone while one observer remains")
	}
	if dw.empty() {
		t.Fatal("directory watch should not be empty yet")
	}

	if gone := dw.removeObserver("/tmp/dir/a.txt", b); !gone {
		t.Fatal("file should be gone after its last observer is removed")
	}
	if !dw.empty() {
		t.Fatal("directory watch should be empty after its only file is gone")
	}
}

func TestDirectoryWatchFileList(t *testing.T) {
	dw := newDirectoryWatch("/tmp/dir")
	obs := ObserverFunc(func(Event) {})
	dw.addObserver("/tmp/dir/a.txt", obs)
	dw.addObserver("/tmp/dir/b.txt", obs)

	got := dw.fileList()
	if len(got) != 2 {
		t.Fatalf("fileList() = %v, want 2 entries", got)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		op   nativewatch.Op
		want rawKind
	}{
		{nativewatch.Create, kindCreate},
		{nativewatch.Write, kindModify},
		{nativewatch.Chmod, kindModify},
		{nativewatch.Remove, kindDelete},
		{nativewatch.Rename, kindDelete},
		{0, kindUnknown},
	}
	for _, c := range cases {
		if got := classify(c.op); got != c.want {
			t.Errorf("classify(%v) = %v, want %v", c.op, got, c.want)
		}
	}
}

package filewatch

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDiffIdenticalSequence(t *testing.T) {
	x := []string{"aaaa", "bbbb", "cccc"}
	got := Diff(x, x)
	want := []string{"= aaaa", "= bbbb", "= cccc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff(x, x) = %v, want %v", got, want)
	}
}

func TestDiffEmptySides(t *testing.T) {
	y := []string{"one", "two"}
	got := Diff(nil, y)
	want := []string{"> one", "> two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff(nil, y) = %v, want %v", got, want)
	}

	x := []string{"one", "two"}
	got = Diff(x, nil)
	want = []string{"< one", "< two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff(x, nil) = %v, want %v", got, want)
	}
}

// TestDiffTieBreak checks a worked example with a non-trivial tie-break
// between the insertion and deletion branches of the edit script.
func TestDiffTieBreak(t *testing.T) {
	x := []string{"aaaa", "bbbb", "cccc"}
	y := []string{"aaaa", "dddd", "eeee", "cccc"}
	got := Diff(x, y)
	want := []string{"= aaaa", "< bbbb", "> dddd", "> eeee", "= cccc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff(x, y) = %v, want %v", got, want)
	}
}

// TestDiffIsValidEditScript checks that the edit script is faithful:
// filtering out insertions reconstructs x, filtering out deletions
// reconstructs y.
func TestDiffIsValidEditScript(t *testing.T) {
	x := []string{"a", "b", "c", "d"}
	y := []string{"b", "c", "e", "d", "f"}
	script := Diff(x, y)

	var reconstructedY, reconstructedX []string
	for _, line := range script {
		switch {
		case line[:2] == "< ":
			reconstructedX = append(reconstructedX, line[2:])
		case line[:2] == "> ":
			reconstructedY = append(reconstructedY, line[2:])
		case line[:2] == "= ":
			reconstructedX = append(reconstructedX, line[2:])
			reconstructedY = append(reconstructedY, line[2:])
		default:
			t.Fatalf("unexpected diff line prefix: %q", line)
		}
	}

	if !reflect.DeepEqual(reconstructedX, x) {
		t.Fatalf("reconstructed x = %v, want %v", reconstructedX, x)
	}
	if !reflect.DeepEqual(reconstructedY, y) {
		t.Fatalf("reconstructed y = %v, want %v", reconstructedY, y)
	}
}

func TestIdentical(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	if ok, err := Identical(a, b); err != nil || ok {
		t.Fatalf("Identical(missing, missing) = %v, %v; want false, nil", ok, err)
	}

	if err := os.WriteFile(a, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := Identical(a, b); err != nil || ok {
		t.Fatalf("Identical(existing, missing) = %v, %v; want false, nil", ok, err)
	}

	if ok, err := Identical(a, a); err != nil || !ok {
		t.Fatalf("Identical(a, a) = %v, %v; want true, nil", ok, err)
	}

	if err := os.WriteFile(b, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := Identical(a, b); err != nil || !ok {
		t.Fatalf("Identical(a, b) = %v, %v; want true, nil (equal content)", ok, err)
	}

	if err := os.WriteFile(b, []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := Identical(a, b); err != nil || ok {
		t.Fatalf("Identical(a, b) = %v, %v; want false, nil (different content)", ok, err)
	}
}

func TestFileDiffCreateAndDelete(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	if err := os.WriteFile(b, []byte("newly created"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := FileDiff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"> newly created"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FileDiff(missing, b) = %v, want %v", got, want)
	}

	if err := os.Remove(b); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(a, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = FileDiff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"< hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FileDiff(a, missing) = %v, want %v", got, want)
	}
}

func TestFileDiffModification(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	if err := os.WriteFile(a, []byte("some content"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("some new text 1700000000000"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FileDiff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"< some content", "> some new text 1700000000000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FileDiff(a, b) = %v, want %v", got, want)
	}
}

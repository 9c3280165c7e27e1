package filewatch

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Identical reports whether a and b name existing regular files with
// byte-for-byte equal contents. It never fails on a missing file — a
// missing side simply makes the files non-identical. It returns an
// error only when a path exists but cannot be read.
func Identical(a, b string) (bool, error) {
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if os.IsNotExist(errA) || os.IsNotExist(errB) {
		return false, nil
	}
	if errA != nil {
		return false, errors.Wrapf(errA, "stat %s", a)
	}
	if errB != nil {
		return false, errors.Wrapf(errB, "stat %s", b)
	}
	if infoA.IsDir() || infoB.IsDir() {
		return false, nil
	}
	if a == b {
		return true, nil
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	contentA, err := os.ReadFile(a)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", a)
	}
	contentB, err := os.ReadFile(b)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", b)
	}
	return bytes.Equal(contentA, contentB), nil
}

// FileDiff produces the diff lines between the contents of a (old) and
// b (new). A side that does not exist on disk contributes no lines of
// its own; every line of the other side is emitted with the
// corresponding insertion/deletion prefix. When both exist, the result
// is the sequence-level diff of their lines (see Diff).
func FileDiff(a, b string) ([]string, error) {
	existsA, linesA, errA := readLines(a)
	if errA != nil {
		return nil, errors.Wrapf(errA, "read %s", a)
	}
	existsB, linesB, errB := readLines(b)
	if errB != nil {
		return nil, errors.Wrapf(errB, "read %s", b)
	}

	switch {
	case !existsA && existsB:
		return prefixAll("> ", linesB), nil
	case existsA && !existsB:
		return prefixAll("< ", linesA), nil
	case !existsA && !existsB:
		return []string{}, nil
	default:
		return Diff(linesA, linesB), nil
	}
}

func readLines(path string) (exists bool, lines []string, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, splitLines(content), nil
}

func splitLines(content []byte) []string {
	text := string(content)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

func prefixAll(prefix string, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = prefix + l
	}
	return out
}

// Diff computes the longest-common-subsequence edit script between x
// (old) and y (new). Equal lines are emitted with prefix "= ", lines
// present only in y with "> ", lines present only in x with "< ".
//
// The reconstruction walks from (len(x), len(y)) back to (0, 0). When
// x[i-1] != y[j-1] and both branches of the LCS table tie, the
// insertion-from-y branch is preferred over the deletion-from-x branch;
// this makes the output deterministic and matches the reference
// implementation's tie-break exactly.
func Diff(x, y []string) []string {
	n, m := len(x), len(y)
	l := make([][]int, n+1)
	for i := range l {
		l[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if x[i-1] == y[j-1] {
				l[i][j] = l[i-1][j-1] + 1
			} else if l[i][j-1] >= l[i-1][j] {
				l[i][j] = l[i][j-1]
			} else {
				l[i][j] = l[i-1][j]
			}
		}
	}

	out := make([]string, 0, n+m)
	i, j := n, m
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && x[i-1] == y[j-1]:
			out = append(out, "= "+x[i-1])
			i--
			j--
		case j > 0 && (i == 0 || l[i][j-1] >= l[i-1][j]):
			out = append(out, "> "+y[j-1])
			j--
		default:
			out = append(out, "< "+x[i-1])
			i--
		}
	}

	for left, right := 0, len(out)-1; left < right; left, right = left+1, right-1 {
		out[left], out[right] = out[right], out[left]
	}
	return out
}

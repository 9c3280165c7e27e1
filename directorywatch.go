package filewatch

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/watchline/filewatch/internal/nativewatch"
)

// rawKind classifies a raw native-watch notification into the three
// kinds the drain loop cares about. A bare rename counts as a deletion
// (see classify). Anything else (e.g. an op with no recognized bit set)
// is not a recognized kind and is skipped.
type rawKind int

const (
	kindUnknown rawKind = iota
	kindCreate
	kindModify
	kindDelete
)

func classify(op nativewatch.Op) rawKind {
	switch {
	case op.HasRemove():
		return kindDelete
	case op.HasCreate():
		return kindCreate
	case op.HasWrite() || op.HasChmod():
		return kindModify
	case op.HasRename():
		// A bare rename away from this name behaves like a deletion from
		// the directory watch's point of view: the name no longer
		// resolves to the file it was shadowing.
		return kindDelete
	default:
		return kindUnknown
	}
}

// directoryWatch is the per-parent-directory aggregate: one native
// watch handle (owned by the notifier's single nativewatch.Watcher,
// keyed by this directory) plus a mapping from
// file path to observer set. All reads and mutations of the files map
// happen under the owning Notifier's lock; directoryWatch itself holds
// no lock of its own.
type directoryWatch struct {
	dir   string
	files map[string]map[Observer]struct{}
}

func newDirectoryWatch(dir string) *directoryWatch {
	return &directoryWatch{dir: dir, files: make(map[string]map[Observer]struct{})}
}

// addObserver inserts obs into file's observer set, creating it on
// demand. Adding the same observer twice is idempotent (map semantics).
func (dw *directoryWatch) addObserver(file string, obs Observer) {
	set, ok := dw.files[file]
	if !ok {
		set = make(map[Observer]struct{})
		dw.files[file] = set
	}
	set[obs] = struct{}{}
}

// removeObserver removes obs from file's set. It reports whether file
// no longer has any observers (and was therefore removed from the
// mapping) after the call.
func (dw *directoryWatch) removeObserver(file string, obs Observer) (fileGone bool) {
	set, ok := dw.files[file]
	if !ok {
		return true
	}
	delete(set, obs)
	if len(set) == 0 {
		delete(dw.files, file)
		return true
	}
	return false
}

// empty reports whether the directory watch has no more watched files.
func (dw *directoryWatch) empty() bool { return len(dw.files) == 0 }

// fileList returns the keys of the file mapping.
func (dw *directoryWatch) fileList() []string {
	out := make([]string, 0, len(dw.files))
	for f := range dw.files {
		out = append(out, f)
	}
	return out
}

// observerSnapshot returns a point-in-time copy of file's observer set,
// and whether file is present in the mapping at all. Called with the
// notifier's lock held.
func (dw *directoryWatch) observerSnapshot(file string) ([]Observer, bool) {
	set, ok := dw.files[file]
	if !ok {
		return nil, false
	}
	out := make([]Observer, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	return out, true
}

func (dw *directoryWatch) String() string {
	return fmt.Sprintf("directoryWatch(%s, %d files)", dw.dir, len(dw.files))
}

// drainOne resolves a single raw notification already classified to an
// absolute file path and a recognized kind, with
// a snapshot of its current observers. It runs with no notifier lock
// held: shadow I/O and observer dispatch are synchronous but unbounded
// in duration, matching the "observer is expected to return promptly"
// contract rather than serializing behind the table lock.
func drainOne(shadow *shadowRepo, log *logrus.Logger, file string, kind rawKind, observers []Observer) {
	shadowPath, err := shadow.pathFor(file)
	if err != nil {
		log.WithError(err).WithField("file", file).Warn("failed to resolve shadow path")
		return
	}

	identical, err := Identical(file, shadowPath)
	if err != nil {
		log.WithError(err).WithField("file", file).Warn("failed to compare file against shadow")
	} else if !identical {
		diff, err := FileDiff(shadowPath, file)
		if err != nil {
			log.WithError(err).WithField("file", file).Warn("failed to compute diff")
		} else {
			event := Event{Path: file, Time: eventTime(file), Diff: diff}
			for _, obs := range observers {
				dispatchOne(log, obs, event)
			}
		}
	}

	switch kind {
	case kindCreate, kindModify:
		if err := shadow.refresh(file); err != nil {
			log.WithError(err).WithField("file", file).Warn("failed to refresh shadow")
		}
	case kindDelete:
		if err := shadow.purge(file); err != nil {
			log.WithError(err).WithField("file", file).Warn("failed to purge shadow")
		}
	}
}

func dispatchOne(log *logrus.Logger, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("file", event.Path).Warnf("observer panicked: %v", r)
		}
	}()
	obs.OnEvent(event)
}


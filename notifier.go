package filewatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/watchline/filewatch/internal/nativewatch"
)

// Notifier is the coordination engine's façade: it maintains the
// directory-watch table, owns the background notification loop, and
// exposes registration.
type Notifier struct {
	root       string
	shadowRoot string
	log        *logrus.Logger
	shadow     *shadowRepo

	mu          sync.Mutex
	directories map[string]*directoryWatch
	watcher     *nativewatch.Watcher
	loopDone    chan struct{}
	wg          sync.WaitGroup
}

// NotifierOption configures optional aspects of a Notifier at
// construction time.
type NotifierOption func(*Notifier)

// WithLogger overrides the default logrus logger. Useful in tests, or
// for callers who want their own formatter/output instead of logrus's
// default text formatter.
func WithLogger(log *logrus.Logger) NotifierOption {
	return func(n *Notifier) { n.log = log }
}

// New constructs a notifier rooted at root, mirroring observed file
// content under shadowRoot (created if absent). The notifier starts
// stopped; it starts implicitly on the first AddObserver call.
func New(root, shadowRoot string, opts ...NotifierOption) (*Notifier, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve root %s", root)
	}
	absShadowRoot, err := filepath.Abs(shadowRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve shadow root %s", shadowRoot)
	}
	if err := os.MkdirAll(absShadowRoot, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create shadow root %s", absShadowRoot)
	}

	n := &Notifier{
		root:        filepath.Clean(absRoot),
		shadowRoot:  filepath.Clean(absShadowRoot),
		log:         logrus.StandardLogger(),
		directories: make(map[string]*directoryWatch),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.shadow = newShadowRepo(n.root, n.shadowRoot, n.log)
	return n, nil
}

// AddObserver registers obs to receive events for file. file may be
// absolute or relative to the notifier's root. Implicitly starts the
// notifier if this is the first registration.
func (n *Notifier) AddObserver(file string, obs Observer) (err error) {
	abs, err := n.absolutize(file)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, abs)
	}
	dir := filepath.Dir(abs)
	if !n.beneathRoot(dir) {
		return fmt.Errorf("%w: %s is not beneath root %s", ErrInvalidArgument, abs, n.root)
	}

	n.mu.Lock()
	justStarted := n.watcher == nil
	if justStarted {
		if err := n.startLocked(); err != nil {
			n.mu.Unlock()
			return err
		}
	}
	// If this call started the notifier but fails before installing any
	// directory watch, the table would be left empty while still
	// "running" with nothing registered. Tear the fresh start back down in
	// that case rather than leaving an orphaned background loop.
	defer func() {
		if err != nil && justStarted && len(n.directories) == 0 {
			n.mu.Unlock()
			_ = n.Stop()
			return
		}
		n.mu.Unlock()
	}()

	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		err = errors.Wrapf(mkErr, "create parent directory for %s", abs)
		return err
	}

	if seedErr := n.shadow.seed(abs); seedErr != nil {
		err = errors.Wrapf(seedErr, "seed shadow for %s", abs)
		return err
	}

	dw, ok := n.directories[dir]
	if !ok {
		if addErr := n.watcher.Add(dir); addErr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrWatchUnsupported, dir, addErr)
			return err
		}
		dw = newDirectoryWatch(dir)
		n.directories[dir] = dw
	}
	dw.addObserver(abs, obs)
	return nil
}

// RemoveObserver unregisters obs from file. A no-op if file's parent
// directory is not currently watched, or if obs was never registered
// for file.
func (n *Notifier) RemoveObserver(file string, obs Observer) error {
	abs, err := n.absolutize(file)
	if err != nil {
		return err
	}
	if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, abs)
	}
	dir := filepath.Dir(abs)

	n.mu.Lock()
	dw, ok := n.directories[dir]
	if !ok {
		n.mu.Unlock()
		return nil
	}

	fileGone := dw.removeObserver(abs, obs)
	if dw.empty() {
		if err := n.watcher.Remove(dir); err != nil {
			n.log.WithError(err).WithField("dir", dir).Warn("failed to cancel native watch")
		}
		delete(n.directories, dir)
	}

	// Decide to stop atomically with the emptiness check above, under the
	// same lock acquisition: this closes the race the design notes flag,
	// where a concurrent AddObserver could repopulate the table between
	// an emptiness check and a separate, later-acquired Stop call.
	var stopping *nativewatch.Watcher
	if len(n.directories) == 0 && n.watcher != nil {
		stopping = n.watcher
		n.watcher = nil
		close(n.loopDone)
	}
	n.mu.Unlock()

	if fileGone {
		n.shadow.purgeSafe(abs)
	}

	if stopping != nil {
		if err := stopping.Close(); err != nil {
			n.log.WithError(err).Warn("failed to close native watcher")
		}
		n.wg.Wait()
		return n.shadow.purgeAll()
	}
	return nil
}

// startLocked creates the native watch service and spawns the
// background notification loop. Must be called with n.mu held and
// n.watcher == nil.
func (n *Notifier) startLocked() error {
	w, err := nativewatch.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatchUnsupported, err)
	}
	n.watcher = w
	n.loopDone = make(chan struct{})
	n.wg.Add(1)
	go n.loop(w, n.loopDone)
	return nil
}

// loop is the single long-lived background task that drains native
// watch events for the lifetime of the notifier. It
// blocks on the native watcher's channels, looks up the directory watch
// for each event, and dispatches via drainOne. It exits when the
// watcher's channels close (Stop was called) or when done is closed.
func (n *Notifier) loop(w *nativewatch.Watcher, done chan struct{}) {
	defer n.wg.Done()
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			n.handleEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			if err != nil {
				n.log.WithError(err).Warn("native watch error")
			}
		case <-done:
			return
		}
	}
}

// handleEvent resolves a raw native event to a watched file and, if
// found, hands it to drainOne outside the table lock.
func (n *Notifier) handleEvent(event nativewatch.Event) {
	kind := classify(event.Op)
	if kind == kindUnknown {
		n.log.WithField("name", event.Name).WithField("op", event.Op.String()).Debug("ignoring unrecognized native event")
		return
	}

	file := filepath.Clean(event.Name)
	dir := filepath.Dir(file)

	n.mu.Lock()
	dw, ok := n.directories[dir]
	var observers []Observer
	if ok {
		observers, ok = dw.observerSnapshot(file)
	}
	n.mu.Unlock()
	if !ok {
		return
	}

	drainOne(n.shadow, n.log, file, kind, observers)
}

// Stop halts the notification loop, cancels all native watches, and
// recursively deletes the shadow root. A no-op if not running.
func (n *Notifier) Stop() error {
	n.mu.Lock()
	if n.watcher == nil {
		n.mu.Unlock()
		return nil
	}
	w := n.watcher
	n.watcher = nil
	close(n.loopDone)
	n.directories = make(map[string]*directoryWatch)
	n.mu.Unlock()

	if err := w.Close(); err != nil {
		n.log.WithError(err).Warn("failed to close native watcher")
	}
	n.wg.Wait()

	return n.shadow.purgeAll()
}

// IsRunning reports whether the background notification loop and native
// watch service are live.
func (n *Notifier) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.watcher != nil
}

// WatchedFiles returns the absolute paths of every file with at least
// one registered observer.
func (n *Notifier) WatchedFiles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, dw := range n.directories {
		out = append(out, dw.fileList()...)
	}
	return out
}

// WatchedDirectories returns the directories currently holding a native
// watch handle.
func (n *Notifier) WatchedDirectories() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.directories))
	for dir := range n.directories {
		out = append(out, dir)
	}
	return out
}

func (n *Notifier) absolutize(file string) (string, error) {
	if filepath.IsAbs(file) {
		return filepath.Clean(file), nil
	}
	return filepath.Clean(filepath.Join(n.root, file)), nil
}

// beneathRoot performs a path-component ancestor check: dir must equal
// root or have root as an ancestor directory. This intentionally avoids
// the textual-prefix comparison that would wrongly admit a sibling
// directory whose name merely starts with root's name (e.g. root
// "/a/b" must not admit "/a/bc").
func (n *Notifier) beneathRoot(dir string) bool {
	rel, err := filepath.Rel(n.root, dir)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

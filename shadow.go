package filewatch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// shadowRepo mirrors the last-observed content of every currently
// registered file under a dedicated directory tree, preserving each
// file's modification time. It is consulted to compute diffs and to
// detect spurious notifications that rewrite a file with identical
// content.
type shadowRepo struct {
	root       string
	shadowRoot string
	log        *logrus.Logger
}

func newShadowRepo(root, shadowRoot string, log *logrus.Logger) *shadowRepo {
	return &shadowRepo{root: root, shadowRoot: shadowRoot, log: log}
}

// pathFor returns the shadow path for the watched file at the given
// absolute path.
func (s *shadowRepo) pathFor(file string) (string, error) {
	rel, err := filepath.Rel(s.root, file)
	if err != nil {
		return "", errors.Wrapf(err, "relativize %s", file)
	}
	return filepath.Join(s.shadowRoot, rel), nil
}

// seed copies file to its shadow path if file exists and the shadow
// does not, preserving the modification time exactly.
func (s *shadowRepo) seed(file string) error {
	shadow, err := s.pathFor(file)
	if err != nil {
		return err
	}
	if _, err := os.Stat(shadow); err == nil {
		return nil
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}
	return s.copyToShadow(file, shadow)
}

// refresh replaces the shadow with the file's current contents,
// preserving attributes. It is a no-op if file no longer exists.
func (s *shadowRepo) refresh(file string) error {
	shadow, err := s.pathFor(file)
	if err != nil {
		return err
	}
	if _, err := os.Stat(file); os.IsNotExist(err) {
		return nil
	}
	return s.copyToShadow(file, shadow)
}

func (s *shadowRepo) copyToShadow(file, shadow string) error {
	if err := os.MkdirAll(filepath.Dir(shadow), 0o755); err != nil {
		return errors.Wrapf(err, "create shadow directory for %s", file)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}
	info, err := os.Stat(file)
	if err != nil {
		return errors.Wrapf(err, "stat %s", file)
	}
	if err := os.WriteFile(shadow, content, info.Mode().Perm()); err != nil {
		return errors.Wrapf(err, "write shadow for %s", file)
	}
	if err := os.Chtimes(shadow, info.ModTime(), info.ModTime()); err != nil {
		return errors.Wrapf(err, "preserve mtime for shadow of %s", file)
	}
	return nil
}

// purge deletes the shadow file for file, if it exists.
func (s *shadowRepo) purge(file string) error {
	shadow, err := s.pathFor(file)
	if err != nil {
		return err
	}
	if err := os.Remove(shadow); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "purge shadow for %s", file)
	}
	return nil
}

// purgeSafe purges file's shadow, logging rather than returning an
// error; used from paths where shadow cleanup must not abort an
// otherwise-successful registration mutation.
func (s *shadowRepo) purgeSafe(file string) {
	if err := s.purge(file); err != nil {
		s.log.WithError(err).WithField("file", file).Warn("failed to purge shadow")
	}
}

// purgeAll recursively removes the shadow root; called on Stop.
func (s *shadowRepo) purgeAll() error {
	if err := os.RemoveAll(s.shadowRoot); err != nil {
		return errors.Wrapf(err, "purge shadow root %s", s.shadowRoot)
	}
	return nil
}

// eventTime returns file's current modification time, or the current
// wall-clock instant if the file no longer exists (e.g. after a
// deletion, where there is no longer a modification time to read).
func eventTime(file string) time.Time {
	info, err := os.Stat(file)
	if err != nil {
		return time.Now()
	}
	return info.ModTime()
}

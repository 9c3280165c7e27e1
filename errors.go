package filewatch

import "errors"

// Sentinel error kinds returned by the programmatic API. Registration
// errors are strict and synchronous; errors raised during the
// notification loop are logged instead (see the Notifier's logger).
var (
	// ErrInvalidArgument is returned when a file argument is a directory,
	// or does not lie beneath the notifier's root.
	ErrInvalidArgument = errors.New("filewatch: invalid argument")

	// ErrWatchUnsupported is returned from the implicit start triggered by
	// the first AddObserver call when the platform has no native
	// directory-watch backend.
	ErrWatchUnsupported = errors.New("filewatch: native watch unsupported on this platform")
)

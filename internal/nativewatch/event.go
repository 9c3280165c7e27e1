// Copyright 2012 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nativewatch provides a platform-independent interface to the
// operating system's directory-change notification facility (inotify,
// kqueue, ReadDirectoryChangesW). It reports raw, directory-granular
// change events; callers that need file-granular semantics filter the
// Name field themselves.
package nativewatch

import (
	"bytes"
	"errors"
	"fmt"
)

// Errors that can be returned by a platform backend.
var (
	// ErrNonExistentWatch is returned when Remove is called on a path that
	// was never added (or was already removed).
	ErrNonExistentWatch = errors.New("nativewatch: can't remove non-existent watch")
	// ErrClosed is returned when Add is called on a Watcher that has
	// already been closed.
	ErrClosed = errors.New("nativewatch: watcher already closed")
)

// Event represents a single file system notification.
type Event struct {
	Name string // Path to the file or directory, built on the path passed to Add.
	Op   Op     // File operation that triggered the event.
}

// Op describes a set of file operations.
type Op uint32

// These are the generalized file operations that can trigger a notification.
const (
	Create Op = 1 << iota
	Write
	Remove
	Rename
	Chmod
)

// HasCreate returns true if Op has the Create bit set.
func (op Op) HasCreate() bool { return op&Create == Create }

// HasWrite returns true if Op has the Write bit set.
func (op Op) HasWrite() bool { return op&Write == Write }

// HasRemove returns true if Op has the Remove bit set.
func (op Op) HasRemove() bool { return op&Remove == Remove }

// HasRename returns true if Op has the Rename bit set.
func (op Op) HasRename() bool { return op&Rename == Rename }

// HasChmod returns true if Op has the Chmod bit set.
func (op Op) HasChmod() bool { return op&Chmod == Chmod }

// String returns a string representation of op in the form
// "REMOVE|WRITE|...".
func (op Op) String() string {
	// Use a buffer for efficient string concatenation
	var buffer bytes.Buffer

	if op.HasCreate() {
		buffer.WriteString("|CREATE")
	}
	if op.HasRemove() {
		buffer.WriteString("|REMOVE")
	}
	if op.HasWrite() {
		buffer.WriteString("|WRITE")
	}
	if op.HasRename() {
		buffer.WriteString("|RENAME")
	}
	if op.HasChmod() {
		buffer.WriteString("|CHMOD")
	}

	// If buffer remains empty, return no event names
	if buffer.Len() == 0 {
		return ""
	}

	// Return a list of event names, with leading pipe character stripped
	return buffer.String()[1:]
}

// HasCreate returns true if Event has the Create opcode
func (e Event) HasCreate() bool { return e.Op.HasCreate() }

// HasWrite returns true if Event has the Write opcode
func (e Event) HasWrite() bool { return e.Op.HasWrite() }

// HasRemove returns true if Event has the Remove opcode
func (e Event) HasRemove() bool { return e.Op.HasRemove() }

// HasRename returns true if Event has the Rename opcode
func (e Event) HasRename() bool { return e.Op.HasRename() }

// HasChmod returns true if Event has the Chmod opcode
func (e Event) HasChmod() bool { return e.Op.HasChmod() }

// String returns a string representation of the event in the form
// "file: REMOVE|WRITE|..."
func (e Event) String() string {
	return fmt.Sprintf("%q: %s", e.Name, e.Op.String())
}

// +build freebsd openbsd netbsd dragonfly

package nativewatch

import "syscall"

// openMode used for the syscall.Open call for kqueue file descriptors.
const openMode = syscall.O_NONBLOCK | syscall.O_RDONLY

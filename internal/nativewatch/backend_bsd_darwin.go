// +build darwin

package nativewatch

import "syscall"

// openMode used for the syscall.Open call for kqueue file descriptors.
// O_EVTONLY prevents the device from being reported as busy, since we
// never actually read from or write to it.
const openMode = syscall.O_EVTONLY

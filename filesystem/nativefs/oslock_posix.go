//go:build !windows && !plan9

package nativefs

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// osLock wraps an advisory POSIX file lock taken on the root's lock-file
// sentinel. It is a belt-and-suspenders protection against a second OS
// process concurrently touching the same directory tree; it has no
// bearing on in-process coordination, which is handled entirely by
// filesystem.Lock.
type osLock struct {
	file *os.File
}

// acquireOSLock opens (creating if necessary) the lock file at path and
// takes a non-blocking exclusive advisory lock on it.
func acquireOSLock(path string) (*osLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open lock file")
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "unable to flock lock file")
	}
	return &osLock{file: file}, nil
}

// release releases the advisory lock and closes the underlying file
// handle.
func (l *osLock) release() {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
}

//go:build unix

package lock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsProcessAlive reports whether pid denotes a running process on this host.
// Signal 0 performs the existence and permission checks without delivering
// anything. EPERM means the process exists but belongs to someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

//go:build !unix

package lock

import "os"

// IsProcessAlive reports whether pid denotes a running process on this host.
// On non-unix platforms FindProcess opens a handle and fails for unknown pids.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}

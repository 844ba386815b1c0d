//go:build linux || darwin

package collector

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockScratch takes an exclusive, non-blocking lock on path+".lock" so
// that only one agent writes to a given scratch file. The returned func
// releases the lock.
func LockScratch(path string) (func() error, error) {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("scratch file %s is in use by another agent", path)
		}
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	return func() error {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return f.Close()
	}, nil
}

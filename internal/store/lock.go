//go:build linux || darwin

package store

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileLock holds an exclusive advisory OS-level lock on a sibling
// ".lockfile" next to a tape path, gating concurrent writers (§4.4, §5).
type fileLock struct {
	f *os.File
}

// acquireLock opens (creating if needed) path+".lockfile" and attempts a
// non-blocking exclusive flock, retrying with backoff up to budget. On
// exhaustion it returns TapeLockError.
func acquireLock(path string, budget time.Duration) (*fileLock, error) {
	lockPath := path + ".lockfile"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, &TapeIoError{Path: lockPath, Op: "open lockfile", Err: err}
	}

	deadline := time.Now().Add(budget)
	backoff := 5 * time.Millisecond
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, &TapeLockError{Path: path}
		}
		time.Sleep(backoff)
		if backoff < 200*time.Millisecond {
			backoff *= 2
		}
	}
}

func (l *fileLock) release() error {
	defer l.f.Close()
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

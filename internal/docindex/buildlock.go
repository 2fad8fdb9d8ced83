package docindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout indicates the build lock was not acquired in time
var ErrLockTimeout = errors.New("build lock acquisition timed out")

const (
	lockPollStart = 10 * time.Millisecond
	lockPollMax   = 500 * time.Millisecond
)

// BuildLock elects a single process to rebuild the full-text index.
// It uses flock(2), so the kernel releases it if the holder dies.
type BuildLock struct {
	path string
	file *os.File
}

// NewBuildLock creates a lock backed by the file at path.
func NewBuildLock(path string) *BuildLock {
	return &BuildLock{path: path}
}

// TryAcquire takes the lock without blocking.
// It returns false, nil when another process holds it.
func (l *BuildLock) TryAcquire() (bool, error) {
	if l.file != nil {
		return true, nil
	}
	f, err := l.open()
	if err != nil {
		return false, err
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		l.file = f
		return true, nil
	}
	_ = f.Close()
	if errors.Is(err, unix.EWOULDBLOCK) {
		return false, nil
	}
	return false, fmt.Errorf("flock failed: %w", err)
}

// Acquire waits for the lock until timeout elapses or ctx is done.
func (l *BuildLock) Acquire(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	poll := lockPollStart
	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return ErrLockTimeout
			}
			return ctx.Err()
		case <-time.After(poll):
			poll = min(poll*2, lockPollMax)
		}
	}
}

// Release gives up the lock. Releasing an unheld lock is a no-op.
func (l *BuildLock) Release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	err := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("flock unlock failed: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close failed: %w", closeErr)
	}
	return nil
}

// Held reports whether this instance holds the lock.
func (l *BuildLock) Held() bool {
	return l.file != nil
}

func (l *BuildLock) open() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	return f, nil
}

package manager

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"git.home.luguber.info/inful/forpostctl/internal/foundation/errors"
)

// Locker serializes mutations across processes.
type Locker interface {
	// Lock blocks until the lock is held or ctx is done.
	Lock(ctx context.Context) (unlock func(), err error)
}

// FileLock is an exclusive flock on a lock file shared by the CLI and the daemon.
type FileLock struct {
	Path string
	// Poll is the retry interval while another process holds the lock.
	Poll time.Duration
}

// NewFileLock returns a FileLock on path.
func NewFileLock(path string) *FileLock {
	return &FileLock{Path: path, Poll: 50 * time.Millisecond}
}

func (l *FileLock) Lock(ctx context.Context) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o750); err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create lock directory").
			WithContext("path", l.Path).
			Build()
	}
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to open lock file").
			WithContext("path", l.Path).
			Build()
	}

	poll := l.Poll
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if err != unix.EWOULDBLOCK {
			_ = f.Close()
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to acquire lock").
				WithContext("path", l.Path).
				Build()
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, errors.WrapError(ctx.Err(), errors.CategoryRuntime, "timed out waiting for lock").
				WithContext("path", l.Path).
				Build()
		case <-time.After(poll):
		}
	}

	return func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}, nil
}

// NopLocker does not lock. Used when a single process owns the files.
type NopLocker struct{}

func (NopLocker) Lock(context.Context) (func(), error) { return func() {}, nil }

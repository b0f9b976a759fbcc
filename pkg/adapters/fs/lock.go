package fs

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 10 * time.Millisecond

// fileLock serializes writers across processes sharing one catalog directory.
type fileLock struct {
	flock   *flock.Flock
	timeout time.Duration
}

func newFileLock(path string, timeout time.Duration) *fileLock {
	return &fileLock{flock: flock.New(path), timeout: timeout}
}

// acquire blocks until the exclusive lock is held, ctx is done or the timeout
// expires.
func (l *fileLock) acquire(ctx context.Context) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	ok, err := l.flock.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.flock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire lock %s", l.flock.Path())
	}
	return nil
}

func (l *fileLock) release() error {
	return l.flock.Unlock()
}

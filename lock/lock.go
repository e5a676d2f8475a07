package lock

import (
	"context"
	"errors"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock held by another process")

// Locker provides mutual exclusion with context support.
type Locker interface {
	Lock(ctx context.Context) error
	// TryLock acquires the lock without waiting, returning ErrLocked if it is taken.
	TryLock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// WithLock acquires the lock, calls fn, and releases the lock.
// If fn returns an error, the lock is still released.
func WithLock(ctx context.Context, l Locker, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return fn()
}

// WithTryLock is WithLock without waiting: it fails with ErrLocked when the
// lock is already held, so a second orchestration refuses instead of queueing.
func WithTryLock(ctx context.Context, l Locker, fn func() error) error {
	if err := l.TryLock(ctx); err != nil {
		return err
	}
	defer l.Unlock(ctx) //nolint:errcheck
	return fn()
}

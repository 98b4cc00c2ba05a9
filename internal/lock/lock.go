package lock

import (
	"fmt"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

// ErrHeld is returned when another process owns the lock
var ErrHeld = errors.ErrLockHeld

// DefaultPath is where the run lock lives unless configured otherwise.
const DefaultPath = "/tmp/rcrr.pid"

// Lock is an exclusive advisory file lock that keeps two runs from
// reconciling at the same time.
type Lock struct {
	fl     *flock.Flock
	logger *zap.Logger
}

// Acquire takes the lock at path without blocking. It fails with ErrHeld
// when another process already holds it.
func Acquire(logger *zap.Logger, path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("lock %s: %w", path, ErrHeld)
	}

	logger.Debug("Lock acquired", zap.String("path", path))
	return &Lock{fl: fl, logger: logger}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release gives the lock up. It is safe to call more than once.
func (l *Lock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		l.logger.Error("Failed to release lock", zap.String("path", l.fl.Path()), zap.Error(err))
		return fmt.Errorf("unlock %s: %w", l.fl.Path(), err)
	}
	l.logger.Debug("Lock released", zap.String("path", l.fl.Path()))
	return nil
}

package dnsprovider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSyncInterval is the pause between two status polls.
	DefaultSyncInterval = 2500 * time.Millisecond
	// DefaultSyncMaxAttempts bounds the wait to about ten minutes.
	DefaultSyncMaxAttempts = 240
	// DefaultSyncPollRetries is how many failed polls in a row are tolerated.
	DefaultSyncPollRetries = 3
)

// WaitConfig bounds the sync wait.
type WaitConfig struct {
	// Interval between two polls.
	Interval time.Duration
	// MaxAttempts caps the number of status polls, failed ones included.
	MaxAttempts int
	// PollRetries is how many consecutive failed polls are tolerated.
	PollRetries int
}

// Waiter polls a backend until a change leaves PENDING.
type Waiter struct {
	cfg    WaitConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewWaiter returns a Waiter; zero fields of cfg take their defaults.
func NewWaiter(logger *zap.Logger, cfg WaitConfig) *Waiter {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSyncInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultSyncMaxAttempts
	}
	if cfg.PollRetries < 0 {
		cfg.PollRetries = 0
	}
	return &Waiter{cfg: cfg, logger: logger, sleep: sleepContext}
}

// Wait polls the status of handle. Any status other than PENDING ends the
// wait and is returned unchanged.
func (w *Waiter) Wait(ctx context.Context, backend Backend, handle ChangeHandle) (ChangeStatus, error) {
	failures := 0
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		status, err := backend.GetChangeStatus(ctx, handle)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			failures++
			w.logger.Warn("Failed to poll DNS change status",
				zap.String("change_id", string(handle)),
				zap.Int("attempt", attempt),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if failures > w.cfg.PollRetries {
				return "", fmt.Errorf("change %s: %w: %w", handle, ErrSyncPollFailed, err)
			}
		case status != StatusPending:
			return status, nil
		default:
			failures = 0
			w.logger.Info("DNS change pending",
				zap.String("change_id", string(handle)),
				zap.Int("attempt", attempt))
		}

		if attempt == w.cfg.MaxAttempts {
			break
		}
		if err := w.sleep(ctx, w.cfg.Interval); err != nil {
			return "", err
		}
	}

	return StatusPending, fmt.Errorf("change %s after %d polls: %w", handle, w.cfg.MaxAttempts, ErrSyncTimeout)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

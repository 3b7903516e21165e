// Package locks provides the lock managers that serialize cross-archive operations.
package locks

import (
	"context"
	"sort"
	"time"

	"github.com/ebogdum/archivefs/metrics"
)

// Manager defines the interface for locking operations
type Manager interface {
	// Acquire attempts to acquire a lock for the given key
	// Returns true if the lock was acquired, false if it was already held by another holder
	Acquire(ctx context.Context, key string) (bool, error)

	// Release releases a previously acquired lock for the given key
	// Only the holder that acquired the lock can release it
	Release(ctx context.Context, key string) error

	// Close closes the lock manager and releases any resources
	Close() error
}

// DefaultRetryInterval is the delay between attempts on a contended key.
const DefaultRetryInterval = 5 * time.Millisecond

// AcquireAll takes every key, waiting on contended keys, in sorted order so that two holders
// asking for the same keys cannot deadlock. Duplicate keys are taken once. The returned function
// releases the keys in reverse order. On error no key is held.
func AcquireAll(ctx context.Context, m Manager, keys []string, retry time.Duration) (func(), error) {
	if retry <= 0 {
		retry = DefaultRetryInterval
	}

	ordered := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			ordered = append(ordered, key)
		}
	}
	sort.Strings(ordered)

	held := make([]string, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			start := time.Now()
			err := m.Release(context.Background(), held[i])
			metrics.LockOperationDuration.WithLabelValues("release").Observe(time.Since(start).Seconds())
			metrics.LockOperationsTotal.WithLabelValues("release", metrics.Status(err)).Inc()
			if err == nil {
				metrics.ActiveLocks.Dec()
			}
		}
	}

	for _, key := range ordered {
		if err := acquireWait(ctx, m, key, retry); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func acquireWait(ctx context.Context, m Manager, key string, retry time.Duration) error {
	start := time.Now()
	defer func() {
		metrics.LockOperationDuration.WithLabelValues("acquire").Observe(time.Since(start).Seconds())
	}()

	for {
		acquired, err := m.Acquire(ctx, key)
		if err != nil {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "failure").Inc()
			return err
		}
		if acquired {
			metrics.LockOperationsTotal.WithLabelValues("acquire", "success").Inc()
			metrics.ActiveLocks.Inc()
			return nil
		}
		metrics.LockOperationsTotal.WithLabelValues("acquire", "contended").Inc()

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

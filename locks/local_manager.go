package locks

import (
	"context"
	"sync"
	"time"
)

// LocalManager provides in-process lock management for single-process deployments.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]time.Time // key -> acquisition time
}

// NewLocalManager creates a new in-memory lock manager.
func NewLocalManager() *LocalManager {
	return &LocalManager{
		locks: make(map[string]time.Time),
	}
}

// Acquire takes the lock if it is currently free.
func (m *LocalManager) Acquire(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return false, nil
	}
	m.locks[key] = time.Now()
	return true, nil
}

// Release frees a held lock. Releasing a free lock is a no-op.
func (m *LocalManager) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Held returns the number of currently held locks.
func (m *LocalManager) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Close drops every held lock.
func (m *LocalManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]time.Time)
	return nil
}

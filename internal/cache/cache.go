package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cache is the lookup surface the identity resolver caches behind.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches that hold expiring entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically drops expired entries from the caches registered
// with it.
type Manager struct {
	mu     sync.Mutex
	caches map[string]Cleaner

	stopOnce    sync.Once
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager() *Manager {
	return &Manager{
		caches:      make(map[string]Cleaner),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a named cache. Registering the same name twice replaces it.
func (m *Manager) Register(name string, cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = cache
}

// StartCleanup runs CleanOnce every interval until Stop or ctx is done.
func (m *Manager) StartCleanup(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	go m.cleanup(ctx, interval)
}

func (m *Manager) cleanup(ctx context.Context, interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanOnce(ctx)
		case <-m.stopCleanup:
			return
		case <-ctx.Done():
			return
		}
	}
}

// CleanOnce sweeps every registered cache and returns the number of entries
// removed.
func (m *Manager) CleanOnce(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for name, c := range m.caches {
		if n := c.CleanExpired(); n > 0 {
			slog.DebugContext(ctx, "Expired cache entries removed", "cache", name, "count", n)
			total += n
		}
	}
	return total
}

// Stop ends the cleanup loop. It is safe to call more than once and before
// StartCleanup.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCleanup)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.cleanupDone
		}
	})
}

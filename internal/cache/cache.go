// Package cache provides the in-memory response cache that sits in front of
// outbound reads, plus a manager that sweeps expired entries on an interval.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTTL is applied when Set is called with a non-positive ttl.
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is the period used by Manager.Start when the
	// caller passes a non-positive interval.
	DefaultSweepInterval = 10 * time.Minute
)

// Cache defines the operations shared by response caches of any payload type.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T, ttl time.Duration)
	Delete(key string) bool
	Clear()
	Stats() Stats
}

// Stats is an introspection snapshot of a cache.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Admin is the payload-independent part of Cache, used to inspect and
// invalidate caches of different types side by side.
type Admin interface {
	Delete(key string) bool
	Clear()
	Stats() Stats
}

// Sweeper is implemented by caches whose expired entries can be removed in bulk.
type Sweeper interface {
	Sweep() int
}

// Manager runs a background sweep over every registered cache.
// Nothing is scheduled until Start is called.
type Manager struct {
	mu      sync.Mutex
	caches  []Sweeper
	logger  *slog.Logger
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewManager creates a manager with no registered caches.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds a cache to the sweep set. Safe to call while running.
func (m *Manager) Register(c Sweeper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// Start launches the sweep loop. Calling Start on a running manager is a no-op.
func (m *Manager) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true

	go m.loop(interval, m.stop, m.done)
}

func (m *Manager) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := m.SweepAll(); removed > 0 {
				m.logger.Debug("Cache sweep completed", "entries_removed", removed)
			}
		case <-stop:
			return
		}
	}
}

// SweepAll sweeps every registered cache once and returns the total removed.
func (m *Manager) SweepAll() int {
	m.mu.Lock()
	caches := append([]Sweeper(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.Sweep()
	}
	return total
}

// Stop halts the sweep loop and waits for it to exit. It is safe to call
// more than once and on a manager that was never started.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the sweep loop is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

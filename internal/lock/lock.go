// Package lock provides named, single-holder resource locks guarding shared
// system resources: the package-manager databases, the download cache, and
// the Python virtual environment. Steps declare the locks they need and the
// executor acquires them before running the step.
//
// Acquisition waits with exponential backoff up to a hard budget. This is
// waiting for a resource, not retrying an operation — it is deliberately
// separate from the retry package, and exhausting the budget is a fatal,
// deterministic lock-contention error, never a silent fallback to running
// without the lock.
//
// # Usage
//
//	guard, err := mgr.Acquire(ctx, lock.AptLock, "install-ripgrep", 60*time.Second)
//	if err != nil {
//		return err // lock contention, fatal
//	}
//	defer guard.Release()
//
// Release is idempotent and safe on every exit path, including panics when
// deferred.
package lock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/repoforge/bootstrap/internal/errors"
)

// Named locks known to the bootstrap. Installer descriptors reference these.
const (
	// AptLock serializes apt-get and snap invocations.
	AptLock = "apt_lock"
	// BrewLock serializes Homebrew invocations.
	BrewLock = "brew_lock"
	// CacheLock serializes writes to the shared download cache.
	CacheLock = "cache_lock"
	// VenvLock serializes pip operations inside the virtual environment.
	VenvLock = "venv_lock"
)

// Backoff bounds for acquisition polling.
const (
	initialPoll = 50 * time.Millisecond
	maxPoll     = 2 * time.Second
)

// Manager owns all lock state. Lock state is never exposed for direct
// mutation; holders interact only through Acquire and the returned Guard.
type Manager struct {
	mu      sync.Mutex
	holders map[string]string // lock name -> holder id
}

// NewManager creates a Manager with no locks held.
func NewManager() *Manager {
	return &Manager{holders: make(map[string]string)}
}

// Guard represents a held lock. Release is idempotent.
type Guard struct {
	mgr      *Manager
	name     string
	holder   string
	released sync.Once
}

// Release relinquishes the lock. Safe to call multiple times and from defer.
func (g *Guard) Release() {
	g.released.Do(func() {
		g.mgr.mu.Lock()
		defer g.mgr.mu.Unlock()
		if g.mgr.holders[g.name] == g.holder {
			delete(g.mgr.holders, g.name)
		}
	})
}

// Acquire obtains the named lock for holder, waiting up to maxWait with
// exponential backoff between attempts. Returns a LockError (matching
// errors.ErrLockContention) once the budget is exhausted, or the context's
// error if it is cancelled first.
func (m *Manager) Acquire(ctx context.Context, name, holder string, maxWait time.Duration) (*Guard, error) {
	deadline := time.Now().Add(maxWait)
	poll := initialPoll

	for {
		if ok := m.tryAcquire(name, holder); ok {
			return &Guard{mgr: m, name: name, holder: holder}, nil
		}

		if time.Now().After(deadline) {
			return nil, errors.NewLockError(name, maxWait.String(), m.Holder(name))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}

		if poll *= 2; poll > maxPoll {
			poll = maxPoll
		}
	}
}

// AcquireAll obtains every named lock in sorted order (a fixed order prevents
// deadlock between steps needing overlapping lock sets). On any failure the
// locks already held are released before returning.
func (m *Manager) AcquireAll(ctx context.Context, names []string, holder string, maxWait time.Duration) ([]*Guard, error) {
	ordered := append([]string(nil), names...)
	sort.Strings(ordered)

	var guards []*Guard
	for _, name := range ordered {
		g, err := m.Acquire(ctx, name, holder, maxWait)
		if err != nil {
			for _, held := range guards {
				held.Release()
			}
			return nil, err
		}
		guards = append(guards, g)
	}
	return guards, nil
}

// tryAcquire attempts a non-blocking acquisition.
func (m *Manager) tryAcquire(name, holder string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.holders[name]; held {
		return false
	}
	m.holders[name] = holder
	return true
}

// Holder returns the id currently holding the named lock, or "".
func (m *Manager) Holder(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders[name]
}

// Disjoint reports whether two lock sets share no lock. Steps may only run
// concurrently when their required lock sets are disjoint.
func Disjoint(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return false
			}
		}
	}
	return true
}

// Package lockmgr implements per-task advisory edit locks. The table
// is the only shared mutable state between requests; every operation
// holds the mutex only long enough to touch one record. Expiry is
// lazy: every acquire, release and read first discards a lapsed lock,
// so no background sweeper is needed.
package lockmgr

import (
	"sync"
	"time"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

// DefaultTTL is the lock lifetime when the caller passes none.
const DefaultTTL = 15 * time.Minute

type key struct {
	planID string
	taskID string
}

// Manager is the in-process lock table.
type Manager struct {
	mu    sync.Mutex
	locks map[key]domain.TaskLock
	ttl   time.Duration
	now   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock injects the time source, used by tests to advance time.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDefaultTTL overrides the default lock lifetime.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// New creates an empty lock table.
func New(opts ...Option) *Manager {
	m := &Manager{
		locks: make(map[key]domain.TaskLock),
		ttl:   DefaultTTL,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Acquire takes or renews the lock on (planID, taskID) for userID.
// Renewal by the current holder resets the acquired instant. A lapsed
// lock is silently replaced. A live lock held by someone else fails
// with LockedByOther.
func (m *Manager) Acquire(planID, taskID, userID string, ttl time.Duration) (domain.TaskLock, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{planID, taskID}
	now := m.now()
	if cur, ok := m.locks[k]; ok && !cur.Expired(now) && cur.HolderID != userID {
		return domain.TaskLock{}, errors.NewLockedByOther(cur.HolderID, cur.AcquiredAt.Format(time.RFC3339))
	}

	l := domain.TaskLock{
		PlanID:     planID,
		TaskID:     taskID,
		HolderID:   userID,
		AcquiredAt: now,
		TTL:        ttl,
	}
	m.locks[k] = l
	return l, nil
}

// Release drops the lock if userID holds it, otherwise fails with
// NotHolder. Releasing an unlocked or lapsed lock is also NotHolder.
func (m *Manager) Release(planID, taskID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{planID, taskID}
	cur, ok := m.locks[k]
	if ok && cur.Expired(m.now()) {
		delete(m.locks, k)
		ok = false
	}
	if !ok || cur.HolderID != userID {
		return errors.NewNotHolder(userID)
	}
	delete(m.locks, k)
	return nil
}

// Get returns the live lock on (planID, taskID), discarding a lapsed
// one first.
func (m *Manager) Get(planID, taskID string) (domain.TaskLock, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{planID, taskID}
	cur, ok := m.locks[k]
	if !ok {
		return domain.TaskLock{}, false
	}
	if cur.Expired(m.now()) {
		delete(m.locks, k)
		return domain.TaskLock{}, false
	}
	return cur, true
}

// CheckMutation enforces the mutation contract: a write to the task is
// allowed when the task is unlocked or the caller holds the lock.
func (m *Manager) CheckMutation(planID, taskID, userID string) error {
	cur, ok := m.Get(planID, taskID)
	if !ok || cur.HolderID == userID {
		return nil
	}
	return errors.NewLockedByOther(cur.HolderID, cur.AcquiredAt.Format(time.RFC3339))
}

// ReleaseAll drops every lock for a plan, used on plan deletion.
func (m *Manager) ReleaseAll(planID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.locks {
		if k.planID == planID {
			delete(m.locks, k)
		}
	}
}

// Snapshot returns all live locks, for persistence across restarts.
func (m *Manager) Snapshot() []domain.TaskLock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]domain.TaskLock, 0, len(m.locks))
	for k, l := range m.locks {
		if l.Expired(now) {
			delete(m.locks, k)
			continue
		}
		out = append(out, l)
	}
	return out
}

// Restore loads persisted locks, skipping any already lapsed.
func (m *Manager) Restore(locks []domain.TaskLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, l := range locks {
		if l.Expired(now) {
			continue
		}
		m.locks[key{l.PlanID, l.TaskID}] = l
	}
}

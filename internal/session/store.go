package session

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/keylock"
)

// Store reads and writes sessions.  Lock serializes every read-modify-write
// cycle for one phone; callers hold it for the whole handling of a message.
type Store interface {
	Get(phone string) Session
	Set(s Session)
	Delete(phone string)
	Lock(phone string) (unlock func())
}

// MemoryStore is a Store backed by a map.  Sessions idle for longer than
// the TTL are treated as absent and removed by Sweep.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Session
	locks *keylock.Locker
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore returns a MemoryStore whose sessions expire after ttl of
// inactivity.  A non-positive ttl disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Session),
		locks: keylock.New(),
		ttl:   ttl,
		now:   time.Now,
	}
}

// SetClock replaces the time source.  Used by tests.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

// Get returns the session for phone, or a fresh idle one when none exists
// or the stored one expired.
func (m *MemoryStore) Get(phone string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[phone]
	if !ok || m.expired(s, m.now()) {
		delete(m.items, phone)
		return Session{Phone: phone, State: Idle}
	}
	return s.clone()
}

// Set stores s under s.Phone and refreshes its expiry.
func (m *MemoryStore) Set(s Session) {
	s.UpdatedAt = m.now()
	if s.State == "" {
		s.State = Idle
	}
	m.mu.Lock()
	m.items[s.Phone] = s.clone()
	m.mu.Unlock()
}

// Delete drops the session for phone.  The next Get starts from Idle.
func (m *MemoryStore) Delete(phone string) {
	m.mu.Lock()
	delete(m.items, phone)
	m.mu.Unlock()
}

// Lock blocks until phone's lock is free and returns the release func.
func (m *MemoryStore) Lock(phone string) func() { return m.locks.Lock(phone) }

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryStore) expired(s Session, now time.Time) bool {
	return m.ttl > 0 && now.Sub(s.UpdatedAt) > m.ttl
}

// Sweep removes expired sessions and returns how many were evicted.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.items {
		if m.expired(s, now) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(m.now())
		}
	}
}

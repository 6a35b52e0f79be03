// Package dedup remembers inbound message ids for a bounded window so a
// replayed webhook delivery is processed at most once.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a message id is remembered.
const DefaultTTL = 10 * time.Minute

// Deduper records message ids.  MarkNew returns true the first time an id
// is seen within the window and false for every repeat.
type Deduper interface {
	MarkNew(ctx context.Context, id string) (bool, error)
}

// Memory is an in-process Deduper.  Expired ids are pruned on every call
// and by Run.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory returns a Memory deduper with the given window.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{seen: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// SetClock replaces the time source.  Used by tests.
func (m *Memory) SetClock(now func() time.Time) { m.now = now }

// MarkNew reports true the first time id is seen within the TTL.
func (m *Memory) MarkNew(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)
	if _, ok := m.seen[id]; ok {
		return false, nil
	}
	m.seen[id] = now
	return true, nil
}

func (m *Memory) prune(now time.Time) {
	for id, at := range m.seen {
		if now.Sub(at) > m.ttl {
			delete(m.seen, id)
		}
	}
}

// Len reports how many ids are remembered.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// Run prunes every interval until ctx is cancelled.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.mu.Lock()
			m.prune(m.now())
			m.mu.Unlock()
		}
	}
}

// Redis is a Deduper backed by SET NX with expiry, shared by every process
// pointing at the same Redis.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis deduper.  Keys are prefix+id.
func NewRedis(rdb redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "dedup:wa:"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

// MarkNew uses SET NX so concurrent replicas agree on the first delivery.
func (r *Redis) MarkNew(ctx context.Context, id string) (bool, error) {
	return r.rdb.SetNX(ctx, r.prefix+id, 1, r.ttl).Result()
}

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/Noxie-dev/workwise-sa/internal/dedup"
)

// SeenSet remembers which dedup keys a session has already passed.
// Implementations must make check-and-insert atomic.
type SeenSet interface {
	// Add records key and reports whether it was newly added.
	Add(ctx context.Context, key dedup.Key) (bool, error)
}

// MemorySeenSet is a mutex-guarded in-process SeenSet.
type MemorySeenSet struct {
	mu   sync.Mutex
	keys map[dedup.Key]struct{}
}

func NewMemorySeenSet() *MemorySeenSet {
	return &MemorySeenSet{keys: make(map[dedup.Key]struct{})}
}

func (m *MemorySeenSet) Add(_ context.Context, key dedup.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

// Len returns the number of keys seen.
func (m *MemorySeenSet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// RedisSeenSet shares a session's seen keys across processes with SADD on
// workwise:dedup:<session>. The set expires after ttl so abandoned sessions
// do not accumulate.
type RedisSeenSet struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// DefaultSeenTTL bounds how long a session's seen set lives in redis.
const DefaultSeenTTL = 24 * time.Hour

func NewRedisSeenSet(rdb *redis.Client, sessionID string, ttl time.Duration) *RedisSeenSet {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &RedisSeenSet{rdb: rdb, key: RedisSeenKey(sessionID), ttl: ttl}
}

// RedisSeenKey returns the redis set key for a session.
func RedisSeenKey(sessionID string) string { return "workwise:dedup:" + sessionID }

func (r *RedisSeenSet) Add(ctx context.Context, key dedup.Key) (bool, error) {
	pipe := r.rdb.TxPipeline()
	added := pipe.SAdd(ctx, r.key, string(key))
	pipe.Expire(ctx, r.key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, eris.Wrap(err, "dedup: redis sadd")
	}
	return added.Val() == 1, nil
}

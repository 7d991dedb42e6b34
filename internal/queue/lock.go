package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fathom/internal/urlnorm"
)

const lockKeyPrefix = "lock:"

// Lock is the per-URL mutex guarding concurrent crawls of the same
// canonical URL. No retry, no queueing: a failed acquisition means
// another run owns the URL.
type Lock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLock(rdb *redis.Client, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, ttl: ttl}
}

// LockKey builds the Redis key for a URL's lock.
func LockKey(rawURL string) string {
	return lockKeyPrefix + urlnorm.Canonicalize(rawURL)
}

// Acquire does an atomic set-if-absent with expiry. The TTL outlives the
// worst-case crawl so a crashed holder cannot wedge the URL forever.
func (l *Lock) Acquire(ctx context.Context, rawURL string) (bool, error) {
	return l.rdb.SetNX(ctx, LockKey(rawURL), "1", l.ttl).Result()
}

// Release is best-effort; the TTL is the safety net.
func (l *Lock) Release(ctx context.Context, rawURL string) {
	if err := l.rdb.Del(ctx, LockKey(rawURL)).Err(); err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("lock release failed, ttl will reclaim it")
	}
}

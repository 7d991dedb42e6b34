package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const resultKeyPrefix = "scrape_result:"

// Stats is the cache statistics record served by the stats endpoint.
type Stats struct {
	RedisEnabled   bool   `json:"redis_enabled"`
	MigrationPhase int    `json:"migration_phase"`
	RedisResults   int64  `json:"redis_scrape_results,omitempty"`
	RedisError     string `json:"redis_error,omitempty"`
	FileResults    int    `json:"file_results"`
}

// Tiered layers the Redis tier over the file tier according to the
// migration phase: 1 file primary with Redis shadow, 2 Redis primary
// with file shadow, 3 Redis only. A nil client or an unreachable Redis
// degrades to file-only behavior without failing requests.
type Tiered struct {
	files *FileCache
	rdb   *redis.Client
	phase int
	ttl   time.Duration
}

func NewTiered(files *FileCache, rdb *redis.Client, phase int, ttl time.Duration) *Tiered {
	if phase < 1 || phase > 3 {
		phase = 1
	}
	return &Tiered{files: files, rdb: rdb, phase: phase, ttl: ttl}
}

// Files exposes the file tier for screenshot storage, which stays on
// disk in every phase.
func (t *Tiered) Files() *FileCache { return t.files }

func resultKey(key string) string { return resultKeyPrefix + key }

// Store writes the result to the tiers the phase prescribes. It succeeds
// when at least one tier accepts the write.
func (t *Tiered) Store(ctx context.Context, key string, data json.RawMessage) error {
	kvOK := false
	var kvErr error
	if t.rdb != nil {
		kvErr = t.storeKV(ctx, key, data)
		if kvErr != nil {
			log.Warn().Err(kvErr).Str("fingerprint", key).Msg("redis store failed, degrading to file tier")
		} else {
			kvOK = true
		}
	}

	// Phases 1 and 2 always write the file tier; phase 3 falls back to
	// it only when Redis did not take the write.
	if t.phase <= 2 || !kvOK {
		if err := t.files.Store(key, data); err != nil {
			if !kvOK {
				return err
			}
			log.Warn().Err(err).Str("fingerprint", key).Msg("file tier store failed")
		}
	}
	return nil
}

func (t *Tiered) storeKV(ctx context.Context, key string, data json.RawMessage) error {
	meta, _ := json.Marshal(map[string]any{
		"stored_at": time.Now().UTC().Format(time.RFC3339),
		"ttl":       int(t.ttl.Seconds()),
		"phase":     t.phase,
	})
	rkey := resultKey(key)
	if err := t.rdb.HSet(ctx, rkey, "data", string(data), "metadata", string(meta)).Err(); err != nil {
		return err
	}
	return t.rdb.Expire(ctx, rkey, t.ttl).Err()
}

// Load reads Redis first, then the file tier in phases 1 and 2. A file
// hit while Redis is reachable is backfilled into Redis.
func (t *Tiered) Load(ctx context.Context, key string) (json.RawMessage, error) {
	if t.rdb != nil {
		data, err := t.rdb.HGet(ctx, resultKey(key), "data").Result()
		switch {
		case err == nil:
			return json.RawMessage(data), nil
		case err != redis.Nil:
			log.Warn().Err(err).Str("fingerprint", key).Msg("redis load failed")
		}
	}

	if t.phase <= 2 || t.rdb == nil {
		data, err := t.files.Load(key)
		if err != nil {
			return nil, err
		}
		if t.rdb != nil {
			if err := t.storeKV(ctx, key, data); err != nil {
				log.Warn().Err(err).Str("fingerprint", key).Msg("redis backfill failed")
			}
		}
		return data, nil
	}
	return nil, ErrNotFound
}

// Exists reports whether any tier the phase consults holds the key.
func (t *Tiered) Exists(ctx context.Context, key string) bool {
	if t.rdb != nil {
		n, err := t.rdb.Exists(ctx, resultKey(key)).Result()
		if err == nil && n > 0 {
			return true
		}
		if err != nil {
			log.Warn().Err(err).Str("fingerprint", key).Msg("redis exists check failed")
		}
	}
	if t.phase <= 2 || t.rdb == nil {
		return t.files.Exists(key)
	}
	return false
}

// Delete removes the key from every tier the phase touches and reports
// whether anything was removed.
func (t *Tiered) Delete(ctx context.Context, key string) bool {
	deleted := false
	if t.rdb != nil {
		n, err := t.rdb.Del(ctx, resultKey(key)).Result()
		if err != nil {
			log.Warn().Err(err).Str("fingerprint", key).Msg("redis delete failed")
		} else if n > 0 {
			deleted = true
		}
	}
	if t.phase <= 2 || t.rdb == nil {
		if t.files.Delete(key) {
			deleted = true
		}
	}
	return deleted
}

// CleanupExpired sweeps the file tier and returns the number of removed
// files. Redis expires its entries natively.
func (t *Tiered) CleanupExpired() int {
	if t.phase == 3 && t.rdb != nil {
		return 0
	}
	return t.files.CleanupExpired()
}

// Stats reports per-tier entry counts and the configured phase.
func (t *Tiered) Stats(ctx context.Context) Stats {
	s := Stats{
		RedisEnabled:   t.rdb != nil,
		MigrationPhase: t.phase,
		FileResults:    t.files.Count(),
	}
	if t.rdb != nil {
		var cursor uint64
		for {
			keys, next, err := t.rdb.Scan(ctx, cursor, resultKeyPrefix+"*", 500).Result()
			if err != nil {
				s.RedisError = err.Error()
				break
			}
			s.RedisResults += int64(len(keys))
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return s
}

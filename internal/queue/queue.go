// Package queue implements the async job pipeline on Redis: the durable
// FIFO of job IDs, per-job state records, per-URL locks, and the
// progress broadcast channel.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fathom/internal/config"
	"fathom/internal/model"
)

const jobKeyPrefix = "deep_scrape_job:"

// ErrJobNotFound reports an unknown job ID.
var ErrJobNotFound = errors.New("queue: job not found")

// Connect dials Redis from the configured URL. Returns nil when Redis is
// disabled or unreachable; callers treat a nil client as degraded mode.
func Connect(cfg config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		log.Info().Msg("redis disabled, running in file-only degraded mode")
		return nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		log.Error().Err(err).Str("url", cfg.URL).Msg("invalid redis url")
		return nil
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Msg("redis unreachable, running in file-only degraded mode")
		return nil
	}
	log.Info().Str("url", cfg.URL).Msg("redis connected")
	return rdb
}

// Queue is the durable job FIFO plus the job state records.
type Queue struct {
	rdb  *redis.Client
	name string
}

func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func jobKey(id string) string { return jobKeyPrefix + id }

func epoch() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Enqueue creates a pending job record and pushes its ID onto the FIFO.
func (q *Queue) Enqueue(ctx context.Context, params model.CrawlParams) (string, error) {
	jobID := uuid.NewString()
	now := epoch()
	rec := model.JobRecord{
		JobID:     jobID,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Params:    params,
	}
	if err := q.writeJob(ctx, &rec); err != nil {
		return "", err
	}
	if err := q.rdb.LPush(ctx, q.name, jobID).Err(); err != nil {
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	qlen, _ := q.rdb.LLen(ctx, q.name).Result()
	log.Info().Str("job_id", jobID).Str("url", params.URL).Int64("queue_length", qlen).Msg("job enqueued")
	return jobID, nil
}

// Dequeue blocks on the FIFO tail for at most timeout and returns the
// claimed job record, or nil when the wait times out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*model.JobRecord, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	jobID := res[1]
	job, err := q.GetJob(ctx, jobID)
	if errors.Is(err, ErrJobNotFound) {
		log.Warn().Str("job_id", jobID).Msg("dequeued job without a record, dropping")
		return nil, nil
	}
	return job, err
}

// GetJob loads a job record by ID.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	raw, err := q.rdb.Get(ctx, jobKey(jobID)).Result()
	if err == redis.Nil {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec model.JobRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &rec, nil
}

// SetStatus is a read-modify-write on the job record. Empty resultID and
// errMsg leave the stored fields untouched, so retried terminal writes
// stay idempotent.
func (q *Queue) SetStatus(ctx context.Context, jobID string, status model.JobStatus, resultID, errMsg string) error {
	return q.updateJob(ctx, jobID, func(rec *model.JobRecord) {
		rec.Status = status
		if resultID != "" {
			rec.ResultID = resultID
		}
		if errMsg != "" {
			rec.Error = errMsg
		}
	})
}

// SetProgress stores the latest progress snapshot on the job record.
func (q *Queue) SetProgress(ctx context.Context, jobID string, p model.Progress) error {
	return q.updateJob(ctx, jobID, func(rec *model.JobRecord) {
		rec.Progress = &p
	})
}

// GetProgress returns the latest snapshot, or nil when none was written.
func (q *Queue) GetProgress(ctx context.Context, jobID string) (*model.Progress, error) {
	rec, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return rec.Progress, nil
}

func (q *Queue) updateJob(ctx context.Context, jobID string, mutate func(*model.JobRecord)) error {
	rec, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	mutate(rec)
	rec.UpdatedAt = epoch()
	return q.writeJob(ctx, rec)
}

func (q *Queue) writeJob(ctx context.Context, rec *model.JobRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := q.rdb.Set(ctx, jobKey(rec.JobID), raw, 0).Err(); err != nil {
		return fmt.Errorf("write job %s: %w", rec.JobID, err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fathom/internal/model"
)

// ProgressChannel is the single broadcast topic for all jobs;
// subscribers filter by job ID.
const ProgressChannel = "deep_scrape_progress"

// ProgressMessage is the wire format on the progress channel.
type ProgressMessage struct {
	JobID    string         `json:"job_id"`
	Progress model.Progress `json:"progress"`
}

// ProgressBus publishes and subscribes to live progress updates.
type ProgressBus struct {
	rdb *redis.Client
}

func NewProgressBus(rdb *redis.Client) *ProgressBus {
	return &ProgressBus{rdb: rdb}
}

// Publish is best-effort: a lost update only delays subscribers until
// the next one, and the snapshot on the job record stays authoritative.
func (b *ProgressBus) Publish(ctx context.Context, jobID string, p model.Progress) {
	payload, err := json.Marshal(ProgressMessage{JobID: jobID, Progress: p})
	if err != nil {
		return
	}
	if err := b.rdb.Publish(ctx, ProgressChannel, payload).Err(); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("progress publish failed")
	}
}

// Subscription delivers decoded progress messages on C until Close.
type Subscription struct {
	ps   *redis.PubSub
	done chan struct{}
	C    <-chan ProgressMessage
}

// Subscribe attaches to the progress channel. Callers read the job
// record snapshot first so late subscribers see current state, then
// follow C.
func (b *ProgressBus) Subscribe(ctx context.Context) *Subscription {
	ps := b.rdb.Subscribe(ctx, ProgressChannel)
	out := make(chan ProgressMessage, 16)
	sub := &Subscription{ps: ps, done: make(chan struct{}), C: out}

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var pm ProgressMessage
			if err := json.Unmarshal([]byte(msg.Payload), &pm); err != nil {
				continue
			}
			select {
			case out <- pm:
			case <-sub.done:
				return
			}
		}
	}()
	return sub
}

func (s *Subscription) Close() {
	close(s.done)
	_ = s.ps.Close()
}

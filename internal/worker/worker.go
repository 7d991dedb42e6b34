// Package worker consumes crawl jobs from the queue and drives them to a
// terminal state.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fathom/internal/cache"
	"fathom/internal/crawler"
	"fathom/internal/model"
	"fathom/internal/queue"
	"fathom/internal/urlnorm"
)

// Worker is one consumer of the shared job FIFO. Multiple workers may
// run concurrently; the per-URL lock keeps crawls of the same seed from
// overlapping.
type Worker struct {
	queue   *queue.Queue
	lock    *queue.Lock
	bus     *queue.ProgressBus
	store   *cache.Tiered
	crawler *crawler.Crawler
	sem     chan struct{}
	deqWait time.Duration
	cleanup time.Duration
}

type Config struct {
	Queue           *queue.Queue
	Lock            *queue.Lock
	Bus             *queue.ProgressBus
	Store           *cache.Tiered
	Crawler         *crawler.Crawler
	Semaphore       chan struct{}
	DequeueTimeout  time.Duration
	CleanupInterval time.Duration
}

func New(cfg Config) *Worker {
	return &Worker{
		queue:   cfg.Queue,
		lock:    cfg.Lock,
		bus:     cfg.Bus,
		store:   cfg.Store,
		crawler: cfg.Crawler,
		sem:     cfg.Semaphore,
		deqWait: cfg.DequeueTimeout,
		cleanup: cfg.CleanupInterval,
	}
}

// Run loops until the context is cancelled. The bounded dequeue keeps
// the loop responsive to shutdown.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Msg("worker started")
	ticker := time.NewTicker(w.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return
		case <-ticker.C:
			if n := w.store.CleanupExpired(); n > 0 {
				log.Info().Int("removed", n).Msg("swept expired cache entries")
			}
		default:
		}

		job, err := w.queue.Dequeue(ctx, w.deqWait)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("worker stopped")
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *model.JobRecord) {
	jobID := job.JobID
	seedURL := job.Params.URL
	log.Info().Str("job_id", jobID).Str("url", seedURL).Msg("processing job")

	acquired, err := w.lock.Acquire(ctx, seedURL)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("lock acquisition failed")
		w.finishError(ctx, jobID, seedURL, fmt.Errorf("lock acquisition failed: %w", err))
		return
	}
	if !acquired {
		log.Warn().Str("job_id", jobID).Str("url", seedURL).Msg("url locked by another run, skipping job")
		_ = w.queue.SetStatus(ctx, jobID, model.StatusSkipped, "", "url is being crawled by another run; poll again later")
		return
	}
	defer w.lock.Release(ctx, seedURL)

	if err := w.queue.SetStatus(ctx, jobID, model.StatusRunning, "", ""); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status update failed")
	}

	onProgress := func(p model.Progress) {
		_ = w.queue.SetProgress(ctx, jobID, p)
		w.bus.Publish(ctx, jobID, p)
	}

	// One crawl holds one browser-context slot for its whole duration.
	// Shutdown must not stall behind a saturated semaphore.
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.finishError(context.WithoutCancel(ctx), jobID, seedURL, ctx.Err())
		return
	}
	result, screenshot, err := w.crawler.Crawl(ctx, job.Params, onProgress)
	<-w.sem

	if err != nil {
		w.finishError(ctx, jobID, seedURL, err)
		return
	}

	resultID := urlnorm.FingerprintURL(seedURL)
	result.ID = resultID
	result.ResultURI = "/result/" + resultID
	if screenshot != nil {
		result.ScreenshotURI = "/screenshot/" + resultID
	}

	raw, err := json.Marshal(result)
	if err != nil {
		w.finishError(ctx, jobID, seedURL, err)
		return
	}
	if err := w.store.Store(ctx, resultID, raw); err != nil {
		w.finishError(ctx, jobID, seedURL, err)
		return
	}
	if screenshot != nil {
		if err := w.store.Files().StoreScreenshot(resultID, screenshot); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("screenshot store failed")
		}
	}

	if err := w.queue.SetStatus(ctx, jobID, model.StatusDone, resultID, ""); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("terminal status update failed")
	}
	final := model.Progress{
		CurrentLevel: job.Params.Depth,
		TotalLevels:  job.Params.Depth,
		TotalPages:   result.TotalPages,
		LastURL:      seedURL,
		Percent:      100,
		Status:       string(model.StatusDone),
	}
	_ = w.queue.SetProgress(ctx, jobID, final)
	w.bus.Publish(ctx, jobID, final)
	log.Info().Str("job_id", jobID).Str("result_id", resultID).Int("total_pages", result.TotalPages).Msg("job done")
}

func (w *Worker) finishError(ctx context.Context, jobID, seedURL string, cause error) {
	log.Error().Err(cause).Str("job_id", jobID).Msg("job failed")
	if err := w.queue.SetStatus(ctx, jobID, model.StatusError, "", cause.Error()); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("terminal status update failed")
	}
	final := model.Progress{
		LastURL: seedURL,
		Percent: 100,
		Status:  string(model.StatusError),
		Error:   cause.Error(),
	}
	_ = w.queue.SetProgress(ctx, jobID, final)
	w.bus.Publish(ctx, jobID, final)
}

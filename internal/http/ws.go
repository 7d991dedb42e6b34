package http

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog/log"

	"fathom/internal/queue"
)

// progressSocket streams a job's progress: the latest snapshot first, so
// late subscribers see current state immediately, then live updates
// filtered by job ID. The connection closes after a terminal snapshot.
func progressSocket(d *Deps) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		defer conn.Close()
		jobID := conn.Params("job_id")

		if d.Queue == nil || d.Bus == nil {
			_ = conn.WriteJSON(ErrorResponse{Error: "async scraping requires redis"})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snapshot, err := d.Queue.GetProgress(ctx, jobID)
		if err != nil && !errors.Is(err, queue.ErrJobNotFound) {
			_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
			return
		}
		if snapshot != nil {
			if err := conn.WriteJSON(snapshot); err != nil {
				return
			}
			if snapshot.Terminal() {
				return
			}
		}

		sub := d.Bus.Subscribe(ctx)
		defer sub.Close()

		// Drain client frames so closes are noticed; any read error
		// tears the stream down.
		readFailed := make(chan struct{})
		go func() {
			defer close(readFailed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-readFailed:
				return
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if msg.JobID != jobID {
					continue
				}
				if err := conn.WriteJSON(msg.Progress); err != nil {
					log.Debug().Err(err).Str("job_id", jobID).Msg("progress socket write failed")
					return
				}
				if msg.Progress.Terminal() {
					return
				}
			}
		}
	}
}

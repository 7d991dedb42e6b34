// Package http exposes the scraping engine over fiber: synchronous deep
// scrape, the async job surface, cached result serving, and the progress
// WebSocket.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fathom/internal/cache"
	"fathom/internal/config"
	"fathom/internal/crawler"
	"fathom/internal/queue"
	"fathom/internal/renderer"
)

// Deps carries everything the handlers need. Queue, Bus, and Redis are
// nil in file-only degraded mode; the async surface then answers 503.
type Deps struct {
	Config    *config.Config
	Store     *cache.Tiered
	Queue     *queue.Queue
	Bus       *queue.ProgressBus
	Redis     *redis.Client
	Crawler   *crawler.Crawler
	Renderer  renderer.Renderer
	Scripts   *renderer.Scripts
	Semaphore chan struct{}
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

type Server struct {
	app  *fiber.App
	deps *Deps
}

func NewServer(d *Deps) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout: 30 * time.Second,
	})

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("deps", d)
		return c.Next()
	})

	// Request logging with a request ID.
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		log.Info().
			Str("request_id", reqID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("request")
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "disabled"
		if d.Redis != nil {
			if err := d.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		browserStatus := "local"
		if d.Config.Browser.ControlURL != "" {
			browserStatus = "remote"
		}

		status := "ok"
		if redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{
			"status":  status,
			"redis":   redisStatus,
			"browser": browserStatus,
		})
	})

	authMw := authMiddleware(d.Config)

	api := app.Group("/api", authMw)
	api.Get("/deep-scrape", deepScrapeHandler)
	api.Get("/deep-scrape/markdown", deepScrapeMarkdownHandler)
	api.Post("/deep-scrape/async", deepScrapeAsyncHandler)
	api.Get("/deep-scrape/status/:job_id", jobStatusHandler)
	api.Get("/deep-scrape/progress/:job_id", jobProgressHandler)
	api.Get("/article", articleHandler)
	api.Get("/cache/stats", cacheStatsHandler)

	app.Get("/result/:id", authMw, resultHandler)
	app.Delete("/result/:id", authMw, deleteResultHandler)
	app.Get("/screenshot/:id", authMw, screenshotHandler)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/deep-scrape/:job_id", websocket.New(progressSocket(d)))

	return &Server{app: app, deps: d}
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func deps(c *fiber.Ctx) *Deps {
	return c.Locals("deps").(*Deps)
}

// acquireSlot takes one browser-context slot, bailing out when the
// caller's context ends first.
func acquireSlot(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: msg})
}

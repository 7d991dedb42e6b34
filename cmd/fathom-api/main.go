package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fathom/internal/cache"
	"fathom/internal/config"
	"fathom/internal/crawler"
	server "fathom/internal/http"
	"fathom/internal/queue"
	"fathom/internal/renderer"
	"fathom/internal/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	role := flag.String("role", "all", "process role: api|worker|all")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load(*configPath)

	scripts, err := renderer.LoadScripts(cfg.Scripts.Dir)
	if err != nil {
		stdlog.Fatalf("load extractor scripts failed: %v", err)
	}

	rdb := queue.Connect(cfg.Redis)

	files := cache.NewFileCache(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	store := cache.NewTiered(files, rdb, cfg.Redis.MigrationPhase, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	rod, err := renderer.NewRod(cfg.Browser)
	if err != nil {
		stdlog.Fatalf("browser connect failed: %v", err)
	}
	defer rod.Close()

	crawl := crawler.New(rod, scripts, crawler.Options{
		MaxLinksPerPage: cfg.Crawler.MaxLinksPerPage,
		RespectRobots:   cfg.Crawler.RespectRobots,
	})

	// One slot per browser context; a crawl holds its slot end to end.
	sem := make(chan struct{}, cfg.Browser.ContextLimit)

	var jobs *queue.Queue
	var bus *queue.ProgressBus
	var lock *queue.Lock
	if rdb != nil {
		jobs = queue.New(rdb, cfg.Redis.QueueName)
		bus = queue.NewProgressBus(rdb)
		lock = queue.NewLock(rdb, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startWorker := func() {
		if rdb == nil {
			stdlog.Fatalf("worker role requires redis (set redis.enabled or REDIS_ENABLED)")
		}
		w := worker.New(worker.Config{
			Queue:           jobs,
			Lock:            lock,
			Bus:             bus,
			Store:           store,
			Crawler:         crawl,
			Semaphore:       sem,
			DequeueTimeout:  time.Duration(cfg.Worker.DequeueTimeoutSeconds) * time.Second,
			CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute,
		})
		go w.Run(rootCtx)
	}

	serveAPI := func() {
		s := server.NewServer(&server.Deps{
			Config:    cfg,
			Store:     store,
			Queue:     jobs,
			Bus:       bus,
			Redis:     rdb,
			Crawler:   crawl,
			Renderer:  rod,
			Scripts:   scripts,
			Semaphore: sem,
		})
		go func() {
			<-rootCtx.Done()
			_ = s.Shutdown()
		}()
		if err := s.Listen(); err != nil {
			stdlog.Fatalf("server failed: %v", err)
		}
	}

	switch *role {
	case "api":
		serveAPI()
	case "worker":
		startWorker()
		<-rootCtx.Done()
	case "all":
		if rdb != nil {
			startWorker()
		} else {
			log.Warn().Msg("redis unavailable, async worker disabled")
		}
		serveAPI()
	default:
		stdlog.Fatalf("invalid role: %s (expected api|worker|all)", *role)
	}
}

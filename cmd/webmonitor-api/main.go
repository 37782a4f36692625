package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"webmonitor/internal/config"
	"webmonitor/internal/fetch"
	server "webmonitor/internal/http"
	"webmonitor/internal/jobs"
	"webmonitor/internal/migrate"
	"webmonitor/internal/scan"
	"webmonitor/internal/store/pg"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if err := migrate.Run(cfg.Database.DSN); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db failed: %v", err)
	}

	maxOpen := cfg.Database.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	maxIdle := cfg.Database.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 10
	}
	connLifeMins := cfg.Database.ConnMaxLifeMins
	if connLifeMins <= 0 {
		connLifeMins = 30
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Duration(connLifeMins) * time.Minute)

	st := pg.New(db)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	timeoutSecs := cfg.Crawl.TimeoutSecondsDefault
	if timeoutSecs <= 0 {
		timeoutSecs = 30
	}
	client := fetch.New(time.Duration(timeoutSecs)*time.Second, cfg.Crawl.UserAgent, true)

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
	}
	orch := scan.New(st, client, rdb, cfg.Crawl.CrawlDelayMsDefault)

	dispatcher := jobs.New(st, orch, jobs.Options{
		PollInterval:   time.Duration(cfg.Worker.PollIntervalMs) * time.Millisecond,
		MaxConcurrency: cfg.Worker.MaxConcurrentJobs,
		LeaseDuration:  time.Duration(cfg.Worker.LeaseSeconds) * time.Second,
	}, logger)

	reaper := jobs.NewReaper(st, jobs.ReaperOptions{
		Interval:              time.Duration(cfg.Retention.CleanupIntervalMinutes) * time.Minute,
		OldJobRetention:       time.Duration(cfg.Retention.CompletedJobDays) * 24 * time.Hour,
		ArchivedSiteRetention: time.Duration(cfg.Retention.ArchivedSiteDays) * 24 * time.Hour,
	}, logger)

	rootCtx := context.Background()
	go dispatcher.Start(rootCtx)
	go reaper.Start(rootCtx)

	s := server.NewServer(cfg, st, logger)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// Package config loads the YAML process configuration, grounded on the
// teacher's internal/config/config.go (os.Open + yaml.NewDecoder,
// fail-fast Load, a Validate pass for cross-field sanity checks).
// Sections here cover this service's domain instead of the teacher's
// auth/LLM one: server, database, redis, worker, retention, crawl
// defaults.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig points at the Postgres instance backing the store.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"maxOpenConns"`
	MaxIdleConns    int    `yaml:"maxIdleConns"`
	ConnMaxLifeMins int    `yaml:"connMaxLifeMinutes"`
}

// RedisConfig is optional; when URL is empty the worker pool paces
// in-process instead of via a shared token bucket.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// CrawlDefaults holds process-wide crawl settings. main reads UserAgent
// and TimeoutSecondsDefault for the shared fetch client, and
// CrawlDelayMsDefault as the pace for sites that leave CrawlDelayMs
// unset; the other fields are decoded but not applied to a site's
// CrawlConfig.
type CrawlDefaults struct {
	MaxDepthDefault       int    `yaml:"maxDepthDefault"`
	MaxPagesDefault       int    `yaml:"maxPagesDefault"`
	CrawlDelayMsDefault   int    `yaml:"crawlDelayMsDefault"`
	MaxConcurrencyDefault int    `yaml:"maxConcurrencyDefault"`
	TimeoutSecondsDefault int    `yaml:"timeoutSecondsDefault"`
	UserAgent             string `yaml:"userAgent"`
	RespectRobots         bool   `yaml:"respectRobots"`
}

// WorkerConfig controls the job dispatcher's polling and concurrency.
type WorkerConfig struct {
	MaxConcurrentJobs int `yaml:"maxConcurrentJobs"`
	PollIntervalMs    int `yaml:"pollIntervalMs"`
	LeaseSeconds      int `yaml:"leaseSeconds"`
	MaxRetries        int `yaml:"maxRetries"`
	StuckAfterMinutes int `yaml:"stuckAfterMinutes"`
}

// RetentionConfig controls the sweeper's TTL windows.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes  int  `yaml:"cleanupIntervalMinutes"`
	ArchivedSiteDays        int  `yaml:"archivedSiteDays"`
	CompletedJobDays        int  `yaml:"completedJobDays"`
}

// Config is the top-level process configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Crawl     CrawlDefaults   `yaml:"crawl"`
	Worker    WorkerConfig    `yaml:"worker"`
	Retention RetentionConfig `yaml:"retention"`
}

// Load reads and decodes the YAML config at path, exiting the process
// on failure — matching the teacher's fail-fast Load behavior, since a
// misconfigured process should never serve traffic.
func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Worker.MaxConcurrentJobs <= 0 {
		cfg.Worker.MaxConcurrentJobs = 4
	}
	if cfg.Worker.PollIntervalMs <= 0 {
		cfg.Worker.PollIntervalMs = 2000
	}
	if cfg.Worker.LeaseSeconds <= 0 {
		cfg.Worker.LeaseSeconds = 300
	}
	if cfg.Worker.MaxRetries <= 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.StuckAfterMinutes <= 0 {
		cfg.Worker.StuckAfterMinutes = 120
	}
	if cfg.Retention.ArchivedSiteDays <= 0 {
		cfg.Retention.ArchivedSiteDays = 30
	}
	if cfg.Crawl.UserAgent == "" {
		cfg.Crawl.UserAgent = "webmonitor/1.0 (+structural change monitor)"
	}
}

// Validate performs basic sanity checks on the loaded configuration so
// obviously broken setups fail at startup rather than mid-scan.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return errors.New("database.dsn must be set")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	return nil
}

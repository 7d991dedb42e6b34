package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"apiKey"`
}

// RedisConfig covers the KV store, the job FIFO, the URL locks, and the
// progress pub/sub channel. MigrationPhase selects the two-tier cache
// behavior: 1 dual-write with file primary, 2 dual-write with Redis
// primary, 3 Redis only.
type RedisConfig struct {
	URL            string `yaml:"url"`
	Enabled        bool   `yaml:"enabled"`
	MigrationPhase int    `yaml:"migrationPhase"`
	QueueName      string `yaml:"queueName"`
	LockTTLSeconds int    `yaml:"lockTtlSeconds"`
}

type CacheConfig struct {
	Dir                    string `yaml:"dir"`
	TTLSeconds             int    `yaml:"ttlSeconds"`
	CleanupIntervalMinutes int    `yaml:"cleanupIntervalMinutes"`
}

type BrowserConfig struct {
	ControlURL   string `yaml:"controlURL"`
	ContextLimit int    `yaml:"contextLimit"`
	TimeoutMs    int    `yaml:"timeoutMs"`
	UserAgent    string `yaml:"userAgent"`
}

type CrawlerConfig struct {
	RespectRobots   bool `yaml:"respectRobots"`
	MaxLinksPerPage int  `yaml:"maxLinksPerPage"`
}

type ScriptsConfig struct {
	Dir string `yaml:"dir"`
}

type WorkerConfig struct {
	DequeueTimeoutSeconds int `yaml:"dequeueTimeoutSeconds"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Browser BrowserConfig `yaml:"browser"`
	Crawler CrawlerConfig `yaml:"crawler"`
	Scripts ScriptsConfig `yaml:"scripts"`
	Worker  WorkerConfig  `yaml:"worker"`
}

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

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

// applyEnv lets deployment environment variables override the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		c.Redis.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REDIS_MIGRATION_PHASE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.MigrationPhase = n
		}
	}
	if v := os.Getenv("REDIS_QUEUE_NAME"); v != "" {
		c.Redis.QueueName = v
	}
	if v := os.Getenv("LOCK_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.LockTTLSeconds = n
		}
	}
	if v := os.Getenv("BROWSER_CONTEXT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Browser.ContextLimit = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if c.Redis.MigrationPhase < 1 || c.Redis.MigrationPhase > 3 {
		c.Redis.MigrationPhase = 1
	}
	if c.Redis.QueueName == "" {
		c.Redis.QueueName = "deep_scrape_jobs"
	}
	if c.Redis.LockTTLSeconds <= 0 {
		c.Redis.LockTTLSeconds = 600
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "data"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 3600
	}
	if c.Cache.CleanupIntervalMinutes <= 0 {
		c.Cache.CleanupIntervalMinutes = 60
	}
	if c.Browser.ContextLimit <= 0 {
		c.Browser.ContextLimit = 4
	}
	if c.Browser.TimeoutMs <= 0 {
		c.Browser.TimeoutMs = 60000
	}
	if c.Crawler.MaxLinksPerPage <= 0 {
		c.Crawler.MaxLinksPerPage = 20
	}
	if c.Scripts.Dir == "" {
		c.Scripts.Dir = "scripts"
	}
	if c.Worker.DequeueTimeoutSeconds <= 0 {
		c.Worker.DequeueTimeoutSeconds = 5
	}
}

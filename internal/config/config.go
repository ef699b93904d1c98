// Package config reads the process configuration from the environment,
// after loading a local .env file when one exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/qepting91/reddit-top/internal/domain"
	"github.com/qepting91/reddit-top/internal/ingest"
)

const DefaultUserAgent = "Mozilla/5.0 (compatible; reddit-top/1.0; community digest)"

// Config is an immutable snapshot of the settings for one run.
type Config struct {
	Communities     []string
	CommunitiesFile string

	FetchLimit int
	TopN       int
	WindowDays int
	Weights    domain.Weights

	DataDir string
	EnvFile string
	Port    string

	CollectorMode string
	UserAgent     string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string

	MinDelay         time.Duration
	MaxWait          time.Duration
	LowWater         int
	MaxRedirectHops  int
	FetchConcurrency int

	RedisURL       string
	SnapshotBucket string
	SnapshotPrefix string
	AWSRegion      string

	Schedule string
}

// Load reads envFile (a missing file is fine) and then the environment.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(envFile)
}

// FromEnv builds a Config from the current environment only.
func FromEnv(envFile string) (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		Communities:     ingest.ParseList(getEnv("TARGET_SUBREDDITS", "n8n,automation")),
		CommunitiesFile: os.Getenv("COMMUNITIES_FILE"),

		FetchLimit: p.int("FETCH_LIMIT", 100),
		TopN:       p.int("TOP_N", 10),
		WindowDays: p.int("PERIOD_DAYS", 7),
		Weights: domain.Weights{
			Score:    p.float("WEIGHT_SCORE", 1.0),
			Comments: p.float("WEIGHT_COMMENTS", 2.0),
			Ratio:    p.float("WEIGHT_RATIO", 50.0),
		},

		DataDir: getEnv("TMP_DIR", ".tmp"),
		EnvFile: getEnv("ENV_FILE", envFile),
		Port:    getEnv("SERVER_PORT", "5050"),

		CollectorMode: getEnv("COLLECTOR_MODE", "public"),
		UserAgent:     getEnv("REDDIT_USER_AGENT", DefaultUserAgent),
		ClientID:      os.Getenv("REDDIT_CLIENT_ID"),
		ClientSecret:  os.Getenv("REDDIT_CLIENT_SECRET"),
		Username:      os.Getenv("REDDIT_USERNAME"),
		Password:      os.Getenv("REDDIT_PASSWORD"),

		MinDelay:         p.duration("RATE_MIN_DELAY", time.Second),
		MaxWait:          p.duration("RATE_MAX_WAIT", 5*time.Second),
		LowWater:         p.int("RATE_LOW_WATER", 5),
		MaxRedirectHops:  p.int("MAX_REDIRECT_HOPS", 5),
		FetchConcurrency: p.int("FETCH_CONCURRENCY", 2),

		RedisURL:       os.Getenv("REDIS_URL"),
		SnapshotBucket: os.Getenv("SNAPSHOT_BUCKET"),
		SnapshotPrefix: getEnv("SNAPSHOT_PREFIX", "reddit-top/"),
		AWSRegion:      os.Getenv("AWS_REGION"),

		Schedule: os.Getenv("PIPELINE_SCHEDULE"),
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.FetchLimit <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_LIMIT must be positive, got %d", c.FetchLimit))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("TOP_N must be positive, got %d", c.TopN))
	}
	if c.WindowDays < 0 {
		errs = append(errs, fmt.Errorf("PERIOD_DAYS must not be negative, got %d", c.WindowDays))
	}
	if c.MaxRedirectHops <= 0 {
		errs = append(errs, fmt.Errorf("MAX_REDIRECT_HOPS must be positive, got %d", c.MaxRedirectHops))
	}
	if c.MaxWait <= 0 {
		errs = append(errs, fmt.Errorf("RATE_MAX_WAIT must be positive, got %s", c.MaxWait))
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency))
	}
	switch c.CollectorMode {
	case "public", "api", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'public', or 'mock')", c.CollectorMode))
	}
	return errors.Join(errs...)
}

// Window returns the time window as a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser collects malformed values instead of silently falling back.
type parser struct {
	errs *[]error
}

func (p parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

// duration accepts Go durations ("1500ms") or plain seconds ("2").
func (p parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

// Package config loads forumsent settings from a YAML file, a .env file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pevans/forumsent/crawler"
	"github.com/pevans/forumsent/fetch"
	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/ingest"
)

// DefaultBaseURL is the forum crawled when none is configured.
const DefaultBaseURL = "https://quelledialfpma.forumfree.it/"

// ForumConfig describes the forum and how politely to crawl it.
type ForumConfig struct {
	BaseURL            string        `yaml:"base_url"`
	UserAgent          string        `yaml:"user_agent"`
	Timeout            time.Duration `yaml:"timeout"`
	Retries            int           `yaml:"retries"`
	Backoff            time.Duration `yaml:"backoff"`
	SectionPageSize    int           `yaml:"section_page_size"`
	DiscussionPageSize int           `yaml:"discussion_page_size"`
	PostPageSize       int           `yaml:"post_page_size"`
	MaxDepth           int           `yaml:"max_depth"`
	MaxPages           int           `yaml:"max_pages"`
}

// StorageConfig represents storage configuration from config file.
type StorageConfig struct {
	DSN         string             `yaml:"dsn"`
	Collections ingest.Collections `yaml:"collections"`
}

// CrawlConfig selects what an ingestion run collects.
type CrawlConfig struct {
	StartDate   string   `yaml:"start_date"`
	EndDate     string   `yaml:"end_date"`
	Titles      []string `yaml:"titles"`
	SnapshotDir string   `yaml:"snapshot_dir"`
	Incremental bool     `yaml:"incremental"`
}

// WatchConfig schedules recurring runs.
type WatchConfig struct {
	Schedule   string `yaml:"schedule"`
	RunAtStart bool   `yaml:"run_at_start"`
}

// APIConfig configures the query API.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// AnalysisConfig points at the hosted entity models.
type AnalysisConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Token       string `yaml:"token"`
	Model1ID    string `yaml:"model_1_id"`
	Model2ID    string `yaml:"model_2_id"`
	Concurrency int    `yaml:"concurrency"`
}

// FileConfig represents the structure of ~/.forumsent/config.yaml.
type FileConfig struct {
	Forum    ForumConfig    `yaml:"forum"`
	Storage  StorageConfig  `yaml:"storage"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Watch    WatchConfig    `yaml:"watch"`
	API      APIConfig      `yaml:"api"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// Default returns the built-in configuration.
func Default() *FileConfig {
	dsn := "forumsent.db"
	if home, err := os.UserHomeDir(); err == nil {
		dsn = filepath.Join(home, ".forumsent", "forumsent.db")
	}

	return &FileConfig{
		Forum: ForumConfig{
			BaseURL:            DefaultBaseURL,
			UserAgent:          fetch.DefaultUserAgent,
			Timeout:            fetch.DefaultTimeout,
			Retries:            1,
			Backoff:            2 * time.Second,
			SectionPageSize:    crawler.DefaultSectionPageSize,
			DiscussionPageSize: crawler.DefaultDiscussionPageSize,
			PostPageSize:       crawler.DefaultPostPageSize,
		},
		Storage: StorageConfig{
			DSN:         dsn,
			Collections: ingest.DefaultCollections(),
		},
		Watch: WatchConfig{
			Schedule: "@daily",
		},
		API: APIConfig{
			Listen: ":8080",
		},
		Analysis: AnalysisConfig{
			Concurrency: 4,
		},
	}
}

// DefaultPath returns ~/.forumsent/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".forumsent", "config.yaml"), nil
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (the default location when empty), overlaid by the
// environment. A .env file in the working directory is read into the
// environment first without replacing variables already set.
func Load(path string) (*FileConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile reads the YAML file at path over the defaults. With an
// empty path the default location is used and a missing file is not an
// error; an explicit path must exist.
func LoadConfigFile(path string) (*FileConfig, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. lookup is
// usually os.LookupEnv.
func (c *FileConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("FORUMSENT_BASE_URL", &c.Forum.BaseURL)
	str("FORUMSENT_USER_AGENT", &c.Forum.UserAgent)
	str("FORUMSENT_DB", &c.Storage.DSN)
	str("FORUMSENT_START_DATE", &c.Crawl.StartDate)
	str("FORUMSENT_END_DATE", &c.Crawl.EndDate)
	str("FORUMSENT_SNAPSHOT_DIR", &c.Crawl.SnapshotDir)
	str("FORUMSENT_SCHEDULE", &c.Watch.Schedule)
	str("FORUMSENT_LISTEN", &c.API.Listen)
	str("FORUMSENT_INFERENCE_URL", &c.Analysis.Endpoint)
	str("HUGGINGFACE_TOKEN", &c.Analysis.Token)
	str("MODEL_1_ID", &c.Analysis.Model1ID)
	str("MODEL_2_ID", &c.Analysis.Model2ID)

	if v, ok := lookup("FORUMSENT_TITLES"); ok && v != "" {
		c.Crawl.Titles = nil
		for _, title := range strings.Split(v, ",") {
			if title = strings.TrimSpace(title); title != "" {
				c.Crawl.Titles = append(c.Crawl.Titles, title)
			}
		}
	}
	if v, ok := lookup("FORUMSENT_INCREMENTAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FORUMSENT_INCREMENTAL: %w", err)
		}
		c.Crawl.Incremental = b
	}

	return errors.Join(
		dur("FORUMSENT_TIMEOUT", &c.Forum.Timeout),
		num("FORUMSENT_RETRIES", &c.Forum.Retries),
		dur("FORUMSENT_BACKOFF", &c.Forum.Backoff),
		num("FORUMSENT_MAX_DEPTH", &c.Forum.MaxDepth),
		num("FORUMSENT_MAX_PAGES", &c.Forum.MaxPages),
	)
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *FileConfig) Validate() error {
	var errs []error

	u, err := url.Parse(c.Forum.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("forum.base_url %q must be an http(s) URL", c.Forum.BaseURL))
	}
	if c.Forum.Timeout <= 0 {
		errs = append(errs, errors.New("forum.timeout must be positive"))
	}
	if c.Forum.Retries < 1 {
		errs = append(errs, errors.New("forum.retries must be at least 1"))
	}
	if c.Forum.SectionPageSize < 1 || c.Forum.DiscussionPageSize < 1 || c.Forum.PostPageSize < 1 {
		errs = append(errs, errors.New("forum page sizes must be positive"))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is required"))
	}
	if _, err := c.DateRange(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// DateRange returns the configured post date range. Missing bounds are left
// zero for the run to fill in.
func (c *FileConfig) DateRange() (forum.DateRange, error) {
	var r forum.DateRange
	var err error

	if c.Crawl.StartDate != "" {
		if r.Start, err = time.Parse(time.DateOnly, c.Crawl.StartDate); err != nil {
			return forum.DateRange{}, fmt.Errorf("crawl.start_date %q must be YYYY-MM-DD", c.Crawl.StartDate)
		}
	}
	if c.Crawl.EndDate != "" {
		if r.End, err = time.Parse(time.DateOnly, c.Crawl.EndDate); err != nil {
			return forum.DateRange{}, fmt.Errorf("crawl.end_date %q must be YYYY-MM-DD", c.Crawl.EndDate)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return forum.DateRange{}, fmt.Errorf("crawl.end_date %s is before crawl.start_date %s", c.Crawl.EndDate, c.Crawl.StartDate)
	}
	return r, nil
}

// CrawlerConfig converts the forum settings for the crawler.
func (c *FileConfig) CrawlerConfig() crawler.Config {
	return crawler.Config{
		BaseURL:            c.Forum.BaseURL,
		SectionPageSize:    c.Forum.SectionPageSize,
		DiscussionPageSize: c.Forum.DiscussionPageSize,
		PostPageSize:       c.Forum.PostPageSize,
		MaxDepth:           c.Forum.MaxDepth,
		MaxPages:           c.Forum.MaxPages,
	}
}

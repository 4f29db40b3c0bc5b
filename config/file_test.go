package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/forumsent/fetch"
)

// Test helper: point HOME at an empty directory
func withHome(t *testing.T) string {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	return tmpDir
}

// Test helper: an environment lookup backed by a map
func envMap(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestLoadConfigFile_NoFile(t *testing.T) {
	home := withHome(t)

	cfg, err := LoadConfigFile("")
	require.NoError(t, err)
	require.NotNil(t, cfg, "defaults are returned when no config file exists")

	assert.Equal(t, DefaultBaseURL, cfg.Forum.BaseURL)
	assert.Equal(t, fetch.DefaultUserAgent, cfg.Forum.UserAgent)
	assert.Equal(t, 10*time.Second, cfg.Forum.Timeout)
	assert.Equal(t, 30, cfg.Forum.SectionPageSize)
	assert.Equal(t, 15, cfg.Forum.PostPageSize)
	assert.Equal(t, filepath.Join(home, ".forumsent", "forumsent.db"), cfg.Storage.DSN)
	assert.Equal(t, "sezioni", cfg.Storage.Collections.Sections)
	assert.Equal(t, "@daily", cfg.Watch.Schedule)
}

func TestLoadConfigFile_ValidConfig(t *testing.T) {
	home := withHome(t)

	dir := filepath.Join(home, ".forumsent")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	configContent := `forum:
  base_url: "https://altro.forumfree.it/"
  timeout: 30s
  retries: 3
  max_depth: 4
storage:
  dsn: "/data/forum.db"
  collections:
    posts: "posts"
crawl:
  start_date: "2023-01-01"
  titles: ["Presentazioni", "Regolamento"]
watch:
  schedule: "0 3 * * *"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(configContent), 0o600))

	cfg, err := LoadConfigFile("")
	require.NoError(t, err)

	assert.Equal(t, "https://altro.forumfree.it/", cfg.Forum.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Forum.Timeout)
	assert.Equal(t, 3, cfg.Forum.Retries)
	assert.Equal(t, 4, cfg.Forum.MaxDepth)
	assert.Equal(t, 15, cfg.Forum.PostPageSize, "unset values keep their defaults")
	assert.Equal(t, "/data/forum.db", cfg.Storage.DSN)
	assert.Equal(t, "posts", cfg.Storage.Collections.Posts)
	assert.Equal(t, "sezioni", cfg.Storage.Collections.Sections)
	assert.Equal(t, []string{"Presentazioni", "Regolamento"}, cfg.Crawl.Titles)
	assert.Equal(t, "0 3 * * *", cfg.Watch.Schedule)
}

func TestLoadConfigFile_ExplicitPath(t *testing.T) {
	withHome(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")

	_, err := LoadConfigFile(path)
	assert.Error(t, err, "an explicit path must exist")

	require.NoError(t, os.WriteFile(path, []byte("api:\n  listen: \":9090\"\n"), 0o600))
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.API.Listen)
}

func TestLoadConfigFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	invalidContent := `forum:
  - this is invalid yaml because forum should be an object not a list
`
	require.NoError(t, os.WriteFile(path, []byte(invalidContent), 0o600))

	cfg, err := LoadConfigFile(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestApplyEnv_Overrides(t *testing.T) {
	cfg := Default()

	err := cfg.ApplyEnv(envMap(map[string]string{
		"FORUMSENT_BASE_URL":    "https://env.forumfree.it/",
		"FORUMSENT_DB":          "/tmp/env.db",
		"FORUMSENT_TIMEOUT":     "5s",
		"FORUMSENT_RETRIES":     "2",
		"FORUMSENT_TITLES":      " Uno , ,Due",
		"FORUMSENT_INCREMENTAL": "true",
		"FORUMSENT_LISTEN":      "",
		"HUGGINGFACE_TOKEN":     "hf_secret",
		"MODEL_1_ID":            "org/ner-a",
		"MODEL_2_ID":            "org/ner-b",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://env.forumfree.it/", cfg.Forum.BaseURL)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.DSN)
	assert.Equal(t, 5*time.Second, cfg.Forum.Timeout)
	assert.Equal(t, 2, cfg.Forum.Retries)
	assert.Equal(t, []string{"Uno", "Due"}, cfg.Crawl.Titles)
	assert.True(t, cfg.Crawl.Incremental)
	assert.Equal(t, ":8080", cfg.API.Listen, "empty variables are ignored")
	assert.Equal(t, "hf_secret", cfg.Analysis.Token)
	assert.Equal(t, "org/ner-a", cfg.Analysis.Model1ID)
	assert.Equal(t, "org/ner-b", cfg.Analysis.Model2ID)
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()

	err := cfg.ApplyEnv(envMap(map[string]string{
		"FORUMSENT_TIMEOUT": "soon",
		"FORUMSENT_RETRIES": "many",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FORUMSENT_TIMEOUT")
	assert.Contains(t, err.Error(), "FORUMSENT_RETRIES")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*FileConfig)
		wantErr string
	}{
		{"defaults", func(*FileConfig) {}, ""},
		{"bad url", func(c *FileConfig) { c.Forum.BaseURL = "ftp://forum" }, "base_url"},
		{"no retries", func(c *FileConfig) { c.Forum.Retries = 0 }, "retries"},
		{"zero page size", func(c *FileConfig) { c.Forum.PostPageSize = 0 }, "page sizes"},
		{"bad start date", func(c *FileConfig) { c.Crawl.StartDate = "01/02/2023" }, "start_date"},
		{"reversed dates", func(c *FileConfig) {
			c.Crawl.StartDate = "2023-02-01"
			c.Crawl.EndDate = "2023-01-01"
		}, "before"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDateRange(t *testing.T) {
	cfg := Default()

	r, err := cfg.DateRange()
	require.NoError(t, err)
	assert.True(t, r.Start.IsZero())
	assert.True(t, r.End.IsZero())

	cfg.Crawl.StartDate = "2023-06-01"
	r, err = cfg.DateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.True(t, r.End.IsZero())
}

func TestCrawlerConfig(t *testing.T) {
	cfg := Default()
	cfg.Forum.MaxPages = 7

	cc := cfg.CrawlerConfig()
	assert.Equal(t, DefaultBaseURL, cc.BaseURL)
	assert.Equal(t, 30, cc.DiscussionPageSize)
	assert.Equal(t, 7, cc.MaxPages)
}

func TestLoad_DotEnv(t *testing.T) {
	withHome(t)
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MODEL_1_ID=org/from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MODEL_1_ID") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "org/from-dotenv", cfg.Analysis.Model1ID)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	withHome(t)
	t.Chdir(t.TempDir())
	t.Setenv("FORUMSENT_BASE_URL", "not a url")

	_, err := Load("")
	assert.Error(t, err)
}

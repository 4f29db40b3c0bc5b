package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/forumsent"
	"github.com/pevans/forumsent/config"
	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/store"
)

// TestNewRootCmd verifies that every subcommand and global flag is
// registered.
func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()

	assert.Equal(t, "forumsent", cmd.Use)
	assert.NotEmpty(t, cmd.Version)

	for _, name := range []string{"crawl", "watch", "serve", "annotate", "list", "status", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
		assert.NotEmpty(t, sub.Short, name)
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
	flag = cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, flag)
	assert.Equal(t, "v", flag.Shorthand)
}

// TestSubcommandFlags verifies the flags each subcommand accepts.
func TestSubcommandFlags(t *testing.T) {
	crawlFlags := []string{"start", "end", "title", "snapshot-dir", "incremental", "max-depth"}

	crawl := NewCrawlCmd()
	for _, f := range append(crawlFlags, "root", "json") {
		assert.NotNil(t, crawl.Flags().Lookup(f), "crawl --%s", f)
	}
	assert.Equal(t, "j", crawl.Flags().Lookup("json").Shorthand)

	watch := NewWatchCmd()
	for _, f := range append(crawlFlags, "schedule", "now") {
		assert.NotNil(t, watch.Flags().Lookup(f), "watch --%s", f)
	}
	assert.Nil(t, watch.Flags().Lookup("root"))

	serve := NewServeCmd()
	require.NotNil(t, serve.Flags().Lookup("listen"))
	assert.Equal(t, "l", serve.Flags().Lookup("listen").Shorthand)

	annotate := NewAnnotateCmd()
	for _, f := range []string{"author", "discussion", "concurrency"} {
		assert.NotNil(t, annotate.Flags().Lookup(f), "annotate --%s", f)
	}
}

// TestVersionCmd verifies the version line.
func TestVersionCmd(t *testing.T) {
	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "forumsent "+getVersion())
	assert.Contains(t, out.String(), "commit "+getCommit())
}

// TestGetVersionPrefersLdflags verifies that build-time values win.
func TestGetVersionPrefersLdflags(t *testing.T) {
	oldVersion, oldCommit, oldDate := version, commit, date
	t.Cleanup(func() { version, commit, date = oldVersion, oldCommit, oldDate })

	version, commit, date = "v1.2.3", "abc1234", "2024-05-01"
	assert.Equal(t, "v1.2.3", getVersion())
	assert.Equal(t, "abc1234", getCommit())
	assert.Equal(t, "2024-05-01", getDate())
}

// TestApplyCrawlFlags verifies that only flags given on the command line
// replace configured values.
func TestApplyCrawlFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Crawl.SnapshotDir = "/var/snapshots"
	cfg.Crawl.Titles = []string{"Regolamento"}

	cmd := NewCrawlCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--start", "2023-01-01",
		"--title", "Presentazioni",
		"--title", "Off topic",
		"--incremental",
	}))
	require.NoError(t, applyCrawlFlags(cmd, cfg))

	assert.Equal(t, "2023-01-01", cfg.Crawl.StartDate)
	assert.Empty(t, cfg.Crawl.EndDate)
	assert.Equal(t, []string{"Presentazioni", "Off topic"}, cfg.Crawl.Titles)
	assert.Equal(t, "/var/snapshots", cfg.Crawl.SnapshotDir)
	assert.True(t, cfg.Crawl.Incremental)
}

// TestApplyCrawlFlagsInvalidDate verifies that a malformed date is
// rejected before any crawling starts.
func TestApplyCrawlFlagsInvalidDate(t *testing.T) {
	cmd := NewCrawlCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--start", "01/02/2023"}))

	assert.Error(t, applyCrawlFlags(cmd, config.Default()))
}

// Test helper: points the configuration at a scratch database and an
// empty working directory
func isolate(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)

	dsn := filepath.Join(dir, "data", "forumsent.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "forum:\n  base_url: " + baseURL + "\n  retries: 1\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	t.Setenv("FORUMSENT_DB", dsn)
	t.Setenv("FORUMSENT_BASE_URL", "")
	t.Setenv("FORUMSENT_START_DATE", "")
	t.Setenv("FORUMSENT_END_DATE", "")
	t.Setenv("FORUMSENT_TITLES", "")
	t.Setenv("FORUMSENT_INCREMENTAL", "")
	t.Setenv("FORUMSENT_SNAPSHOT_DIR", "")
	t.Setenv("MODEL_1_ID", "")
	return cfgPath
}

// TestCrawlCommand verifies a full run against a forum with no sections:
// the run completes, prints a summary and is recorded in the store.
func TestCrawlCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	t.Cleanup(srv.Close)

	cfgPath := isolate(t, srv.URL+"/")

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"crawl", "--config", cfgPath, "--start", "2023-01-01"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "sections: 0 new, 0 known")
	assert.Contains(t, out.String(), "posts: 0 new, 0 known")

	s, err := store.OpenSQLite(os.Getenv("FORUMSENT_DB"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.GetState(t.Context(), forumsent.LastRunKey)
	assert.NoError(t, err)
}

// TestCrawlCommandMissingConfig verifies that an explicit config path must
// exist.
func TestCrawlCommandMissingConfig(t *testing.T) {
	isolate(t, "https://forum.example.it/")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"crawl", "--config", filepath.Join(t.TempDir(), "nope.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

// TestAnnotateCommandRequiresModel verifies that annotate refuses to run
// without a model.
func TestAnnotateCommandRequiresModel(t *testing.T) {
	cfgPath := isolate(t, "https://forum.example.it/")

	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"annotate", "--config", cfgPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODEL_1_ID")
}

// Test helper: stores a section, a discussion and two posts at dsn
func seedStore(t *testing.T, dsn string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(dsn), 0o700))
	s, err := store.OpenSQLite(dsn)
	require.NoError(t, err)
	defer s.Close()

	w := ingest.NewWriter(s, ingest.DefaultCollections(), nil)
	ctx := t.Context()
	w.WriteSections(ctx, []forum.Section{{
		ID: "f1", Title: "Generale", Link: "https://forum.example.it/?f=1",
		DiscussionCount: forum.KnownCount(1), ReplyCount: forum.UnknownCount(),
	}})
	w.WriteDiscussions(ctx, []forum.Discussion{{
		Title: "Presentazioni", Author: "admin", Replies: 1, Type: forum.TypeDiscussion,
		SectionTitle: "Generale",
	}})
	authors := forum.NewAuthorSet()
	w.WritePosts(ctx, slices.Values([]forum.Post{
		{SectionTitle: "Generale", DiscussionTitle: "Presentazioni", Author: "admin", Date: "10/1/2022", Message: "Benvenuti a tutti"},
		{SectionTitle: "Generale", DiscussionTitle: "Presentazioni", Author: "mario", Date: "1/6/2023", Message: "Ciao, sono Mario"},
	}), authors)
	w.WriteAuthors(ctx, authors)
}

// TestListCommand verifies the list formats and filters.
func TestListCommand(t *testing.T) {
	cfgPath := isolate(t, "https://forum.example.it/")
	seedStore(t, os.Getenv("FORUMSENT_DB"))

	run := func(args ...string) string {
		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"list", "--config", cfgPath}, args...))
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := run("posts")
	assert.Contains(t, out, "Showing 1-2 of 2 posts")
	assert.Contains(t, out, "Benvenuti a tutti")
	assert.Contains(t, out, "Generale > Presentazioni")

	out = run("posts", "--author", "mario", "--format", "compact")
	assert.Equal(t, "1/6/2023 mario: Ciao, sono Mario\n", out)

	out = run("sections", "--format", "compact")
	assert.Equal(t, "f1 Generale (1)\n", out)

	var listed struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	out = run("posts", "--format", "json", "--limit", "1", "--offset", "1")
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	assert.Equal(t, 2, listed.Total)
	require.Len(t, listed.Items, 1)
	assert.Equal(t, "mario", listed.Items[0]["author"])

	out = run("authors", "--format", "compact")
	assert.Equal(t, "admin\nmario\n", out)

	out = run("discussions", "--section", "Off topic")
	assert.Equal(t, "No records to display.\n", out)
}

// TestListCommandRejectsBadInput verifies unknown kinds and formats.
func TestListCommandRejectsBadInput(t *testing.T) {
	cfgPath := isolate(t, "https://forum.example.it/")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown kind", []string{"threads"}, "unknown record kind"},
		{"unknown format", []string{"posts", "--format", "xml"}, "invalid format"},
		{"negative limit", []string{"posts", "--limit", "-1"}, "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetArgs(append([]string{"list", "--config", cfgPath}, tt.args...))

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestStatusCommand verifies the report before and after a recorded run.
func TestStatusCommand(t *testing.T) {
	cfgPath := isolate(t, "https://forum.example.it/")
	dsn := os.Getenv("FORUMSENT_DB")
	seedStore(t, dsn)

	run := func() string {
		cmd := NewRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"status", "--config", cfgPath})
		require.NoError(t, cmd.Execute())
		return out.String()
	}

	out := run()
	assert.Contains(t, out, "✓ post: 2")
	assert.Contains(t, out, "✓ autori: 2")
	assert.Contains(t, out, "No completed run recorded")
	assert.Contains(t, out, "has warnings")

	info, err := os.Stat(dsn)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s, err := store.OpenSQLite(dsn)
	require.NoError(t, err)
	result := forumsent.RunResult{
		FinishedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		RangeStart: "2024-01-01",
		RangeEnd:   "2024-03-01",
		Posts:      ingest.Stats{Inserted: 2},
	}
	data, err := json.Marshal(result)
	require.NoError(t, err)
	require.NoError(t, s.SetState(t.Context(), forumsent.LastRunResultKey, string(data)))
	require.NoError(t, s.Close())

	out = run()
	assert.Contains(t, out, "Finished 2024-03-01 12:30 (2024-01-01 to 2024-03-01)")
	assert.Contains(t, out, "All checks passed")
}

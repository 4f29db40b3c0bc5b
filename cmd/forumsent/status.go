package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent"
	"github.com/pevans/forumsent/store"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the store and show what it holds",
		Long: `Status checks that the store and snapshot directory are usable and private,
then prints how many records each collection holds and how the last run went.`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}
}

// statusReport accumulates check results.
type statusReport struct {
	w        io.Writer
	errors   int
	warnings int
}

func (r *statusReport) ok(format string, args ...any) {
	fmt.Fprintf(r.w, "  ✓ "+format+"\n", args...)
}

func (r *statusReport) warn(format string, args ...any) {
	r.warnings++
	fmt.Fprintf(r.w, "  ⚠ "+format+"\n", args...)
}

func (r *statusReport) fail(format string, args ...any) {
	r.errors++
	fmt.Fprintf(r.w, "  ✗ "+format+"\n", args...)
}

// checkPerm warns when a path is readable by group or others.
func (r *statusReport) checkPerm(path string, want os.FileMode) {
	stat, err := os.Stat(path)
	if err != nil {
		r.fail("Cannot access %s: %v", path, err)
		return
	}
	if perm := stat.Mode().Perm(); perm&0o077 != 0 {
		r.warn("%s has permissions %o, expected %o (chmod %o %s)", path, perm, want, want, path)
	}
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	r := &statusReport{w: cmd.OutOrStdout()}

	fmt.Fprintln(r.w, "Store:")
	fmt.Fprintf(r.w, "  Path: %s\n", a.cfg.Storage.DSN)
	r.checkPerm(a.cfg.Storage.DSN, 0o600)

	cols := a.writer.Collections()
	for _, name := range []string{cols.Sections, cols.Discussions, cols.Posts, cols.Authors, cols.Analysis} {
		n, err := a.store.Count(ctx, name, store.Filter{})
		if err != nil {
			r.fail("Could not count %s: %v", name, err)
			continue
		}
		r.ok("%s: %d", name, n)
	}
	fmt.Fprintln(r.w)

	if dir := a.cfg.Crawl.SnapshotDir; dir != "" {
		fmt.Fprintln(r.w, "Snapshots:")
		fmt.Fprintf(r.w, "  Path: %s\n", dir)
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			r.warn("Directory does not exist yet; the next crawl creates it")
		} else {
			r.checkPerm(dir, 0o700)
		}
		fmt.Fprintln(r.w)
	}

	fmt.Fprintln(r.w, "Last run:")
	raw, err := a.store.GetState(ctx, forumsent.LastRunResultKey)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.warn("No completed run recorded")
	case err != nil:
		r.fail("Could not read run log: %v", err)
	default:
		var result forumsent.RunResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			r.fail("Run log is corrupt: %v", err)
			break
		}
		r.ok("Finished %s (%s to %s)", result.FinishedAt.Format("2006-01-02 15:04"), result.RangeStart, result.RangeEnd)
		fmt.Fprintf(r.w, "    new posts: %d, new authors: %d\n", result.Posts.Inserted, result.Authors.Inserted)
	}
	fmt.Fprintln(r.w)

	switch {
	case r.errors > 0:
		fmt.Fprintln(r.w, "✗ Store has errors")
		return fmt.Errorf("%d check(s) failed", r.errors)
	case r.warnings > 0:
		fmt.Fprintln(r.w, "✓ Store is usable but has warnings")
	default:
		fmt.Fprintln(r.w, "✓ All checks passed")
	}
	return nil
}

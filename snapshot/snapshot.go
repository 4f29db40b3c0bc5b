// Package snapshot keeps timestamped JSON copies of crawl output on disk.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// TimestampLayout is the time format embedded in snapshot file names.
const TimestampLayout = "2006-01-02_15-04-05"

// Dir is a directory of snapshot files named <base>_<timestamp>.json.
type Dir struct {
	path string
	now  func() time.Time
}

// New opens the snapshot directory at path, creating it if needed.
func New(path string) (*Dir, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Dir{path: path, now: time.Now}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

// Save writes data as indented JSON to a new file for base and returns its
// path.
func (d *Dir) Save(base string, data any) (string, error) {
	if base == "" || strings.ContainsAny(base, `/\`) {
		return "", fmt.Errorf("invalid snapshot name %q", base)
	}

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	filename := filepath.Join(d.path, fmt.Sprintf("%s_%s.json", base, d.now().Format(TimestampLayout)))

	// 0600: owner-only read/write
	if err := os.WriteFile(filename, body, 0o600); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	return filename, nil
}

// List returns the snapshot files for base, oldest first.
func (d *Dir) List(base string) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	prefix := base + "_"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		if _, err := time.Parse(TimestampLayout, stamp); err != nil {
			continue
		}
		files = append(files, filepath.Join(d.path, name))
	}

	// The timestamp layout sorts lexically in time order.
	slices.Sort(files)
	return files, nil
}

// Latest returns the newest snapshot file for base, or "" when there is
// none.
func (d *Dir) Latest(base string) (string, error) {
	files, err := d.List(base)
	if err != nil || len(files) == 0 {
		return "", err
	}
	return files[len(files)-1], nil
}

// Load decodes the snapshot file at path.
func Load[T any](path string) (T, error) {
	var v T
	data, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal snapshot %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

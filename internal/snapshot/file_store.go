package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maine/trendradar/internal/news"
)

const fileNameLayout = "20060102T150405.000000000Z"

// FileStore keeps one JSON file per snapshot in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Save writes the snapshot atomically (temp file + rename).
func (s *FileStore) Save(ctx context.Context, snap news.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	path := filepath.Join(s.dir, snap.FetchedAt.UTC().Format(fileNameLayout)+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("snapshot %s already exists", filepath.Base(path))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot file: %w", err)
	}
	return nil
}

// Load reads every snapshot fetched at or after since.
func (s *FileStore) Load(ctx context.Context, since time.Time) ([]news.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}

	type candidate struct {
		at   time.Time
		name string
	}
	var files []candidate
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		at, err := time.Parse(fileNameLayout, strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if at.Before(since) {
			continue
		}
		files = append(files, candidate{at: at, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].at.Before(files[j].at) })

	snaps := make([]news.Snapshot, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.dir, f.name))
		if err != nil {
			return nil, fmt.Errorf("read snapshot %s: %w", f.name, err)
		}
		var snap news.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", f.name, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }

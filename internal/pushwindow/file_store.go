package pushwindow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/maine/trendradar/internal/news"
)

// FileRecordStore keeps the current day's push record in a JSON file. A record
// of an earlier day is treated as empty and replaced on the next append.
type FileRecordStore struct {
	mu   sync.Mutex
	path string
}

// NewFileRecordStore creates a file-backed record store.
func NewFileRecordStore(path string) *FileRecordStore {
	return &FileRecordStore{path: path}
}

// Load reads the record of date.
func (s *FileRecordStore) Load(ctx context.Context, date string) (news.PushRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(date)
}

// Append adds kind to the record of date.
func (s *FileRecordStore) Append(ctx context.Context, date string, kind news.ReportKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(date)
	if err != nil {
		return err
	}
	if rec.Contains(kind) {
		return nil
	}
	rec.Kinds = append(rec.Kinds, kind)
	return s.save(rec)
}

func (s *FileRecordStore) load(date string) (news.PushRecord, error) {
	empty := news.PushRecord{Date: date}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return news.PushRecord{}, fmt.Errorf("read push record: %w", err)
	}

	var rec news.PushRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return news.PushRecord{}, fmt.Errorf("decode push record %s: %w", s.path, err)
	}
	if rec.Date != date {
		return empty, nil
	}
	return rec, nil
}

func (s *FileRecordStore) save(rec news.PushRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal push record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create push record directory: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp push record: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp push record: %w", err)
	}
	return nil
}

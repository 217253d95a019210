// Package snapshot persists crawl snapshots and bounds the history used for diffing.
package snapshot

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/maine/trendradar/internal/news"
)

// Store persists snapshots. Load returns snapshots fetched at or after since,
// ordered by fetch time.
type Store interface {
	Save(ctx context.Context, snap news.Snapshot) error
	Load(ctx context.Context, since time.Time) ([]news.Snapshot, error)
	Close() error
}

// Window bounds the retained history. Hours == 0 keeps the current calendar
// day in loc. MaxSnapshots limits the snapshots fetched before the current
// one; 0 keeps every snapshot in range.
type Window struct {
	Hours        int
	MaxSnapshots int
	Location     *time.Location
}

// Since returns the oldest fetch time still inside the window at now.
func (w Window) Since(now time.Time) time.Time {
	if w.Hours > 0 {
		return now.Add(-time.Duration(w.Hours) * time.Hour)
	}
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Trim keeps the last MaxSnapshots snapshots fetched before now together with
// every snapshot fetched at or after now. snaps must be ordered.
func (w Window) Trim(snaps []news.Snapshot, now time.Time) []news.Snapshot {
	if w.MaxSnapshots <= 0 {
		return snaps
	}
	prior := sort.Search(len(snaps), func(i int) bool {
		return !snaps[i].FetchedAt.Before(now)
	})
	if prior <= w.MaxSnapshots {
		return snaps
	}
	return snaps[prior-w.MaxSnapshots:]
}

// LoadWindow loads the snapshots retained by w at now.
func LoadWindow(ctx context.Context, s Store, w Window, now time.Time) ([]news.Snapshot, error) {
	snaps, err := s.Load(ctx, w.Since(now))
	if err != nil {
		return nil, err
	}
	return w.Trim(snaps, now), nil
}

// Normalize returns the canonical form of a snapshot as it is persisted:
// line breaks inside titles become spaces, surrounding blanks are trimmed,
// empty titles and platforms are dropped, titles that collapse to the same
// text are merged keeping rank order, and failed IDs are de-duplicated.
func Normalize(snap news.Snapshot) news.Snapshot {
	out := news.Snapshot{
		FetchedAt: snap.FetchedAt,
		Platforms: make(map[string]string, len(snap.Platforms)),
		Items:     make(map[string]map[string]news.TitleItem, len(snap.Items)),
	}
	for id, name := range snap.Platforms {
		out.Platforms[id] = name
	}

	for platform, titles := range snap.Items {
		// Merge in rank order so the result does not depend on map iteration.
		obs := snap.Titles(platform)
		merged := make(map[string]news.TitleItem, len(obs))
		for _, o := range obs {
			title := cleanTitle(o.Title)
			if title == "" || len(o.Ranks) == 0 {
				continue
			}
			item, ok := merged[title]
			if !ok {
				item = news.TitleItem{URL: o.URL, MobileURL: o.MobileURL}
			}
			item.Ranks = append(append([]int(nil), item.Ranks...), o.Ranks...)
			if item.URL == "" {
				item.URL = o.URL
			}
			if item.MobileURL == "" {
				item.MobileURL = o.MobileURL
			}
			merged[title] = item
		}
		if len(merged) > 0 || len(titles) == 0 {
			out.Items[platform] = merged
		}
	}

	seen := make(map[string]struct{}, len(snap.Failed))
	for _, id := range snap.Failed {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out.Failed = append(out.Failed, id)
	}
	sort.Strings(out.Failed)
	return out
}

var titleReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

func cleanTitle(title string) string {
	return strings.TrimSpace(titleReplacer.Replace(title))
}

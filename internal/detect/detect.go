// Package detect finds titles that appear for the first time in the retained history.
package detect

import (
	"github.com/maine/trendradar/internal/news"
)

// Index answers "has this exact title been seen on this platform".
// It is derived from snapshots only and never persisted.
type Index struct {
	seen map[string]map[string]struct{}
}

// BuildIndex indexes snaps.
func BuildIndex(snaps []news.Snapshot) *Index {
	idx := &Index{seen: make(map[string]map[string]struct{})}
	for _, s := range snaps {
		idx.Add(s)
	}
	return idx
}

// Add extends the index with one more snapshot.
func (i *Index) Add(snap news.Snapshot) {
	for platform, titles := range snap.Items {
		byTitle, ok := i.seen[platform]
		if !ok {
			byTitle = make(map[string]struct{}, len(titles))
			i.seen[platform] = byTitle
		}
		for title := range titles {
			byTitle[title] = struct{}{}
		}
	}
}

// Seen reports whether title was observed on platform. Comparison is exact.
func (i *Index) Seen(platform, title string) bool {
	_, ok := i.seen[platform][title]
	return ok
}

// NewTitles returns, per target platform, the titles of current that have no
// occurrence in an earlier snapshot of history. Snapshots fetched at or after
// current are ignored, so history may already contain current itself. A nil
// platforms slice targets every platform of current. Platforms without new
// titles are omitted.
func NewTitles(history []news.Snapshot, current news.Snapshot, platforms []string) news.NewTitles {
	prior := make([]news.Snapshot, 0, len(history))
	for _, s := range history {
		if s.FetchedAt.Before(current.FetchedAt) {
			prior = append(prior, s)
		}
	}
	idx := BuildIndex(prior)

	if platforms == nil {
		for p := range current.Items {
			platforms = append(platforms, p)
		}
	}

	out := make(news.NewTitles)
	for _, platform := range platforms {
		var fresh []news.TitleObservation
		for _, obs := range current.Titles(platform) {
			if !idx.Seen(platform, obs.Title) {
				fresh = append(fresh, obs)
			}
		}
		if len(fresh) > 0 {
			out[platform] = fresh
		}
	}
	return out
}

// LatestNewTitles treats the last snapshot of history as the current cycle and
// the rest as prior history.
func LatestNewTitles(history []news.Snapshot, platforms []string) news.NewTitles {
	if len(history) == 0 {
		return news.NewTitles{}
	}
	latest := history[len(history)-1]
	return NewTitles(history[:len(history)-1], latest, platforms)
}

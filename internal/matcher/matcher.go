// Package matcher evaluates interest groups against the titles in scope and
// aggregates the matches per group.
package matcher

import (
	"sort"
	"time"

	"github.com/maine/trendradar/internal/keywords"
	"github.com/maine/trendradar/internal/news"
)

// Options tunes aggregation.
type Options struct {
	// MaxTitlesPerGroup caps the listed titles; Count still reflects all matches. 0 = unlimited.
	MaxTitlesPerGroup int
}

// Matcher matches titles against interest groups.
type Matcher struct {
	groups []keywords.Group
	opts   Options
}

// New creates a matcher for the given groups.
func New(groups []keywords.Group, opts Options) *Matcher {
	return &Matcher{groups: groups, opts: opts}
}

// aggregate is one (platform, title) accumulated over the scope.
type aggregate struct {
	platform    string
	title       string
	url         string
	mobileURL   string
	ranks       []int
	firstSeen   time.Time
	lastSeen    time.Time
	appearances int
	order       int
}

// Match returns one MatchStat per group with matches, in declaration order. scope must be
// ordered by fetch time; newTitles flags titles new in the latest cycle.
func (m *Matcher) Match(scope []news.Snapshot, newTitles news.NewTitles, platformNames map[string]string) []news.MatchStat {
	aggs := aggregateScope(scope)

	stats := make([]news.MatchStat, 0, len(m.groups))
	for _, g := range m.groups {
		var matched []news.MatchedTitle
		for _, a := range aggs {
			if !g.Matches(a.title) {
				continue
			}
			matched = append(matched, a.toMatched(platformNames, newTitles))
		}
		if len(matched) == 0 {
			continue
		}

		stat := news.MatchStat{Group: g.Name, Count: len(matched), Titles: matched}
		if m.opts.MaxTitlesPerGroup > 0 && len(stat.Titles) > m.opts.MaxTitlesPerGroup {
			stat.Titles = stat.Titles[:m.opts.MaxTitlesPerGroup]
		}
		stats = append(stats, stat)
	}
	return stats
}

// aggregateScope folds the scope into one entry per (platform, title), ordered by
// first appearance, then by best rank, then by platform and title.
func aggregateScope(scope []news.Snapshot) []aggregate {
	byKey := make(map[string]*aggregate)
	var out []*aggregate

	for _, snap := range scope {
		platforms := make([]string, 0, len(snap.Items))
		for p := range snap.Items {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)

		for _, platform := range platforms {
			for _, obs := range snap.Titles(platform) {
				key := platform + "\x00" + obs.Title
				a, ok := byKey[key]
				if !ok {
					a = &aggregate{
						platform:  platform,
						title:     obs.Title,
						firstSeen: snap.FetchedAt,
						order:     len(out),
					}
					byKey[key] = a
					out = append(out, a)
				}
				a.ranks = append(a.ranks, obs.Ranks...)
				a.lastSeen = snap.FetchedAt
				a.appearances++
				if obs.URL != "" {
					a.url = obs.URL
				}
				if obs.MobileURL != "" {
					a.mobileURL = obs.MobileURL
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i], out[j]
		if !ai.firstSeen.Equal(aj.firstSeen) {
			return ai.firstSeen.Before(aj.firstSeen)
		}
		mi, mj := minRank(ai.ranks), minRank(aj.ranks)
		if mi != mj {
			return mi < mj
		}
		return ai.order < aj.order
	})

	result := make([]aggregate, len(out))
	for i, a := range out {
		result[i] = *a
	}
	return result
}

func (a aggregate) toMatched(platformNames map[string]string, newTitles news.NewTitles) news.MatchedTitle {
	name := platformNames[a.platform]
	if name == "" {
		name = a.platform
	}
	return news.MatchedTitle{
		Platform:     a.platform,
		PlatformName: name,
		Title:        a.title,
		URL:          a.url,
		MobileURL:    a.mobileURL,
		Ranks:        append([]int(nil), a.ranks...),
		MinRank:      minRank(a.ranks),
		MaxRank:      maxRank(a.ranks),
		FirstSeen:    a.firstSeen,
		LastSeen:     a.lastSeen,
		Appearances:  a.appearances,
		IsNew:        newTitles.Has(a.platform, a.title),
	}
}

func minRank(ranks []int) int {
	best := 0
	for _, r := range ranks {
		if best == 0 || r < best {
			best = r
		}
	}
	return best
}

func maxRank(ranks []int) int {
	worst := 0
	for _, r := range ranks {
		if r > worst {
			worst = r
		}
	}
	return worst
}

package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/trendradar/internal/keywords"
	"github.com/maine/trendradar/internal/news"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func snapshot(at time.Time, platform string, ranked map[string][]int) news.Snapshot {
	items := make(map[string]news.TitleItem, len(ranked))
	for title, ranks := range ranked {
		items[title] = news.TitleItem{Ranks: ranks, URL: "https://example.com/" + title}
	}
	return news.Snapshot{FetchedAt: at, Items: map[string]map[string]news.TitleItem{platform: items}}
}

func group(name string, alts ...[]string) keywords.Group {
	return keywords.Group{Name: name, Alternatives: alts}
}

func TestMatch_DeclarationOrder(t *testing.T) {
	scope := []news.Snapshot{snapshot(t0, "p1", map[string][]int{
		"zeta one":    {1},
		"alpha one":   {2},
		"alpha two":   {3},
		"alpha three": {4},
	})}
	groups := []keywords.Group{
		group("zeta", []string{"zeta"}),
		group("none", []string{"missing"}),
		group("alpha", []string{"alpha"}),
	}

	stats := New(groups, Options{}).Match(scope, nil, nil)

	require.Len(t, stats, 2)
	assert.Equal(t, "zeta", stats[0].Group, "order follows declaration, not count")
	assert.Equal(t, 1, stats[0].Count)
	assert.Equal(t, "alpha", stats[1].Group)
	assert.Equal(t, 3, stats[1].Count)
}

func TestMatch_SkipsGroupsWithoutMatches(t *testing.T) {
	scope := []news.Snapshot{snapshot(t0, "p1", map[string][]int{"x": {1}})}
	groups := []keywords.Group{group("a", []string{"a"}), group("x", []string{"x"})}

	stats := New(groups, Options{}).Match(scope, nil, nil)

	require.Len(t, stats, 1)
	assert.Equal(t, "x", stats[0].Group)
	assert.Equal(t, 1, stats[0].Count)
}

func TestMatch_Exclusion(t *testing.T) {
	scope := []news.Snapshot{snapshot(t0, "p1", map[string][]int{
		"AI chip launch": {1},
		"AI chip rumor":  {2},
	})}
	g := keywords.Group{Name: "ai", Alternatives: [][]string{{"AI", "chip"}}, Exclude: []string{"rumor"}}

	stats := New([]keywords.Group{g}, Options{}).Match(scope, nil, nil)

	require.Len(t, stats, 1)
	require.Len(t, stats[0].Titles, 1)
	assert.Equal(t, "AI chip launch", stats[0].Titles[0].Title)
}

func TestMatch_OrderingAndAggregation(t *testing.T) {
	s1 := snapshot(t0, "p1", map[string][]int{"news B": {4}, "news A": {2}})
	s2 := snapshot(t0.Add(time.Hour), "p1", map[string][]int{"news A": {1}, "news C": {3}})
	s3 := snapshot(t0.Add(2*time.Hour), "p1", map[string][]int{"news A": {6}})

	newTitles := news.NewTitles{"p1": {{Platform: "p1", Title: "news C"}}}
	stats := New([]keywords.Group{group("news", []string{"news"})}, Options{}).
		Match([]news.Snapshot{s1, s2, s3}, newTitles, map[string]string{"p1": "Platform One"})

	require.Len(t, stats, 1)
	titles := stats[0].Titles
	require.Len(t, titles, 3)

	// Same first-seen time: best rank first. Later arrivals after.
	assert.Equal(t, "news A", titles[0].Title)
	assert.Equal(t, "news B", titles[1].Title)
	assert.Equal(t, "news C", titles[2].Title)

	a := titles[0]
	assert.Equal(t, []int{2, 1, 6}, a.Ranks)
	assert.Equal(t, 1, a.MinRank)
	assert.Equal(t, 6, a.MaxRank)
	assert.Equal(t, 3, a.Appearances)
	assert.True(t, a.FirstSeen.Equal(t0))
	assert.True(t, a.LastSeen.Equal(t0.Add(2*time.Hour)))
	assert.Equal(t, "Platform One", a.PlatformName)
	assert.False(t, a.IsNew)

	assert.True(t, titles[2].IsNew)
}

func TestMatch_CountNeverExceedsDistinctTitles(t *testing.T) {
	var scope []news.Snapshot
	for i := 0; i < 5; i++ {
		scope = append(scope, snapshot(t0.Add(time.Duration(i)*time.Hour), "p1", map[string][]int{
			"repeat": {i + 1},
		}))
	}
	stats := New([]keywords.Group{group("r", []string{"repeat"})}, Options{}).Match(scope, nil, nil)

	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Count)
	assert.Equal(t, 5, stats[0].Titles[0].Appearances)
}

func TestMatch_SameTitleOnTwoPlatforms(t *testing.T) {
	s := news.Snapshot{
		FetchedAt: t0,
		Items: map[string]map[string]news.TitleItem{
			"p1": {"shared": {Ranks: []int{2}}},
			"p2": {"shared": {Ranks: []int{1}}},
		},
	}
	stats := New([]keywords.Group{group("s", []string{"shared"})}, Options{}).Match([]news.Snapshot{s}, nil, nil)

	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, "p2", stats[0].Titles[0].Platform, "better rank first on tie")
}

func TestMatch_MaxTitlesPerGroup(t *testing.T) {
	scope := []news.Snapshot{snapshot(t0, "p1", map[string][]int{"a1": {1}, "a2": {2}, "a3": {3}})}

	stats := New([]keywords.Group{group("a", []string{"a"})}, Options{MaxTitlesPerGroup: 2}).Match(scope, nil, nil)

	require.Len(t, stats, 1)
	assert.Equal(t, 3, stats[0].Count)
	assert.Len(t, stats[0].Titles, 2)
}

func TestMatch_Idempotent(t *testing.T) {
	scope := []news.Snapshot{
		snapshot(t0, "p1", map[string][]int{"x1": {1}, "x2": {2}}),
		snapshot(t0.Add(time.Hour), "p1", map[string][]int{"x3": {1}}),
	}
	m := New([]keywords.Group{group("x", []string{"x"})}, Options{})

	assert.Equal(t, m.Match(scope, nil, nil), m.Match(scope, nil, nil))
}

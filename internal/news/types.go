package news

import "time"

// Platform is one monitored source of ranked titles.
type Platform struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// DisplayName returns the platform name, or its ID when no name is configured.
func (p Platform) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// TitleItem is one title observed on a platform during a crawl cycle.
// Ranks keeps the positions in observation order and is never empty.
type TitleItem struct {
	Ranks     []int  `json:"ranks"`
	URL       string `json:"url,omitempty"`
	MobileURL string `json:"mobile_url,omitempty"`
}

// BestRank returns the smallest rank observed, or 0 for an empty list.
func (t TitleItem) BestRank() int {
	best := 0
	for _, r := range t.Ranks {
		if best == 0 || r < best {
			best = r
		}
	}
	return best
}

// TitleObservation is a flattened TitleItem with its platform and title.
type TitleObservation struct {
	Platform string `json:"platform"`
	Title    string `json:"title"`
	TitleItem
}

// Snapshot holds one crawl cycle across all platforms.
type Snapshot struct {
	FetchedAt time.Time                       `json:"fetched_at"`
	Platforms map[string]string               `json:"platforms,omitempty"`
	Items     map[string]map[string]TitleItem `json:"items"`
	Failed    []string                        `json:"failed,omitempty"`
}

// Titles returns the observations of a platform in rank order.
func (s Snapshot) Titles(platform string) []TitleObservation {
	titles := s.Items[platform]
	out := make([]TitleObservation, 0, len(titles))
	for title, item := range titles {
		out = append(out, TitleObservation{Platform: platform, Title: title, TitleItem: item})
	}
	SortByRank(out)
	return out
}

// Filter returns a copy of the snapshot restricted to the given platforms.
func (s Snapshot) Filter(platforms []string) Snapshot {
	keep := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		keep[p] = struct{}{}
	}

	out := Snapshot{
		FetchedAt: s.FetchedAt,
		Platforms: make(map[string]string),
		Items:     make(map[string]map[string]TitleItem),
	}
	for id, titles := range s.Items {
		if _, ok := keep[id]; !ok {
			continue
		}
		out.Items[id] = titles
	}
	for id, name := range s.Platforms {
		if _, ok := keep[id]; ok {
			out.Platforms[id] = name
		}
	}
	for _, id := range s.Failed {
		if _, ok := keep[id]; ok {
			out.Failed = append(out.Failed, id)
		}
	}
	return out
}

// TitleCount returns the number of titles across all platforms.
func (s Snapshot) TitleCount() int {
	n := 0
	for _, titles := range s.Items {
		n += len(titles)
	}
	return n
}

// NewTitles maps a platform to the titles first observed in the latest cycle.
type NewTitles map[string][]TitleObservation

// Total returns the number of new titles across platforms.
func (n NewTitles) Total() int {
	total := 0
	for _, titles := range n {
		total += len(titles)
	}
	return total
}

// Has reports whether the title is flagged as new for the platform.
func (n NewTitles) Has(platform, title string) bool {
	for _, t := range n[platform] {
		if t.Title == title {
			return true
		}
	}
	return false
}

// MatchedTitle is a title matched by an interest group with its display fields.
type MatchedTitle struct {
	Platform     string    `json:"platform"`
	PlatformName string    `json:"platform_name"`
	Title        string    `json:"title"`
	URL          string    `json:"url,omitempty"`
	MobileURL    string    `json:"mobile_url,omitempty"`
	Ranks        []int     `json:"ranks"`
	MinRank      int       `json:"min_rank"`
	MaxRank      int       `json:"max_rank"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Appearances  int       `json:"appearances"`
	IsNew        bool      `json:"is_new"`
}

// MatchStat aggregates the titles matched by one interest group.
type MatchStat struct {
	Group  string         `json:"group"`
	Count  int            `json:"count"`
	Titles []MatchedTitle `json:"titles"`
}

// ReportKind names a generated report, e.g. "current realtime".
type ReportKind string

// Report is the assembled output of one pipeline phase.
type Report struct {
	Kind          ReportKind        `json:"kind"`
	Mode          string            `json:"mode"`
	GeneratedAt   time.Time         `json:"generated_at"`
	Stats         []MatchStat       `json:"stats"`
	NewTitles     NewTitles         `json:"new_titles"`
	Failed        []string          `json:"failed,omitempty"`
	PlatformNames map[string]string `json:"platform_names"`
	RankThreshold int               `json:"rank_threshold"`
	Digest        string            `json:"digest,omitempty"`
}

// TotalMatches returns the sum of all group counts.
func (r Report) TotalMatches() int {
	total := 0
	for _, st := range r.Stats {
		total += st.Count
	}
	return total
}

// PlatformName resolves a platform ID to its display name.
func (r Report) PlatformName(id string) string {
	if name, ok := r.PlatformNames[id]; ok && name != "" {
		return name
	}
	return id
}

// PushRecord lists the report kinds pushed on one calendar day.
type PushRecord struct {
	Date  string       `json:"date"`
	Kinds []ReportKind `json:"kinds"`
}

// Contains reports whether kind was already pushed.
func (r PushRecord) Contains(kind ReportKind) bool {
	for _, k := range r.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Package report assembles matcher and detector output into the report that is
// rendered and pushed, and decides which scope each mode and phase uses.
package report

import (
	"time"

	"github.com/maine/trendradar/internal/detect"
	"github.com/maine/trendradar/internal/keywords"
	"github.com/maine/trendradar/internal/matcher"
	"github.com/maine/trendradar/internal/mode"
	"github.com/maine/trendradar/internal/news"
)

// Settings is the immutable configuration of an Assembler.
type Settings struct {
	Groups            []keywords.Group
	Platforms         []string
	PlatformNames     map[string]string
	RankThreshold     int
	MaxTitlesPerGroup int
}

// Input is everything needed to assemble one report.
type Input struct {
	Kind      news.ReportKind
	Mode      mode.Mode
	Scope     []news.Snapshot
	NewTitles news.NewTitles
	Failed    []string
	Now       time.Time
}

// Assembler builds reports for the configured interest groups and platforms.
type Assembler struct {
	settings Settings
	matcher  *matcher.Matcher
}

// NewAssembler creates an assembler.
func NewAssembler(s Settings) *Assembler {
	return &Assembler{
		settings: s,
		matcher:  matcher.New(s.Groups, matcher.Options{MaxTitlesPerGroup: s.MaxTitlesPerGroup}),
	}
}

// Assemble merges match stats, new titles and failed platforms into a report.
func (a *Assembler) Assemble(in Input) news.Report {
	newTitles := in.NewTitles
	if newTitles == nil {
		newTitles = news.NewTitles{}
	}
	return news.Report{
		Kind:          in.Kind,
		Mode:          in.Mode.String(),
		GeneratedAt:   in.Now,
		Stats:         a.matcher.Match(in.Scope, newTitles, a.settings.PlatformNames),
		NewTitles:     newTitles,
		Failed:        append([]string(nil), in.Failed...),
		PlatformNames: a.settings.PlatformNames,
		RankThreshold: a.settings.RankThreshold,
	}
}

// Realtime assembles the per-cycle report of strategy s.
//
// For Current the stats cover the whole retained history plus the current
// cycle, while new titles are only those first seen in the current cycle. For
// Incremental and Daily both come from the current cycle alone.
func (a *Assembler) Realtime(s mode.Strategy, history []news.Snapshot, current news.Snapshot) news.Report {
	current = current.Filter(a.settings.Platforms)
	prior := a.prior(history, current)

	scope := []news.Snapshot{current}
	if s.Mode == mode.Current {
		scope = append(prior, current)
	}

	kind := s.RealtimeKind
	if kind == "" {
		kind = news.ReportKind(s.Mode.String() + " cycle")
	}
	return a.Assemble(Input{
		Kind:      kind,
		Mode:      s.Mode,
		Scope:     scope,
		NewTitles: detect.NewTitles(prior, current, a.settings.Platforms),
		Failed:    current.Failed,
		Now:       current.FetchedAt,
	})
}

// Summary assembles the summary report over the retained window including the
// current cycle. New titles are those of the latest cycle.
func (a *Assembler) Summary(s mode.Strategy, history []news.Snapshot, current news.Snapshot) news.Report {
	current = current.Filter(a.settings.Platforms)
	scope := append(a.prior(history, current), current)

	return a.Assemble(Input{
		Kind:      s.SummaryKind,
		Mode:      s.SummaryMode,
		Scope:     scope,
		NewTitles: detect.LatestNewTitles(scope, a.settings.Platforms),
		Failed:    current.Failed,
		Now:       current.FetchedAt,
	})
}

// prior returns history restricted to the configured platforms and to
// snapshots fetched before current.
func (a *Assembler) prior(history []news.Snapshot, current news.Snapshot) []news.Snapshot {
	out := make([]news.Snapshot, 0, len(history))
	for _, h := range history {
		if !h.FetchedAt.Before(current.FetchedAt) {
			continue
		}
		out = append(out, h.Filter(a.settings.Platforms))
	}
	return out
}

// IsEmpty reports whether a report carries nothing worth notifying.
// Incremental and current reports are empty when no group matched; daily
// reports additionally need no new titles at all.
func IsEmpty(r news.Report) bool {
	hasMatches := false
	for _, st := range r.Stats {
		if st.Count > 0 {
			hasMatches = true
			break
		}
	}

	m, _ := mode.Parse(r.Mode)
	switch m {
	case mode.Incremental, mode.Current:
		return !hasMatches
	default:
		return !hasMatches && r.NewTitles.Total() == 0
	}
}

// RankClass is the display class of a title's best rank.
type RankClass string

// Rank classes.
const (
	RankTop    RankClass = "top"
	RankHigh   RankClass = "high"
	RankNormal RankClass = "normal"
)

// ClassifyRank maps a best rank to its class: top for ranks 1-3, high up to
// threshold, normal otherwise.
func ClassifyRank(minRank, threshold int) RankClass {
	switch {
	case minRank >= 1 && minRank <= 3:
		return RankTop
	case minRank >= 1 && minRank <= threshold:
		return RankHigh
	default:
		return RankNormal
	}
}

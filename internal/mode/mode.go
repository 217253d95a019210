// Package mode holds the fixed report-mode strategy table.
package mode

import "github.com/maine/trendradar/internal/news"

// Mode selects what a run generates and sends. It is fixed for the whole run.
type Mode int

const (
	// Daily sends one accumulated summary of the day.
	Daily Mode = iota
	// Incremental pushes matches of every cycle in real time.
	Incremental
	// Current pushes the matches still on the board together with new titles.
	Current
)

// Report kinds produced by the strategies.
const (
	KindIncrementalRealtime news.ReportKind = "incremental realtime"
	KindCurrentRealtime     news.ReportKind = "current realtime"
	KindDailySummary        news.ReportKind = "daily summary"
	KindCurrentSummary      news.ReportKind = "current summary"
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case Incremental:
		return "incremental"
	case Current:
		return "current"
	default:
		return "daily"
	}
}

// Parse maps a mode name to a Mode. Names are case-sensitive; an unknown
// name yields Daily and ok == false.
func Parse(name string) (m Mode, ok bool) {
	switch name {
	case "incremental":
		return Incremental, true
	case "current":
		return Current, true
	case "daily":
		return Daily, true
	default:
		return Daily, false
	}
}

// Strategy is the immutable behaviour record of a mode.
type Strategy struct {
	Mode            Mode
	DisplayName     string
	Description     string
	RealtimeKind    news.ReportKind
	SummaryKind     news.ReportKind
	SendRealtime    bool
	GenerateSummary bool
	// SummaryMode is the cadence of the summary report.
	SummaryMode Mode
}

var strategies = map[Mode]Strategy{
	Incremental: {
		Mode:            Incremental,
		DisplayName:     "Incremental",
		Description:     "push only titles matched in the latest cycle; nothing new, nothing sent",
		RealtimeKind:    KindIncrementalRealtime,
		SummaryKind:     KindDailySummary,
		SendRealtime:    true,
		GenerateSummary: true,
		SummaryMode:     Daily,
	},
	Current: {
		Mode:            Current,
		DisplayName:     "Current ranking",
		Description:     "matches still on the board plus a new-titles section, pushed on schedule",
		RealtimeKind:    KindCurrentRealtime,
		SummaryKind:     KindCurrentSummary,
		SendRealtime:    true,
		GenerateSummary: true,
		SummaryMode:     Current,
	},
	Daily: {
		Mode:            Daily,
		DisplayName:     "Daily summary",
		Description:     "all matches of the day plus a new-titles section, pushed on schedule",
		SummaryKind:     KindDailySummary,
		SendRealtime:    false,
		GenerateSummary: true,
		SummaryMode:     Daily,
	},
}

// StrategyFor returns the strategy of m. Unknown values fall back to Daily.
func StrategyFor(m Mode) Strategy {
	if s, ok := strategies[m]; ok {
		return s
	}
	return strategies[Daily]
}

// Lookup parses name and returns its strategy; ok reports whether the name was known.
func Lookup(name string) (Strategy, bool) {
	m, ok := Parse(name)
	return StrategyFor(m), ok
}

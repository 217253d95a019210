// Package pushwindow gates notification delivery by clock time and by the
// per-day push record.
package pushwindow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maine/trendradar/internal/news"
)

// DateLayout is the day key of push records.
const DateLayout = "2006-01-02"

// Scope selects which recorded pushes suppress a new one when OncePerDay is set.
type Scope string

const (
	// ScopeAny suppresses once any kind was pushed today.
	ScopeAny Scope = "any"
	// ScopeKind suppresses only when the same kind was pushed today.
	ScopeKind Scope = "kind"
)

// RecordStore persists the push record of each day.
type RecordStore interface {
	// Load returns the record of date. A day with no pushes yields an empty record.
	Load(ctx context.Context, date string) (news.PushRecord, error)
	// Append adds kind to the record of date. Appending an existing kind is a no-op.
	Append(ctx context.Context, date string, kind news.ReportKind) error
}

// Options configure a Gate.
type Options struct {
	Enabled    bool
	Start      string
	End        string
	OncePerDay bool
	Scope      Scope
	Location   *time.Location
}

// Gate decides whether a report may be pushed now.
type Gate struct {
	opts       Options
	start, end int
	store      RecordStore
}

// NewGate validates opts and creates a gate backed by store.
func NewGate(opts Options, store RecordStore) (*Gate, error) {
	start, err := parseClock(opts.Start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	end, err := parseClock(opts.End)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}
	switch opts.Scope {
	case "":
		opts.Scope = ScopeAny
	case ScopeAny, ScopeKind:
	default:
		return nil, fmt.Errorf("unknown dedup scope %q", opts.Scope)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Enabled && opts.OncePerDay && store == nil {
		return nil, errors.New("once-per-day gate requires a record store")
	}
	return &Gate{opts: opts, start: start, end: end, store: store}, nil
}

// InWindow reports whether now falls inside the configured clock range. Both
// ends are inclusive; a start later than the end wraps midnight.
func (g *Gate) InWindow(now time.Time) bool {
	local := now.In(g.opts.Location)
	minute := local.Hour()*60 + local.Minute()
	if g.start <= g.end {
		return minute >= g.start && minute <= g.end
	}
	return minute >= g.start || minute <= g.end
}

// Today returns the record key of now in the gate's timezone.
func (g *Gate) Today(now time.Time) string {
	return now.In(g.opts.Location).Format(DateLayout)
}

// ShouldPush reports whether a report of kind may be pushed at now. A record
// that cannot be read blocks the push and the error is returned.
func (g *Gate) ShouldPush(ctx context.Context, now time.Time, kind news.ReportKind) (bool, error) {
	if !g.opts.Enabled {
		return true, nil
	}
	if !g.InWindow(now) {
		return false, nil
	}
	if !g.opts.OncePerDay {
		return true, nil
	}

	rec, err := g.store.Load(ctx, g.Today(now))
	if err != nil {
		return false, fmt.Errorf("load push record: %w", err)
	}
	if g.opts.Scope == ScopeKind {
		return !rec.Contains(kind), nil
	}
	return len(rec.Kinds) == 0, nil
}

// Record marks kind as pushed today. It is a no-op unless the once-per-day
// policy is active.
func (g *Gate) Record(ctx context.Context, now time.Time, kind news.ReportKind) error {
	if !g.opts.Enabled || !g.opts.OncePerDay {
		return nil
	}
	if err := g.store.Append(ctx, g.Today(now), kind); err != nil {
		return fmt.Errorf("record push: %w", err)
	}
	return nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

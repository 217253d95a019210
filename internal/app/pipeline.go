// Package app orchestrates one crawl-analyse-notify cycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/metrics"
	"github.com/maine/trendradar/internal/mode"
	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/notify"
	"github.com/maine/trendradar/internal/report"
	"github.com/maine/trendradar/internal/snapshot"
)

var (
	// ErrNotConfigured is returned when the pipeline lacks a required dependency.
	ErrNotConfigured = errors.New("pipeline dependencies not configured")
	// ErrHistoryInconsistent aborts a current-mode run whose history cannot be read.
	ErrHistoryInconsistent = errors.New("snapshot history cannot be reconstructed")
)

// Delivery decisions of a report.
const (
	DecisionEmpty      = "empty"
	DecisionDisabled   = "disabled"
	DecisionSuppressed = "suppressed"
	DecisionGateError  = "gate_error"
	DecisionSent       = "sent"
	DecisionFailed     = "failed"
	DecisionGenerated  = "generated"
)

// Clock returns the current time; tests replace it.
type Clock func() time.Time

// Fetcher downloads one snapshot of the given platforms.
type Fetcher interface {
	Fetch(ctx context.Context, platforms []news.Platform) (news.Snapshot, error)
}

// Exporter publishes a snapshot to a side channel.
type Exporter interface {
	Export(ctx context.Context, snap news.Snapshot) (int, error)
}

// Gate decides whether a report may be pushed now.
type Gate interface {
	ShouldPush(ctx context.Context, now time.Time, kind news.ReportKind) (bool, error)
	Record(ctx context.Context, now time.Time, kind news.ReportKind) error
}

// Dispatcher delivers messages to every channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, r news.Report, messages []string) map[string]bool
}

// Formatter renders a report into messages.
type Formatter interface {
	BuildMessages(r news.Report) []string
}

// Digester writes a short overview of a report.
type Digester interface {
	Digest(ctx context.Context, r news.Report) (string, error)
}

// PipelineDeps lists the pipeline dependencies. Exporter, Digester and
// Metrics are optional; Gate, Dispatcher and Formatter are required only when
// Notify is set.
type PipelineDeps struct {
	Fetcher    Fetcher
	Store      snapshot.Store
	Exporter   Exporter
	Assembler  *report.Assembler
	Gate       Gate
	Dispatcher Dispatcher
	Formatter  Formatter
	Digester   Digester
	Metrics    *metrics.Metrics
	Logger     logger.Logger
	Clock      Clock

	Platforms []news.Platform
	Window    snapshot.Window
	Mode      string
	Notify    bool
}

// Pipeline runs one cycle per Run call.
type Pipeline struct {
	fetcher    Fetcher
	store      snapshot.Store
	exporter   Exporter
	assembler  *report.Assembler
	gate       Gate
	dispatcher Dispatcher
	formatter  Formatter
	digester   Digester
	metrics    *metrics.Metrics
	log        logger.Logger
	clock      Clock

	platforms []news.Platform
	window    snapshot.Window
	mode      string
	notify    bool
}

// Outcome is what happened to one generated report.
type Outcome struct {
	Report   news.Report
	Decision string
	Channels map[string]bool
}

// RunResult summarises a finished run.
type RunResult struct {
	RunID    string
	Mode     mode.Mode
	Snapshot news.Snapshot
	Realtime *Outcome
	Summary  *Outcome
}

// NewPipeline creates a pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Pipeline{
		fetcher:    deps.Fetcher,
		store:      deps.Store,
		exporter:   deps.Exporter,
		assembler:  deps.Assembler,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
		formatter:  deps.Formatter,
		digester:   deps.Digester,
		metrics:    deps.Metrics,
		log:        log,
		clock:      clock,
		platforms:  deps.Platforms,
		window:     deps.Window,
		mode:       deps.Mode,
		notify:     deps.Notify,
	}
}

// Run executes one cycle: fetch, persist, export, analyse and notify.
func (p *Pipeline) Run(ctx context.Context) (res RunResult, err error) {
	if err := p.validateDeps(); err != nil {
		return RunResult{}, err
	}

	res.RunID = uuid.NewString()
	log := p.log.With(logger.String("run_id", res.RunID))
	started := p.clock()

	strategy, ok := mode.Lookup(p.mode)
	if !ok {
		log.Warn("Unknown report mode, falling back to daily", logger.String("mode", p.mode))
	}
	res.Mode = strategy.Mode

	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveRun(strategy.Mode.String(), err, p.clock().Sub(started), p.clock())
		}
		if err != nil {
			log.Error("Pipeline run failed", logger.Error(err))
		}
	}()

	log.Info("Pipeline run started",
		logger.String("mode", strategy.Mode.String()),
		logger.Int("platforms", len(p.platforms)),
	)

	snap, err := p.fetcher.Fetch(ctx, p.platforms)
	if err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}
	snap = snapshot.Normalize(snap)
	res.Snapshot = snap
	log.Info("Snapshot fetched",
		logger.Int("titles", snap.TitleCount()),
		logger.Strings("failed", snap.Failed),
	)
	if p.metrics != nil {
		p.metrics.TitlesFetched.Set(float64(snap.TitleCount()))
		p.metrics.PlatformsFailed.Set(float64(len(snap.Failed)))
	}

	if err := p.store.Save(ctx, snap); err != nil {
		return res, fmt.Errorf("save snapshot: %w", err)
	}

	if p.exporter != nil {
		n, err := p.exporter.Export(ctx, snap)
		if err != nil {
			log.Warn("Snapshot export failed", logger.Error(err))
		}
		if p.metrics != nil && n > 0 {
			p.metrics.ExportedMessages.Add(float64(n))
		}
	}

	history, err := snapshot.LoadWindow(ctx, p.store, p.window, snap.FetchedAt)
	if err != nil {
		if strategy.Mode == mode.Current {
			return res, fmt.Errorf("%w: %v", ErrHistoryInconsistent, err)
		}
		log.Warn("History unavailable, comparing against the current cycle only", logger.Error(err))
		history = nil
	}
	log.Debug("History loaded", logger.Int("snapshots", len(history)))

	if strategy.SendRealtime {
		r := p.assembler.Realtime(strategy, history, snap)
		p.observeReport(r)
		out := p.deliver(ctx, log, r)
		res.Realtime = &out
	}

	if strategy.GenerateSummary {
		r := p.assembler.Summary(strategy, history, snap)
		var out Outcome
		if strategy.SendRealtime {
			out = Outcome{Report: r, Decision: DecisionGenerated}
			log.Info("Summary generated",
				logger.String("kind", string(r.Kind)),
				logger.Int("matches", r.TotalMatches()),
				logger.Int("new_titles", r.NewTitles.Total()),
			)
			if p.metrics != nil {
				p.metrics.ObserveReport(string(r.Kind), DecisionGenerated)
			}
		} else {
			p.observeReport(r)
			out = p.deliver(ctx, log, r)
		}
		res.Summary = &out
	}

	log.Info("Pipeline run finished")
	return res, nil
}

// deliver pushes r through the gate to every channel and records the push
// when at least one channel confirmed delivery.
func (p *Pipeline) deliver(ctx context.Context, log logger.Logger, r news.Report) Outcome {
	out := Outcome{Report: r}
	log = log.With(logger.String("kind", string(r.Kind)))
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveReport(string(r.Kind), out.Decision)
		}
	}()

	if report.IsEmpty(r) {
		out.Decision = DecisionEmpty
		log.Info("Report is empty, nothing to send")
		return out
	}
	if !p.notify {
		out.Decision = DecisionDisabled
		log.Info("Notifications disabled, report not sent", logger.Int("matches", r.TotalMatches()))
		return out
	}

	now := p.clock()
	allowed, err := p.gate.ShouldPush(ctx, now, r.Kind)
	if err != nil {
		out.Decision = DecisionGateError
		log.Error("Push record unavailable, delivery skipped", logger.Error(err))
		return out
	}
	if !allowed {
		out.Decision = DecisionSuppressed
		log.Info("Push window closed or already pushed today")
		return out
	}

	if p.digester != nil {
		digest, err := p.digester.Digest(ctx, r)
		if err != nil {
			log.Warn("Digest unavailable", logger.Error(err))
		} else {
			r.Digest = digest
			out.Report = r
		}
	}

	messages := p.formatter.BuildMessages(r)
	out.Channels = p.dispatcher.Dispatch(ctx, r, messages)
	if !notify.AnySucceeded(out.Channels) {
		out.Decision = DecisionFailed
		log.Error("No channel delivered the report", logger.Int("channels", len(out.Channels)))
		return out
	}

	out.Decision = DecisionSent
	if err := p.gate.Record(ctx, now, r.Kind); err != nil {
		log.Warn("Push record not updated", logger.Error(err))
	}
	log.Info("Report delivered", logger.Int("messages", len(messages)))
	return out
}

func (p *Pipeline) observeReport(r news.Report) {
	if p.metrics == nil {
		return
	}
	p.metrics.NewTitles.Set(float64(r.NewTitles.Total()))
	p.metrics.GroupMatches.Reset()
	for _, st := range r.Stats {
		p.metrics.GroupMatches.WithLabelValues(st.Group).Set(float64(st.Count))
	}
}

func (p *Pipeline) validateDeps() error {
	switch {
	case p.fetcher == nil,
		p.store == nil,
		p.assembler == nil,
		p.clock == nil:
		return ErrNotConfigured
	case p.notify && (p.gate == nil || p.dispatcher == nil || p.formatter == nil):
		return ErrNotConfigured
	default:
		return nil
	}
}

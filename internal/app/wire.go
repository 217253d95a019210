package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/email"
	"github.com/maine/trendradar/internal/export"
	"github.com/maine/trendradar/internal/formatter"
	"github.com/maine/trendradar/internal/gemini"
	"github.com/maine/trendradar/internal/keywords"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/metrics"
	"github.com/maine/trendradar/internal/notify"
	"github.com/maine/trendradar/internal/pushwindow"
	"github.com/maine/trendradar/internal/report"
	"github.com/maine/trendradar/internal/snapshot"
	"github.com/maine/trendradar/internal/sources"
	"github.com/maine/trendradar/internal/telegram"
	"github.com/maine/trendradar/internal/webhook"
)

// BuildOptions adjust a pipeline built from configuration.
type BuildOptions struct {
	// Mode overrides report.mode when set.
	Mode    string
	Metrics *metrics.Metrics
	// Fetcher replaces the HTTP source fetcher, e.g. in tests.
	Fetcher Fetcher
}

// Build wires a pipeline from cfg. The returned cleanup closes every opened
// resource and must be called once the pipeline is no longer used.
func Build(ctx context.Context, cfg config.Root, opts BuildOptions, log logger.Logger) (*Pipeline, func(), error) {
	if log == nil {
		log = logger.NewNop()
	}
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("Close failed", logger.Error(err))
			}
		}
	}
	fail := func(err error) (*Pipeline, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	groups, err := keywords.LoadFile(cfg.App.KeywordsFile)
	if err != nil {
		return fail(fmt.Errorf("load interest groups: %w", err))
	}
	loc := cfg.Location()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, store.Close)

	fetcher := opts.Fetcher
	if fetcher == nil {
		if !cfg.Crawler.Enabled {
			return fail(errors.New("crawler is disabled"))
		}
		hc, err := httpClient(cfg.Crawler)
		if err != nil {
			return fail(err)
		}
		fetcher = sources.NewFetcher(sources.Options{
			APIURL:          cfg.Crawler.APIURL,
			RequestInterval: time.Duration(cfg.Crawler.RequestIntervalMS) * time.Millisecond,
			MaxRetries:      cfg.Crawler.MaxRetries,
			Client:          hc,
		}, log.With(logger.String("component", "fetcher")))
	}

	deps := PipelineDeps{
		Fetcher: fetcher,
		Store:   store,
		Assembler: report.NewAssembler(report.Settings{
			Groups:            groups,
			Platforms:         cfg.PlatformIDs(),
			PlatformNames:     cfg.PlatformNames(),
			RankThreshold:     cfg.Report.RankThreshold,
			MaxTitlesPerGroup: cfg.Report.MaxTitlesPerGroup,
		}),
		Metrics:   opts.Metrics,
		Logger:    log,
		Platforms: cfg.Platforms,
		Window: snapshot.Window{
			Hours:        cfg.History.WindowHours,
			MaxSnapshots: cfg.History.MaxSnapshots,
			Location:     loc,
		},
		Mode: cfg.Report.Mode,
	}
	if opts.Mode != "" {
		deps.Mode = opts.Mode
	}

	if cfg.Kafka.Enabled {
		brokers, err := export.SplitBrokers(cfg.Kafka.BootstrapServers)
		if err != nil {
			return fail(err)
		}
		exporter := export.NewKafkaExporter(export.NewKafkaWriter(brokers), cfg.Kafka.Topic, log.With(logger.String("component", "kafka")))
		closers = append(closers, exporter.Close)
		deps.Exporter = exporter
	}

	if cfg.Notification.Enabled {
		if !cfg.Notification.HasNotificationChannel() {
			log.Warn("Notifications enabled but no channel is configured")
		}
		var dopts []notify.Option
		if opts.Metrics != nil {
			dopts = append(dopts, notify.WithObserver(opts.Metrics))
		}
		dispatcher := notify.NewDispatcher(Channels(cfg.Notification, log), log.With(logger.String("component", "notify")), dopts...)
		log.Info("Notification channels", logger.Strings("channels", dispatcher.Channels()))
		deps.Dispatcher = dispatcher
		deps.Formatter = formatter.New(cfg.Notification.MessageMaxBytes, cfg.Notification.MaxMessages, loc)

		gate, closeGate, err := buildGate(cfg.PushWindow, loc)
		if err != nil {
			return fail(err)
		}
		if closeGate != nil {
			closers = append(closers, closeGate)
		}
		deps.Gate = gate
		deps.Notify = true

		if cfg.Gemini.Enabled {
			client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, log.With(logger.String("component", "gemini")))
			if err != nil {
				log.Warn("Gemini digest disabled", logger.Error(err))
			} else {
				deps.Digester = gemini.NewDigester(client, cfg.Gemini.Model, log)
			}
		}
	}

	return NewPipeline(deps), cleanup, nil
}

// Channels builds every fully configured notification channel.
func Channels(n config.Notification, log logger.Logger) []notify.Channel {
	var out []notify.Channel
	if n.Telegram.BotToken != "" && len(n.Telegram.ChatIDs) > 0 {
		out = append(out, telegram.NewSender(telegram.NewClient(n.Telegram.BotToken), n.Telegram.ChatIDs, log))
	}
	if n.FeishuURL != "" {
		out = append(out, webhook.NewFeishu(n.FeishuURL, nil, log))
	}
	if n.DingtalkURL != "" {
		out = append(out, webhook.NewDingtalk(n.DingtalkURL, nil, log))
	}
	if n.WeworkURL != "" {
		out = append(out, webhook.NewWework(n.WeworkURL, nil, log))
	}
	if n.Ntfy.ServerURL != "" && n.Ntfy.Topic != "" {
		out = append(out, webhook.NewNtfy(n.Ntfy.ServerURL, n.Ntfy.Topic, n.Ntfy.Token, nil, log))
	}
	if n.BarkURL != "" {
		out = append(out, webhook.NewBark(n.BarkURL, nil, log))
	}
	if n.Email.From != "" && n.Email.Password != "" && n.Email.To != "" {
		out = append(out, email.NewSender(email.Config{
			SMTPServer: smtpServer(n.Email),
			SMTPPort:   n.Email.SMTPPort,
			From:       n.Email.From,
			Password:   n.Email.Password,
			To:         splitAddresses(n.Email.To),
		}, log))
	}
	return out
}

func openStore(ctx context.Context, s config.Storage) (snapshot.Store, error) {
	switch s.Backend {
	case "sqlite":
		path := s.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "trendradar.db")
		}
		store, err := snapshot.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return snapshot.NewFileStore(s.Path), nil
	}
}

func buildGate(pw config.PushWindow, loc *time.Location) (*pushwindow.Gate, func() error, error) {
	var (
		store   pushwindow.RecordStore
		closeFn func() error
	)
	switch pw.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     pw.Redis.Address,
			Password: pw.Redis.Password,
			DB:       pw.Redis.DB,
		})
		store = pushwindow.NewRedisRecordStore(client, "")
		closeFn = client.Close
	default:
		store = pushwindow.NewFileRecordStore(pw.RecordPath)
	}

	gate, err := pushwindow.NewGate(pushwindow.Options{
		Enabled:    pw.Enabled,
		Start:      pw.Start,
		End:        pw.End,
		OncePerDay: pw.OncePerDay,
		Scope:      pushwindow.Scope(pw.DedupScope),
		Location:   loc,
	}, store)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, nil, fmt.Errorf("push window: %w", err)
	}
	return gate, closeFn, nil
}

func httpClient(c config.Crawler) (*http.Client, error) {
	hc := &http.Client{Timeout: time.Duration(c.TimeoutSeconds) * time.Second}
	if c.ProxyURL == "" {
		return hc, nil
	}
	proxy, err := url.Parse(c.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("crawler.proxy_url: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy)
	hc.Transport = transport
	return hc, nil
}

// smtpServer falls back to smtp.<domain of From> when no server is configured.
func smtpServer(e config.Email) string {
	if e.SMTPServer != "" {
		return e.SMTPServer
	}
	if at := strings.LastIndexByte(e.From, '@'); at >= 0 {
		return "smtp." + e.From[at+1:]
	}
	return ""
}

func splitAddresses(s string) []string {
	var out []string
	for _, a := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/maine/trendradar/internal/config"
	"github.com/maine/trendradar/internal/email"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
	"github.com/maine/trendradar/internal/telegram"
	"github.com/maine/trendradar/internal/webhook"
)

func testConfig(t *testing.T) config.Root {
	t.Helper()
	dir := t.TempDir()
	words := filepath.Join(dir, "frequency_words.txt")
	require.NoError(t, os.WriteFile(words, []byte("[alpha]\nA\n"), 0o644))

	cfg := config.Root{
		App:       config.App{Timezone: "UTC", KeywordsFile: words},
		Crawler:   config.Crawler{Enabled: true},
		Storage:   config.Storage{Backend: "file", Path: filepath.Join(dir, "output")},
		Platforms: []news.Platform{{ID: "p1", Name: "Platform 1"}},
		PushWindow: config.PushWindow{
			RecordPath: filepath.Join(dir, "push_record.json"),
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestChannels(t *testing.T) {
	n := config.Notification{
		Telegram:  config.Telegram{BotToken: "token", ChatIDs: []string{"1"}},
		FeishuURL: "https://open.feishu.cn/hook",
		Ntfy:      config.Ntfy{ServerURL: "https://ntfy.sh", Topic: "radar"},
		Email:     config.Email{From: "bot@example.com", Password: "secret", To: "a@example.com; b@example.com", SMTPPort: 465},
	}

	var names []string
	for _, ch := range Channels(n, logger.NewNop()) {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{telegram.ChannelName, webhook.FeishuName, webhook.NtfyName, email.ChannelName}, names)
}

func TestChannels_SkipsIncomplete(t *testing.T) {
	n := config.Notification{
		Telegram: config.Telegram{BotToken: "token"},
		Ntfy:     config.Ntfy{ServerURL: "https://ntfy.sh"},
		Email:    config.Email{From: "bot@example.com"},
	}
	assert.Empty(t, Channels(n, logger.NewNop()))
}

func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@x.io", "b@x.io", "c@x.io"}, splitAddresses(" a@x.io, b@x.io;c@x.io ,"))
	assert.Nil(t, splitAddresses(""))
}

func TestSMTPServer(t *testing.T) {
	assert.Equal(t, "smtp.qq.com", smtpServer(config.Email{From: "me@qq.com"}))
	assert.Equal(t, "mail.example.com", smtpServer(config.Email{SMTPServer: "mail.example.com", From: "me@qq.com"}))
	assert.Empty(t, smtpServer(config.Email{}))
}

func TestBuild_RunsEndToEnd(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Notification.Enabled = true
	cfg.Notification.Ntfy = config.Ntfy{ServerURL: srv.URL, Topic: "radar"}
	cfg.PushWindow.Enabled = true
	cfg.PushWindow.OncePerDay = true
	cfg.PushWindow.Start = "00:00"
	cfg.PushWindow.End = "23:59"

	fetcher := &stubFetcher{snaps: []news.Snapshot{cycle(t0, map[string]int{"A": 1, "B": 2})}}
	p, cleanup, err := Build(context.Background(), cfg, BuildOptions{Fetcher: fetcher}, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Summary)
	assert.Equal(t, DecisionSent, res.Summary.Decision)
	assert.Equal(t, map[string]bool{webhook.NtfyName: true}, res.Summary.Channels)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "alpha")
	assert.FileExists(t, cfg.PushWindow.RecordPath)
}

func TestBuild_LogsNotificationChannels(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notification.Enabled = true

	core, logs := observer.New(zap.InfoLevel)
	_, cleanup, err := Build(context.Background(), cfg, BuildOptions{Fetcher: &stubFetcher{}}, logger.FromZap(zap.New(core)))
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, 1, logs.FilterMessage("Notifications enabled but no channel is configured").Len())

	cfg.Notification.Ntfy = config.Ntfy{ServerURL: "http://localhost", Topic: "radar"}
	cfg.Notification.BarkURL = "http://localhost/key"
	core, logs = observer.New(zap.InfoLevel)
	_, cleanup, err = Build(context.Background(), cfg, BuildOptions{Fetcher: &stubFetcher{}}, logger.FromZap(zap.New(core)))
	require.NoError(t, err)
	cleanup()

	assert.Zero(t, logs.FilterMessage("Notifications enabled but no channel is configured").Len())
	entries := logs.FilterMessage("Notification channels").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []any{webhook.NtfyName, webhook.BarkName}, entries[0].ContextMap()["channels"])
}

func TestBuild_SQLiteStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = config.Storage{Backend: "sqlite", Path: t.TempDir()}

	fetcher := &stubFetcher{snaps: []news.Snapshot{cycle(t0, map[string]int{"A": 1})}}
	p, cleanup, err := Build(context.Background(), cfg, BuildOptions{Fetcher: fetcher, Mode: "current"}, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Realtime)
	assert.Equal(t, DecisionDisabled, res.Realtime.Decision)
	assert.FileExists(t, filepath.Join(cfg.Storage.Path, "trendradar.db"))
}

func TestBuild_MissingKeywords(t *testing.T) {
	cfg := testConfig(t)
	cfg.App.KeywordsFile = filepath.Join(t.TempDir(), "missing.txt")

	_, _, err := Build(context.Background(), cfg, BuildOptions{}, logger.NewNop())
	assert.Error(t, err)
}

func TestBuild_InvalidProxy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Crawler.ProxyURL = "://bad"

	_, _, err := Build(context.Background(), cfg, BuildOptions{}, logger.NewNop())
	assert.Error(t, err)
}

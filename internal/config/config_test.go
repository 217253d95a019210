package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  timezone: Asia/Shanghai
report:
  mode: current
  rank_threshold: 10
push_window:
  enabled: true
  start: "08:00"
  end: "22:30"
  once_per_day: true
notification:
  telegram:
    bot_token: file-token
    chat_ids: ["1"]
platforms:
  - id: zhihu
    name: Zhihu
  - id: weibo
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRoot(t *testing.T) {
	cfg, err := LoadRoot(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "current", cfg.Report.Mode)
	assert.Equal(t, 10, cfg.Report.RankThreshold)
	assert.Equal(t, "08:00", cfg.PushWindow.Start)
	assert.Equal(t, "any", cfg.PushWindow.DedupScope)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, []string{"zhihu", "weibo"}, cfg.PlatformIDs())
	assert.Equal(t, map[string]string{"zhihu": "Zhihu", "weibo": "weibo"}, cfg.PlatformNames())
	assert.Equal(t, "Asia/Shanghai", cfg.Location().String())
	assert.True(t, cfg.Notification.HasNotificationChannel())
}

func TestLoadRoot_EnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "10, 20")
	t.Setenv("REPORT_MODE", "incremental")

	cfg, err := LoadRoot(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Notification.Telegram.BotToken)
	assert.Equal(t, []string{"10", "20"}, cfg.Notification.Telegram.ChatIDs)
	assert.Equal(t, "incremental", cfg.Report.Mode)
}

func TestLoadRoot_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "no platforms", body: "report:\n  mode: daily\n"},
		{name: "bad window", body: "push_window:\n  start: \"25:00\"\nplatforms:\n  - id: a\n"},
		{name: "duplicate platform", body: "platforms:\n  - id: a\n  - id: a\n"},
		{name: "bad scope", body: "push_window:\n  dedup_scope: weekly\nplatforms:\n  - id: a\n"},
		{name: "redis without address", body: "push_window:\n  backend: redis\nplatforms:\n  - id: a\n"},
		{name: "bad yaml", body: "platforms: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRoot(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRoot_MissingFile(t *testing.T) {
	_, err := LoadRoot(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRoot_NoPlatformsSentinel(t *testing.T) {
	_, err := LoadRoot(writeConfig(t, "report:\n  mode: daily\n"))
	assert.ErrorIs(t, err, ErrNoPlatforms)
}

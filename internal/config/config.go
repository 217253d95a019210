package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/maine/trendradar/internal/news"
)

// ErrNoPlatforms is returned when the configuration lists no platforms.
var ErrNoPlatforms = errors.New("no platforms configured")

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

type (
	// Root groups every configuration block.
	Root struct {
		App          App             `yaml:"app"`
		Crawler      Crawler         `yaml:"crawler"`
		Report       Report          `yaml:"report"`
		History      History         `yaml:"history"`
		Storage      Storage         `yaml:"storage"`
		PushWindow   PushWindow      `yaml:"push_window"`
		Notification Notification    `yaml:"notification"`
		Kafka        Kafka           `yaml:"kafka"`
		Gemini       Gemini          `yaml:"gemini"`
		Logging      Logging         `yaml:"logging"`
		Platforms    []news.Platform `yaml:"platforms"`
	}

	// App holds process-wide settings.
	App struct {
		// Timezone is the reference zone for calendar days and push windows.
		Timezone     string `yaml:"timezone"`
		KeywordsFile string `yaml:"keywords_file"`
	}

	// Crawler configures the source fetcher.
	Crawler struct {
		Enabled           bool   `yaml:"enabled"`
		APIURL            string `yaml:"api_url"`
		RequestIntervalMS int    `yaml:"request_interval_ms"`
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		MaxRetries        int    `yaml:"max_retries"`
		ProxyURL          string `yaml:"proxy_url,omitempty"`
	}

	// Report configures report generation.
	Report struct {
		Mode              string `yaml:"mode"`
		RankThreshold     int    `yaml:"rank_threshold"`
		MaxTitlesPerGroup int    `yaml:"max_titles_per_group"`
	}

	// History bounds the snapshots used for diffing and summaries.
	// WindowHours == 0 means "the current calendar day".
	History struct {
		WindowHours  int `yaml:"window_hours"`
		MaxSnapshots int `yaml:"max_snapshots"`
	}

	// Storage selects the snapshot store backend.
	Storage struct {
		Backend string `yaml:"backend"` // file | sqlite
		Path    string `yaml:"path"`
	}

	// PushWindow configures the push gate.
	PushWindow struct {
		Enabled    bool   `yaml:"enabled"`
		Start      string `yaml:"start"`
		End        string `yaml:"end"`
		OncePerDay bool   `yaml:"once_per_day"`
		DedupScope string `yaml:"dedup_scope"` // any | kind
		Backend    string `yaml:"backend"`     // file | redis
		RecordPath string `yaml:"record_path"`
		Redis      Redis  `yaml:"redis"`
	}

	// Redis holds connection settings for the Redis push-record store.
	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	// Notification lists the configured channels.
	Notification struct {
		Enabled         bool     `yaml:"enabled"`
		MessageMaxBytes int      `yaml:"message_max_bytes"`
		MaxMessages     int      `yaml:"max_messages"`
		Telegram        Telegram `yaml:"telegram"`
		FeishuURL       string   `yaml:"feishu_url"`
		DingtalkURL     string   `yaml:"dingtalk_url"`
		WeworkURL       string   `yaml:"wework_url"`
		Ntfy            Ntfy     `yaml:"ntfy"`
		BarkURL         string   `yaml:"bark_url"`
		Email           Email    `yaml:"email"`
	}

	// Telegram configures the Telegram bot channel.
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	}

	// Ntfy configures the ntfy channel.
	Ntfy struct {
		ServerURL string `yaml:"server_url"`
		Topic     string `yaml:"topic"`
		Token     string `yaml:"token"`
	}

	// Email configures the SMTP channel.
	Email struct {
		SMTPServer string `yaml:"smtp_server"`
		SMTPPort   int    `yaml:"smtp_port"`
		From       string `yaml:"from"`
		Password   string `yaml:"password"`
		To         string `yaml:"to"`
	}

	// Kafka configures the export side channel.
	Kafka struct {
		Enabled          bool   `yaml:"enabled"`
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
	}

	// Gemini configures the optional AI digest.
	Gemini struct {
		Enabled bool   `yaml:"enabled"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	}

	// Logging configures the structured logger.
	Logging struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	}
)

// LoadRoot reads the main configuration file, applies environment overrides
// and defaults, and validates the result.
func LoadRoot(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Root{}, err
	}
	ApplyEnv(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return Root{}, err
	}
	return cfg, nil
}

// Parse decodes YAML configuration without defaults or validation.
func Parse(data []byte) (Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values with the documented defaults.
func (r *Root) SetDefaults() {
	if r.App.Timezone == "" {
		r.App.Timezone = "Asia/Shanghai"
	}
	if r.App.KeywordsFile == "" {
		r.App.KeywordsFile = "config/frequency_words.txt"
	}
	if r.Crawler.APIURL == "" {
		r.Crawler.APIURL = "https://newsnow.busiyi.world/api/s"
	}
	if r.Crawler.RequestIntervalMS <= 0 {
		r.Crawler.RequestIntervalMS = 1000
	}
	if r.Crawler.TimeoutSeconds <= 0 {
		r.Crawler.TimeoutSeconds = 15
	}
	if r.Crawler.MaxRetries < 0 {
		r.Crawler.MaxRetries = 0
	}
	if r.Report.Mode == "" {
		r.Report.Mode = "daily"
	}
	if r.Report.RankThreshold <= 0 {
		r.Report.RankThreshold = 5
	}
	if r.Storage.Backend == "" {
		r.Storage.Backend = "file"
	}
	if r.Storage.Path == "" {
		r.Storage.Path = "output"
	}
	if r.PushWindow.Start == "" {
		r.PushWindow.Start = "00:00"
	}
	if r.PushWindow.End == "" {
		r.PushWindow.End = "23:59"
	}
	if r.PushWindow.DedupScope == "" {
		r.PushWindow.DedupScope = "any"
	}
	if r.PushWindow.Backend == "" {
		r.PushWindow.Backend = "file"
	}
	if r.PushWindow.RecordPath == "" {
		r.PushWindow.RecordPath = "output/push_record.json"
	}
	if r.Notification.MessageMaxBytes <= 0 {
		r.Notification.MessageMaxBytes = 4000
	}
	if r.Notification.MaxMessages <= 0 {
		r.Notification.MaxMessages = 10
	}
	if r.Notification.Email.SMTPPort == 0 {
		r.Notification.Email.SMTPPort = 587
	}
	if r.Kafka.Topic == "" {
		r.Kafka.Topic = "trendradar.fetchdata"
	}
	if r.Gemini.Model == "" {
		r.Gemini.Model = "gemini-2.5-flash"
	}
	if r.Logging.Level == "" {
		r.Logging.Level = "info"
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (r Root) Validate() error {
	if len(r.Platforms) == 0 {
		return ErrNoPlatforms
	}
	seen := make(map[string]struct{}, len(r.Platforms))
	for i, p := range r.Platforms {
		if p.ID == "" {
			return fmt.Errorf("platform #%d: empty id", i+1)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("platform %q: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	if _, err := time.LoadLocation(r.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", r.App.Timezone, err)
	}
	if !clockPattern.MatchString(r.PushWindow.Start) {
		return fmt.Errorf("push_window.start %q: want HH:MM", r.PushWindow.Start)
	}
	if !clockPattern.MatchString(r.PushWindow.End) {
		return fmt.Errorf("push_window.end %q: want HH:MM", r.PushWindow.End)
	}
	switch r.PushWindow.DedupScope {
	case "any", "kind":
	default:
		return fmt.Errorf("push_window.dedup_scope %q: want any or kind", r.PushWindow.DedupScope)
	}
	switch r.PushWindow.Backend {
	case "file":
	case "redis":
		if r.PushWindow.Redis.Address == "" {
			return errors.New("push_window.redis.address is required for the redis backend")
		}
	default:
		return fmt.Errorf("push_window.backend %q: want file or redis", r.PushWindow.Backend)
	}
	switch r.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.backend %q: want file or sqlite", r.Storage.Backend)
	}
	if r.History.WindowHours < 0 || r.History.MaxSnapshots < 0 {
		return errors.New("history bounds must not be negative")
	}
	if r.Kafka.Enabled && r.Kafka.BootstrapServers == "" {
		return errors.New("kafka.bootstrap_servers is required when kafka is enabled")
	}
	return nil
}

// Location returns the reference timezone. Validate guarantees it loads.
func (r Root) Location() *time.Location {
	loc, err := time.LoadLocation(r.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlatformIDs returns the configured platform IDs in declaration order.
func (r Root) PlatformIDs() []string {
	ids := make([]string, 0, len(r.Platforms))
	for _, p := range r.Platforms {
		ids = append(ids, p.ID)
	}
	return ids
}

// PlatformNames maps platform IDs to display names.
func (r Root) PlatformNames() map[string]string {
	names := make(map[string]string, len(r.Platforms))
	for _, p := range r.Platforms {
		names[p.ID] = p.DisplayName()
	}
	return names
}

// HasNotificationChannel reports whether at least one channel is fully configured.
func (n Notification) HasNotificationChannel() bool {
	return (n.Telegram.BotToken != "" && len(n.Telegram.ChatIDs) > 0) ||
		n.FeishuURL != "" ||
		n.DingtalkURL != "" ||
		n.WeworkURL != "" ||
		(n.Ntfy.ServerURL != "" && n.Ntfy.Topic != "") ||
		n.BarkURL != "" ||
		(n.Email.From != "" && n.Email.Password != "" && n.Email.To != "")
}

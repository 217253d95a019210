package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file if present. Existing variables win.
func LoadDotEnv(paths ...string) {
	_ = godotenv.Load(paths...)
}

// ApplyEnv overrides secrets and a few switches from environment variables.
// Empty variables leave the file value untouched.
func ApplyEnv(cfg *Root) {
	setString(&cfg.Report.Mode, "REPORT_MODE")
	setString(&cfg.Notification.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notification.Telegram.ChatIDs = splitList(v)
	}
	setString(&cfg.Notification.FeishuURL, "FEISHU_WEBHOOK_URL")
	setString(&cfg.Notification.DingtalkURL, "DINGTALK_WEBHOOK_URL")
	setString(&cfg.Notification.WeworkURL, "WEWORK_WEBHOOK_URL")
	setString(&cfg.Notification.Ntfy.ServerURL, "NTFY_SERVER_URL")
	setString(&cfg.Notification.Ntfy.Topic, "NTFY_TOPIC")
	setString(&cfg.Notification.Ntfy.Token, "NTFY_TOKEN")
	setString(&cfg.Notification.BarkURL, "BARK_URL")
	setString(&cfg.Notification.Email.From, "EMAIL_FROM")
	setString(&cfg.Notification.Email.Password, "EMAIL_PASSWORD")
	setString(&cfg.Notification.Email.To, "EMAIL_TO")
	setString(&cfg.Notification.Email.SMTPServer, "EMAIL_SMTP_SERVER")
	if v := os.Getenv("EMAIL_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notification.Email.SMTPPort = port
		}
	}
	setString(&cfg.Gemini.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Kafka.BootstrapServers, "KAFKA_BOOTSTRAP_SERVERS")
	setString(&cfg.PushWindow.Redis.Address, "REDIS_ADDRESS")
	setString(&cfg.PushWindow.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

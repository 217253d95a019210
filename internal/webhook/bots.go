package webhook

import (
	"net/http"

	"github.com/maine/trendradar/internal/formatter"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

// Channel names.
const (
	FeishuName   = "feishu"
	DingtalkName = "dingtalk"
	WeworkName   = "wework"
	NtfyName     = "ntfy"
	BarkName     = "bark"
)

type feishu struct{ url string }

// NewFeishu creates a Feishu group-bot channel.
func NewFeishu(url string, hc *http.Client, log logger.Logger) *Sender {
	return newSender(feishu{url: url}, hc, log)
}

func (feishu) name() string { return FeishuName }

// Feishu text messages are not Markdown.
func (f feishu) build(_ news.Report, message string, _, _ int) (request, error) {
	return jsonRequest(f.url, map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": formatter.Unescape(message)},
	})
}

func (feishu) check(_ int, body []byte) error {
	if err := checkCode(body, "code", 0); err != nil {
		return err
	}
	return checkCode(body, "StatusCode", 0)
}

type dingtalk struct{ url string }

// NewDingtalk creates a DingTalk group-bot channel.
func NewDingtalk(url string, hc *http.Client, log logger.Logger) *Sender {
	return newSender(dingtalk{url: url}, hc, log)
}

func (dingtalk) name() string { return DingtalkName }

func (d dingtalk) build(r news.Report, message string, part, total int) (request, error) {
	return jsonRequest(d.url, map[string]any{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": title(r, part, total),
			"text":  message,
		},
	})
}

func (dingtalk) check(_ int, body []byte) error {
	return checkCode(body, "errcode", 0)
}

type wework struct{ url string }

// NewWework creates a WeWork group-bot channel.
func NewWework(url string, hc *http.Client, log logger.Logger) *Sender {
	return newSender(wework{url: url}, hc, log)
}

func (wework) name() string { return WeworkName }

func (w wework) build(_ news.Report, message string, _, _ int) (request, error) {
	return jsonRequest(w.url, map[string]any{
		"msgtype":  "markdown",
		"markdown": map[string]string{"content": message},
	})
}

func (wework) check(_ int, body []byte) error {
	return checkCode(body, "errcode", 0)
}

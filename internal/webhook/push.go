package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/maine/trendradar/internal/formatter"
	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

type ntfy struct {
	serverURL string
	topic     string
	token     string
}

// NewNtfy creates an ntfy channel publishing to serverURL/topic. An empty
// serverURL uses https://ntfy.sh.
func NewNtfy(serverURL, topic, token string, hc *http.Client, log logger.Logger) *Sender {
	if serverURL == "" {
		serverURL = "https://ntfy.sh"
	}
	return newSender(ntfy{serverURL: strings.TrimRight(serverURL, "/"), topic: topic, token: token}, hc, log)
}

func (ntfy) name() string { return NtfyName }

func (n ntfy) build(r news.Report, message string, part, total int) (request, error) {
	if n.topic == "" {
		return request{}, fmt.Errorf("ntfy topic is empty")
	}
	headers := map[string]string{
		"Content-Type": "text/plain; charset=utf-8",
		"Title":        title(r, part, total),
		"Markdown":     "yes",
	}
	if n.token != "" {
		headers["Authorization"] = "Bearer " + n.token
	}
	return request{
		url:     n.serverURL + "/" + n.topic,
		body:    []byte(message),
		headers: headers,
	}, nil
}

func (ntfy) check(int, []byte) error { return nil }

type bark struct{ url string }

// NewBark creates a Bark channel. url is the device push URL, e.g.
// https://api.day.app/<key>.
func NewBark(url string, hc *http.Client, log logger.Logger) *Sender {
	return newSender(bark{url: strings.TrimRight(url, "/")}, hc, log)
}

func (bark) name() string { return BarkName }

func (b bark) build(r news.Report, message string, part, total int) (request, error) {
	return jsonRequest(b.url, map[string]any{
		"title": title(r, part, total),
		"body":  formatter.Unescape(message),
		"group": "trendradar",
	})
}

func (bark) check(_ int, body []byte) error {
	var resp struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Code != 0 && resp.Code != http.StatusOK {
		return fmt.Errorf("%w: bark code %d: %s", errPermanent, resp.Code, resp.Message)
	}
	return nil
}

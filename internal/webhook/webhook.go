// Package webhook implements the HTTP-push notification channels: Feishu,
// DingTalk and WeWork group bots, ntfy and Bark.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

const (
	defaultTimeout    = 15 * time.Second
	retryAttempts     = 3
	defaultRetryDelay = 2 * time.Second
	// messageInterval keeps consecutive parts under the bots' per-minute limits.
	messageInterval = time.Second
)

// errPermanent marks a rejection that a retry cannot fix.
var errPermanent = errors.New("permanent webhook error")

// request describes one HTTP call for a message part.
type request struct {
	method  string
	url     string
	body    []byte
	headers map[string]string
}

// target renders message parts into requests and validates responses.
type target interface {
	name() string
	build(r news.Report, message string, part, total int) (request, error)
	check(status int, body []byte) error
}

// Sender delivers messages to one webhook target.
type Sender struct {
	target     target
	client     *http.Client
	retryDelay time.Duration
	interval   time.Duration
	log        logger.Logger
}

func newSender(t target, hc *http.Client, log logger.Logger) *Sender {
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Sender{
		target:     t,
		client:     hc,
		retryDelay: defaultRetryDelay,
		interval:   messageInterval,
		log:        log,
	}
}

// Name returns the channel name.
func (s *Sender) Name() string { return s.target.name() }

// Send posts every message part in order and stops at the first part that
// cannot be delivered.
func (s *Sender) Send(ctx context.Context, r news.Report, messages []string) error {
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}

	for i, msg := range messages {
		if i > 0 && s.interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.interval):
			}
		}

		req, err := s.target.build(r, msg, i+1, len(messages))
		if err != nil {
			return fmt.Errorf("%s: build request: %w", s.Name(), err)
		}
		if err := s.doWithRetry(ctx, req); err != nil {
			return fmt.Errorf("%s: part %d/%d: %w", s.Name(), i+1, len(messages), err)
		}
		s.log.Debug("Webhook part sent",
			logger.String("channel", s.Name()),
			logger.Int("part", i+1),
			logger.Int("total", len(messages)),
		)
	}
	return nil
}

func (s *Sender) doWithRetry(ctx context.Context, req request) error {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}

		err := s.do(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, errPermanent) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Sender) do(ctx context.Context, r request) error {
	method := r.method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, r.url, bytes.NewReader(r.body))
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, bytes.TrimSpace(body))
	}
	return s.target.check(resp.StatusCode, body)
}

func jsonRequest(url string, payload any) (request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, err
	}
	return request{
		url:     url,
		body:    body,
		headers: map[string]string{"Content-Type": "application/json"},
	}, nil
}

// checkCode validates the {"errcode":0} / {"code":0} envelope used by the bot APIs.
func checkCode(body []byte, field string, okCodes ...int) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	raw, ok := env[field]
	if !ok {
		return nil
	}
	var code int
	if err := json.Unmarshal(raw, &code); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	for _, c := range okCodes {
		if code == c {
			return nil
		}
	}
	var msg string
	for _, key := range []string{"errmsg", "msg", "message"} {
		if v, ok := env[key]; ok {
			_ = json.Unmarshal(v, &msg)
			break
		}
	}
	return fmt.Errorf("%w: %s %d: %s", errPermanent, field, code, msg)
}

func title(r news.Report, part, total int) string {
	t := string(r.Kind)
	if t == "" {
		t = "Trend report"
	}
	if total > 1 {
		t = fmt.Sprintf("%s (%d/%d)", t, part, total)
	}
	return t
}

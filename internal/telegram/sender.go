// Package telegram delivers report messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

const (
	// ChannelName identifies the channel in dispatch results.
	ChannelName = "telegram"

	// Bot API limit is 30 messages per second.
	telegramRateLimitPerSecond = 30
	retryAttempts              = 3
	defaultRetryDelay          = 2 * time.Second
	maxRetryDelay              = 10 * time.Second
)

// Sender delivers messages to a fixed set of chats.
type Sender struct {
	client     TelegramClient
	chatIDs    []string
	limiter    *rate.Limiter
	retryDelay time.Duration
	log        logger.Logger
}

// NewSender creates a sender for chatIDs.
func NewSender(client TelegramClient, chatIDs []string, log logger.Logger) *Sender {
	if log == nil {
		log = logger.NewNop()
	}
	return &Sender{
		client:     client,
		chatIDs:    chatIDs,
		limiter:    rate.NewLimiter(rate.Limit(telegramRateLimitPerSecond), 1),
		retryDelay: defaultRetryDelay,
		log:        log,
	}
}

// Name returns the channel name.
func (s *Sender) Name() string { return ChannelName }

// Send delivers every message to every chat in order. A failed chat does not
// stop the others; the send fails only when nothing was delivered.
func (s *Sender) Send(ctx context.Context, r news.Report, messages []string) error {
	if len(s.chatIDs) == 0 {
		return errors.New("no chat ids configured")
	}
	if len(messages) == 0 {
		return errors.New("no messages to send")
	}

	total := len(s.chatIDs) * len(messages)
	sent := 0
	var lastErr error

	for _, chatID := range s.chatIDs {
		for i, message := range messages {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := s.sendWithRetry(ctx, chatID, message); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				lastErr = err
				s.log.Warn("Telegram message failed",
					logger.String("chat_id", chatID),
					logger.Int("part", i+1),
					logger.Error(err),
				)
				continue
			}
			sent++
		}
	}

	s.log.Info("Telegram delivery finished",
		logger.String("kind", string(r.Kind)),
		logger.Int("sent", sent),
		logger.Int("total", total),
	)
	if sent == 0 {
		return fmt.Errorf("telegram: nothing delivered: %w", lastErr)
	}
	return nil
}

func (s *Sender) sendWithRetry(ctx context.Context, chatID string, message string) error {
	var lastErr error

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay * time.Duration(attempt)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := s.client.SendMessage(ctx, chatID, message, "Markdown")
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > maxRetryDelay {
			return fmt.Errorf("retry after %s exceeds limit: %w", apiErr.RetryAfter, err)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// permanentFailures are Bot API descriptions that no retry can fix.
var permanentFailures = []string{
	"chat not found",
	"bot was blocked",
	"user is deactivated",
	"chat_id is empty",
	"message is too long",
	"bad request",
}

// isRetryableError reports whether a retry could help. API errors are judged
// by code: 429 and 5xx are transient. Other errors fall back to the description.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	msg := strings.ToLower(err.Error())
	for _, p := range permanentFailures {
		if strings.Contains(msg, p) {
			return false
		}
	}
	return true
}

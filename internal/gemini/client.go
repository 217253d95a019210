// Package gemini produces an optional natural-language digest of a report
// with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/maine/trendradar/internal/logger"
)

// GeminiClient generates text for a prompt.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// generator is the SDK call wrapped by Client.
type generator func(ctx context.Context, model string, prompt string) (string, error)

// Client wraps the official SDK with retries for transient failures.
type Client struct {
	generate generator
	log      logger.Logger

	maxRetries       int
	baseDelay        time.Duration
	rateLimitDelay   time.Duration
	unavailableDelay time.Duration
}

var _ GeminiClient = (*Client)(nil)

// NewClient creates a client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, log logger.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	sdk, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(func(ctx context.Context, model, prompt string) (string, error) {
		result, err := sdk.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err != nil {
			return "", err
		}
		text, err := result.Text()
		if err != nil {
			return "", fmt.Errorf("get text from result: %w", err)
		}
		return text, nil
	}, log), nil
}

func newClient(gen generator, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		generate:         gen,
		log:              log,
		maxRetries:       3,
		baseDelay:        5 * time.Second,
		rateLimitDelay:   time.Minute,
		unavailableDelay: 2 * time.Minute,
	}
}

// GenerateText sends prompt to model. Rate limits and 5xx errors are retried;
// an exhausted daily quota and other errors fail immediately.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	delay := time.Duration(0)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warn("Retrying Gemini request",
				logger.Int("attempt", attempt+1),
				logger.Duration("delay", delay),
				logger.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, err := c.generate(ctx, model, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		kind := classify(err)
		wait, retry := c.backoff(kind, attempt)
		if !retry {
			return "", fmt.Errorf("gemini %s: %w", kind, err)
		}
		delay = wait
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// failure groups API errors by how the client reacts to them.
type failure int

const (
	failPermanent failure = iota
	failDailyQuota
	failRateLimit
	failUnavailable
	failTemporary
	failQuota
)

func (f failure) String() string {
	switch f {
	case failDailyQuota:
		return "daily quota exceeded"
	case failRateLimit:
		return "rate limited"
	case failUnavailable:
		return "unavailable"
	case failTemporary:
		return "temporary error"
	case failQuota:
		return "quota exceeded"
	default:
		return "request failed"
	}
}

// classify inspects the error text; the SDK does not expose typed status codes.
// The free tier reports its requests-per-day limit as a 429 as well, so that
// case is checked before the generic rate limit.
func classify(err error) failure {
	msg := strings.ToLower(err.Error())
	has := func(markers ...string) bool {
		for _, m := range markers {
			if strings.Contains(msg, m) {
				return true
			}
		}
		return false
	}

	switch {
	case has("429") && has("limit: 20", "generate_content_free_tier_requests", "perday"):
		return failDailyQuota
	case has("429", "rate limit", "too many requests", "resource exhausted"):
		return failRateLimit
	case has("503", "service unavailable", "overloaded"):
		return failUnavailable
	case has("500", "502", "504", "internal server error", "bad gateway", "gateway timeout"):
		return failTemporary
	case has("quota", "daily limit", "403"):
		return failQuota
	default:
		return failPermanent
	}
}

// backoff returns the wait before the next attempt and whether to retry at all.
func (c *Client) backoff(kind failure, attempt int) (time.Duration, bool) {
	switch kind {
	case failRateLimit:
		return c.rateLimitDelay, true
	case failUnavailable:
		return c.unavailableDelay, true
	case failTemporary:
		return c.baseDelay * time.Duration(attempt+1), true
	default:
		return 0, false
	}
}

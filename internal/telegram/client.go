package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// TelegramClient is the subset of the Bot API used for delivery.
type TelegramClient interface {
	SendMessage(ctx context.Context, chatID string, text string, parseMode string) error
}

// Client talks to the Telegram Bot API.
type Client struct {
	client *http.Client
	apiURL string
}

var _ TelegramClient = (*Client)(nil)

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another API host, e.g. a local proxy.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(base, "/") + c.apiURL[len(defaultAPIBase):]
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.client = hc
	}
}

// NewClient creates a client for the bot token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{Timeout: 15 * time.Second},
		apiURL: fmt.Sprintf("%s/bot%s", defaultAPIBase, token),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// APIError is a request rejected by the Bot API.
type APIError struct {
	// Code is error_code from the response, or the HTTP status when absent.
	Code        int
	Description string
	// RetryAfter is set on 429 responses.
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram api status %d", e.Code)
	}
	return fmt.Sprintf("telegram api status %d: %s", e.Code, e.Description)
}

// SendMessage sends a text message to chatID.
func (c *Client) SendMessage(ctx context.Context, chatID string, text string, parseMode string) error {
	if chatID == "" {
		return fmt.Errorf("chat_id is empty")
	}
	payload := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	return c.post(ctx, "sendMessage", payload)
}

func (c *Client) post(ctx context.Context, method string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode >= 400 || (decodeErr == nil && !out.OK) {
		apiErr := &APIError{
			Code:        out.ErrorCode,
			Description: out.Description,
			RetryAfter:  time.Duration(out.Parameters.RetryAfter) * time.Second,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode telegram response: %w", decodeErr)
	}
	return nil
}

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_SendMessage(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient("TOKEN", WithBaseURL(srv.URL))
	if err := c.SendMessage(context.Background(), "42", "hello", "Markdown"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got["chat_id"] != "42" || got["text"] != "hello" || got["parse_mode"] != "Markdown" {
		t.Errorf("payload = %v", got)
	}
}

func TestClient_SendMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := NewClient("T", WithBaseURL(srv.URL)).SendMessage(context.Background(), "1", "x", "")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("SendMessage() error = %v, want description", err)
	}
	if isRetryableError(err) {
		t.Errorf("chat not found must not be retried")
	}
}

func TestClient_SendMessage_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"Too Many Requests"}`))
	}))
	defer srv.Close()

	if err := NewClient("T", WithBaseURL(srv.URL)).SendMessage(context.Background(), "1", "x", ""); err == nil {
		t.Fatal("SendMessage() expected error")
	}
}

func TestClient_EmptyChatID(t *testing.T) {
	if err := NewClient("T").SendMessage(context.Background(), "", "x", ""); err == nil {
		t.Fatal("SendMessage() expected error")
	}
}

func TestClient_SendMessage_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 35","parameters":{"retry_after":35}}`))
	}))
	defer srv.Close()

	err := NewClient("T", WithBaseURL(srv.URL)).SendMessage(context.Background(), "1", "x", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("SendMessage() error = %v, want *APIError", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 35*time.Second {
		t.Errorf("APIError = %+v", apiErr)
	}
	if !isRetryableError(err) {
		t.Errorf("429 must be retryable")
	}
}

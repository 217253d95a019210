package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/trendradar/internal/news"
)

type captured struct {
	path    string
	headers http.Header
	body    []byte
}

func captureServer(t *testing.T, status int, response string) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		reqs = append(reqs, captured{path: r.URL.Path, headers: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), reqs...)
	}
}

func fast(s *Sender) *Sender {
	s.retryDelay = time.Millisecond
	s.interval = 0
	return s
}

func decode(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

var report = news.Report{Kind: "current realtime"}

func TestFeishu(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"StatusCode":0,"code":0,"msg":"success"}`)

	s := fast(NewFeishu(srv.URL+"/hook", nil, nil))
	require.NoError(t, s.Send(context.Background(), report, []string{"one", "two"}))

	got := reqs()
	require.Len(t, got, 2)
	body := decode(t, got[0].body)
	assert.Equal(t, "text", body["msg_type"])
	assert.Equal(t, map[string]any{"text": "one"}, body["content"])
	assert.Equal(t, FeishuName, s.Name())
}

func TestPlainTextChannels_DropMarkdownEscapes(t *testing.T) {
	const message = `1. \[Hacker\_News] node\_modules \*bloat \[9]`
	const plain = "1. [Hacker_News] node_modules *bloat [9]"

	srv, reqs := captureServer(t, http.StatusOK, `{"code":0,"StatusCode":0,"message":"success"}`)
	require.NoError(t, fast(NewFeishu(srv.URL, nil, nil)).Send(context.Background(), report, []string{message}))
	require.NoError(t, fast(NewBark(srv.URL, nil, nil)).Send(context.Background(), report, []string{message}))

	got := reqs()
	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"text": plain}, decode(t, got[0].body)["content"])
	assert.Equal(t, plain, decode(t, got[1].body)["body"])
}

func TestFeishu_RejectedCodeIsPermanent(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"code":19021,"msg":"sign match fail"}`)

	err := fast(NewFeishu(srv.URL, nil, nil)).Send(context.Background(), report, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign match fail")
	assert.Len(t, reqs(), 1)
}

func TestDingtalk(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"errcode":0,"errmsg":"ok"}`)

	require.NoError(t, fast(NewDingtalk(srv.URL, nil, nil)).Send(context.Background(), report, []string{"a", "b"}))

	got := reqs()
	require.Len(t, got, 2)
	body := decode(t, got[1].body)
	assert.Equal(t, "markdown", body["msgtype"])
	assert.Equal(t, map[string]any{"title": "current realtime (2/2)", "text": "b"}, body["markdown"])
}

func TestWework(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"errcode":0,"errmsg":"ok"}`)

	require.NoError(t, fast(NewWework(srv.URL, nil, nil)).Send(context.Background(), report, []string{"hello"}))

	body := decode(t, reqs()[0].body)
	assert.Equal(t, map[string]any{"content": "hello"}, body["markdown"])
}

func TestWework_ErrCode(t *testing.T) {
	srv, _ := captureServer(t, http.StatusOK, `{"errcode":93000,"errmsg":"invalid webhook url"}`)

	err := fast(NewWework(srv.URL, nil, nil)).Send(context.Background(), report, []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid webhook url")
}

func TestNtfy(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"id":"x"}`)

	s := fast(NewNtfy(srv.URL+"/", "trends", "tk_secret", nil, nil))
	require.NoError(t, s.Send(context.Background(), report, []string{"*bold*"}))

	got := reqs()
	require.Len(t, got, 1)
	assert.Equal(t, "/trends", got[0].path)
	assert.Equal(t, "*bold*", string(got[0].body))
	assert.Equal(t, "Bearer tk_secret", got[0].headers.Get("Authorization"))
	assert.Equal(t, "yes", got[0].headers.Get("Markdown"))
	assert.Equal(t, "current realtime", got[0].headers.Get("Title"))
}

func TestNtfy_EmptyTopic(t *testing.T) {
	err := fast(NewNtfy("http://localhost", "", "", nil, nil)).Send(context.Background(), report, []string{"x"})
	assert.Error(t, err)
}

func TestBark(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusOK, `{"code":200,"message":"success"}`)

	require.NoError(t, fast(NewBark(srv.URL+"/devicekey", nil, nil)).Send(context.Background(), report, []string{"body"}))

	got := reqs()
	assert.Equal(t, "/devicekey", got[0].path)
	body := decode(t, got[0].body)
	assert.Equal(t, "body", body["body"])
	assert.Equal(t, "current realtime", body["title"])
}

func TestSender_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"errcode":0}`))
	}))
	defer srv.Close()

	require.NoError(t, fast(NewDingtalk(srv.URL, nil, nil)).Send(context.Background(), report, []string{"x"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSender_ClientErrorNotRetried(t *testing.T) {
	srv, reqs := captureServer(t, http.StatusNotFound, `not found`)

	err := fast(NewBark(srv.URL, nil, nil)).Send(context.Background(), report, []string{"x"})
	require.Error(t, err)
	assert.Len(t, reqs(), 1)
}

func TestSender_NoMessages(t *testing.T) {
	assert.Error(t, NewBark("http://localhost", nil, nil).Send(context.Background(), report, nil))
}

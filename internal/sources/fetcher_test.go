package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maine/trendradar/internal/news"
)

var fixedNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestFetcher(srv *httptest.Server, retries int) *Fetcher {
	f := NewFetcher(Options{
		APIURL:     srv.URL + "/api/s",
		MaxRetries: retries,
		Client:     srv.Client(),
		Clock:      func() time.Time { return fixedNow },
	}, nil)
	f.retryDelay = time.Millisecond
	return f
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/s", r.URL.Path)
		assert.True(t, r.URL.Query().Has("latest"))

		switch r.URL.Query().Get("id") {
		case "weibo":
			_, _ = w.Write([]byte(`{"status":"success","items":[
				{"title":"First","url":"https://w/1","mobileUrl":"https://m.w/1"},
				{"title":" Second ","url":"https://w/2"},
				{"title":"First","url":"https://w/dup"},
				{"title":null},
				{"title":2025,"url":"https://w/num"}
			]}`))
		case "zhihu":
			_, _ = w.Write([]byte(`{"status":"cache","items":[{"title":"Q","url":"https://z/q"}]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	platforms := []news.Platform{{ID: "weibo", Name: "Weibo"}, {ID: "zhihu"}, {ID: "broken", Name: "Broken"}}
	snap, err := newTestFetcher(srv, 1).Fetch(context.Background(), platforms)
	require.NoError(t, err)

	assert.Equal(t, fixedNow, snap.FetchedAt)
	assert.Equal(t, []string{"broken"}, snap.Failed)
	assert.Equal(t, map[string]string{"weibo": "Weibo", "zhihu": "zhihu", "broken": "Broken"}, snap.Platforms)

	weibo := snap.Items["weibo"]
	require.Len(t, weibo, 3)
	assert.Equal(t, news.TitleItem{Ranks: []int{1, 3}, URL: "https://w/1", MobileURL: "https://m.w/1"}, weibo["First"])
	assert.Equal(t, []int{2}, weibo["Second"].Ranks)
	assert.Equal(t, []int{5}, weibo["2025"].Ranks)
	assert.Equal(t, []int{1}, snap.Items["zhihu"]["Q"].Ranks)
	assert.NotContains(t, snap.Items, "broken")
}

func TestFetcher_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","items":[{"title":"A"}]}`))
	}))
	defer srv.Close()

	snap, err := newTestFetcher(srv, 2).Fetch(context.Background(), []news.Platform{{ID: "p"}})
	require.NoError(t, err)
	assert.Empty(t, snap.Failed)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetcher_AllFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error"}`))
	}))
	defer srv.Close()

	snap, err := newTestFetcher(srv, 0).Fetch(context.Background(), []news.Platform{{ID: "a"}, {ID: "b"}})
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.Failed)
}

func TestFetcher_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","items":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(srv, 0).Fetch(ctx, []news.Platform{{ID: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetcher_RequestInterval(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","items":[{"title":"A"}]}`))
	}))
	defer srv.Close()

	f := NewFetcher(Options{APIURL: srv.URL, RequestInterval: 50 * time.Millisecond, Client: srv.Client()}, nil)
	start := time.Now()
	_, err := f.Fetch(context.Background(), []news.Platform{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestTitleText(t *testing.T) {
	assert.Equal(t, "x", titleText("  x "))
	assert.Equal(t, "12", titleText(float64(12)))
	assert.Equal(t, "", titleText(nil))
	assert.Equal(t, "", titleText(map[string]any{}))
}

// Package sources pulls ranked title lists from a newsnow-compatible API.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/maine/trendradar/internal/logger"
	"github.com/maine/trendradar/internal/news"
)

const (
	// DefaultAPIURL is the public newsnow endpoint.
	DefaultAPIURL = "https://newsnow.busiyi.world/api/s"

	userAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultRetryDelay = 3 * time.Second
	maxBodyBytes      = 4 << 20
)

// Options configure a Fetcher.
type Options struct {
	APIURL          string
	RequestInterval time.Duration
	MaxRetries      int
	Client          *http.Client
	Clock           func() time.Time
}

// Fetcher downloads one snapshot of all configured platforms per call.
type Fetcher struct {
	apiURL     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	clock      func() time.Time
	log        logger.Logger
}

// NewFetcher creates a fetcher. Requests, including retries, are spaced by
// opts.RequestInterval.
func NewFetcher(opts Options, log logger.Logger) *Fetcher {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if log == nil {
		log = logger.NewNop()
	}

	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}
	return &Fetcher{
		apiURL:     opts.APIURL,
		client:     opts.Client,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: opts.MaxRetries,
		retryDelay: defaultRetryDelay,
		clock:      opts.Clock,
		log:        log,
	}
}

type apiItem struct {
	Title     any    `json:"title"`
	URL       string `json:"url"`
	MobileURL string `json:"mobileUrl"`
}

type apiResponse struct {
	Status string    `json:"status"`
	Items  []apiItem `json:"items"`
}

// Fetch downloads every platform in order. Platforms that cannot be fetched
// are listed in Snapshot.Failed; an error is returned only when the context
// ends or every platform failed.
func (f *Fetcher) Fetch(ctx context.Context, platforms []news.Platform) (news.Snapshot, error) {
	snap := news.Snapshot{
		FetchedAt: f.clock(),
		Platforms: make(map[string]string, len(platforms)),
		Items:     make(map[string]map[string]news.TitleItem, len(platforms)),
	}

	for _, p := range platforms {
		snap.Platforms[p.ID] = p.DisplayName()

		items, err := f.fetchPlatform(ctx, p.ID)
		if err != nil {
			if ctx.Err() != nil {
				return news.Snapshot{}, ctx.Err()
			}
			f.log.Warn("Platform fetch failed", logger.String("platform", p.ID), logger.Error(err))
			snap.Failed = append(snap.Failed, p.ID)
			continue
		}
		snap.Items[p.ID] = items
		f.log.Debug("Platform fetched", logger.String("platform", p.ID), logger.Int("titles", len(items)))
	}

	sort.Strings(snap.Failed)
	if len(platforms) > 0 && len(snap.Failed) == len(platforms) {
		return snap, fmt.Errorf("all %d platforms failed", len(platforms))
	}
	return snap, nil
}

func (f *Fetcher) fetchPlatform(ctx context.Context, id string) (map[string]news.TitleItem, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay * time.Duration(attempt)):
			}
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := f.request(ctx, id)
		if err == nil {
			return toItems(resp.Items), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (f *Fetcher) request(ctx context.Context, id string) (apiResponse, error) {
	u, err := url.Parse(f.apiURL)
	if err != nil {
		return apiResponse{}, fmt.Errorf("parse api url: %w", err)
	}
	q := u.Query()
	q.Set("id", id)
	q.Set("latest", "")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiResponse{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apiResponse{}, fmt.Errorf("read body: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return apiResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if out.Status != "success" && out.Status != "cache" {
		return apiResponse{}, fmt.Errorf("unexpected response status %q", out.Status)
	}
	return out, nil
}

// toItems assigns 1-based ranks in list order. A title listed twice keeps
// both ranks and the first URLs.
func toItems(list []apiItem) map[string]news.TitleItem {
	items := make(map[string]news.TitleItem, len(list))
	for i, it := range list {
		title := titleText(it.Title)
		if title == "" {
			continue
		}
		item, ok := items[title]
		if !ok {
			item = news.TitleItem{URL: it.URL, MobileURL: it.MobileURL}
		}
		item.Ranks = append(item.Ranks, i+1)
		items[title] = item
	}
	return items
}

// titleText accepts the string, number and null titles some sources return.
func titleText(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	default:
		return ""
	}
}

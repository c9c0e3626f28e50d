package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appLog "todocal/internal/log"
	"todocal/internal/store"
)

// FetchResult is the outcome of fetching one feed.
type FetchResult struct {
	URL       string
	Body      []byte
	FromCache bool // true when a cached body was reused (304 or fetch failure)
}

// cacheEntry is stored in the backend under cacheKey(url).
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Body         []byte    `json:"body"`
}

// Fetcher downloads ICS feeds honoring ETag and Last-Modified. The last
// good body of each feed is cached in a store backend so a failed fetch
// can fall back to it.
type Fetcher struct {
	client *http.Client
	cache  store.Backend
}

// NewFetcher returns a Fetcher caching into b. A nil b disables caching.
func NewFetcher(b store.Backend, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  b,
	}
}

// Fetch retrieves url, using a cached copy on 304 or when the request
// fails and a cached copy exists.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	if url == "" {
		return FetchResult{}, errors.New("feed URL is empty")
	}

	meta := f.loadCache(ctx, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("ics fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		if len(meta.Body) > 0 {
			appLog.Error("ics fetch network error, using cached body", err, "url", redactURL(url))
			return FetchResult{URL: url, Body: meta.Body, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		f.saveCache(ctx, cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
			Body:         body,
		})
		appLog.Info("ics fetch success", "url", redactURL(url), "bytes", len(body))
		return FetchResult{URL: url, Body: body}, nil

	case http.StatusNotModified:
		if len(meta.Body) == 0 {
			return FetchResult{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Info("ics fetch not modified; using cache", "url", redactURL(url))
		return FetchResult{URL: url, Body: meta.Body, FromCache: true}, nil

	default:
		if len(meta.Body) > 0 {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "url", redactURL(url), "status", resp.StatusCode)
			return FetchResult{URL: url, Body: meta.Body, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("fetch %s: %s", redactURL(url), resp.Status)
	}
}

func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "icscache-" + hex.EncodeToString(sum[:8])
}

func (f *Fetcher) loadCache(ctx context.Context, url string) cacheEntry {
	if f.cache == nil {
		return cacheEntry{}
	}
	data, ok, err := f.cache.Get(ctx, cacheKey(url))
	if err != nil || !ok {
		return cacheEntry{}
	}
	var meta cacheEntry
	if err := json.Unmarshal(data, &meta); err != nil || meta.URL != url {
		return cacheEntry{}
	}
	return meta
}

// saveCache failures are logged only; the fresh body is still returned.
func (f *Fetcher) saveCache(ctx context.Context, meta cacheEntry) {
	if f.cache == nil {
		return
	}
	data, err := json.Marshal(&meta)
	if err == nil {
		err = f.cache.Set(ctx, cacheKey(meta.URL), data)
	}
	if err != nil {
		appLog.Error("ics cache save failed", err, "url", redactURL(meta.URL))
	}
}

// redactURL hides the path and query of a feed URL, which often embed a
// private token.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "ics://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexAny(rest, "/?"); j >= 0 {
		return u[:i+3+j] + "/...(redacted)"
	}
	return u + "/...(redacted)"
}

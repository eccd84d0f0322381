package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	appLog "guincheuse/internal/log"
)

// ErrFetchStatus is wrapped by Fetch when the feed answers with anything
// other than 200 or 304.
var ErrFetchStatus = errors.New("unexpected feed status")

// maxFeedBytes guards against a misconfigured URL streaming something huge.
// A larger body is an error, never a truncated feed.
const maxFeedBytes = 8 << 20

// ErrFeedTooLarge is returned when the body exceeds the size cap.
var ErrFeedTooLarge = errors.New("feed exceeds size limit")

// cacheEntry holds the last body for a URL plus its HTTP validators.
type cacheEntry struct {
	body         []byte
	etag         string
	lastModified string
	fetchedAt    time.Time
}

// Fetcher downloads calendar feeds. A body is reused without any network
// call for the revalidation window; after that a conditional request
// (ETag / Last-Modified) is made and a 304 keeps the cached body.
type Fetcher struct {
	client     *http.Client
	revalidate time.Duration
	maxBytes   int64
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher creates a Fetcher. A zero revalidate disables reuse (every
// call hits the network, still conditionally).
func NewFetcher(revalidate time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		revalidate: revalidate,
		maxBytes:   maxFeedBytes,
		now:        time.Now,
		cache:      make(map[string]cacheEntry),
	}
}

// Fetch returns the feed body for url. Network errors and bad statuses are
// returned as-is; there is no stale fallback.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, ErrFeedURLMissing
	}

	f.mu.Lock()
	cached, hasCached := f.cache[url]
	f.mu.Unlock()

	if hasCached && f.revalidate > 0 && f.now().Sub(cached.fetchedAt) < f.revalidate {
		appLog.Debug("ics fetch served from cache", "url", redactURL(url))
		return cached.body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.1")
	if hasCached {
		if cached.etag != "" {
			req.Header.Set("If-None-Match", cached.etag)
		}
		if cached.lastModified != "" {
			req.Header.Set("If-Modified-Since", cached.lastModified)
		}
	}

	appLog.Debug("ics fetch start", "url", redactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
		if err != nil {
			return nil, fmt.Errorf("read feed: %w", err)
		}
		if int64(len(body)) > f.maxBytes {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrFeedTooLarge, f.maxBytes)
		}
		f.store(url, cacheEntry{
			body:         body,
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			fetchedAt:    f.now(),
		})
		appLog.Info("ics fetch success", "url", redactURL(url), "bytes", len(body))
		return body, nil

	case http.StatusNotModified:
		if !hasCached {
			return nil, fmt.Errorf("%w: 304 without cached body", ErrFetchStatus)
		}
		cached.fetchedAt = f.now()
		f.store(url, cached)
		appLog.Debug("ics fetch not modified; using cache", "url", redactURL(url))
		return cached.body, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrFetchStatus, resp.Status)
	}
}

func (f *Fetcher) store(url string, e cacheEntry) {
	f.mu.Lock()
	f.cache[url] = e
	f.mu.Unlock()
}

// redactURL hides sensitive parts of a feed URL for logging purposes.
// Google "secret address" feeds carry the token in the path.
//
//	https://calendar.google.com/calendar/ical/x/private-abc/basic.ics
//	-> https://calendar.google.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}

package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "guincheuse/internal/log"
	"guincheuse/internal/model"
)

// ErrFeedURLMissing means no calendar feed is configured.
var ErrFeedURLMissing = errors.New("calendar feed URL is not configured")

// Normalizer turns the venue's public calendar feed into the list shown on
// the events page. Every call fetches (subject to the Fetcher's cache),
// parses and rebuilds from scratch; nothing is kept between calls.
type Normalizer struct {
	url         string
	fetcher     *Fetcher
	loc         *time.Location
	horizonDays int
}

// NewNormalizer builds a Normalizer for url. loc is both the zone used for
// floating feed times and the zone of the returned occurrences.
// horizonDays <= 0 means one calendar year.
func NewNormalizer(url string, fetcher *Fetcher, loc *time.Location, horizonDays int) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{
		url:         url,
		fetcher:     fetcher,
		loc:         loc,
		horizonDays: horizonDays,
	}
}

func (n *Normalizer) horizon(now time.Time) time.Time {
	if n.horizonDays > 0 {
		return now.AddDate(0, 0, n.horizonDays)
	}
	return now.AddDate(1, 0, 0)
}

// Events returns the occurrences visible at now, sorted by start. Any
// fetch or parse failure is returned as-is; there are no partial results.
func (n *Normalizer) Events(ctx context.Context, now time.Time) ([]model.Occurrence, error) {
	if n.url == "" {
		return nil, ErrFeedURLMissing
	}

	body, err := n.fetcher.Fetch(ctx, n.url)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseFeed(body, n.loc)
	if err != nil {
		appLog.Error("ics parse failed", err, "url", redactURL(n.url))
		return nil, err
	}

	occs := Build(parsed, now, BuildOptions{
		Horizon:         n.horizon(now),
		DisplayLocation: n.loc,
	})

	appLog.Info("events built", "components", len(parsed), "occurrences", len(occs))
	return occs, nil
}

// Warm fetches the feed so the next page view is served from cache.
func (n *Normalizer) Warm(ctx context.Context) error {
	if n.url == "" {
		return ErrFeedURLMissing
	}
	if _, err := n.fetcher.Fetch(ctx, n.url); err != nil {
		return fmt.Errorf("warm feed cache: %w", err)
	}
	return nil
}

// Package fetcher retrieves per-site sitemap documents with rate-limit and outage backoff.
package fetcher

import (
	"context"
	"time"
)

// Response is the raw result of one HTTP GET. Any status code is a valid response.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Getter performs a single GET without retries.
type Getter interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Sleeper blocks for a duration (useful for testing).
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Observer receives fetch and backoff events, typically for metrics.
type Observer interface {
	ObserveFetch(statusCode int, bodyBytes int)
	ObserveBackoff(reason string, wait time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveFetch(int, int)                {}
func (nopObserver) ObserveBackoff(string, time.Duration) {}

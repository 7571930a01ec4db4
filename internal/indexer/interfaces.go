package indexer

import (
	"context"
	"time"

	"github.com/wikitide/sitemapindex/internal/discovery"
	"github.com/wikitide/sitemapindex/internal/fetcher"
)

// SiteLister returns the sites to index, in the order they should be processed.
type SiteLister interface {
	List(ctx context.Context) ([]discovery.Site, error)
}

// SitemapFetcher retrieves one site's sitemap document with backoff applied.
type SitemapFetcher interface {
	Fetch(ctx context.Context, siteID string) (fetcher.Response, error)
	URLFor(siteID string) string
	Backoff() fetcher.Backoff
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks between sites.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Hasher fingerprints the rendered index.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Metrics receives per-run events.
type Metrics interface {
	ObserveSite(outcome string)
	ObserveLocations(n int)
	ObservePublish(at time.Time)
	ObserveRun(status string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSite(string)       {}
func (nopMetrics) ObserveLocations(int)     {}
func (nopMetrics) ObservePublish(time.Time) {}
func (nopMetrics) ObserveRun(string)        {}

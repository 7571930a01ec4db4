package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Backoff reasons reported to the Observer.
const (
	ReasonRateLimited  = "rate_limited"
	ReasonUpstreamDown = "upstream_down"
)

// Backoff holds the job-wide retry counters. They are never reset between sites.
type Backoff struct {
	// RateLimited counts 429 events seen so far.
	RateLimited int
	// Down is the multiplier for the next 502/503 wait; it starts at 1.
	Down int
}

// NewBackoff returns counters in their initial state.
func NewBackoff() *Backoff {
	return &Backoff{Down: 1}
}

// Config controls URL construction and backoff units.
type Config struct {
	StaticBaseURL string
	// RateLimitBase is multiplied by 1+RateLimited before retrying a 429.
	RateLimitBase time.Duration
	// DownStep is multiplied by Down before retrying a 502/503.
	DownStep time.Duration
}

// SitemapFetcher fetches sitemap.xml for one site at a time.
type SitemapFetcher struct {
	cfg      Config
	getter   Getter
	sleeper  Sleeper
	backoff  *Backoff
	observer Observer
	logger   *zap.Logger
}

// NewSitemapFetcher wires a fetcher. The backoff counters are owned by the caller so a run can
// report them when it finishes.
func NewSitemapFetcher(
	cfg Config,
	getter Getter,
	sleeper Sleeper,
	backoff *Backoff,
	observer Observer,
	logger *zap.Logger,
) *SitemapFetcher {
	if cfg.RateLimitBase <= 0 {
		cfg.RateLimitBase = time.Second
	}
	if cfg.DownStep <= 0 {
		cfg.DownStep = 3 * time.Second
	}
	if backoff == nil {
		backoff = NewBackoff()
	}
	if backoff.Down < 1 {
		backoff.Down = 1
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SitemapFetcher{
		cfg:      cfg,
		getter:   getter,
		sleeper:  sleeper,
		backoff:  backoff,
		observer: observer,
		logger:   logger,
	}
}

// URLFor builds https://<static-host>/<site-id>/sitemaps/sitemap.xml.
func (f *SitemapFetcher) URLFor(siteID string) string {
	return fmt.Sprintf("%s/%s/sitemaps/sitemap.xml", strings.TrimRight(f.cfg.StaticBaseURL, "/"), url.PathEscape(siteID))
}

// Fetch retrieves the sitemap for siteID. A 429 is retried exactly once after
// RateLimitBase*(1+RateLimited); 502 and 503 are retried until something else comes back,
// waiting DownStep*Down each time. Other statuses are returned untouched.
func (f *SitemapFetcher) Fetch(ctx context.Context, siteID string) (Response, error) {
	target := f.URLFor(siteID)

	resp, err := f.get(ctx, target)
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := f.cfg.RateLimitBase * time.Duration(1+f.backoff.RateLimited)
		f.logger.Warn("rate limited, backing off",
			zap.String("site", siteID),
			zap.Duration("wait", wait),
			zap.Int("rate_limited", f.backoff.RateLimited),
		)
		if err := f.wait(ctx, ReasonRateLimited, wait); err != nil {
			return Response{}, err
		}
		f.backoff.RateLimited++
		resp, err = f.get(ctx, target)
		if err != nil {
			return Response{}, err
		}
	}

	for isUpstreamDown(resp.StatusCode) {
		wait := f.cfg.DownStep * time.Duration(f.backoff.Down)
		f.backoff.Down++
		f.logger.Warn("upstream unavailable, waiting",
			zap.String("site", siteID),
			zap.String("url", target),
			zap.Int("status", resp.StatusCode),
			zap.Duration("wait", wait),
		)
		if err := f.wait(ctx, ReasonUpstreamDown, wait); err != nil {
			return Response{}, err
		}
		resp, err = f.get(ctx, target)
		if err != nil {
			return Response{}, err
		}
	}

	return resp, nil
}

// Backoff exposes the live counters.
func (f *SitemapFetcher) Backoff() Backoff {
	return *f.backoff
}

func (f *SitemapFetcher) get(ctx context.Context, target string) (Response, error) {
	resp, err := f.getter.Fetch(ctx, target)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	f.observer.ObserveFetch(resp.StatusCode, len(resp.Body))
	return resp, nil
}

func (f *SitemapFetcher) wait(ctx context.Context, reason string, d time.Duration) error {
	f.observer.ObserveBackoff(reason, d)
	if err := f.sleeper.Sleep(ctx, d); err != nil {
		return fmt.Errorf("backoff %s: %w", reason, err)
	}
	return nil
}

func isUpstreamDown(status int) bool {
	return status == http.StatusBadGateway || status == http.StatusServiceUnavailable
}

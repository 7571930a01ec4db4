// Package indexer runs the sitemap index job: discover sites, fetch and aggregate their
// sitemaps, render the combined index and upload it.
package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wikitide/sitemapindex/internal/fetcher"
	"github.com/wikitide/sitemapindex/internal/logging"
	"github.com/wikitide/sitemapindex/internal/publisher"
	"github.com/wikitide/sitemapindex/internal/sitemap"
	"github.com/wikitide/sitemapindex/internal/storage"
)

// Run statuses reported to Metrics.
const (
	StatusSuccess     = "success"
	StatusFailed      = "failed"
	StatusCredentials = "credentials"
)

// SkipFetchError marks a site whose sitemap could not be retrieved at all.
const SkipFetchError = "fetch_error"

// Config controls the job.
type Config struct {
	Key           string
	ContentType   string
	Pace          time.Duration
	ProgressEvery int
}

// Deps bundles the collaborators of a Job. Publisher and Metrics are optional.
type Deps struct {
	Lister    SiteLister
	Fetcher   SitemapFetcher
	Store     storage.BlobStore
	Publisher publisher.Publisher
	Clock     Clock
	Sleeper   Sleeper
	IDs       IDGenerator
	Hasher    Hasher
	Metrics   Metrics
	Logger    *zap.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	URI       string
	SHA256    string
	Sites     int
	Locations int
	Skipped   map[string]int
	Backoff   fetcher.Backoff
}

// Job is a single sitemap index run.
type Job struct {
	cfg  Config
	deps Deps
}

// New validates deps and returns a Job.
func New(cfg Config, deps Deps) (*Job, error) {
	switch {
	case deps.Lister == nil:
		return nil, fmt.Errorf("site lister is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("sitemap fetcher is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.Sleeper == nil:
		return nil, fmt.Errorf("sleeper is required")
	}
	if cfg.Key == "" {
		cfg.Key = "sitemap-wikitide.xml"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "application/xml"
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Job{cfg: cfg, deps: deps}, nil
}

// Run executes the job once. Errors wrapping storage.ErrCredentials mean the upload could not
// authenticate; every other error is fatal.
func (j *Job) Run(ctx context.Context) (res Result, err error) {
	res.RunID = j.runID()
	logger := logging.WithRun(j.deps.Logger, res.RunID)
	defer func() {
		switch {
		case err == nil:
			j.deps.Metrics.ObserveRun(StatusSuccess)
		case errors.Is(err, storage.ErrCredentials):
			j.deps.Metrics.ObserveRun(StatusCredentials)
		default:
			j.deps.Metrics.ObserveRun(StatusFailed)
		}
	}()

	sites, err := j.deps.Lister.List(ctx)
	if err != nil {
		return res, fmt.Errorf("discover sites: %w", err)
	}
	res.Sites = len(sites)
	logger.Info("indexing sites", zap.Int("sites", len(sites)))

	agg := sitemap.NewAggregator(logger.Named("aggregate"))
	res.Skipped = make(map[string]int)

	for i, site := range sites {
		reason, err := j.indexSite(ctx, logger, agg, site.ID)
		if err != nil {
			return res, err
		}
		if reason != "" {
			res.Skipped[reason]++
		}
		if err := j.deps.Sleeper.Sleep(ctx, j.cfg.Pace); err != nil {
			return res, fmt.Errorf("pause after %s: %w", site.ID, err)
		}
		if (i+1)%j.cfg.ProgressEvery == 0 {
			logger.Info(fmt.Sprintf("processed %d sites", i+1),
				zap.Int("processed", i+1),
				zap.Int("total", len(sites)),
				zap.Int("locations", agg.Len()),
			)
		}
	}
	res.Backoff = j.deps.Fetcher.Backoff()

	locs := agg.Locations()
	res.Locations = len(locs)
	body, err := sitemap.Render(locs, j.deps.Clock)
	if err != nil {
		return res, fmt.Errorf("render sitemap index: %w", err)
	}
	res.SHA256 = j.digest(logger, body)

	uri, err := j.deps.Store.PutObject(ctx, j.cfg.Key, j.cfg.ContentType, bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("upload sitemap index: %w", err)
	}
	res.URI = uri
	publishedAt := j.deps.Clock.Now()
	j.deps.Metrics.ObservePublish(publishedAt)
	logger.Info("sitemap index uploaded",
		zap.String("uri", uri),
		zap.String("key", j.cfg.Key),
		zap.Int("bytes", len(body)),
		zap.String("sha256", res.SHA256),
		zap.Int("locations", len(locs)),
	)

	j.notify(ctx, logger, res, publishedAt)

	logger.Info("sitemap index run complete",
		zap.Int("sites", res.Sites),
		zap.Int("locations", res.Locations),
		zap.Any("skipped", res.Skipped),
		zap.Int("rate_limited", res.Backoff.RateLimited),
		zap.Int("down", res.Backoff.Down-1),
	)
	return res, nil
}

// indexSite fetches and aggregates one site. It returns the skip reason, or "" when the
// site contributed at least one location. Only context cancellation is returned as an error.
func (j *Job) indexSite(ctx context.Context, logger *zap.Logger, agg *sitemap.Aggregator, siteID string) (string, error) {
	resp, err := j.deps.Fetcher.Fetch(ctx, siteID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("fetch %s: %w", siteID, ctxErr)
		}
		logger.Warn("skipping site, sitemap fetch failed",
			zap.String("site", siteID),
			zap.String("url", j.deps.Fetcher.URLFor(siteID)),
			zap.Error(err),
		)
		j.deps.Metrics.ObserveSite(SkipFetchError)
		return SkipFetchError, nil
	}

	out := agg.Add(siteID, resp.URL, resp.StatusCode, resp.Body)
	j.deps.Metrics.ObserveSite(out.SkipReason)
	j.deps.Metrics.ObserveLocations(out.Added)
	logger.Debug("site indexed",
		zap.String("site", siteID),
		zap.Int("status", resp.StatusCode),
		zap.Int("added", out.Added),
		zap.Duration("duration", resp.Duration),
	)
	return out.SkipReason, nil
}

func (j *Job) notify(ctx context.Context, logger *zap.Logger, res Result, at time.Time) {
	if j.deps.Publisher == nil {
		return
	}
	id, err := j.deps.Publisher.Publish(ctx, publisher.Notification{
		Event:       publisher.EventType,
		RunID:       res.RunID,
		URI:         res.URI,
		SHA256:      res.SHA256,
		Locations:   res.Locations,
		Sites:       res.Sites,
		GeneratedAt: at.UTC(),
	})
	if err != nil {
		logger.Warn("publish notification failed", zap.Error(err))
		return
	}
	logger.Info("publish notification sent", zap.String("message_id", id))
}

func (j *Job) digest(logger *zap.Logger, body []byte) string {
	if j.deps.Hasher == nil {
		return ""
	}
	sum, err := j.deps.Hasher.Hash(body)
	if err != nil {
		logger.Warn("index digest failed", zap.Error(err))
		return ""
	}
	return sum
}

func (j *Job) runID() string {
	if j.deps.IDs == nil {
		return ""
	}
	id, err := j.deps.IDs.NewID()
	if err != nil {
		j.deps.Logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}

// Package app wires configuration into the long-lived services a sitemap index run needs,
// acting as a small dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/wikitide/sitemapindex/internal/clock/system"
	"github.com/wikitide/sitemapindex/internal/config"
	"github.com/wikitide/sitemapindex/internal/discovery"
	"github.com/wikitide/sitemapindex/internal/fetcher"
	collyfetcher "github.com/wikitide/sitemapindex/internal/fetcher/colly"
	"github.com/wikitide/sitemapindex/internal/hash/sha256"
	"github.com/wikitide/sitemapindex/internal/id/uuid"
	"github.com/wikitide/sitemapindex/internal/indexer"
	"github.com/wikitide/sitemapindex/internal/metrics"
	"github.com/wikitide/sitemapindex/internal/publisher"
	pubsubpublisher "github.com/wikitide/sitemapindex/internal/publisher/pubsub"
	"github.com/wikitide/sitemapindex/internal/storage"
	"github.com/wikitide/sitemapindex/internal/storage/gcs"
	"github.com/wikitide/sitemapindex/internal/storage/local"
	"github.com/wikitide/sitemapindex/internal/storage/s3"
)

// Option overrides a service the App would otherwise build from configuration.
type Option func(*options)

type options struct {
	store     storage.BlobStore
	publisher publisher.Publisher
}

// WithBlobStore replaces the configured storage provider.
func WithBlobStore(store storage.BlobStore) Option {
	return func(o *options) { o.store = store }
}

// WithPublisher replaces the configured notification publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// App holds the services for a single run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	job     *indexer.Job
	closers []func()
}

// New builds every service described by cfg. It fails fast if any of them cannot be created.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{cfg: cfg, logger: logger}

	store := o.store
	if store == nil {
		var err error
		store, err = a.newBlobStore(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	pub := o.publisher
	if pub == nil && cfg.Notify.Enabled() {
		var err error
		pub, err = a.newPublisher(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	clock := system.New()
	recorder := metrics.NewRecorder()

	lister := discovery.New(discovery.Config{
		Endpoint:  cfg.Discovery.Endpoint,
		State:     cfg.Discovery.State,
		SiteProp:  cfg.Discovery.SiteProp,
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.Timeout(),
	}, nil, logger.Named("discovery"))

	getter := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.Timeout(),
	})
	sitemaps := fetcher.NewSitemapFetcher(fetcher.Config{
		StaticBaseURL: cfg.Sitemap.StaticBaseURL,
		RateLimitBase: time.Duration(cfg.Fetch.RateLimitBaseSeconds) * time.Second,
		DownStep:      time.Duration(cfg.Fetch.DownStepSeconds) * time.Second,
	}, getter, clock, fetcher.NewBackoff(), recorder, logger.Named("fetcher"))

	job, err := indexer.New(indexer.Config{
		Key:           cfg.Storage.Key,
		ContentType:   cfg.Storage.ContentType,
		Pace:          cfg.Pace(),
		ProgressEvery: cfg.Fetch.ProgressEvery,
	}, indexer.Deps{
		Lister:    lister,
		Fetcher:   sitemaps,
		Store:     store,
		Publisher: pub,
		Clock:     clock,
		Sleeper:   clock,
		IDs:       uuid.New(),
		Hasher:    sha256.New(),
		Metrics:   recorder,
		Logger:    logger.Named("indexer"),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build job: %w", err)
	}
	a.job = job
	return a, nil
}

// Run executes the job and, when configured, pushes metrics. A push failure is only logged.
func (a *App) Run(ctx context.Context) (indexer.Result, error) {
	res, err := a.job.Run(ctx)
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		if pushErr := metrics.Push(ctx, url, a.cfg.Metrics.JobName, res.RunID); pushErr != nil {
			a.logger.Warn("metrics push failed", zap.String("url", url), zap.Error(pushErr))
		}
	}
	return res, err
}

// Close releases clients created by New.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) newBlobStore(ctx context.Context) (storage.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Provider {
	case config.StorageProviderS3:
		a.logger.Info("using s3 storage provider",
			zap.String("bucket", sc.Bucket),
			zap.String("region", sc.Region),
			zap.String("endpoint", sc.Endpoint),
		)
		store, err := s3.New(ctx, s3.Config{
			Bucket:       sc.Bucket,
			Region:       sc.Region,
			AccessKey:    sc.AccessKey,
			SecretKey:    sc.SecretKey,
			Endpoint:     sc.Endpoint,
			UsePathStyle: sc.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3 storage: %w", err)
		}
		return store, nil
	case config.StorageProviderGCS:
		a.logger.Info("using gcs storage provider", zap.String("bucket", sc.Bucket))
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: init gcs client: %w", storage.ErrCredentials, err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
		store, err := gcs.New(client, gcs.Config{Bucket: sc.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, nil
	case config.StorageProviderLocal:
		a.logger.Info("using local storage provider", zap.String("dir", sc.LocalDir), zap.String("bucket", sc.Bucket))
		store, err := local.New(local.Config{BaseDir: sc.LocalDir, Bucket: sc.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.StorageProviderNone:
		a.logger.Info("using no-op storage provider, the index will not be uploaded")
		return storage.NoOpStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", sc.Provider)
	}
}

func (a *App) newPublisher(ctx context.Context) (publisher.Publisher, error) {
	nc := a.cfg.Notify
	a.logger.Info("connecting to pub/sub", zap.String("project", nc.ProjectID), zap.String("topic", nc.Topic))
	client, err := gpubsub.NewClient(ctx, nc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client, nc.Topic)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("error closing pubsub client", zap.Error(err))
		}
	})
	return pub, nil
}

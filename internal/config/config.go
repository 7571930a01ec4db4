// Package config loads and validates sitemap index configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported storage providers.
const (
	StorageProviderS3    = "s3"
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
	StorageProviderNone  = "none"
)

// Config captures all job configuration knobs loaded via Viper.
type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sitemap   SitemapConfig   `mapstructure:"sitemap"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DiscoveryConfig points at the wiki directory API.
type DiscoveryConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	State    string `mapstructure:"state"`
	SiteProp string `mapstructure:"site_prop"`
}

// SitemapConfig locates per-site sitemap documents.
type SitemapConfig struct {
	StaticBaseURL string `mapstructure:"static_base_url"`
}

// HTTPConfig configures the outbound HTTP clients.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// FetchConfig controls pacing and backoff of per-site fetches.
type FetchConfig struct {
	PaceMs               int `mapstructure:"pace_ms"`
	RateLimitBaseSeconds int `mapstructure:"rate_limit_base_seconds"`
	DownStepSeconds      int `mapstructure:"down_step_seconds"`
	ProgressEvery        int `mapstructure:"progress_every"`
}

// StorageConfig selects and configures the object store the index is written to.
type StorageConfig struct {
	Provider     string `mapstructure:"provider"`
	Bucket       string `mapstructure:"bucket"`
	Key          string `mapstructure:"key"`
	ContentType  string `mapstructure:"content_type"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	LocalDir     string `mapstructure:"local_dir"`
}

// NotifyConfig holds the optional Pub/Sub topic announced after a publish.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a notification topic is configured.
func (n NotifyConfig) Enabled() bool {
	return n.ProjectID != "" && n.Topic != ""
}

// MetricsConfig controls the optional Pushgateway export.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from the given Viper instance. Flags should already be bound to v.
// When path is empty the standard search paths are tried and a missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix("SITEMAPINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sitemapindex/")
		v.AddConfigPath("$HOME/.sitemapindex")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Storage.Provider = strings.ToLower(strings.TrimSpace(cfg.Storage.Provider))
	cfg.Storage.AccessKey = strings.TrimSpace(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = strings.TrimSpace(cfg.Storage.SecretKey)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("discovery.endpoint", "https://meta.wikitide.com/w/api.php")
	v.SetDefault("discovery.state", "public")
	v.SetDefault("discovery.site_prop", "dbname")
	v.SetDefault("sitemap.static_base_url", "https://static.wikiforge.net")
	v.SetDefault("http.user_agent", "wikitide-sitemap-index/1.0")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("fetch.pace_ms", 500)
	v.SetDefault("fetch.rate_limit_base_seconds", 1)
	v.SetDefault("fetch.down_step_seconds", 3)
	v.SetDefault("fetch.progress_every", 10)
	v.SetDefault("storage.provider", StorageProviderS3)
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.key", "sitemap-wikitide.xml")
	v.SetDefault("storage.content_type", "application/xml")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.local_dir", "data/sitemaps")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "sitemap_index")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Discovery.Endpoint) == "" {
		return fmt.Errorf("discovery.endpoint is required")
	}
	if strings.TrimSpace(c.Sitemap.StaticBaseURL) == "" {
		return fmt.Errorf("sitemap.static_base_url is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Fetch.PaceMs < 0 {
		return fmt.Errorf("fetch.pace_ms must be >= 0")
	}
	if c.Fetch.RateLimitBaseSeconds <= 0 {
		return fmt.Errorf("fetch.rate_limit_base_seconds must be > 0")
	}
	if c.Fetch.DownStepSeconds <= 0 {
		return fmt.Errorf("fetch.down_step_seconds must be > 0")
	}
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return fmt.Errorf("storage.key is required")
	}
	switch c.Storage.Provider {
	case StorageProviderS3, StorageProviderGCS, StorageProviderNone:
	case StorageProviderLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not supported", c.Storage.Provider)
	}
	if (c.Notify.ProjectID == "") != (c.Notify.Topic == "") {
		return fmt.Errorf("notify.project_id and notify.topic must be set together")
	}
	return nil
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Pace is the pause between consecutive site fetches.
func (c Config) Pace() time.Duration {
	return time.Duration(c.Fetch.PaceMs) * time.Millisecond
}

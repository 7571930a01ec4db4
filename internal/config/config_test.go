package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
discovery:
  endpoint: https://meta.example.org/w/api.php
sitemap:
  static_base_url: https://static.example.org
http:
  user_agent: test-agent
  timeout_seconds: 45
fetch:
  pace_ms: 0
  rate_limit_base_seconds: 2
  down_step_seconds: 5
storage:
  provider: GCS
  bucket: sitemaps
  key: index.xml
notify:
  project_id: proj
  topic: sitemap-published
metrics:
  pushgateway_url: http://pushgateway:9091
logging:
  development: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Discovery.Endpoint != "https://meta.example.org/w/api.php" {
		t.Fatalf("unexpected discovery endpoint %q", cfg.Discovery.Endpoint)
	}
	if cfg.Discovery.State != "public" || cfg.Discovery.SiteProp != "dbname" {
		t.Fatalf("expected discovery defaults to survive, got %+v", cfg.Discovery)
	}
	if cfg.Storage.Provider != StorageProviderGCS {
		t.Fatalf("expected provider to be normalized, got %q", cfg.Storage.Provider)
	}
	if cfg.Storage.Bucket != "sitemaps" || cfg.Storage.Key != "index.xml" {
		t.Fatalf("expected storage overrides to apply, got %+v", cfg.Storage)
	}
	if cfg.Storage.ContentType != "application/xml" {
		t.Fatalf("expected default content type, got %q", cfg.Storage.ContentType)
	}
	if !cfg.Notify.Enabled() {
		t.Fatal("expected notify to be enabled")
	}
	if !cfg.Logging.Development {
		t.Fatal("expected development logging")
	}
	if got := cfg.Timeout(); got != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %v", got)
	}
	if got := cfg.Pace(); got != 0 {
		t.Fatalf("expected zero pace, got %v", got)
	}
	if cfg.Fetch.RateLimitBaseSeconds != 2 || cfg.Fetch.DownStepSeconds != 5 {
		t.Fatalf("expected fetch overrides, got %+v", cfg.Fetch)
	}
}

func TestLoadDefaultsWithBoundBucket(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("storage.bucket", "wikitide-sitemaps")

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Provider != StorageProviderS3 {
		t.Fatalf("expected s3 provider by default, got %q", cfg.Storage.Provider)
	}
	if cfg.Storage.Key != "sitemap-wikitide.xml" {
		t.Fatalf("expected fixed object key, got %q", cfg.Storage.Key)
	}
	if cfg.Sitemap.StaticBaseURL != "https://static.wikiforge.net" {
		t.Fatalf("unexpected static base url %q", cfg.Sitemap.StaticBaseURL)
	}
	if got := cfg.Pace(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms pace, got %v", got)
	}
	if cfg.Notify.Enabled() {
		t.Fatal("expected notify to be disabled by default")
	}
}

func TestLoadAcceptsDryRunProvider(t *testing.T) {
	t.Parallel()

	v := viper.New()
	v.Set("storage.bucket", "wikitide-sitemaps")
	v.Set("storage.provider", " None ")

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Provider != StorageProviderNone {
		t.Fatalf("expected none provider, got %q", cfg.Storage.Provider)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("expected read config error, got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Discovery: DiscoveryConfig{Endpoint: "https://meta.example.org/w/api.php"},
		Sitemap:   SitemapConfig{StaticBaseURL: "https://static.example.org"},
		HTTP:      HTTPConfig{TimeoutSeconds: 10},
		Fetch:     FetchConfig{RateLimitBaseSeconds: 1, DownStepSeconds: 3},
		Storage: StorageConfig{
			Provider: StorageProviderS3,
			Bucket:   "bucket",
			Key:      "sitemap-wikitide.xml",
		},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "missing bucket",
			cfg: func() Config {
				c := base
				c.Storage.Bucket = " "
				return c
			}(),
			want: "storage.bucket",
		},
		{
			name: "missing key",
			cfg: func() Config {
				c := base
				c.Storage.Key = ""
				return c
			}(),
			want: "storage.key",
		},
		{
			name: "invalid timeout",
			cfg: func() Config {
				c := base
				c.HTTP.TimeoutSeconds = 0
				return c
			}(),
			want: "http.timeout_seconds",
		},
		{
			name: "negative pace",
			cfg: func() Config {
				c := base
				c.Fetch.PaceMs = -1
				return c
			}(),
			want: "fetch.pace_ms",
		},
		{
			name: "zero rate limit base",
			cfg: func() Config {
				c := base
				c.Fetch.RateLimitBaseSeconds = 0
				return c
			}(),
			want: "fetch.rate_limit_base_seconds",
		},
		{
			name: "zero down step",
			cfg: func() Config {
				c := base
				c.Fetch.DownStepSeconds = 0
				return c
			}(),
			want: "fetch.down_step_seconds",
		},
		{
			name: "unknown provider",
			cfg: func() Config {
				c := base
				c.Storage.Provider = "azure"
				return c
			}(),
			want: "storage.provider",
		},
		{
			name: "local without dir",
			cfg: func() Config {
				c := base
				c.Storage.Provider = StorageProviderLocal
				return c
			}(),
			want: "storage.local_dir",
		},
		{
			name: "notify topic without project",
			cfg: func() Config {
				c := base
				c.Notify.Topic = "topic"
				return c
			}(),
			want: "notify.project_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

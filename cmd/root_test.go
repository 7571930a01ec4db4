package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wikitide/sitemapindex/internal/config"
	"github.com/wikitide/sitemapindex/internal/indexer"
	"github.com/wikitide/sitemapindex/internal/storage"
)

type fakeRunner struct {
	res    indexer.Result
	err    error
	closed bool
}

func (f *fakeRunner) Run(context.Context) (indexer.Result, error) { return f.res, f.err }
func (f *fakeRunner) Close()                                      { f.closed = true }

// stubDeps swaps the factories and returns the observed logs plus a pointer to the captured config.
func stubDeps(t *testing.T, runner *fakeRunner, factoryErr error) (*observer.ObservedLogs, *config.Config) {
	t.Helper()

	core, logs := observer.New(zap.InfoLevel)
	var captured config.Config

	origRunner, origLogger := newRunner, newLogger
	t.Cleanup(func() {
		newRunner, newLogger = origRunner, origLogger
	})
	newLogger = func(bool) (*zap.Logger, error) { return zap.New(core), nil }
	newRunner = func(_ context.Context, cfg config.Config, _ *zap.Logger) (Runner, error) {
		captured = cfg
		if factoryErr != nil {
			return nil, factoryErr
		}
		return runner, nil
	}

	t.Setenv(configPathEnv, "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	return logs, &captured
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestBucketIsRequired(t *testing.T) {
	stubDeps(t, &fakeRunner{}, nil)

	err := execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bucket"`)
}

func TestRejectsPositionalArgs(t *testing.T) {
	stubDeps(t, &fakeRunner{}, nil)

	assert.Error(t, execute("-B", "b", "extra"))
}

func TestFlagsAndEnvironmentReachConfig(t *testing.T) {
	runner := &fakeRunner{res: indexer.Result{URI: "s3://b/sitemap-wikitide.xml"}}
	_, cfg := stubDeps(t, runner, nil)
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")

	require.NoError(t, execute("-B", "wikitide-sitemaps", "-K", "flag-key"))

	assert.Equal(t, "wikitide-sitemaps", cfg.Storage.Bucket)
	assert.Equal(t, "flag-key", cfg.Storage.AccessKey)
	assert.Equal(t, "env-secret", cfg.Storage.SecretKey)
	assert.Equal(t, "sitemap-wikitide.xml", cfg.Storage.Key)
	assert.True(t, runner.closed)
}

func TestLongFlags(t *testing.T) {
	_, cfg := stubDeps(t, &fakeRunner{}, nil)

	require.NoError(t, execute("--bucket", "b", "--access-key", "k", "--secret-key", "s"))
	assert.Equal(t, "k", cfg.Storage.AccessKey)
	assert.Equal(t, "s", cfg.Storage.SecretKey)
}

func TestCredentialsErrorExitsCleanly(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("upload sitemap index: %w", storage.ErrCredentials)}
	logs, _ := stubDeps(t, runner, nil)

	require.NoError(t, execute("-B", "b"))
	assert.Equal(t, 1, logs.FilterMessage(credentialsHint).Len())
}

func TestCredentialsErrorDuringSetupExitsCleanly(t *testing.T) {
	logs, _ := stubDeps(t, nil, fmt.Errorf("init gcs client: %w", storage.ErrCredentials))

	require.NoError(t, execute("-B", "b"))
	assert.Equal(t, 1, logs.FilterMessage(credentialsHint).Len())
}

func TestOtherRunErrorsAreFatal(t *testing.T) {
	runner := &fakeRunner{err: errors.New("discover sites: api down")}
	stubDeps(t, runner, nil)

	err := execute("-B", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api down")
	assert.True(t, runner.closed)
}

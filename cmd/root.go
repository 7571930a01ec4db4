// Package cmd defines the sitemapindex command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wikitide/sitemapindex/internal/app"
	"github.com/wikitide/sitemapindex/internal/config"
	"github.com/wikitide/sitemapindex/internal/indexer"
	"github.com/wikitide/sitemapindex/internal/logging"
	"github.com/wikitide/sitemapindex/internal/storage"
)

// configPathEnv names an explicit config file; the flag set is fixed, so it is read from the environment.
const configPathEnv = "SITEMAPINDEX_CONFIG"

// credentialsHint is logged when the upload cannot authenticate.
const credentialsHint = "storage credentials not found or invalid; provide a valid access key and secret key " +
	"with -K/--access-key and -S/--secret-key or AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY"

// Runner is the part of the application the command drives.
// This allows us to inject a fake app during tests.
type Runner interface {
	Run(ctx context.Context) (indexer.Result, error)
	Close()
}

// newRunner is the application factory. It's a variable so tests can replace it.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger builds the process logger. Tests swap it for an observer.
var newLogger = logging.New

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "sitemapindex",
		Short: "Builds the fleet-wide sitemap index and uploads it to object storage.",
		Long: `sitemapindex lists every public wiki through the discovery API, fetches each
wiki's sitemap index, combines every sitemap location into a single sitemap
index document and uploads it as sitemap-wikitide.xml to the given bucket.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.StringP("bucket", "B", "", "bucket the sitemap index is uploaded to")
	flags.StringP("access-key", "K", "", "object storage access key (default $AWS_ACCESS_KEY_ID)")
	flags.StringP("secret-key", "S", "", "object storage secret key (default $AWS_SECRET_ACCESS_KEY)")
	cobra.CheckErr(cmd.MarkFlagRequired("bucket"))

	cobra.CheckErr(v.BindPFlag("storage.bucket", flags.Lookup("bucket")))
	cobra.CheckErr(v.BindPFlag("storage.access_key", flags.Lookup("access-key")))
	cobra.CheckErr(v.BindPFlag("storage.secret_key", flags.Lookup("secret-key")))
	cobra.CheckErr(v.BindEnv("storage.access_key", "SITEMAPINDEX_STORAGE_ACCESS_KEY", "AWS_ACCESS_KEY_ID"))
	cobra.CheckErr(v.BindEnv("storage.secret_key", "SITEMAPINDEX_STORAGE_SECRET_KEY", "AWS_SECRET_ACCESS_KEY"))

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v, os.Getenv(configPathEnv))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, storage.ErrCredentials) {
			logger.Error(credentialsHint, zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()

	res, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrCredentials) {
			logger.Error(credentialsHint, zap.String("bucket", cfg.Storage.Bucket), zap.Error(err))
			return nil
		}
		return fmt.Errorf("sitemap index run failed: %w", err)
	}
	logger.Info("done", zap.String("uri", res.URI), zap.Int("locations", res.Locations))
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
}

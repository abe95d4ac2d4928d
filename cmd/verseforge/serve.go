package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/verseforge/verseforge/pkg/api"
	"github.com/verseforge/verseforge/pkg/blob"
	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/cleanup"
	"github.com/verseforge/verseforge/pkg/config"
	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/moderation"
	"github.com/verseforge/verseforge/pkg/ratelimit"
	"github.com/verseforge/verseforge/pkg/scheduler"
	"github.com/verseforge/verseforge/pkg/telemetry"
	"github.com/verseforge/verseforge/pkg/validate"
	"github.com/verseforge/verseforge/pkg/verse"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the VerseForge API server",
	Long: `Start the HTTP API server together with the background scheduler
(daily verse, retention cleanup, metrics rollup).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
		logger := log.WithComponent("serve")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := metastore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			return fmt.Errorf("database unreachable: %w", err)
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		caches := cache.New(rdb, store)
		if err := caches.Ping(ctx); err != nil {
			// The cache is a derived view; serving degrades but works
			logger.Warn().Err(err).Msg("redis unreachable, serving without cache")
		}

		blobs, err := openBlobStore(ctx, cfg)
		if err != nil {
			return err
		}

		images := imagestore.New(blobs, store, caches, cfg.PublicBaseURL, cfg.SigningSecret)
		resolver := verse.NewResolver(store, caches)
		client := model.NewHTTPClient(cfg.ModelEndpoint, cfg.ModelAPIToken)
		reviews := moderation.NewService(store, blobs, caches)

		limiter := ratelimit.NewCoordinator(ratelimit.Limits{
			Anonymous:     cfg.RateLimitAnonymous,
			Authenticated: cfg.RateLimitAuthenticated,
		})
		defer limiter.Stop()

		tracker := telemetry.NewTracker(telemetry.DefaultQuotas)
		defer tracker.Stop()

		sched := scheduler.New()
		jobs := map[string]struct {
			spec string
			job  scheduler.Job
		}{
			scheduler.JobDailyVerse: {scheduler.SpecDailyVerse,
				scheduler.DailyVerseJob(resolver, client, images, caches)},
			scheduler.JobCleanup: {scheduler.SpecCleanup,
				scheduler.CleanupJob(cleanup.New(store, blobs, caches), cleanup.Options{
					RetentionDays:       cfg.ImageRetentionDays,
					BackupRetentionDays: cfg.BackupRetentionDays,
				})},
			scheduler.JobMetrics: {scheduler.SpecMetrics, scheduler.MetricsJob(store)},
		}
		for name, j := range jobs {
			if err := sched.Register(name, j.spec, j.job); err != nil {
				return fmt.Errorf("failed to register job %s: %w", name, err)
			}
		}
		sched.Start()
		defer sched.Stop()

		server := api.NewServer(
			cfg,
			validate.New(caches),
			resolver,
			client,
			moderation.NewGate(cfg.EnableContentModeration),
			reviews,
			images,
			caches,
			limiter,
			tracker,
		)
		httpServer := &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", cfg.ListenAddr).Str("environment", cfg.Environment).Msg("server listening")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			logger.Info().Msg("shutdown signal received")
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down cleanly: %w", err)
		}
		logger.Info().Msg("shutdown complete")
		return nil
	},
}

// openBlobStore selects the blob backend: S3-compatible when a bucket is
// configured, in-memory in development.
func openBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.S3Bucket != "" {
		return blob.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3Region)
	}
	if cfg.IsDevelopment() {
		logger := log.WithComponent("serve")
		logger.Warn().Msg("no S3 bucket configured, using in-memory blob store")
		return blob.NewMemory(), nil
	}
	return nil, fmt.Errorf("s3_bucket is required outside development")
}

package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/verseforge/verseforge/pkg/cache"
	"github.com/verseforge/verseforge/pkg/config"
	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/scheduler"
	"github.com/verseforge/verseforge/pkg/verse"
)

// dailyVerseCmd renders the daily verse once, outside the schedule.
// Useful for backfilling after an outage or smoke-testing a deployment.
var dailyVerseCmd = &cobra.Command{
	Use:   "daily-verse",
	Short: "Generate today's daily verse image immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

		ctx := cmd.Context()
		store, err := metastore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer store.Close()

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		caches := cache.New(rdb, store)

		blobs, err := openBlobStore(ctx, cfg)
		if err != nil {
			return err
		}

		job := scheduler.DailyVerseJob(
			verse.NewResolver(store, caches),
			model.NewHTTPClient(cfg.ModelEndpoint, cfg.ModelAPIToken),
			imagestore.New(blobs, store, caches, cfg.PublicBaseURL, cfg.SigningSecret),
			caches,
		)
		if err := job(ctx); err != nil {
			return fmt.Errorf("daily verse generation failed: %w", err)
		}
		fmt.Println("✓ Daily verse generated")
		return nil
	},
}

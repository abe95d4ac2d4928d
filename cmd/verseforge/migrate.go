package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verseforge/verseforge/pkg/config"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metastore"
	"github.com/verseforge/verseforge/pkg/verse"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and seed the verse set",
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

		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Println("✓ Migrations applied")

		seed, _ := cmd.Flags().GetBool("seed")
		if !seed {
			return nil
		}
		verses := verse.Embedded()
		for i := range verses {
			if err := store.UpsertVerse(ctx, &verses[i]); err != nil {
				return fmt.Errorf("failed to seed verse %s: %w", verses[i].Reference, err)
			}
		}
		fmt.Printf("✓ Seeded %d verses\n", len(verses))
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("seed", true, "Seed the compiled-in verse set after migrating")
}

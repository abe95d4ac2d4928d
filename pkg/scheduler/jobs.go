package scheduler

import (
	"context"
	"time"

	"github.com/verseforge/verseforge/pkg/cleanup"
	"github.com/verseforge/verseforge/pkg/imagestore"
	"github.com/verseforge/verseforge/pkg/model"
	"github.com/verseforge/verseforge/pkg/prompt"
	"github.com/verseforge/verseforge/pkg/types"
)

// Job names and schedules. Daily verse renders each morning, cleanup
// runs weekly on Sunday night, the metrics rollup closes out each day.
const (
	JobDailyVerse = "daily-verse"
	JobCleanup    = "retention-cleanup"
	JobMetrics    = "metrics-rollup"

	SpecDailyVerse = "0 6 * * *"
	SpecCleanup    = "0 2 * * 0"
	SpecMetrics    = "0 0 * * *"
)

// DailyVerseResolver picks the next verse in the rotation
type DailyVerseResolver interface {
	GetDailyVerse(ctx context.Context) (*types.Verse, error)
}

// DailyVerseCache records today's rendered verse image
type DailyVerseCache interface {
	SetDailyVerse(ctx context.Context, imageID string)
}

// MetricsStore aggregates and persists daily usage
type MetricsStore interface {
	AggregateDay(ctx context.Context, day time.Time) (*types.DailyMetric, error)
	UpsertDailyMetric(ctx context.Context, m *types.DailyMetric) error
}

// DailyVerseJob renders the daily verse image ahead of traffic: pick
// the verse, compose, run inference, store pre-approved with the
// protective daily-verse tag, and publish the ID to the cache.
func DailyVerseJob(resolver DailyVerseResolver, client model.Client, images *imagestore.Store, cache DailyVerseCache) Job {
	return func(ctx context.Context) error {
		v, err := resolver.GetDailyVerse(ctx)
		if err != nil {
			return err
		}

		composed := prompt.Compose(v, types.StyleClassic)
		result, err := client.Run(ctx, model.Request{Prompt: composed})
		if err != nil {
			return err
		}

		img, err := images.SaveImage(ctx, &imagestore.SaveRequest{
			VerseReference: v.Reference,
			VerseText:      v.Text,
			Prompt:         composed,
			StylePreset:    types.StyleClassic,
			Width:          result.Width,
			Height:         result.Height,
			Tags:           []string{"daily-verse"},
			Moderation:     types.ModerationApproved,
		}, result.Image)
		if err != nil {
			return err
		}

		cache.SetDailyVerse(ctx, img.ID)
		return nil
	}
}

// CleanupJob runs the weekly retention cycle
func CleanupJob(svc *cleanup.Service, opts cleanup.Options) Job {
	return func(ctx context.Context) error {
		_, err := svc.PerformCleanupCycle(ctx, opts)
		return err
	}
}

// MetricsJob rolls up the previous UTC day into usage_metrics
func MetricsJob(store MetricsStore) Job {
	return func(ctx context.Context) error {
		day := time.Now().UTC().AddDate(0, 0, -1)
		m, err := store.AggregateDay(ctx, day)
		if err != nil {
			return err
		}
		return store.UpsertDailyMetric(ctx, m)
	}
}

package metastore

import (
	"context"
	"time"

	"github.com/verseforge/verseforge/pkg/types"
)

// UpsertDailyMetric writes the per-date aggregate, idempotent on date
func (s *Store) UpsertDailyMetric(ctx context.Context, m *types.DailyMetric) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(cctx, `
		INSERT INTO usage_metrics (date, total_generations, successful_generations,
			failed_generations, total_storage_bytes, unique_users)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date) DO UPDATE SET
			total_generations = EXCLUDED.total_generations,
			successful_generations = EXCLUDED.successful_generations,
			failed_generations = EXCLUDED.failed_generations,
			total_storage_bytes = EXCLUDED.total_storage_bytes,
			unique_users = EXCLUDED.unique_users`,
		m.Date, m.TotalGenerations, m.SuccessfulGenerations,
		m.FailedGenerations, m.TotalStorageBytes, m.UniqueUsers)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "upsert daily metric %s", m.Date)
	}
	return nil
}

// AggregateDay computes the usage aggregate for one UTC day from the
// images table.
func (s *Store) AggregateDay(ctx context.Context, day time.Time) (*types.DailyMetric, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var m types.DailyMetric
	err := s.db.GetContext(cctx, &m, `
		SELECT
			COUNT(*) AS total_generations,
			COUNT(*) FILTER (WHERE moderation_status <> 'rejected') AS successful_generations,
			COUNT(*) FILTER (WHERE moderation_status = 'rejected') AS failed_generations,
			COALESCE(SUM(file_size), 0) AS total_storage_bytes,
			COUNT(DISTINCT user_id) FILTER (WHERE user_id <> '') AS unique_users
		FROM images
		WHERE generated_at >= $1 AND generated_at < $2`,
		start, end)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "aggregate metrics for %s", start.Format("2006-01-02"))
	}
	m.Date = start.Format("2006-01-02")
	return &m, nil
}

package metastore

import (
	"context"
	"time"

	"github.com/verseforge/verseforge/pkg/types"
)

// InsertFlag appends a moderation queue entry for an image
func (s *Store) InsertFlag(ctx context.Context, imageID, reason string, flaggedAt time.Time) (*types.ModerationQueueEntry, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var id int64
	err := s.db.GetContext(cctx, &id, `
		INSERT INTO moderation_queue (image_id, flagged_reason, flagged_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		imageID, reason, flaggedAt)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "flag image %s", imageID)
	}

	return &types.ModerationQueueEntry{
		ID:            id,
		ImageID:       imageID,
		FlaggedReason: reason,
		FlaggedAt:     flaggedAt,
	}, nil
}

// PendingFlags returns the oldest un-reviewed queue entries
func (s *Store) PendingFlags(ctx context.Context, limit int) ([]types.ModerationQueueEntry, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var entries []types.ModerationQueueEntry
	err := s.db.SelectContext(cctx, &entries, `
		SELECT id, image_id, flagged_reason, flagged_at, reviewed_at, reviewer_id, decision
		FROM moderation_queue
		WHERE reviewed_at IS NULL
		ORDER BY flagged_at ASC
		LIMIT $1`,
		limit)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "list pending flags")
	}
	return entries, nil
}

// CloseOldestFlag closes the oldest open queue entry for an image with the
// reviewer's decision. Multiple pending entries per image are permitted;
// each call closes exactly one.
func (s *Store) CloseOldestFlag(ctx context.Context, imageID, reviewerID string, decision types.ModerationAction, reviewedAt time.Time) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(cctx, `
		UPDATE moderation_queue
		SET reviewed_at = $2, reviewer_id = $3, decision = $4
		WHERE id = (
			SELECT id FROM moderation_queue
			WHERE image_id = $1 AND reviewed_at IS NULL
			ORDER BY flagged_at ASC
			LIMIT 1
		)`,
		imageID, reviewedAt, reviewerID, string(decision))
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "close flag for image %s", imageID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.E(types.CodeNotFound, "no open flag for image %s", imageID)
	}
	return nil
}

package moderation

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/types"
)

// Decision is the outcome of the pre-storage safety gate. When Store is
// false the image is never persisted and the request fails with
// content_blocked.
type Decision struct {
	Store      bool
	Status     types.ModerationStatus
	FlagReason string
}

// suspiciousPatterns flag generated content for human review. Matching
/// is deterministic: the same prompt and verse text always produce the
// same decision.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(nude|naked|nsfw|explicit)\b`),
	regexp.MustCompile(`(?i)\b(gore|blood(shed)?|mutilat\w*)\b`),
	regexp.MustCompile(`(?i)\b(weapon|gun|knife|bomb)\b`),
	regexp.MustCompile(`(?i)\b(hate|racis\w*|terroris\w*)\b`),
}

// Gate decides whether a freshly generated image can be stored as
// approved or must enter the review queue.
type Gate struct {
	enabled bool
	logger  zerolog.Logger
}

func NewGate(enabled bool) *Gate {
	return &Gate{enabled: enabled, logger: log.WithComponent("moderation")}
}

// ShouldStore evaluates the prompt and verse text. Identical input
// always yields the identical decision. With moderation disabled
// everything is approved.
func (g *Gate) ShouldStore(prompt, verseText string) Decision {
	if !g.enabled {
		return Decision{Store: true, Status: types.ModerationApproved}
	}

	text := prompt + "\n" + verseText
	var reasons []string
	for _, re := range suspiciousPatterns {
		if m := re.FindString(text); m != "" {
			reasons = append(reasons, strings.ToLower(m))
		}
	}
	if len(reasons) > 0 {
		reason := "matched patterns: " + strings.Join(reasons, ", ")
		g.logger.Info().Strs("patterns", reasons).Msg("content rejected by safety gate")
		return Decision{Store: false, Status: types.ModerationRejected, FlagReason: reason}
	}
	return Decision{Store: true, Status: types.ModerationApproved}
}

// Enabled reports whether the gate is active
func (g *Gate) Enabled() bool { return g.enabled }

// FlagStore is the metadata surface the review service needs
type FlagStore interface {
	InsertFlag(ctx context.Context, imageID, reason string, flaggedAt time.Time) (*types.ModerationQueueEntry, error)
	PendingFlags(ctx context.Context, limit int) ([]types.ModerationQueueEntry, error)
	CloseOldestFlag(ctx context.Context, imageID, reviewerID string, decision types.ModerationAction, reviewedAt time.Time) error
	GetImage(ctx context.Context, id string) (*types.Image, error)
	UpdateModerationStatus(ctx context.Context, imageID string, status types.ModerationStatus) error
	ClearBlobKey(ctx context.Context, imageID string) error
}

// BlobDeleter removes stored image bytes
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Invalidator drops cached metadata after a review decision
type Invalidator interface {
	InvalidateImage(ctx context.Context, imageID string)
}

// Service manages the human review queue
type Service struct {
	store  FlagStore
	blobs  BlobDeleter
	cache  Invalidator
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(store FlagStore, blobs BlobDeleter, cache Invalidator) *Service {
	return &Service{
		store:  store,
		blobs:  blobs,
		cache:  cache,
		now:    time.Now,
		logger: log.WithComponent("moderation"),
	}
}

// FlagForReview enqueues an image for human review
func (s *Service) FlagForReview(ctx context.Context, imageID, reason string) error {
	if _, err := s.store.InsertFlag(ctx, imageID, reason, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("image_id", imageID).Str("reason", reason).Msg("image queued for review")
	return nil
}

// PendingReviews lists open queue entries, oldest first
func (s *Service) PendingReviews(ctx context.Context, limit int) ([]types.ModerationQueueEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.PendingFlags(ctx, limit)
}

// Moderate applies a reviewer decision to an image. Approval publishes
// the image; rejection deletes the stored bytes and strips the blob
// reference while keeping the metadata row for audit.
func (s *Service) Moderate(ctx context.Context, req *types.ModerateRequest) error {
	if req.Action != types.ActionApprove && req.Action != types.ActionReject {
		return types.E(types.CodeInvalidRequestFormat, "action must be approve or reject")
	}

	img, err := s.store.GetImage(ctx, req.ImageID)
	if err != nil {
		return err
	}

	status := types.ModerationApproved
	if req.Action == types.ActionReject {
		status = types.ModerationRejected
	}

	if err := s.store.CloseOldestFlag(ctx, req.ImageID, req.ReviewerID, req.Action, s.now().UTC()); err != nil && !types.IsNotFound(err) {
		return err
	}
	if err := s.store.UpdateModerationStatus(ctx, req.ImageID, status); err != nil {
		return err
	}

	if req.Action == types.ActionReject && img.BlobKey != "" {
		if err := s.blobs.Delete(ctx, img.BlobKey); err != nil {
			return types.Wrap(types.CodeStorageWriteFailed, err, "delete rejected image blob")
		}
		if err := s.store.ClearBlobKey(ctx, req.ImageID); err != nil {
			return err
		}
	}

	if s.cache != nil {
		s.cache.InvalidateImage(ctx, req.ImageID)
	}

	logger := log.WithImageID(req.ImageID)
	logger.Info().
		Str("action", string(req.Action)).
		Str("reviewer", req.ReviewerID).
		Msg("moderation decision applied")
	return nil
}

// Status returns an image's current moderation status
func (s *Service) Status(ctx context.Context, imageID string) (types.ModerationStatus, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		return "", err
	}
	return img.ModerationStatus, nil
}

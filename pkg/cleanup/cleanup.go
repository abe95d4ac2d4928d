package cleanup

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/blob"
	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/types"
)

const (
	backupPrefix  = "backups/"
	backupVersion = "1.0"
)

// protectedTags shield images from retention cleanup regardless of age
var protectedTags = []string{"daily-verse", "favorite"}

// MetaSource is the metadata surface the cleanup cycle needs
type MetaSource interface {
	ListImages(ctx context.Context) ([]types.Image, error)
	ImagesOlderThan(ctx context.Context, cutoff time.Time) ([]types.Image, error)
	DeleteImage(ctx context.Context, id string) error
}

// Invalidator drops cached metadata for deleted images
type Invalidator interface {
	InvalidateImage(ctx context.Context, imageID string)
}

// Options tune one cleanup cycle
type Options struct {
	RetentionDays       int
	BackupRetentionDays int
	DryRun              bool
}

// Report summarises one cleanup cycle
type Report struct {
	Candidates     int      `json:"candidates"`
	Protected      int      `json:"protected"`
	Deleted        int      `json:"deleted"`
	FailedImageIDs []string `json:"failedImageIds,omitempty"`
	BackupKey      string   `json:"backupKey,omitempty"`
	BackupsPruned  int      `json:"backupsPruned"`
	DryRun         bool     `json:"dryRun"`
}

// Service runs the retention cleanup cycle: identify, back up, delete,
// prune old backups. Nothing is deleted unless the backup succeeded.
type Service struct {
	meta   MetaSource
	blobs  blob.Store
	cache  Invalidator
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

func New(meta MetaSource, blobs blob.Store, cache Invalidator) *Service {
	return &Service{
		meta:   meta,
		blobs:  blobs,
		cache:  cache,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: log.WithComponent("cleanup"),
	}
}

func isProtected(img *types.Image) bool {
	for _, tag := range protectedTags {
		if img.HasTag(tag) {
			return true
		}
	}
	return false
}

// IdentifyCandidates returns images older than the retention cutoff,
// split into deletable and protected.
func (s *Service) IdentifyCandidates(ctx context.Context, retentionDays int) (eligible, protected []types.Image, err error) {
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	aged, err := s.meta.ImagesOlderThan(ctx, cutoff)
	if err != nil {
		return nil, nil, err
	}

	for i := range aged {
		if isProtected(&aged[i]) {
			protected = append(protected, aged[i])
		} else {
			eligible = append(eligible, aged[i])
		}
	}
	return eligible, protected, nil
}

// CreateBackup snapshots every metadata row to blob storage and returns
// the backup key.
func (s *Service) CreateBackup(ctx context.Context) (string, error) {
	records, err := s.meta.ListImages(ctx)
	if err != nil {
		return "", err
	}

	manifest := types.BackupManifest{
		BackupID:    s.newID(),
		Timestamp:   s.now().UTC(),
		Version:     backupVersion,
		RecordCount: len(records),
		Records:     records,
	}
	body, err := json.Marshal(manifest)
	if err != nil {
		return "", types.Wrap(types.CodeStorageWriteFailed, err, "encode backup manifest")
	}

	key := backupPrefix + "d1-" + manifest.BackupID + ".json"
	if err := s.blobs.Put(ctx, key, body, "application/json", nil); err != nil {
		return "", types.Wrap(types.CodeStorageWriteFailed, err, "write backup %s", key)
	}

	metrics.BackupsCreated.Inc()
	s.logger.Info().Str("key", key).Int("records", len(records)).Msg("backup written")
	return key, nil
}

// ExecuteCleanup deletes the given images, blob first then the row.
// Failures are accumulated per image and never abort the batch.
func (s *Service) ExecuteCleanup(ctx context.Context, images []types.Image, dryRun bool) (deleted int, failed []string) {
	for i := range images {
		img := &images[i]
		if dryRun {
			s.logger.Info().Str("image_id", img.ID).Msg("dry run, would delete")
			continue
		}

		if img.BlobKey != "" {
			if err := s.blobs.Delete(ctx, img.BlobKey); err != nil && !types.IsNotFound(err) {
				s.logger.Error().Err(err).Str("image_id", img.ID).Msg("blob delete failed")
				failed = append(failed, img.ID)
				continue
			}
		}
		if err := s.meta.DeleteImage(ctx, img.ID); err != nil {
			s.logger.Error().Err(err).Str("image_id", img.ID).Msg("metadata delete failed")
			failed = append(failed, img.ID)
			continue
		}
		if s.cache != nil {
			s.cache.InvalidateImage(ctx, img.ID)
		}
		deleted++
		metrics.CleanupDeletions.Inc()
	}
	return deleted, failed
}

// ManageBackupRetention prunes backups older than the retention period
func (s *Service) ManageBackupRetention(ctx context.Context, retentionDays int) (int, error) {
	infos, err := s.blobs.List(ctx, backupPrefix)
	if err != nil {
		return 0, types.Wrap(types.CodeStorageReadFailed, err, "list backups")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	var pruned int
	for _, info := range infos {
		if info.Uploaded.Before(cutoff) {
			if err := s.blobs.Delete(ctx, info.Key); err != nil {
				s.logger.Warn().Err(err).Str("key", info.Key).Msg("backup prune failed")
				continue
			}
			pruned++
		}
	}
	return pruned, nil
}

// PerformCleanupCycle runs the full cycle. The backup step gates the
// delete step: if the backup fails, nothing is removed.
func (s *Service) PerformCleanupCycle(ctx context.Context, opts Options) (*Report, error) {
	eligible, protected, err := s.IdentifyCandidates(ctx, opts.RetentionDays)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Candidates: len(eligible),
		Protected:  len(protected),
		DryRun:     opts.DryRun,
	}

	if len(eligible) == 0 {
		s.logger.Info().Int("protected", len(protected)).Msg("no images eligible for cleanup")
		pruned, err := s.ManageBackupRetention(ctx, opts.BackupRetentionDays)
		if err != nil {
			return report, err
		}
		report.BackupsPruned = pruned
		return report, nil
	}

	if !opts.DryRun {
		key, err := s.CreateBackup(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("backup failed, aborting cleanup cycle")
			return report, err
		}
		report.BackupKey = key
	}

	report.Deleted, report.FailedImageIDs = s.ExecuteCleanup(ctx, eligible, opts.DryRun)

	pruned, err := s.ManageBackupRetention(ctx, opts.BackupRetentionDays)
	if err != nil {
		return report, err
	}
	report.BackupsPruned = pruned

	s.logger.Info().
		Int("deleted", report.Deleted).
		Int("failed", len(report.FailedImageIDs)).
		Int("protected", report.Protected).
		Int("backups_pruned", report.BackupsPruned).
		Bool("dry_run", report.DryRun).
		Msg("cleanup cycle complete")
	return report, nil
}

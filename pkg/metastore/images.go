package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/verseforge/verseforge/pkg/types"
)

// imageRow mirrors the images table; tags are stored as JSON text
type imageRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	VerseReference   string    `db:"verse_reference"`
	VerseText        string    `db:"verse_text"`
	Prompt           string    `db:"prompt"`
	StylePreset      string    `db:"style_preset"`
	BlobKey          string    `db:"r2_key"`
	FileSize         int64     `db:"file_size"`
	Format           string    `db:"format"`
	Width            int       `db:"width"`
	Height           int       `db:"height"`
	Tags             string    `db:"tags"`
	ModerationStatus string    `db:"moderation_status"`
	GeneratedAt      time.Time `db:"generated_at"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r *imageRow) toImage() (*types.Image, error) {
	var tags []string
	if r.Tags != "" {
		if err := json.Unmarshal([]byte(r.Tags), &tags); err != nil {
			return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "corrupt tags for image %s", r.ID)
		}
	}
	if tags == nil {
		tags = []string{}
	}
	return &types.Image{
		ID:               r.ID,
		UserID:           r.UserID,
		VerseReference:   r.VerseReference,
		VerseText:        r.VerseText,
		Prompt:           r.Prompt,
		StylePreset:      types.StylePreset(r.StylePreset),
		BlobKey:          r.BlobKey,
		FileSize:         r.FileSize,
		Format:           types.ImageFormat(r.Format),
		Width:            r.Width,
		Height:           r.Height,
		Tags:             tags,
		ModerationStatus: types.ModerationStatus(r.ModerationStatus),
		GeneratedAt:      r.GeneratedAt,
		CreatedAt:        r.CreatedAt,
	}, nil
}

const imageColumns = `id, user_id, verse_reference, verse_text, prompt, style_preset, r2_key,
	file_size, format, width, height, tags, moderation_status, generated_at, created_at`

// InsertImage stores a new image metadata row
func (s *Store) InsertImage(ctx context.Context, img *types.Image) error {
	tags, err := json.Marshal(img.Tags)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "encode tags for image %s", img.ID)
	}

	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = s.db.ExecContext(cctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		img.ID, img.UserID, img.VerseReference, img.VerseText, img.Prompt,
		string(img.StylePreset), img.BlobKey, img.FileSize, string(img.Format),
		img.Width, img.Height, string(tags), string(img.ModerationStatus),
		img.GeneratedAt, img.CreatedAt,
	)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "insert image %s", img.ID)
	}
	return nil
}

// GetImage loads one image metadata row by ID
func (s *Store) GetImage(ctx context.Context, id string) (*types.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row imageRow
	err := s.db.GetContext(cctx, &row, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.E(types.CodeNotFound, "image %s not found", id)
		}
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "get image %s", id)
	}
	return row.toImage()
}

// DeleteImage removes an image metadata row
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(cctx, `DELETE FROM images WHERE id = $1`, id)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "delete image %s", id)
	}
	return nil
}

// ListImages returns all image rows, oldest first. Used by the backup step
// of the cleanup cycle.
func (s *Store) ListImages(ctx context.Context) ([]types.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []imageRow
	err := s.db.SelectContext(cctx, &rows, `SELECT `+imageColumns+` FROM images ORDER BY generated_at ASC`)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "list images")
	}
	return rowsToImages(rows)
}

// ImagesOlderThan returns rows generated before the cutoff, oldest first
func (s *Store) ImagesOlderThan(ctx context.Context, cutoff time.Time) ([]types.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var rows []imageRow
	err := s.db.SelectContext(cctx, &rows, `
		SELECT `+imageColumns+` FROM images WHERE generated_at < $1 ORDER BY generated_at ASC`, cutoff)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "list aged images")
	}
	return rowsToImages(rows)
}

// UpdateModerationStatus sets an image's moderation status
func (s *Store) UpdateModerationStatus(ctx context.Context, id string, status types.ModerationStatus) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(cctx, `UPDATE images SET moderation_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "update moderation status for %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.E(types.CodeNotFound, "image %s not found", id)
	}
	return nil
}

// ClearBlobKey empties r2_key after the blob has been removed, keeping the
// invariant that rejected images carry no blob key.
func (s *Store) ClearBlobKey(ctx context.Context, id string) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(cctx, `UPDATE images SET r2_key = '' WHERE id = $1`, id)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "clear blob key for %s", id)
	}
	return nil
}

func rowsToImages(rows []imageRow) ([]types.Image, error) {
	images := make([]types.Image, 0, len(rows))
	for i := range rows {
		img, err := rows[i].toImage()
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	return images, nil
}

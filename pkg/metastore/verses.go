package metastore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/verseforge/verseforge/pkg/types"
)

type verseRow struct {
	Reference   string     `db:"reference"`
	Text        string     `db:"text"`
	Book        string     `db:"book"`
	Chapter     int        `db:"chapter"`
	Verse       int        `db:"verse"`
	Translation string     `db:"translation"`
	Theme       string     `db:"theme"`
	LastUsed    *time.Time `db:"last_used"`
	UseCount    int        `db:"use_count"`
}

func (r *verseRow) toVerse() *types.Verse {
	var themes []string
	if r.Theme != "" {
		themes = strings.Split(r.Theme, ",")
	}
	return &types.Verse{
		Reference:   r.Reference,
		Text:        r.Text,
		Book:        r.Book,
		Chapter:     r.Chapter,
		Verse:       r.Verse,
		Translation: r.Translation,
		Themes:      themes,
		LastUsed:    r.LastUsed,
		UseCount:    r.UseCount,
	}
}

const verseColumns = `reference, text, book, chapter, verse, translation, theme, last_used, use_count`

// GetVerse looks up a verse by book (case-insensitive), chapter and verse
func (s *Store) GetVerse(ctx context.Context, book string, chapter, verseNum int) (*types.Verse, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row verseRow
	err := s.db.GetContext(cctx, &row, `
		SELECT `+verseColumns+` FROM verses
		WHERE LOWER(book) = LOWER($1) AND chapter = $2 AND verse = $3`,
		book, chapter, verseNum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.E(types.CodeNotFound, "verse %s %d:%d not found", book, chapter, verseNum)
		}
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "get verse %s %d:%d", book, chapter, verseNum)
	}
	return row.toVerse(), nil
}

// NextDailyVerse picks the verse for the daily rotation: never-used verses
// first, then least-used.
func (s *Store) NextDailyVerse(ctx context.Context) (*types.Verse, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row verseRow
	err := s.db.GetContext(cctx, &row, `
		SELECT `+verseColumns+` FROM verses
		ORDER BY last_used ASC NULLS FIRST, use_count ASC
		LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.E(types.CodeNotFound, "no verses available")
		}
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "pick daily verse")
	}
	return row.toVerse(), nil
}

// TouchVerse advances the rotation counters after a daily pick
func (s *Store) TouchVerse(ctx context.Context, reference string, usedAt time.Time) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(cctx, `
		UPDATE verses SET last_used = $2, use_count = use_count + 1 WHERE reference = $1`,
		reference, usedAt)
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "touch verse %s", reference)
	}
	return nil
}

// SearchVerses performs a case-insensitive substring match against
// reference, text and book, capped at limit rows.
func (s *Store) SearchVerses(ctx context.Context, query string, limit int) ([]types.Verse, error) {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pattern := "%" + query + "%"
	var rows []verseRow
	err := s.db.SelectContext(cctx, &rows, `
		SELECT `+verseColumns+` FROM verses
		WHERE reference ILIKE $1 OR text ILIKE $1 OR book ILIKE $1
		ORDER BY reference ASC
		LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, types.Wrap(types.CodeDatabaseQueryFailed, err, "search verses %q", query)
	}

	verses := make([]types.Verse, 0, len(rows))
	for i := range rows {
		verses = append(verses, *rows[i].toVerse())
	}
	return verses, nil
}

// UpsertVerse seeds a verse row, leaving existing rows (and their rotation
// counters) untouched. Used by the migrate command to load the embedded set.
func (s *Store) UpsertVerse(ctx context.Context, v *types.Verse) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(cctx, `
		INSERT INTO verses (reference, text, book, chapter, verse, translation, theme)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (reference) DO NOTHING`,
		v.Reference, v.Text, v.Book, v.Chapter, v.Verse, v.Translation, strings.Join(v.Themes, ","))
	if err != nil {
		return types.Wrap(types.CodeDatabaseQueryFailed, err, "upsert verse %s", v.Reference)
	}
	return nil
}

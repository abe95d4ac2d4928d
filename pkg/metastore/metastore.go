package metastore

import (
	"context"
	"embed"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Write deadline applied inside every mutating call. Reads share it; the
// API layer owns the request-scoped context this nests under.
const queryTimeout = 5 * time.Second

// Store provides parameterised SQL over the fixed VerseForge schema:
// images, verses, moderation_queue and usage_metrics.
type Store struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// Open connects to PostgreSQL and configures the pool
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{
		db:     db,
		logger: log.WithComponent("metastore"),
	}, nil
}

// NewWithDB wraps an existing database handle; used by tests with sqlmock
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		logger: log.WithComponent("metastore"),
	}
}

// Migrate applies the embedded goose migrations
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db.DB, "migrations")
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies connectivity at bootstrap
func (s *Store) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.db.PingContext(cctx)
}

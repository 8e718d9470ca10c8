package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ImpactWatcher/internal/domain"
	"ImpactWatcher/internal/ports"
)

const (
	cursorTable      = "cursor_state"
	DefaultCursorKey = "last_processed_id"
)

const createCursorTable = `CREATE TABLE IF NOT EXISTS cursor_state (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// SQLCursorStore persists the cursor as a keyed row in Postgres or SQLite.
type SQLCursorStore struct {
	db      *sql.DB
	key     string
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.CursorStore = (*SQLCursorStore)(nil)

// OpenSQLCursorStore opens driver ("postgres" or "sqlite") and ensures the table exists.
func OpenSQLCursorStore(ctx context.Context, driver, dsn, key string) (*SQLCursorStore, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	store, err := NewSQLCursorStore(db, driver, key)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLCursorStore wires an existing sql.DB; placeholders follow the driver dialect.
func NewSQLCursorStore(db *sql.DB, driver, key string) (*SQLCursorStore, error) {
	if db == nil {
		return nil, errors.New("cursor store: db is nil")
	}
	if key == "" {
		key = DefaultCursorKey
	}

	var format sq.PlaceholderFormat
	switch driver {
	case "postgres":
		format = sq.Dollar
	case "sqlite":
		format = sq.Question
	default:
		return nil, fmt.Errorf("cursor store: unsupported driver %q", driver)
	}

	return &SQLCursorStore{
		db:      db,
		key:     key,
		builder: sq.StatementBuilder.PlaceholderFormat(format),
		now:     time.Now,
	}, nil
}

// Migrate creates the cursor table when absent.
func (s *SQLCursorStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createCursorTable); err != nil {
		return fmt.Errorf("create cursor table: %w", err)
	}
	return nil
}

// Load returns the stored cursor or the empty cursor when no row exists.
func (s *SQLCursorStore) Load(ctx context.Context) (domain.Cursor, error) {
	query, args, err := s.builder.
		Select("value").
		From(cursorTable).
		Where(sq.Eq{"name": s.key}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build cursor query: %w", err)
	}

	var value string
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("query cursor: %w", err)
	}
	return domain.Cursor(value), nil
}

// Save upserts the cursor row. Empty cursors are ignored.
func (s *SQLCursorStore) Save(ctx context.Context, cursor domain.Cursor) error {
	if cursor.IsZero() {
		return nil
	}

	query, args, err := s.builder.
		Insert(cursorTable).
		Columns("name", "value", "updated_at").
		Values(s.key, string(cursor), s.now().UTC()).
		Suffix("ON CONFLICT (name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build cursor upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLCursorStore) Close() error {
	return s.db.Close()
}

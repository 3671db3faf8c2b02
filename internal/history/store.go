package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vocalwrite/internal/domain"
)

const defaultListLimit = 50

// Store keeps completed transcripts in a local SQLite database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if path == "" {
		return nil, errors.New("history path is empty")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id TEXT PRIMARY KEY,
    raw TEXT NOT NULL,
    polished TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    copied INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a record by id.
func (s *Store) Save(ctx context.Context, record domain.TranscriptRecord) error {
	if record.ID == "" {
		return errors.New("history record id is empty")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(id, raw, polished, duration_ms, copied, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET raw=excluded.raw, polished=excluded.polished,
		   duration_ms=excluded.duration_ms, copied=excluded.copied`,
		record.ID, record.Raw, record.Polished, record.Duration.Milliseconds(), boolToInt(record.Copied), createdAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	s.log.Debug("transcript saved", slog.String("id", record.ID))
	return nil
}

// List returns the newest records first.
func (s *Store) List(ctx context.Context, limit int) ([]domain.TranscriptRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, raw, polished, duration_ms, copied, created_at
		 FROM transcripts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscriptRecord
	for rows.Next() {
		var (
			record     domain.TranscriptRecord
			durationMS int64
			copied     int
			createdAt  int64
		)
		if err := rows.Scan(&record.ID, &record.Raw, &record.Polished, &durationMS, &copied, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		record.Duration = time.Duration(durationMS) * time.Millisecond
		record.Copied = copied != 0
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, record)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

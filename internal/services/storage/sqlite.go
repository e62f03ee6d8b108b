package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteLedger stores usage in a local SQLite file.
type SQLiteLedger struct {
	db     *sql.DB
	now    func() time.Time
	logger *logrus.Logger
}

func openSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteLedger opens or creates the ledger database at dbPath.
func NewSQLiteLedger(dbPath string, logger *logrus.Logger) (*SQLiteLedger, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteLedger{db: db, now: time.Now, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteLedger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS response_usage (
		pool        TEXT NOT NULL,
		response_id TEXT NOT NULL,
		text        TEXT NOT NULL DEFAULT '',
		usage_count INTEGER NOT NULL DEFAULT 0,
		last_used   TEXT,
		PRIMARY KEY (pool, response_id)
	);
	CREATE INDEX IF NOT EXISTS idx_usage_pool_count ON response_usage(pool, usage_count DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteLedger) Name() string { return "sqlite" }

func (s *SQLiteLedger) Load(ctx context.Context, pool string) (map[string]models.UsageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT response_id, text, usage_count, last_used FROM response_usage WHERE pool = ?`, pool)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]models.UsageRecord)
	for rows.Next() {
		var (
			rec      models.UsageRecord
			lastUsed sql.NullString
		)
		if err := rows.Scan(&rec.ResponseID, &rec.Text, &rec.UsageCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		if lastUsed.Valid {
			if t, err := time.Parse(time.RFC3339Nano, lastUsed.String); err == nil {
				rec.LastUsed = &t
			}
		}
		usage[rec.ResponseID] = rec
	}
	return usage, rows.Err()
}

func (s *SQLiteLedger) Save(ctx context.Context, pool string, usage map[string]models.UsageRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO response_usage (pool, response_id, text, usage_count, last_used)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pool, response_id) DO UPDATE SET
			text = excluded.text,
			usage_count = MAX(response_usage.usage_count, excluded.usage_count),
			last_used = COALESCE(excluded.last_used, response_usage.last_used)`)
	if err != nil {
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	for id, rec := range usage {
		var lastUsed any
		if rec.LastUsed != nil {
			lastUsed = rec.LastUsed.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, pool, id, rec.Text, rec.UsageCount, lastUsed); err != nil {
			return fmt.Errorf("save %s/%s: %w", pool, id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteLedger) Increment(ctx context.Context, pool, responseID, text string) (int, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)

	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO response_usage (pool, response_id, text, usage_count, last_used)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(pool, response_id) DO UPDATE SET
			text = excluded.text,
			usage_count = response_usage.usage_count + 1,
			last_used = excluded.last_used
		RETURNING usage_count`, pool, responseID, text, now).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment %s/%s: %w", pool, responseID, err)
	}
	return count, nil
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

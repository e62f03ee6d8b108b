package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dreambot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// SQLiteCommunity stores warnings and wishes in SQLite.
type SQLiteCommunity struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteCommunity opens or creates the community tables in the database at dbPath.
func NewSQLiteCommunity(dbPath string, logger *logrus.Logger) (*SQLiteCommunity, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteCommunity{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteCommunity) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS warnings (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id     TEXT NOT NULL,
		user_id      TEXT NOT NULL,
		moderator_id TEXT NOT NULL,
		reason       TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_warnings_member ON warnings(guild_id, user_id);

	CREATE TABLE IF NOT EXISTS wishes (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id    TEXT NOT NULL,
		author_id   TEXT NOT NULL,
		kind        TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		granted     INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_wishes_guild ON wishes(guild_id, kind);

	CREATE TABLE IF NOT EXISTS wish_votes (
		wish_id  INTEGER NOT NULL REFERENCES wishes(id) ON DELETE CASCADE,
		voter_id TEXT NOT NULL,
		PRIMARY KEY (wish_id, voter_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteCommunity) Name() string { return "sqlite" }

func (s *SQLiteCommunity) AddWarning(ctx context.Context, w models.Warning) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO warnings (guild_id, user_id, moderator_id, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.GuildID, w.UserID, w.ModeratorID, w.Reason, w.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return 0, fmt.Errorf("insert warning: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM warnings WHERE guild_id = ? AND user_id = ?`, w.GuildID, w.UserID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count warnings: %w", err)
	}
	return count, tx.Commit()
}

func (s *SQLiteCommunity) Warnings(ctx context.Context, guildID, userID string) ([]models.Warning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT moderator_id, reason, created_at FROM warnings
		WHERE guild_id = ? AND user_id = ? ORDER BY id`, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("query warnings: %w", err)
	}
	defer rows.Close()

	var out []models.Warning
	for rows.Next() {
		w := models.Warning{GuildID: guildID, UserID: userID}
		var created string
		if err := rows.Scan(&w.ModeratorID, &w.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan warning: %w", err)
		}
		w.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *SQLiteCommunity) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM warnings WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("clear warnings: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteCommunity) AddWish(ctx context.Context, w models.Wish) (models.Wish, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wishes (guild_id, author_id, kind, title, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.GuildID, w.AuthorID, string(w.Kind), w.Title, w.Description, w.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return models.Wish{}, fmt.Errorf("insert wish: %w", err)
	}
	if w.ID, err = res.LastInsertId(); err != nil {
		return models.Wish{}, fmt.Errorf("wish id: %w", err)
	}
	w.Votes = 0
	w.Granted = false
	return w, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const wishColumns = `w.id, w.guild_id, w.author_id, w.kind, w.title, w.description, w.granted, w.created_at,
	(SELECT COUNT(*) FROM wish_votes v WHERE v.wish_id = w.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWish(row rowScanner) (models.Wish, error) {
	var (
		w       models.Wish
		kind    string
		granted int
		created string
	)
	if err := row.Scan(&w.ID, &w.GuildID, &w.AuthorID, &kind, &w.Title, &w.Description, &granted, &created, &w.Votes); err != nil {
		return models.Wish{}, err
	}
	w.Kind = models.WishKind(kind)
	w.Granted = granted != 0
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return w, nil
}

func loadWish(ctx context.Context, q queryRower, guildID string, id int64) (models.Wish, error) {
	w, err := scanWish(q.QueryRowContext(ctx,
		`SELECT `+wishColumns+` FROM wishes w WHERE w.id = ? AND w.guild_id = ?`, id, guildID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wish{}, ErrWishNotFound
	}
	if err != nil {
		return models.Wish{}, fmt.Errorf("load wish %d: %w", id, err)
	}
	return w, nil
}

func (s *SQLiteCommunity) Wish(ctx context.Context, guildID string, id int64) (models.Wish, error) {
	return loadWish(ctx, s.db, guildID, id)
}

func (s *SQLiteCommunity) Vote(ctx context.Context, guildID string, id int64, voterID string, up bool) (models.Wish, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Wish{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := loadWish(ctx, tx, guildID, id); err != nil {
		return models.Wish{}, false, err
	}

	query := `INSERT OR IGNORE INTO wish_votes (wish_id, voter_id) VALUES (?, ?)`
	if !up {
		query = `DELETE FROM wish_votes WHERE wish_id = ? AND voter_id = ?`
	}
	res, err := tx.ExecContext(ctx, query, id, voterID)
	if err != nil {
		return models.Wish{}, false, fmt.Errorf("vote on wish %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Wish{}, false, err
	}

	w, err := loadWish(ctx, tx, guildID, id)
	if err != nil {
		return models.Wish{}, false, err
	}
	return w, n > 0, tx.Commit()
}

func (s *SQLiteCommunity) GrantWish(ctx context.Context, guildID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE wishes SET granted = 1 WHERE id = ? AND guild_id = ?`, id, guildID)
	if err != nil {
		return fmt.Errorf("grant wish %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWishNotFound
	}
	return nil
}

func (s *SQLiteCommunity) RemoveWish(ctx context.Context, guildID string, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM wishes WHERE id = ? AND guild_id = ?`, id, guildID)
	if err != nil {
		return fmt.Errorf("remove wish %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWishNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM wish_votes WHERE wish_id = ?`, id); err != nil {
		return fmt.Errorf("remove votes of wish %d: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteCommunity) TopWishes(ctx context.Context, guildID string, kind models.WishKind, n int) ([]models.Wish, error) {
	query := `SELECT ` + wishColumns + ` FROM wishes w WHERE w.guild_id = ?`
	args := []any{guildID}
	if kind != "" {
		query += ` AND w.kind = ?`
		args = append(args, string(kind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wishes: %w", err)
	}
	defer rows.Close()

	var out []models.Wish
	for rows.Next() {
		w, err := scanWish(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wish: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankWishes(out, n), nil
}

func (s *SQLiteCommunity) Close() error {
	return s.db.Close()
}

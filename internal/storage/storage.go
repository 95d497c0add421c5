// Package storage persists notification history in SQLite and watchlists
// and alarms in plain text files.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/marketwatch/internal/notify"
)

// Storage wraps a SQLite database holding delivered notifications.
type Storage struct {
	db               *sql.DB
	maxNotifications int
}

// Record is a stored notification.
type Record struct {
	ID string
	notify.Notification
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/marketwatch/data.db.
func New(maxNotifications int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "marketwatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxNotifications: maxNotifications}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			code        TEXT NOT NULL,
			title       TEXT NOT NULL,
			body        TEXT NOT NULL,
			color       INTEGER NOT NULL,
			footer      TEXT,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_code ON notifications(code)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddNotification stores n and trims history to the newest maxNotifications rows.
func (s *Storage) AddNotification(ctx context.Context, n notify.Notification) (string, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, code, title, body, color, footer, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		id, string(n.Kind), n.Code, n.Title, strings.Join(n.Lines, "\n"),
		int(n.Color), n.Footer, n.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert notification: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `
		DELETE FROM notifications WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY created_at DESC LIMIT ?
		)`, s.maxNotifications); err != nil {
		return "", fmt.Errorf("failed to rotate notifications: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit notification: %w", err)
	}
	return id, nil
}

// Notify records n, making Storage usable as a notify.Sink.
func (s *Storage) Notify(ctx context.Context, n notify.Notification) error {
	_, err := s.AddNotification(ctx, n)
	return err
}

// Recent returns up to k notifications, newest first. An empty code matches all.
func (s *Storage) Recent(ctx context.Context, code string, k int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, code, title, body, color, footer, created_at
		FROM notifications
		WHERE ? = '' OR code = ?
		ORDER BY created_at DESC LIMIT ?`, code, code, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes notifications created before cutoff and returns the number removed.
func (s *Storage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune notifications: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(scan func(...any) error) (Record, error) {
	var (
		r         Record
		kind      string
		body      string
		color     int
		footer    sql.NullString
		createdAt int64
	)
	if err := scan(&r.ID, &kind, &r.Code, &r.Title, &body, &color, &footer, &createdAt); err != nil {
		return Record{}, fmt.Errorf("failed to scan notification: %w", err)
	}
	r.Kind = notify.Kind(kind)
	if body != "" {
		r.Lines = strings.Split(body, "\n")
	}
	r.Color = notify.Color(color)
	r.Footer = footer.String
	r.CreatedAt = time.Unix(0, createdAt)
	return r, nil
}

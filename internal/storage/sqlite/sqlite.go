// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/whobought/internal/models"
	"github.com/mmynk/whobought/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	name string
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db, name: models.SessionRecordName}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts the session record.
func (s *SQLiteStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		session = &models.Session{}
	}
	user, err := marshalNullable(session.User)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	group, err := marshalNullable(session.ActiveGroup)
	if err != nil {
		return fmt.Errorf("failed to encode active group: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO app_state (name, user, active_group, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET user = excluded.user, active_group = excluded.active_group, updated_at = excluded.updated_at`,
		s.name, user, group, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load reads the session record.
func (s *SQLiteStore) Load(ctx context.Context) (*models.Session, error) {
	var user, group sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT user, active_group FROM app_state WHERE name = ?",
		s.name,
	).Scan(&user, &group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session := &models.Session{}
	if user.Valid {
		session.User = &models.User{}
		if err := json.Unmarshal([]byte(user.String), session.User); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
	}
	if group.Valid {
		session.ActiveGroup = &models.Group{}
		if err := json.Unmarshal([]byte(group.String), session.ActiveGroup); err != nil {
			return nil, fmt.Errorf("failed to decode active group: %w", err)
		}
	}
	return session, nil
}

// Clear deletes the session record.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM app_state WHERE name = ?", s.name); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// marshalNullable encodes v as JSON, mapping a nil pointer to SQL NULL.
func marshalNullable[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

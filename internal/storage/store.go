// Package storage persists the client session between runs.
package storage

import (
	"context"

	"github.com/mmynk/whobought/internal/models"
)

// Store defines the interface for session storage operations.
// This abstraction allows swapping storage backends (SQLite, Redis)
// without changing the store layer.
type Store interface {
	// Save replaces the persisted session record.
	Save(ctx context.Context, session *models.Session) error

	// Load returns the persisted session.
	// Returns nil and no error when nothing has been saved.
	Load(ctx context.Context) (*models.Session, error)

	// Clear removes the persisted session record.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

package repository

import (
	"context"
	"time"

	"digraph/internal/domain"
)

// DocumentInfo describes one stored snapshot
type DocumentInfo struct {
	Key     string    `json:"key"`
	Nodes   int       `json:"nodes"`
	Edges   int       `json:"edges"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotStore defines the interface for snapshot persistence
type SnapshotStore interface {
	// SaveSnapshot replaces the stored snapshot for key
	SaveSnapshot(ctx context.Context, key string, snapshot *domain.Snapshot) error
	// LoadSnapshot returns nil and no error when nothing is stored for key
	LoadSnapshot(ctx context.Context, key string) (*domain.Snapshot, error)
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
	DeleteSnapshot(ctx context.Context, key string) error

	// Close releases resources
	Close() error
}

// Package repository is the feature store: read access to the game catalog
// and user collections, backed by gorm.
package repository

import (
	"context"

	"github.com/okian/meeple/internal/domain/model"
)

// Store is the read-only feature store accessor. Persistence failures are
// reported as model.ErrDataUnavailable.
type Store interface {
	// GetGame returns model.ErrNotFound for an unknown id.
	GetGame(ctx context.Context, id int64) (model.Game, error)
	// GetGames returns the known games among ids, keyed by id.
	GetGames(ctx context.Context, ids []int64) (map[int64]model.Game, error)
	// GetUserProfile returns the user's collection; an unknown user has an
	// empty profile.
	GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error)
	CountGames(ctx context.Context) (int, error)
	CatalogStats(ctx context.Context) (model.CatalogStats, error)
	// ListGameIDs returns every catalog id in ascending order.
	ListGameIDs(ctx context.Context) ([]int64, error)
	// Snapshot returns the training corpus for a trained tier.
	Snapshot(ctx context.Context, scope model.Tier) (model.Snapshot, error)
}

// Writer loads catalog and collection data. It is used by ingestion and the
// seeder, never by scoring.
type Writer interface {
	UpsertGames(ctx context.Context, games []model.Game) error
	// ReplaceCollection replaces everything stored for userID.
	ReplaceCollection(ctx context.Context, userID string, games []model.OwnedGame) error
}

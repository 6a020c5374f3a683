package services

import (
	"context"
	"errors"

	"stockwatch_backend/models"
)

// Store errors
var (
	ErrEntryNotFound = errors.New("watchlist entry not found")
	ErrDuplicateEntry = errors.New("symbol already in watchlist")
)

// WatchlistStore is the storage port for watchlist entries. The refresh engine
// only reads (ListEntries, DistinctUserIDs); mutation handlers own the writes.
type WatchlistStore interface {
	// Create inserts a new entry and fills in its ID and timestamps.
	// Returns ErrDuplicateEntry when the user already tracks the symbol.
	Create(ctx context.Context, entry *models.WatchlistEntry) error
	// Update replaces symbol, buy price and note of an entry owned by
	// entry.UserID. Returns ErrEntryNotFound for absent or foreign entries.
	Update(ctx context.Context, entry *models.WatchlistEntry) error
	// Delete removes an entry owned by userID. Entries are removed outright,
	// never soft-deleted. Returns ErrEntryNotFound for absent or foreign ids.
	Delete(ctx context.Context, userID, entryID uint) error
	// GetByID returns an entry owned by userID.
	GetByID(ctx context.Context, userID, entryID uint) (*models.WatchlistEntry, error)
	// ListEntries returns all entries of one user in insertion order.
	ListEntries(ctx context.Context, userID uint) ([]models.WatchlistEntry, error)
	// DistinctUserIDs returns every user id that owns at least one entry,
	// without duplicates.
	DistinctUserIDs(ctx context.Context) ([]uint, error)
}

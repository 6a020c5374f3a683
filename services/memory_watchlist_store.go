package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockwatch_backend/models"
)

// MemoryWatchlistStore keeps entries in process memory. Used by tests and as a
// dev fallback when no database is configured.
type MemoryWatchlistStore struct {
	mu      sync.RWMutex
	entries map[uint]map[uint]models.WatchlistEntry // userID -> entryID -> entry
	nextID  uint
}

// NewMemoryWatchlistStore creates an empty in-memory watchlist store
func NewMemoryWatchlistStore() *MemoryWatchlistStore {
	return &MemoryWatchlistStore{
		entries: make(map[uint]map[uint]models.WatchlistEntry),
	}
}

func (s *MemoryWatchlistStore) Create(ctx context.Context, entry *models.WatchlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries[entry.UserID] {
		if existing.Symbol == entry.Symbol {
			return ErrDuplicateEntry
		}
	}

	s.nextID++
	entry.ID = s.nextID
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if _, ok := s.entries[entry.UserID]; !ok {
		s.entries[entry.UserID] = make(map[uint]models.WatchlistEntry)
	}
	s.entries[entry.UserID][entry.ID] = *entry
	return nil
}

func (s *MemoryWatchlistStore) Update(ctx context.Context, entry *models.WatchlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.entries[entry.UserID]
	if !ok {
		return ErrEntryNotFound
	}
	existing, ok := pool[entry.ID]
	if !ok {
		return ErrEntryNotFound
	}

	existing.Symbol = entry.Symbol
	existing.BuyPrice = entry.BuyPrice
	existing.Note = entry.Note
	existing.UpdatedAt = time.Now()
	pool[entry.ID] = existing
	*entry = existing
	return nil
}

func (s *MemoryWatchlistStore) Delete(ctx context.Context, userID, entryID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.entries[userID]
	if !ok {
		return ErrEntryNotFound
	}
	if _, ok := pool[entryID]; !ok {
		return ErrEntryNotFound
	}
	delete(pool, entryID)
	if len(pool) == 0 {
		delete(s.entries, userID)
	}
	return nil
}

func (s *MemoryWatchlistStore) GetByID(ctx context.Context, userID, entryID uint) (*models.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.entries[userID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	entry, ok := pool[entryID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &entry, nil
}

func (s *MemoryWatchlistStore) ListEntries(ctx context.Context, userID uint) ([]models.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool := s.entries[userID]
	out := make([]models.WatchlistEntry, 0, len(pool))
	for _, entry := range pool {
		out = append(out, entry)
	}
	// IDs are assigned from a counter, so id order is insertion order
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryWatchlistStore) DistinctUserIDs(ctx context.Context) ([]uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uint, 0, len(s.entries))
	for userID := range s.entries {
		ids = append(ids, userID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"stockwatch_backend/models"
)

// GormWatchlistStore stores watchlist entries in the relational database
type GormWatchlistStore struct {
	db *gorm.DB
}

// NewGormWatchlistStore creates a gorm-backed watchlist store
func NewGormWatchlistStore(db *gorm.DB) *GormWatchlistStore {
	return &GormWatchlistStore{db: db}
}

func (s *GormWatchlistStore) Create(ctx context.Context, entry *models.WatchlistEntry) error {
	var existing models.WatchlistEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ?", entry.UserID, entry.Symbol).
		First(&existing).Error
	if err == nil {
		return ErrDuplicateEntry
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormWatchlistStore) Update(ctx context.Context, entry *models.WatchlistEntry) error {
	var existing models.WatchlistEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entry.ID, entry.UserID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntryNotFound
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"symbol":    entry.Symbol,
		"buy_price": entry.BuyPrice,
		"note":      entry.Note,
	}
	if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return err
	}

	*entry = existing
	return nil
}

func (s *GormWatchlistStore) Delete(ctx context.Context, userID, entryID uint) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		Delete(&models.WatchlistEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *GormWatchlistStore) GetByID(ctx context.Context, userID, entryID uint) (*models.WatchlistEntry, error) {
	var entry models.WatchlistEntry
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", entryID, userID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GormWatchlistStore) ListEntries(ctx context.Context, userID uint) ([]models.WatchlistEntry, error) {
	var entries []models.WatchlistEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *GormWatchlistStore) DistinctUserIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Model(&models.WatchlistEntry{}).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

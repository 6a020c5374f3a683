package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WatchlistEntry represents one tracked stock in a user's watchlist.
// Each entry is owned by exactly one user and is removed outright on delete.
type WatchlistEntry struct {
	ID        uint            `gorm:"primaryKey" json:"id" bson:"id"`
	UserID    uint            `gorm:"index;not null" json:"userId" bson:"user_id"`
	Symbol    string          `gorm:"index;not null" json:"symbol" bson:"symbol"`
	BuyPrice  decimal.Decimal `gorm:"type:decimal(15,2)" json:"buyPrice" bson:"buy_price"`
	Note      string          `json:"note,omitempty" bson:"note,omitempty"`
	CreatedAt time.Time       `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" bson:"updated_at"`
}

// NormalizeSymbol uppercases and trims a stock symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// MigrateWatchlistModels runs database migrations for watchlist models
func MigrateWatchlistModels(db *gorm.DB) error {
	return db.AutoMigrate(&WatchlistEntry{})
}

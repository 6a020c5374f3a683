package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultHistorySize is roughly one year of trading days
const DefaultHistorySize = 270

// DailyPrice is one daily candle for a symbol
type DailyPrice struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// HistoryService caches daily price history in a local SQLite database so the
// history endpoints do not hammer the upstream provider. Live quotes for the
// refresh engine never pass through here.
type HistoryService struct {
	db     *sql.DB
	source *PriceSourceService
	mu     sync.RWMutex
}

// NewHistoryService opens (and migrates) the local history database
func NewHistoryService(dbPath string, source *PriceSourceService) (*HistoryService, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS price_history (
		symbol TEXT NOT NULL,
		date   TEXT NOT NULL,
		open   REAL,
		high   REAL,
		low    REAL,
		close  REAL,
		volume INTEGER,
		PRIMARY KEY (symbol, date)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	log.Println("History service initialized")
	return &HistoryService{db: db, source: source}, nil
}

// Close closes the underlying database
func (s *HistoryService) Close() error {
	return s.db.Close()
}

// SaveHistory upserts daily candles for a symbol
func (s *HistoryService) SaveHistory(symbol string, prices []DailyPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO price_history (symbol, date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.Exec(symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save history for %s: %w", symbol, err)
		}
	}

	return tx.Commit()
}

// LoadHistory returns cached daily candles for a symbol, newest first
func (s *HistoryService) LoadHistory(symbol string, limit int) ([]DailyPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultHistorySize
	}

	rows, err := s.db.Query(`
		SELECT symbol, date, open, high, low, close, volume
		FROM price_history
		WHERE symbol = ?
		ORDER BY date DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}

// GetHistory returns daily candles for a symbol, fetching from upstream and
// caching locally when the cache holds fewer rows than requested. A symbol
// with genuinely less history than requested (young listing) re-consults
// upstream; the cache alone cannot tell short data from a partial cache.
func (s *HistoryService) GetHistory(ctx context.Context, symbol string, limit int) ([]DailyPrice, error) {
	if limit <= 0 {
		limit = DefaultHistorySize
	}

	prices, err := s.LoadHistory(symbol, limit)
	if err != nil {
		return nil, err
	}
	if len(prices) >= limit {
		return prices, nil
	}

	fetched, err := s.source.FetchDailyHistory(ctx, symbol, DefaultHistorySize)
	if err != nil {
		// Serve the partial cache rather than failing outright
		if len(prices) > 0 {
			log.Printf("History refresh for %s failed, serving %d cached rows: %v", symbol, len(prices), err)
			return prices, nil
		}
		return nil, err
	}
	if err := s.SaveHistory(symbol, fetched); err != nil {
		log.Printf("Failed to cache history for %s: %v", symbol, err)
	}
	if len(fetched) > limit {
		fetched = fetched[:limit]
	}
	return fetched, nil
}

// YesterdayClose returns the prior session's closing price for a symbol.
// Returns ErrQuoteNotFound when no history is available.
func (s *HistoryService) YesterdayClose(ctx context.Context, symbol string) (float64, error) {
	prices, err := s.GetHistory(ctx, symbol, 2)
	if err != nil {
		return 0, err
	}
	if len(prices) >= 2 {
		return prices[1].Close, nil
	}
	if len(prices) == 1 {
		return prices[0].Close, nil
	}
	return 0, ErrQuoteNotFound
}

// SyncSymbols refreshes cached history for the given symbols. Run daily by the
// scheduler after market close; individual symbol failures are logged and
// skipped.
func (s *HistoryService) SyncSymbols(ctx context.Context, symbols []string) {
	success, failed := 0, 0
	for _, symbol := range symbols {
		prices, err := s.source.FetchDailyHistory(ctx, symbol, DefaultHistorySize)
		if err != nil {
			if !errors.Is(err, ErrQuoteNotFound) {
				log.Printf("Failed to sync history for %s: %v", symbol, err)
			}
			failed++
			continue
		}
		if err := s.SaveHistory(symbol, prices); err != nil {
			log.Printf("Failed to store history for %s: %v", symbol, err)
			failed++
			continue
		}
		success++
	}
	log.Printf("History sync completed: success=%d, failed=%d", success, failed)
}

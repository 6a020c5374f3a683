package services

import (
	"time"

	"github.com/shopspring/decimal"

	"stockwatch_backend/models"
)

// EnrichedWatchlistItem is the display-ready view of a watchlist entry combined
// with its latest quote. Recomputed on every refresh cycle, never stored.
type EnrichedWatchlistItem struct {
	ID                    uint      `json:"id"`
	UserID                uint      `json:"userId"`
	Symbol                string    `json:"symbol"`
	Note                  string    `json:"note,omitempty"`
	BuyPrice              float64   `json:"buyPrice"`
	CurrentPrice          float64   `json:"currentPrice"`
	YesterdayPrice        float64   `json:"yesterdayPrice"`
	BuyPriceYesterdayDiff string    `json:"buyPriceYesterdayDiff"`
	BuyPriceDiff          string    `json:"buyPriceDiff"`
	TradingDate           *string   `json:"tradingDate"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

var oneHundred = decimal.NewFromInt(100)

// Enrich combines a watchlist entry with its latest quote. A nil quote (fetch
// failed or no data) yields zeroed prices, "0%" percent fields and a null
// trading date; the recorded buy price is still reported, rounded to 2 places.
// All monetary values are rounded to 2 decimal places and percent-change fields
// carry a trailing "%". A zero denominator yields exactly "0%".
func Enrich(entry models.WatchlistEntry, quote *PriceQuote) EnrichedWatchlistItem {
	buy := clampNonNegative(entry.BuyPrice.Round(2))

	item := EnrichedWatchlistItem{
		ID:                    entry.ID,
		UserID:                entry.UserID,
		Symbol:                entry.Symbol,
		Note:                  entry.Note,
		BuyPrice:              buy.InexactFloat64(),
		BuyPriceYesterdayDiff: "0%",
		BuyPriceDiff:          "0%",
		CreatedAt:             entry.CreatedAt,
		UpdatedAt:             entry.UpdatedAt,
	}

	if quote == nil {
		return item
	}

	reference := clampNonNegative(decimal.NewFromFloat(quote.ReferencePrice).Round(2))
	current := clampNonNegative(decimal.NewFromFloat(quote.CurrentPrice).Round(2))

	item.YesterdayPrice = reference.InexactFloat64()
	item.CurrentPrice = current.InexactFloat64()
	if quote.TradingDate != "" {
		tradingDate := quote.TradingDate
		item.TradingDate = &tradingDate
	}

	if !reference.IsZero() {
		pct := current.Sub(reference).Div(reference).Mul(oneHundred).Round(2)
		item.BuyPriceYesterdayDiff = pct.StringFixed(2) + "%"
	}
	if !buy.IsZero() {
		pct := current.Sub(buy).Div(buy).Mul(oneHundred).Round(2)
		item.BuyPriceDiff = pct.StringFixed(2) + "%"
	}

	return item
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

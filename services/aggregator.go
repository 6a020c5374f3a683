package services

import (
	"context"
	"errors"
	"log"
	"sync"

	"stockwatch_backend/models"
)

// DefaultFetchWorkers bounds concurrent upstream quote fetches per cycle
const DefaultFetchWorkers = 8

// WatchlistAggregator groups watchlist entries by owning user and drives
// per-user enrichment. One upstream fetch per distinct symbol per cycle; a
// failed symbol degrades only its own entries and never aborts a batch.
type WatchlistAggregator struct {
	store   WatchlistStore
	quotes  QuoteFetcher
	workers int
}

// NewWatchlistAggregator creates an aggregator over the given store and quote source
func NewWatchlistAggregator(store WatchlistStore, quotes QuoteFetcher, workers int) *WatchlistAggregator {
	if workers <= 0 {
		workers = DefaultFetchWorkers
	}
	return &WatchlistAggregator{
		store:   store,
		quotes:  quotes,
		workers: workers,
	}
}

// RunCycle enriches every user's watchlist and returns the results keyed by
// user id. The key set equals the store's distinct user ids; each user's items
// follow entry insertion order. Delivery is the broadcaster's job.
func (a *WatchlistAggregator) RunCycle(ctx context.Context) (map[uint][]EnrichedWatchlistItem, error) {
	userIDs, err := a.store.DistinctUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	batches := make(map[uint][]models.WatchlistEntry, len(userIDs))
	symbolSet := make(map[string]struct{})
	for _, userID := range userIDs {
		entries, err := a.store.ListEntries(ctx, userID)
		if err != nil {
			log.Printf("Failed to load watchlist for user %d: %v", userID, err)
			entries = nil
		}
		batches[userID] = entries
		for _, entry := range entries {
			symbolSet[entry.Symbol] = struct{}{}
		}
	}

	quotes := a.fetchQuotes(ctx, symbolSet)

	result := make(map[uint][]EnrichedWatchlistItem, len(userIDs))
	for userID, entries := range batches {
		items := make([]EnrichedWatchlistItem, 0, len(entries))
		for _, entry := range entries {
			items = append(items, Enrich(entry, quotes[entry.Symbol]))
		}
		result[userID] = items
	}
	return result, nil
}

// RunForOne enriches a single user's watchlist. Used after a mutation so only
// the affected user pays the refresh cost.
func (a *WatchlistAggregator) RunForOne(ctx context.Context, userID uint) ([]EnrichedWatchlistItem, error) {
	entries, err := a.store.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}

	symbolSet := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		symbolSet[entry.Symbol] = struct{}{}
	}

	quotes := a.fetchQuotes(ctx, symbolSet)

	items := make([]EnrichedWatchlistItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, Enrich(entry, quotes[entry.Symbol]))
	}
	return items, nil
}

// fetchQuotes fetches each distinct symbol once, bounded by the worker limit.
// Failed symbols are simply absent from the returned map.
func (a *WatchlistAggregator) fetchQuotes(ctx context.Context, symbolSet map[string]struct{}) map[string]*PriceQuote {
	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}

	results := make([]*PriceQuote, len(symbols))
	sem := make(chan struct{}, a.workers)
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			quote, err := a.quotes.FetchQuote(ctx, symbol)
			if err != nil {
				if !errors.Is(err, ErrQuoteNotFound) {
					log.Printf("Failed to fetch quote for %s: %v", symbol, err)
				}
				return
			}
			results[i] = quote
		}(i, symbol)
	}
	wg.Wait()

	quotes := make(map[string]*PriceQuote, len(symbols))
	for i, symbol := range symbols {
		if results[i] != nil {
			quotes[symbol] = results[i]
		}
	}
	return quotes
}

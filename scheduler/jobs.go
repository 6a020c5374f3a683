package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"stockwatch_backend/services"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron            *gocron.Scheduler
	broadcast       *services.BroadcastService
	history         *services.HistoryService
	store           services.WatchlistStore
	refreshInterval time.Duration
}

// NewScheduler creates a new scheduler instance. The history service may be
// nil when the local cache is disabled.
func NewScheduler(broadcast *services.BroadcastService, history *services.HistoryService, store services.WatchlistStore, refreshInterval time.Duration) *Scheduler {
	if refreshInterval <= 0 {
		refreshInterval = services.DefaultRefreshInterval
	}
	return &Scheduler{
		cron:            gocron.NewScheduler(time.UTC),
		broadcast:       broadcast,
		history:         history,
		store:           store,
		refreshInterval: refreshInterval,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Refresh every user's watchlist and broadcast the results. Cycles are
	// idempotent; a long cycle delays the next tick's visible effect.
	s.cron.Every(s.refreshInterval).Do(func() {
		s.broadcast.RefreshAll(context.Background())
	})

	// Refresh the local price history cache daily after market close
	if s.history != nil {
		s.cron.Every(1).Day().At("16:05").Do(func() {
			s.syncDailyHistory()
		})
	}

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// syncDailyHistory refreshes cached history for every symbol currently tracked
func (s *Scheduler) syncDailyHistory() {
	log.Println("Syncing daily price history...")
	ctx := context.Background()

	userIDs, err := s.store.DistinctUserIDs(ctx)
	if err != nil {
		log.Printf("Error loading user ids for history sync: %v", err)
		return
	}

	symbolSet := make(map[string]struct{})
	for _, userID := range userIDs {
		entries, err := s.store.ListEntries(ctx, userID)
		if err != nil {
			log.Printf("Error loading watchlist for user %d: %v", userID, err)
			continue
		}
		for _, entry := range entries {
			symbolSet[entry.Symbol] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}

	s.history.SyncSymbols(ctx, symbols)
}

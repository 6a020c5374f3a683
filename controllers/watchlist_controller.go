package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"stockwatch_backend/middleware"
	"stockwatch_backend/models"
	"stockwatch_backend/services"
)

// MutationNotifier pushes a scoped refresh to a user's websocket connections
// after their watchlist changes. The call runs synchronously so the refreshed
// payload is on the wire before the HTTP response returns.
type MutationNotifier interface {
	NotifyMutation(ctx context.Context, userID uint) error
}

// WatchlistController handles watchlist CRUD
type WatchlistController struct {
	store    services.WatchlistStore
	notifier MutationNotifier
}

// NewWatchlistController creates a new watchlist controller. The notifier may
// be nil, in which case mutations skip the push refresh.
func NewWatchlistController(store services.WatchlistStore, notifier MutationNotifier) *WatchlistController {
	return &WatchlistController{store: store, notifier: notifier}
}

type watchlistEntryRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	BuyPrice float64 `json:"buyPrice"`
	Note     string  `json:"note"`
}

// AddStock handles POST /api/watchlist
func (wc *WatchlistController) AddStock(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	var req watchlistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Symbol is required",
		})
		return
	}

	if req.BuyPrice < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Buy price cannot be negative",
		})
		return
	}

	entry := models.WatchlistEntry{
		UserID:   userID,
		Symbol:   models.NormalizeSymbol(req.Symbol),
		BuyPrice: decimal.NewFromFloat(req.BuyPrice),
		Note:     req.Note,
	}
	if entry.Symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Symbol is required",
		})
		return
	}

	if err := wc.store.Create(c.Request.Context(), &entry); err != nil {
		if errors.Is(err, services.ErrDuplicateEntry) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Symbol already in watchlist",
			})
			return
		}
		log.Printf("Error creating watchlist entry for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to add stock to watchlist",
		})
		return
	}

	wc.notify(c.Request.Context(), userID)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Stock added to watchlist",
		"data":    entry,
	})
}

// GetWatchlist handles GET /api/watchlist
func (wc *WatchlistController) GetWatchlist(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	entries, err := wc.store.ListEntries(c.Request.Context(), userID)
	if err != nil {
		log.Printf("Error listing watchlist for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load watchlist",
		})
		return
	}
	if entries == nil {
		entries = []models.WatchlistEntry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   len(entries),
		"data":    entries,
	})
}

// UpdateStock handles PUT /api/watchlist/:id
func (wc *WatchlistController) UpdateStock(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	entryID, err := parseEntryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid entry id"})
		return
	}

	var req watchlistEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Symbol is required",
		})
		return
	}

	if req.BuyPrice < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Buy price cannot be negative",
		})
		return
	}

	entry := models.WatchlistEntry{
		ID:       entryID,
		UserID:   userID,
		Symbol:   models.NormalizeSymbol(req.Symbol),
		BuyPrice: decimal.NewFromFloat(req.BuyPrice),
		Note:     req.Note,
	}

	if err := wc.store.Update(c.Request.Context(), &entry); err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Watchlist entry not found",
			})
			return
		}
		log.Printf("Error updating watchlist entry %d for user %d: %v", entryID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to update watchlist entry",
		})
		return
	}

	wc.notify(c.Request.Context(), userID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Watchlist entry updated",
		"data":    entry,
	})
}

// DeleteStock handles DELETE /api/watchlist/:id
func (wc *WatchlistController) DeleteStock(c *gin.Context) {
	userID, err := middleware.GetUserIDFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "User not authenticated"})
		return
	}

	entryID, err := parseEntryID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid entry id"})
		return
	}

	if err := wc.store.Delete(c.Request.Context(), userID, entryID); err != nil {
		if errors.Is(err, services.ErrEntryNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Watchlist entry not found",
			})
			return
		}
		log.Printf("Error deleting watchlist entry %d for user %d: %v", entryID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to delete watchlist entry",
		})
		return
	}

	wc.notify(c.Request.Context(), userID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Stock removed from watchlist",
	})
}

// notify pushes the refreshed watchlist to the user's open connections.
// Delivery failures never fail the mutation that triggered them.
func (wc *WatchlistController) notify(ctx context.Context, userID uint) {
	if wc.notifier == nil {
		return
	}
	if err := wc.notifier.NotifyMutation(ctx, userID); err != nil {
		log.Printf("Error pushing watchlist refresh for user %d: %v", userID, err)
	}
}

func parseEntryID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid entry id")
	}
	return uint(id), nil
}

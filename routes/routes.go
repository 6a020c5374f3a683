package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stockwatch_backend/controllers"
	"stockwatch_backend/middleware"
	"stockwatch_backend/services"
)

// Deps carries the shared services the route handlers depend on.
// History may be nil when the local cache is disabled; Broadcast may be nil in
// tests that exercise HTTP handlers only.
type Deps struct {
	DB        *gorm.DB
	Store     services.WatchlistStore
	Quotes    services.QuoteFetcher
	Trades    services.TradeFetcher
	History   *services.HistoryService
	Broadcast *services.BroadcastService
	JWTSecret string
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Deps) {
	// Initialize controllers
	authController := controllers.NewAuthController(deps.DB, deps.JWTSecret)

	var notifier controllers.MutationNotifier
	if deps.Broadcast != nil {
		notifier = deps.Broadcast
	}
	watchlistController := controllers.NewWatchlistController(deps.Store, notifier)
	stockController := controllers.NewStockController(deps.Quotes, deps.Trades, deps.History)

	// API group
	api := router.Group("/api")
	{
		// Auth routes
		auth := api.Group("/auth")
		auth.Use(middleware.LoginRateLimitMiddleware())
		{
			auth.POST("/register", authController.Register)
			auth.POST("/login", authController.Login)
		}

		// Watchlist routes (authenticated)
		watchlist := api.Group("/watchlist")
		watchlist.Use(middleware.JWTAuthMiddleware(deps.JWTSecret))
		{
			watchlist.GET("", watchlistController.GetWatchlist)
			watchlist.POST("", watchlistController.AddStock)
			watchlist.PUT("/:id", watchlistController.UpdateStock)
			watchlist.DELETE("/:id", watchlistController.DeleteStock)
		}

		// Stock routes
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocksData)
			stocks.GET("/search", stockController.SearchStock)
			stocks.GET("/:symbol/quote", stockController.GetQuote)
			stocks.GET("/:symbol/trades", stockController.GetTrades)
			stocks.GET("/:symbol/history", stockController.GetHistory)
		}
	}

	// Websocket endpoint for live watchlist updates
	if deps.Broadcast != nil {
		router.GET("/ws", func(c *gin.Context) {
			deps.Broadcast.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Stock Watchlist API is running",
		})
	})
}

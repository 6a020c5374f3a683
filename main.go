package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stockwatch_backend/config"
	"stockwatch_backend/models"
	"stockwatch_backend/routes"
	"stockwatch_backend/scheduler"
	"stockwatch_backend/services"
)

// dbInitialized tracks whether the storage backend has been initialized.
// Guarded by dbInitMutex so the /ready probe can check it from any goroutine.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	log.Println("==============================================")
	log.Println("  Stock Watchlist API - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Add middlewares
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Setup health check endpoints FIRST so the platform can detect the
	// service is up while storage initializes in the background
	setupHealthEndpoints(router)

	// Create HTTP server. Write timeout stays generous so long-lived
	// websocket upgrades are not cut off prematurely.
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server immediately so health probes see us listening
	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Initialize storage and wire the application in background. The services
	// are published under dbInitMutex so a shutdown signal arriving mid-init
	// never reads half-constructed state.
	var jobScheduler *scheduler.Scheduler
	var broadcast *services.BroadcastService
	var history *services.HistoryService
	go func() {
		store, db := initWatchlistStore(cfg)

		// Build the refresh engine around the chosen store
		priceSource := services.NewPriceSourceService(cfg.QuoteAPIURL, cfg.TradeAPIURL)
		aggregator := services.NewWatchlistAggregator(store, priceSource, cfg.FetchWorkers)
		bc := services.NewBroadcastService(aggregator)
		bc.Start()

		hist, err := services.NewHistoryService(cfg.HistoryDBPath, priceSource)
		if err != nil {
			log.Printf("Warning: History cache unavailable: %v", err)
			hist = nil
		}

		// Setup all API routes
		routes.SetupRoutes(router, routes.Deps{
			DB:        db,
			Store:     store,
			Quotes:    priceSource,
			Trades:    priceSource,
			History:   hist,
			Broadcast: bc,
			JWTSecret: cfg.JWTSecret,
		})

		// Start background scheduler
		js := scheduler.NewScheduler(bc, hist, store, cfg.RefreshInterval)
		js.Start()

		// Publish the initialized services
		dbInitMutex.Lock()
		broadcast = bc
		history = hist
		jobScheduler = js
		dbInitialized = true
		dbInitMutex.Unlock()

		log.Println("Application fully initialized")
	}()

	// Graceful shutdown
	gracefulShutdown(server, func() {
		dbInitMutex.RLock()
		js, bc, hist := jobScheduler, broadcast, history
		dbInitMutex.RUnlock()

		if js != nil {
			js.Stop()
		}
		if bc != nil {
			bc.Stop()
		}
		if hist != nil {
			hist.Close()
		}
	})
}

// initWatchlistStore selects the storage backend from configuration. Postgres
// is the default; Mongo is opt-in; the in-memory store is the last-resort
// fallback so the service still comes up without a database.
func initWatchlistStore(cfg *config.Config) (services.WatchlistStore, *gorm.DB) {
	if cfg.WatchlistStore == "mongo" {
		store, err := services.NewMongoWatchlistStore(cfg.MongoURI)
		if err == nil {
			// Auth still needs the relational database
			db, dbErr := config.InitDB()
			if dbErr != nil {
				log.Printf("ERROR: Database connection failed: %v", dbErr)
				return store, nil
			}
			if err := models.MigrateUserModels(db); err != nil {
				log.Printf("ERROR: User migration failed: %v", err)
			}
			return store, db
		}
		log.Printf("ERROR: Mongo watchlist store failed, falling back to postgres: %v", err)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Printf("ERROR: Database connection failed: %v", err)
		log.Println("Falling back to in-memory watchlist store (data is not persisted)")
		return services.NewMemoryWatchlistStore(), nil
	}

	log.Println("Running database migrations...")
	if err := models.MigrateUserModels(db); err != nil {
		log.Printf("ERROR: User migration failed: %v", err)
	}
	if err := models.MigrateWatchlistModels(db); err != nil {
		log.Printf("ERROR: Watchlist migration failed: %v", err)
	}
	log.Println("Database migrations completed")

	return services.NewGormWatchlistStore(db), db
}

// setupHealthEndpoints sets up health check endpoints
func setupHealthEndpoints(router *gin.Engine) {
	// Root endpoint
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Stock Watchlist API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always returns OK if server is running
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks if service is ready to receive traffic
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		ready := dbInitialized
		dbInitMutex.RUnlock()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Storage not initialized",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip logging for health checks to reduce noise
		path := c.Request.URL.Path
		if path == "/healthz" || path == "/ready" || path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		// Only log errors or slow requests
		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, stopServices func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	stopServices()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Close database connection
	if config.DB != nil {
		sqlDB, err := config.DB.DB()
		if err == nil {
			sqlDB.Close()
			log.Println("Database connection closed")
		}
	}

	log.Println("Server shutdown completed")
}

package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stockwatch_backend/models"
	"stockwatch_backend/services"
)

// MaxBatchSymbols caps the multi-code lookup so one request cannot fan out
// into an unbounded number of upstream fetches
const MaxBatchSymbols = 20

// StockController serves quote, trade and history lookups for arbitrary
// symbols, independent of any user's watchlist.
type StockController struct {
	quotes  services.QuoteFetcher
	trades  services.TradeFetcher
	history *services.HistoryService
}

// NewStockController creates a new stock controller. The history service may
// be nil, in which case history endpoints report the cache as unavailable;
// the trade fetcher may be nil, disabling the trades endpoint.
func NewStockController(quotes services.QuoteFetcher, trades services.TradeFetcher, history *services.HistoryService) *StockController {
	return &StockController{quotes: quotes, trades: trades, history: history}
}

// GetQuote handles GET /api/stocks/:symbol/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Symbol is required"})
		return
	}

	quote, err := sc.quotes.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		sc.respondQuoteError(c, symbol, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"symbol":         quote.Symbol,
			"currentPrice":   quote.CurrentPrice,
			"referencePrice": quote.ReferencePrice,
			"tradingDate":    quote.TradingDate,
		},
	})
}

// GetStocksData handles GET /api/stocks?codes=FPT,ACB — basic data for
// several symbols at once. Symbols without data are skipped, not errors.
func (sc *StockController) GetStocksData(c *gin.Context) {
	raw := c.Query("codes")
	if strings.TrimSpace(raw) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Query parameter 'codes' is required, e.g. ?codes=FPT,ACB",
		})
		return
	}

	symbols := make([]string, 0)
	seen := make(map[string]struct{})
	for _, code := range strings.Split(raw, ",") {
		symbol := models.NormalizeSymbol(code)
		if symbol == "" {
			continue
		}
		if _, ok := seen[symbol]; ok {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "No valid symbols in 'codes'",
		})
		return
	}
	if len(symbols) > MaxBatchSymbols {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": fmt.Sprintf("Too many symbols, maximum is %d", MaxBatchSymbols),
		})
		return
	}

	results := make([]gin.H, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := sc.quotes.FetchQuote(c.Request.Context(), symbol)
		if err != nil {
			if !errors.Is(err, services.ErrQuoteNotFound) {
				log.Printf("Error fetching quote for %s: %v", symbol, err)
			}
			continue
		}
		results = append(results, gin.H{
			"symbol":         quote.Symbol,
			"currentPrice":   quote.CurrentPrice,
			"referencePrice": quote.ReferencePrice,
			"tradingDate":    quote.TradingDate,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   len(results),
		"data":    results,
	})
}

// GetTrades handles GET /api/stocks/:symbol/trades — the current session's
// matched trades for a symbol.
func (sc *StockController) GetTrades(c *gin.Context) {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Symbol is required"})
		return
	}

	if sc.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": "Trade data is not available",
		})
		return
	}

	trades, err := sc.trades.FetchTrades(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, services.ErrQuoteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "No trade data for this symbol",
			})
			return
		}
		sc.respondQuoteError(c, symbol, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"symbol":  symbol,
		"total":   len(trades),
		"trades":  trades,
	})
}

// SearchStock handles GET /api/stocks/search?symbol=XYZ
func (sc *StockController) SearchStock(c *gin.Context) {
	symbol := models.NormalizeSymbol(c.Query("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Query parameter 'symbol' is required"})
		return
	}

	quote, err := sc.quotes.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		sc.respondQuoteError(c, symbol, err)
		return
	}

	var yesterdayPrice float64
	if sc.history != nil {
		yesterdayPrice, err = sc.history.YesterdayClose(c.Request.Context(), symbol)
		if err != nil {
			if !errors.Is(err, services.ErrQuoteNotFound) {
				log.Printf("Error loading yesterday close for %s: %v", symbol, err)
			}
			yesterdayPrice = quote.ReferencePrice
		}
	} else {
		yesterdayPrice = quote.ReferencePrice
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"symbol":         symbol,
			"currentPrice":   quote.CurrentPrice,
			"yesterdayPrice": yesterdayPrice,
			"tradingDate":    quote.TradingDate,
		},
	})
}

// GetHistory handles GET /api/stocks/:symbol/history?limit=N
func (sc *StockController) GetHistory(c *gin.Context) {
	symbol := models.NormalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Symbol is required"})
		return
	}

	if sc.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"message": "Price history is not available",
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid limit"})
			return
		}
		limit = parsed
	}

	prices, err := sc.history.GetHistory(c.Request.Context(), symbol, limit)
	if err != nil {
		sc.respondQuoteError(c, symbol, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"total":   len(prices),
		"data":    prices,
	})
}

func (sc *StockController) respondQuoteError(c *gin.Context, symbol string, err error) {
	switch {
	case errors.Is(err, services.ErrQuoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "No data found for this symbol",
		})
	case errors.Is(err, services.ErrAccessDenied):
		log.Printf("Quote provider denied request for %s: %v", symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "Quote provider denied the request",
		})
	default:
		log.Printf("Error fetching quote for %s: %v", symbol, err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"message": "Quote provider unavailable",
		})
	}
}

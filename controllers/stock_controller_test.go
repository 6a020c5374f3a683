package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"stockwatch_backend/services"
)

// stubQuoteFetcher returns one canned quote or error for any symbol
type stubQuoteFetcher struct {
	quote *services.PriceQuote
	err   error
}

func (s stubQuoteFetcher) FetchQuote(ctx context.Context, symbol string) (*services.PriceQuote, error) {
	if s.err != nil {
		return nil, s.err
	}
	quote := *s.quote
	quote.Symbol = symbol
	return &quote, nil
}

// stubTradeFetcher returns canned trades or an error for any symbol
type stubTradeFetcher struct {
	trades []services.StockTrade
	err    error
}

func (s stubTradeFetcher) FetchTrades(ctx context.Context, symbol string) ([]services.StockTrade, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.trades, nil
}

func setupStockRouter(quotes services.QuoteFetcher) *gin.Engine {
	return setupStockRouterWithTrades(quotes, nil)
}

func setupStockRouterWithTrades(quotes services.QuoteFetcher, trades services.TradeFetcher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	sc := NewStockController(quotes, trades, nil)
	router.GET("/api/stocks", sc.GetStocksData)
	router.GET("/api/stocks/search", sc.SearchStock)
	router.GET("/api/stocks/:symbol/quote", sc.GetQuote)
	router.GET("/api/stocks/:symbol/trades", sc.GetTrades)
	router.GET("/api/stocks/:symbol/history", sc.GetHistory)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetQuote(t *testing.T) {
	router := setupStockRouter(stubQuoteFetcher{
		quote: &services.PriceQuote{ReferencePrice: 27.5, CurrentPrice: 28.05, TradingDate: "2024-03-01"},
	})

	w := get(router, "/api/stocks/hpg/quote")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Symbol         string  `json:"symbol"`
			CurrentPrice   float64 `json:"currentPrice"`
			ReferencePrice float64 `json:"referencePrice"`
			TradingDate    string  `json:"tradingDate"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false, want true")
	}
	if resp.Data.Symbol != "HPG" {
		t.Errorf("symbol = %q, want normalized %q", resp.Data.Symbol, "HPG")
	}
	if resp.Data.CurrentPrice != 28.05 || resp.Data.ReferencePrice != 27.5 {
		t.Errorf("prices = (%v, %v), want (28.05, 27.5)", resp.Data.CurrentPrice, resp.Data.ReferencePrice)
	}
}

func TestGetQuoteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", services.ErrQuoteNotFound, http.StatusNotFound},
		{"access denied", fmt.Errorf("%w (status 403)", services.ErrAccessDenied), http.StatusBadGateway},
		{"upstream failure", fmt.Errorf("%w: timeout", services.ErrUpstream), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupStockRouter(stubQuoteFetcher{err: tt.err})
			w := get(router, "/api/stocks/HPG/quote")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestSearchStockRequiresSymbol(t *testing.T) {
	router := setupStockRouter(stubQuoteFetcher{
		quote: &services.PriceQuote{ReferencePrice: 27.5, CurrentPrice: 28.05},
	})

	w := get(router, "/api/stocks/search")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchStockFallsBackToReferencePrice(t *testing.T) {
	// No history service wired: yesterdayPrice falls back to the reference price
	router := setupStockRouter(stubQuoteFetcher{
		quote: &services.PriceQuote{ReferencePrice: 27.5, CurrentPrice: 28.05, TradingDate: "2024-03-01"},
	})

	w := get(router, "/api/stocks/search?symbol=hpg")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Symbol         string  `json:"symbol"`
			YesterdayPrice float64 `json:"yesterdayPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Data.Symbol != "HPG" {
		t.Errorf("symbol = %q, want %q", resp.Data.Symbol, "HPG")
	}
	if resp.Data.YesterdayPrice != 27.5 {
		t.Errorf("yesterdayPrice = %v, want reference 27.5", resp.Data.YesterdayPrice)
	}
}

// mapQuoteFetcher serves quotes for known symbols, ErrQuoteNotFound otherwise
type mapQuoteFetcher map[string]*services.PriceQuote

func (m mapQuoteFetcher) FetchQuote(ctx context.Context, symbol string) (*services.PriceQuote, error) {
	quote, ok := m[symbol]
	if !ok {
		return nil, services.ErrQuoteNotFound
	}
	out := *quote
	out.Symbol = symbol
	return &out, nil
}

func TestGetStocksData(t *testing.T) {
	router := setupStockRouter(mapQuoteFetcher{
		"FPT": {ReferencePrice: 120, CurrentPrice: 122, TradingDate: "2024-03-01"},
		"ACB": {ReferencePrice: 25, CurrentPrice: 24.8, TradingDate: "2024-03-01"},
	})

	w := get(router, "/api/stocks?codes=fpt,%20acb%20,NOPE,fpt")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Total   int  `json:"total"`
		Data    []struct {
			Symbol       string  `json:"symbol"`
			CurrentPrice float64 `json:"currentPrice"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Total != 2 || len(resp.Data) != 2 {
		t.Fatalf("envelope = success:%v total:%d len:%d, want true/2/2", resp.Success, resp.Total, len(resp.Data))
	}
	// Duplicates collapse, unknown codes are skipped, order follows the query
	if resp.Data[0].Symbol != "FPT" || resp.Data[1].Symbol != "ACB" {
		t.Errorf("symbols = [%s %s], want [FPT ACB]", resp.Data[0].Symbol, resp.Data[1].Symbol)
	}
}

func TestGetStocksDataValidation(t *testing.T) {
	router := setupStockRouter(mapQuoteFetcher{})

	for _, path := range []string{"/api/stocks", "/api/stocks?codes=", "/api/stocks?codes=%20,%20"} {
		w := get(router, path)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, w.Code)
		}
	}
}

func TestGetTrades(t *testing.T) {
	router := setupStockRouterWithTrades(stubQuoteFetcher{}, stubTradeFetcher{
		trades: []services.StockTrade{
			{Time: "09:15:03", LastPrice: 28.0, LastVolume: 5000, TotalVolume: 5000},
			{Time: "09:15:10", LastPrice: 28.05, LastVolume: 1200, TotalVolume: 6200},
		},
	})

	w := get(router, "/api/stocks/hpg/trades")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool                  `json:"success"`
		Symbol  string                `json:"symbol"`
		Total   int                   `json:"total"`
		Trades  []services.StockTrade `json:"trades"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Symbol != "HPG" || resp.Total != 2 || len(resp.Trades) != 2 {
		t.Fatalf("envelope = %+v, want HPG with 2 trades", resp)
	}
	if resp.Trades[1].LastPrice != 28.05 {
		t.Errorf("last trade price = %v, want 28.05", resp.Trades[1].LastPrice)
	}
}

func TestGetTradesNoData(t *testing.T) {
	router := setupStockRouterWithTrades(stubQuoteFetcher{}, stubTradeFetcher{
		err: services.ErrQuoteNotFound,
	})

	w := get(router, "/api/stocks/NOPE/trades")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetTradesUnavailableWithoutFetcher(t *testing.T) {
	router := setupStockRouter(stubQuoteFetcher{})

	w := get(router, "/api/stocks/HPG/trades")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestGetHistoryUnavailableWithoutCache(t *testing.T) {
	router := setupStockRouter(stubQuoteFetcher{})

	w := get(router, "/api/stocks/HPG/history")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

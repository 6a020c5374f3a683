package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Quote fetch constants
const (
	DefaultQuoteAPIURL  = "https://api-finfo.vndirect.com.vn/v4/stock_prices"
	DefaultTradeAPIURL  = "https://bgapidatafeed.vps.com.vn"
	QuoteRequestTimeout = 30 * time.Second
	BrowserUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Price source error taxonomy. All are recoverable: a failed fetch degrades
// the affected entry to the zero-result enrichment, nothing more.
var (
	// ErrQuoteNotFound means the provider responded but had no data for the symbol
	ErrQuoteNotFound = errors.New("no quote data for symbol")
	// ErrAccessDenied means the provider actively refused the request
	ErrAccessDenied = errors.New("quote provider denied request")
	// ErrUpstream covers network and parse failures
	ErrUpstream = errors.New("quote provider unavailable")
)

// PriceQuote is the per-symbol snapshot fetched each refresh cycle.
// It is never persisted.
type PriceQuote struct {
	Symbol         string
	ReferencePrice float64
	CurrentPrice   float64
	TradingDate    string // empty when the provider did not report one
}

// QuoteFetcher fetches the current quote for one symbol.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (*PriceQuote, error)
}

// StockTrade is one matched intraday trade from the trades feed.
// Field names follow the feed's wire format.
type StockTrade struct {
	Time        string  `json:"time"`
	LastPrice   float64 `json:"lastPrice"`
	LastVolume  float64 `json:"lastVol"`
	TotalVolume float64 `json:"totalVol"`
}

// TradeFetcher fetches the current session's trades for one symbol.
type TradeFetcher interface {
	FetchTrades(ctx context.Context, symbol string) ([]StockTrade, error)
}

// upstreamPriceResponse represents the provider API response
type upstreamPriceResponse struct {
	Data          []upstreamPriceData `json:"data"`
	TotalElements int                 `json:"totalElements"`
}

// upstreamPriceData represents one daily price record from the provider
type upstreamPriceData struct {
	Code       string  `json:"code"`
	Date       string  `json:"date"`
	BasicPrice float64 `json:"basicPrice"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	NmVolume   float64 `json:"nmVolume"`
	Change     float64 `json:"change"`
	PctChange  float64 `json:"pctChange"`
}

// PriceSourceService fetches quotes and trades from the upstream providers
type PriceSourceService struct {
	baseURL    string
	tradeURL   string
	httpClient *http.Client
}

// NewPriceSourceService creates a price source against the given quote and
// trade API URLs. The transport forces IPv4: the providers' AAAA records are
// unreachable from some hosting networks and the request hangs until timeout
// otherwise.
func NewPriceSourceService(baseURL, tradeURL string) *PriceSourceService {
	if baseURL == "" {
		baseURL = DefaultQuoteAPIURL
	}
	if tradeURL == "" {
		tradeURL = DefaultTradeAPIURL
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		},
	}

	return &PriceSourceService{
		baseURL:  baseURL,
		tradeURL: tradeURL,
		httpClient: &http.Client{
			Timeout:   QuoteRequestTimeout,
			Transport: transport,
		},
	}
}

// FetchQuote fetches the latest quote for a single symbol.
// Returns ErrQuoteNotFound when the provider has no data, ErrAccessDenied when
// it refuses the request, and a wrapped ErrUpstream on network/parse failure.
func (s *PriceSourceService) FetchQuote(ctx context.Context, symbol string) (*PriceQuote, error) {
	resp, err := s.fetch(ctx, symbol, 1)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrQuoteNotFound
	}

	data := resp.Data[0]
	return &PriceQuote{
		Symbol:         symbol,
		ReferencePrice: data.BasicPrice,
		CurrentPrice:   data.Close,
		TradingDate:    data.Date,
	}, nil
}

// FetchDailyHistory fetches up to size daily price records, newest first.
func (s *PriceSourceService) FetchDailyHistory(ctx context.Context, symbol string, size int) ([]DailyPrice, error) {
	resp, err := s.fetch(ctx, symbol, size)
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrQuoteNotFound
	}

	prices := make([]DailyPrice, 0, len(resp.Data))
	for _, d := range resp.Data {
		prices = append(prices, DailyPrice{
			Symbol: symbol,
			Date:   d.Date,
			Open:   d.Open,
			High:   d.High,
			Low:    d.Low,
			Close:  d.Close,
			Volume: int64(d.NmVolume),
		})
	}
	return prices, nil
}

// FetchTrades fetches the current session's matched trades for a symbol.
// Same error taxonomy as FetchQuote; an empty trade list is ErrQuoteNotFound.
func (s *PriceSourceService) FetchTrades(ctx context.Context, symbol string) ([]StockTrade, error) {
	url := fmt.Sprintf("%s/getliststocktrade/%s", s.tradeURL, symbol)

	body, err := s.doGet(ctx, url)
	if err != nil {
		return nil, err
	}

	var trades []StockTrade
	if err := json.Unmarshal(body, &trades); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrUpstream, err)
	}
	if len(trades) == 0 {
		return nil, ErrQuoteNotFound
	}
	return trades, nil
}

func (s *PriceSourceService) fetch(ctx context.Context, symbol string, size int) (*upstreamPriceResponse, error) {
	url := fmt.Sprintf("%s?sort=date:desc&q=code:%s&size=%d", s.baseURL, symbol, size)

	body, err := s.doGet(ctx, url)
	if err != nil {
		return nil, err
	}

	var priceResp upstreamPriceResponse
	if err := json.Unmarshal(body, &priceResp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse response: %v", ErrUpstream, err)
	}

	return &priceResp, nil
}

func (s *PriceSourceService) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrUpstream, err)
	}

	// The providers reject non-browser clients
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w (status %d)", ErrAccessDenied, resp.StatusCode)
	default:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: API error (status %d): %s", ErrUpstream, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrUpstream, err)
	}
	return body, nil
}

package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFetchQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "code:HPG" {
			t.Errorf("query q = %q, want %q", got, "code:HPG")
		}
		if got := r.URL.Query().Get("size"); got != "1" {
			t.Errorf("query size = %q, want %q", got, "1")
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"code": "HPG", "date": "2024-03-01", "basicPrice": 27.5, "open": 27.6, "high": 28.2, "low": 27.4, "close": 28.05, "nmVolume": 1200000}
			],
			"totalElements": 1
		}`))
	}))
	defer server.Close()

	source := NewPriceSourceService(server.URL, server.URL)
	got, err := source.FetchQuote(context.Background(), "HPG")
	if err != nil {
		t.Fatalf("FetchQuote() error: %v", err)
	}

	want := &PriceQuote{
		Symbol:         "HPG",
		ReferencePrice: 27.5,
		CurrentPrice:   28.05,
		TradingDate:    "2024-03-01",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchQuote() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchQuoteNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "totalElements": 0}`))
	}))
	defer server.Close()

	source := NewPriceSourceService(server.URL, server.URL)
	_, err := source.FetchQuote(context.Background(), "NOPE")
	if !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("FetchQuote() error = %v, want ErrQuoteNotFound", err)
	}
}

func TestFetchQuoteAccessDenied(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		source := NewPriceSourceService(server.URL, server.URL)
		_, err := source.FetchQuote(context.Background(), "HPG")
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("status %d: FetchQuote() error = %v, want ErrAccessDenied", status, err)
		}
		server.Close()
	}
}

func TestFetchQuoteUpstreamFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "malformed response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data": [`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			source := NewPriceSourceService(server.URL, server.URL)
			_, err := source.FetchQuote(context.Background(), "HPG")
			if !errors.Is(err, ErrUpstream) {
				t.Errorf("FetchQuote() error = %v, want ErrUpstream", err)
			}
		})
	}
}

func TestFetchTrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getliststocktrade/HPG" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/getliststocktrade/HPG")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"time": "09:15:03", "lastPrice": 28.0, "lastVol": 5000, "totalVol": 5000},
			{"time": "09:15:10", "lastPrice": 28.05, "lastVol": 1200, "totalVol": 6200}
		]`))
	}))
	defer server.Close()

	source := NewPriceSourceService(server.URL, server.URL)
	got, err := source.FetchTrades(context.Background(), "HPG")
	if err != nil {
		t.Fatalf("FetchTrades() error: %v", err)
	}

	want := []StockTrade{
		{Time: "09:15:03", LastPrice: 28.0, LastVolume: 5000, TotalVolume: 5000},
		{Time: "09:15:10", LastPrice: 28.05, LastVolume: 1200, TotalVolume: 6200},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchTrades() mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchTradesNoData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	source := NewPriceSourceService(server.URL, server.URL)
	_, err := source.FetchTrades(context.Background(), "NOPE")
	if !errors.Is(err, ErrQuoteNotFound) {
		t.Errorf("FetchTrades() error = %v, want ErrQuoteNotFound", err)
	}
}

func TestFetchDailyHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("size"); got != "30" {
			t.Errorf("query size = %q, want %q", got, "30")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"code": "HPG", "date": "2024-03-01", "open": 27.6, "high": 28.2, "low": 27.4, "close": 28.05, "nmVolume": 1200000},
				{"code": "HPG", "date": "2024-02-29", "open": 27.0, "high": 27.7, "low": 26.9, "close": 27.5, "nmVolume": 900000}
			],
			"totalElements": 2
		}`))
	}))
	defer server.Close()

	source := NewPriceSourceService(server.URL, server.URL)
	got, err := source.FetchDailyHistory(context.Background(), "HPG", 30)
	if err != nil {
		t.Fatalf("FetchDailyHistory() error: %v", err)
	}

	want := []DailyPrice{
		{Symbol: "HPG", Date: "2024-03-01", Open: 27.6, High: 28.2, Low: 27.4, Close: 28.05, Volume: 1200000},
		{Symbol: "HPG", Date: "2024-02-29", Open: 27.0, High: 27.7, Low: 26.9, Close: 27.5, Volume: 900000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FetchDailyHistory() mismatch (-want +got):\n%s", diff)
	}
}

package scheduler

// Package scheduler drives the periodic work of the watchlist backend:
// - the price-refresh and broadcast cycle on a fixed interval
// - the daily history cache sync after market close
//
// Mutation-triggered refreshes do not go through here; they are invoked
// synchronously by the watchlist controller.

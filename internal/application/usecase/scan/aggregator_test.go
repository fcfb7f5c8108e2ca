package scan

import (
	"context"
	"errors"
	"testing"
	"time"

	"spotarb/internal/domain/model"
	"spotarb/internal/infrastructure/exchange/exchangetest"
)

func TestFetchAllBuildsQuoteMatrix(t *testing.T) {
	a := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers: map[string]model.Ticker{
			"BTC/USDT": {Bid: 100, Ask: 102, QuoteVolume: 1e6},
			"ETH/USDT": {Bid: 10, Ask: 10.2, QuoteVolume: 5e5},
		},
	}
	b := &exchangetest.StubProvider{
		ExchangeName: "mexc",
		Tickers: map[string]model.Ticker{
			"BTC/USDT": {Bid: 104, Ask: 106, QuoteVolume: 8e5},
		},
	}

	agg := NewAggregator(4, time.Second)
	got := agg.FetchAll(context.Background(), []string{"BTC/USDT", "ETH/USDT"}, handlesFor(a, b))

	btc := got["BTC/USDT"]
	if len(btc) != 2 {
		t.Fatalf("expected BTC on both exchanges, got %v", btc)
	}
	if mid := btc["binance"].MidPrice; mid != 101 {
		t.Errorf("binance mid: want 101, got %v", mid)
	}
	if mid := btc["mexc"].MidPrice; mid != 105 {
		t.Errorf("mexc mid: want 105, got %v", mid)
	}

	eth := got["ETH/USDT"]
	if len(eth) != 1 {
		t.Fatalf("ETH is only listed on binance, got %v", eth)
	}
}

func TestFetchAllSkipsInvalidAndFailingQuotes(t *testing.T) {
	oneSided := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers: map[string]model.Ticker{
			"BTC/USDT": {Bid: 0, Ask: 102, QuoteVolume: 1e6}, // one-sided book
		},
	}
	broken := &exchangetest.StubProvider{
		ExchangeName: "mexc",
		TickerErr:    errors.New("HTTP 429"),
	}

	agg := NewAggregator(4, time.Second)
	got := agg.FetchAll(context.Background(), []string{"BTC/USDT"}, handlesFor(oneSided, broken))

	if len(got) != 0 {
		t.Fatalf("expected empty matrix, got %v", got)
	}
}

func TestFetchAllCancelledContextDiscardsPartial(t *testing.T) {
	p := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 100, Ask: 102, QuoteVolume: 1e6}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agg := NewAggregator(4, time.Second)
	got := agg.FetchAll(ctx, []string{"BTC/USDT"}, handlesFor(p))
	if len(got) != 0 {
		t.Fatalf("cancelled cycle must not yield quotes, got %v", got)
	}
}

func TestFetchQuotesSingleSymbol(t *testing.T) {
	p := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 100, Ask: 102, QuoteVolume: 1e6}},
	}

	agg := NewAggregator(4, time.Second)
	got := agg.FetchQuotes(context.Background(), "BTC/USDT", handlesFor(p))
	if len(got) != 1 || got["binance"].MidPrice != 101 {
		t.Fatalf("unexpected quotes: %v", got)
	}

	empty := agg.FetchQuotes(context.Background(), "NOPE/USDT", handlesFor(p))
	if empty == nil || len(empty) != 0 {
		t.Fatalf("missing symbol should yield an empty map, got %v", empty)
	}
}

package scan

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
	"spotarb/internal/infrastructure/exchange/exchangetest"
)

func handlesFor(providers ...*exchangetest.StubProvider) []port.ExchangeHandle {
	out := make([]port.ExchangeHandle, 0, len(providers))
	for _, p := range providers {
		out = append(out, port.ExchangeHandle{Name: p.Name(), Provider: p, TakerFee: 0.001})
	}
	return out
}

func TestUniverseBuildUnionsTopPairs(t *testing.T) {
	a := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers: map[string]model.Ticker{
			"BTC/USDT":      {Bid: 100, Ask: 101, QuoteVolume: 900},
			"ETH/USDT":      {Bid: 10, Ask: 11, QuoteVolume: 800},
			"DOGE/USDT":     {Bid: 1, Ask: 2, QuoteVolume: 100},
			"BTC/USDT:USDT": {Bid: 100, Ask: 101, QuoteVolume: 9999}, // derivative, excluded
			"BTC/EUR":       {Bid: 90, Ask: 91, QuoteVolume: 9999},   // wrong quote
		},
	}
	b := &exchangetest.StubProvider{
		ExchangeName: "mexc",
		Tickers: map[string]model.Ticker{
			"SOL/USDT": {Bid: 5, Ask: 6, QuoteVolume: 700},
			"ETH/USDT": {Bid: 10, Ask: 11, QuoteVolume: 600},
			"XRP/USDT": {Bid: 1, Ask: 2, QuoteVolume: 50},
		},
	}

	u := NewUniverseBuilder("USDT", 2, time.Second)
	got := u.Build(context.Background(), handlesFor(a, b), nil)

	// top-2 per exchange, unioned and sorted
	want := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("universe mismatch: want %v, got %v", want, got)
	}
}

func TestUniverseBuildReportsFailingExchange(t *testing.T) {
	ok := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 100, Ask: 101, QuoteVolume: 900}},
	}
	broken := &exchangetest.StubProvider{
		ExchangeName: "mexc",
		TickersErr:   errors.New("HTTP 503"),
	}

	var reported []string
	u := NewUniverseBuilder("USDT", 10, time.Second)
	got := u.Build(context.Background(), handlesFor(ok, broken), func(exchange string, err error) {
		reported = append(reported, exchange)
	})

	if len(got) != 1 || got[0] != "BTC/USDT" {
		t.Fatalf("expected surviving exchange's universe, got %v", got)
	}
	if len(reported) != 1 || reported[0] != "mexc" {
		t.Fatalf("expected mexc reported, got %v", reported)
	}
}

func TestUniverseVolumeTiesBreakBySymbol(t *testing.T) {
	p := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers: map[string]model.Ticker{
			"BBB/USDT": {Bid: 1, Ask: 2, QuoteVolume: 500},
			"AAA/USDT": {Bid: 1, Ask: 2, QuoteVolume: 500},
			"CCC/USDT": {Bid: 1, Ask: 2, QuoteVolume: 500},
		},
	}

	u := NewUniverseBuilder("USDT", 2, time.Second)
	got := u.Build(context.Background(), handlesFor(p), nil)

	want := []string{"AAA/USDT", "BBB/USDT"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tie-break mismatch: want %v, got %v", want, got)
	}
}

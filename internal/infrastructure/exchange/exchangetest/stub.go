// Package exchangetest provides a configurable in-memory market data provider
// for tests.
package exchangetest

import (
	"context"
	"fmt"
	"sync"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

// PlacedOrder records one PlaceMarketOrder call.
type PlacedOrder struct {
	Symbol string
	Side   model.Side
	Amount float64
}

// StubProvider implements port.MarketDataProvider with canned data.
type StubProvider struct {
	ExchangeName string
	Tickers      map[string]model.Ticker
	Balances     map[string]model.Balance
	Precision    int

	LoadErr    error
	TickersErr error
	TickerErr  error
	BalanceErr error
	OrderErr   error

	// OrderFn overrides the default fill behaviour when set.
	OrderFn func(symbol string, side model.Side, amount float64) (*model.Order, error)

	// TickerFn overrides single-symbol ticker lookups when set. Useful for
	// stalling a quote mid-flight.
	TickerFn func(symbol string) (model.Ticker, error)

	mu     sync.Mutex
	orders []PlacedOrder
	closed bool
}

var _ port.MarketDataProvider = (*StubProvider)(nil)

func (s *StubProvider) Name() string {
	if s.ExchangeName == "" {
		return "stub"
	}
	return s.ExchangeName
}

func (s *StubProvider) LoadMarkets(ctx context.Context) error { return s.LoadErr }

func (s *StubProvider) FetchAllTickers(ctx context.Context) (map[string]model.Ticker, error) {
	if s.TickersErr != nil {
		return nil, s.TickersErr
	}
	out := make(map[string]model.Ticker, len(s.Tickers))
	for k, v := range s.Tickers {
		out[k] = v
	}
	return out, nil
}

func (s *StubProvider) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	if s.TickerErr != nil {
		return model.Ticker{}, s.TickerErr
	}
	if s.TickerFn != nil {
		return s.TickerFn(symbol)
	}
	t, ok := s.Tickers[symbol]
	if !ok {
		return model.Ticker{}, fmt.Errorf("%s: no ticker for %s", s.Name(), symbol)
	}
	return t, nil
}

func (s *StubProvider) FetchBalance(ctx context.Context) (map[string]model.Balance, error) {
	if s.BalanceErr != nil {
		return nil, s.BalanceErr
	}
	out := make(map[string]model.Balance, len(s.Balances))
	for k, v := range s.Balances {
		out[k] = v
	}
	return out, nil
}

func (s *StubProvider) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount float64) (*model.Order, error) {
	s.mu.Lock()
	s.orders = append(s.orders, PlacedOrder{Symbol: symbol, Side: side, Amount: amount})
	s.mu.Unlock()

	if s.OrderErr != nil {
		return nil, s.OrderErr
	}
	if s.OrderFn != nil {
		return s.OrderFn(symbol, side, amount)
	}

	price := 0.0
	if t, ok := s.Tickers[symbol]; ok {
		if side == model.SideBuy {
			price = t.Ask
		} else {
			price = t.Bid
		}
	}
	return &model.Order{
		ID:           fmt.Sprintf("%s-%d", s.Name(), len(s.orders)),
		Symbol:       symbol,
		Side:         side,
		FilledAmount: amount,
		AvgPrice:     price,
	}, nil
}

func (s *StubProvider) AmountPrecision(symbol string) int {
	if s.Precision > 0 {
		return s.Precision
	}
	return 6
}

func (s *StubProvider) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Orders returns a copy of the recorded order calls.
func (s *StubProvider) Orders() []PlacedOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PlacedOrder, len(s.orders))
	copy(out, s.orders)
	return out
}

// Closed reports whether Close was called.
func (s *StubProvider) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

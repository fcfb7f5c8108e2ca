package port

import (
	"context"

	"spotarb/internal/domain/model"
)

// MarketDataProvider is one exchange connection. Symbols are unified
// ("BTC/USDT"); implementations translate to their native format.
type MarketDataProvider interface {
	Name() string

	// LoadMarkets fetches the tradable symbol list and per-symbol amount
	// precisions. Must succeed before the provider is considered ready.
	LoadMarkets(ctx context.Context) error

	// FetchAllTickers returns the full ticker snapshot keyed by unified symbol.
	FetchAllTickers(ctx context.Context) (map[string]model.Ticker, error)

	// FetchTicker returns the current ticker for one unified symbol.
	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)

	// FetchBalance returns non-zero account balances keyed by asset.
	FetchBalance(ctx context.Context) (map[string]model.Balance, error)

	// PlaceMarketOrder submits a market order for amount base units.
	PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount float64) (*model.Order, error)

	// AmountPrecision returns the amount decimal places for the symbol.
	AmountPrecision(symbol string) int

	Close() error
}

package port

import (
	"context"

	"spotarb/internal/domain/model"
)

// TradeRecord is the journal row for an executed (or failed) two-leg trade.
type TradeRecord struct {
	ID           string
	RequesterID  string
	Symbol       string
	BuyExchange  string
	SellExchange string
	AmountQuote  float64
	BoughtAmount float64
	SoldAmount   float64
	BuyOrderID   string
	SellOrderID  string
	Status       string
	Message      string
	Ts           int64 // unix ms
}

// Repository journals detected signals and executed trades. Backends that do
// not support a read path may return (nil, nil) from LatestSignal.
type Repository interface {
	SaveSignal(ctx context.Context, sig *model.Signal) error
	LatestSignal(ctx context.Context, symbol string) (*model.Signal, error)
	SaveTrade(ctx context.Context, rec *TradeRecord) error
	Close() error
}

// NoopRepo discards everything. Used when no storage backend is enabled.
type NoopRepo struct{}

func NewNoopRepo() *NoopRepo { return &NoopRepo{} }

func (n *NoopRepo) SaveSignal(ctx context.Context, sig *model.Signal) error { return nil }

func (n *NoopRepo) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	return nil, nil
}

func (n *NoopRepo) SaveTrade(ctx context.Context, rec *TradeRecord) error { return nil }

func (n *NoopRepo) Close() error { return nil }

var _ Repository = (*NoopRepo)(nil)

package port

import "spotarb/internal/domain/model"

// ExchangeHandle pairs a ready provider with its registry metadata.
type ExchangeHandle struct {
	Name     string
	Provider MarketDataProvider
	TakerFee float64
}

// ExchangeDirectory is the read side of the exchange registry. Handles are
// returned in configuration order so downstream ranking stays deterministic;
// readiness is mutated only by the registry itself.
type ExchangeDirectory interface {
	ReadyExchanges() []ExchangeHandle
	Handle(name string) (ExchangeHandle, bool)
	Status() []model.ExchangeStatus
}

package model

import "time"

// Readiness of a configured exchange connection.
type Readiness string

const (
	ReadinessReady        Readiness = "ready"
	ReadinessUnavailable  Readiness = "unavailable"
	ReadinessUnconfigured Readiness = "unconfigured"
)

// Side of an order, exchange-neutral.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Ticker is one exchange's raw market view of a symbol.
type Ticker struct {
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	QuoteVolume float64 `json:"quote_volume"` // quote-currency volume, last hour window
}

// Valid reports whether the ticker carries a usable two-sided price.
func (t Ticker) Valid() bool {
	return t.Bid > 0 && t.Ask > 0
}

// Quote is a single exchange's view of a symbol at a point in time.
// Built fresh each scan cycle, never persisted.
type Quote struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"` // unified, e.g. BTC/USDT
	MidPrice      float64 `json:"mid_price"`
	QuoteVolume1h float64 `json:"quote_volume_1h"`
}

// Signal is a detected arbitrage opportunity for one symbol in one cycle.
type Signal struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	BuyExchange    string    `json:"buy_exchange"`
	SellExchange   string    `json:"sell_exchange"`
	BuyPrice       float64   `json:"buy_price"`
	SellPrice      float64   `json:"sell_price"`
	GrossSpreadPct float64   `json:"gross_spread_pct"`
	NetProfitPct   float64   `json:"net_profit_pct"` // after both legs' taker fees
	MinVolume1h    float64   `json:"min_volume_1h"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
	AgeMinutes     float64   `json:"age_minutes"`
	SeenCount      int       `json:"seen_count"` // consecutive cycles the symbol was detected
}

// Balance is one asset's balance on one exchange.
type Balance struct {
	Free  float64 `json:"free"`
	Total float64 `json:"total"`
}

// Order is the result of a placed market order.
type Order struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Side         Side    `json:"side"`
	FilledAmount float64 `json:"filled_amount"` // base units
	AvgPrice     float64 `json:"avg_price"`
}

// TradeState is the lifecycle of a pending two-leg trade.
type TradeState string

const (
	TradeAwaitingAmount       TradeState = "awaiting_amount"
	TradeAwaitingConfirmation TradeState = "awaiting_confirmation"
	TradeExecuting            TradeState = "executing"
	TradeCompleted            TradeState = "completed"
	TradePartiallyFailed      TradeState = "partially_failed"
	TradeFailed               TradeState = "failed" // clean failure, nothing to unwind
	TradeCancelled            TradeState = "cancelled"
)

// PendingTrade is an in-flight two-leg trade request tied to one requester.
// At most one exists per requester at any time.
type PendingTrade struct {
	ID                    string     `json:"id"`
	RequesterID           string     `json:"requester_id"`
	Symbol                string     `json:"symbol"`
	BuyExchange           string     `json:"buy_exchange"`
	SellExchange          string     `json:"sell_exchange"`
	State                 TradeState `json:"state"`
	AmountQuote           float64    `json:"amount_quote"` // quote-currency size
	QuotedBuyPrice        float64    `json:"quoted_buy_price"`
	QuotedSellPrice       float64    `json:"quoted_sell_price"`
	EstimatedNetProfitPct float64    `json:"estimated_net_profit_pct"`
	CreatedAt             time.Time  `json:"created_at"`
}

// PendingTradeView is the snapshot handed back to the requesting front end.
type PendingTradeView struct {
	ID                    string     `json:"id"`
	Symbol                string     `json:"symbol"`
	BuyExchange           string     `json:"buy_exchange"`
	SellExchange          string     `json:"sell_exchange"`
	State                 TradeState `json:"state"`
	AmountQuote           float64    `json:"amount_quote"`
	QuotedBuyPrice        float64    `json:"quoted_buy_price"`
	QuotedSellPrice       float64    `json:"quoted_sell_price"`
	EstimatedNetProfitPct float64    `json:"estimated_net_profit_pct"`
	AmountPresets         []float64  `json:"amount_presets,omitempty"`
}

// TradeOutcome reports the terminal result of an executed (or failed) trade.
type TradeOutcome struct {
	TradeID      string     `json:"trade_id"`
	RequesterID  string     `json:"requester_id"`
	Symbol       string     `json:"symbol"`
	State        TradeState `json:"state"`
	BuyExchange  string     `json:"buy_exchange"`
	SellExchange string     `json:"sell_exchange"`
	BoughtAmount float64    `json:"bought_amount"`
	SoldAmount   float64    `json:"sold_amount"`
	BuyOrderID   string     `json:"buy_order_id,omitempty"`
	SellOrderID  string     `json:"sell_order_id,omitempty"`
	Message      string     `json:"message"` // human-readable, names the offending exchange on failure
	Err          error      `json:"-"`       // nil on success; wraps ErrInsufficientFunds, ErrPartialExecution or ErrProvider
	ClosedAt     time.Time  `json:"closed_at"`
}

// ExchangeStatus is one registry entry's health, for status displays.
type ExchangeStatus struct {
	Name      string    `json:"name"`
	Readiness Readiness `json:"readiness"`
	LastError string    `json:"last_error,omitempty"`
	TakerFee  float64   `json:"taker_fee"`
}

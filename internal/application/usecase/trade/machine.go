package trade

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

type MachineDeps struct {
	Directory      port.ExchangeDirectory
	Repo           port.Repository
	RequestTimeout time.Duration
	AmountPresets  []float64
}

// Machine drives the two-leg trade lifecycle: a requester selects a signal,
// enters an amount, confirms, and the buy and sell legs execute in order.
// At most one pending trade exists per requester; once a trade is executing
// no further mutation is permitted.
type Machine struct {
	deps MachineDeps

	mu      sync.Mutex
	pending map[string]*model.PendingTrade // requesterID -> trade
}

func NewMachine(deps MachineDeps) *Machine {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 15 * time.Second
	}
	if deps.Repo == nil {
		deps.Repo = port.NewNoopRepo()
	}
	return &Machine{
		deps:    deps,
		pending: make(map[string]*model.PendingTrade),
	}
}

// Select opens a pending trade for the requester from a detected signal. A
// prior trade still awaiting amount or confirmation is replaced; an executing
// trade is untouchable.
func (m *Machine) Select(requesterID string, sig *model.Signal) (*model.PendingTradeView, error) {
	if sig == nil || sig.Symbol == "" {
		return nil, fmt.Errorf("%w: no signal selected", model.ErrValidation)
	}
	if _, ok := m.deps.Directory.Handle(sig.BuyExchange); !ok {
		return nil, fmt.Errorf("%w: exchange %s is not ready", model.ErrValidation, sig.BuyExchange)
	}
	if _, ok := m.deps.Directory.Handle(sig.SellExchange); !ok {
		return nil, fmt.Errorf("%w: exchange %s is not ready", model.ErrValidation, sig.SellExchange)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.pending[requesterID]; ok && prev.State == model.TradeExecuting {
		return nil, fmt.Errorf("%w: a trade is already executing", model.ErrValidation)
	}

	pt := &model.PendingTrade{
		ID:           uuid.NewString(),
		RequesterID:  requesterID,
		Symbol:       sig.Symbol,
		BuyExchange:  sig.BuyExchange,
		SellExchange: sig.SellExchange,
		State:        model.TradeAwaitingAmount,
		CreatedAt:    time.Now(),
	}
	m.pending[requesterID] = pt
	return m.viewLocked(pt), nil
}

// SetAmount accepts the requester's quote-currency amount as typed ("25",
// "12,5"). Invalid input leaves the state unchanged. A valid amount triggers
// a live re-quote on both legs (never trust the signal's stale prices) and
// moves the trade to AwaitingConfirmation.
func (m *Machine) SetAmount(ctx context.Context, requesterID, input string) (*model.PendingTradeView, error) {
	amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(input), ",", "."), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q is not a number", model.ErrValidation, input)
	}
	return m.setAmount(ctx, requesterID, amount)
}

// Submit is the one-shot front-end entry: select a signal and set the amount
// in a single call.
func (m *Machine) Submit(ctx context.Context, requesterID string, sig *model.Signal, amountQuote float64) (*model.PendingTradeView, error) {
	if _, err := m.Select(requesterID, sig); err != nil {
		return nil, err
	}
	return m.setAmount(ctx, requesterID, amountQuote)
}

func (m *Machine) setAmount(ctx context.Context, requesterID string, amount float64) (*model.PendingTradeView, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, fmt.Errorf("%w: amount must be positive", model.ErrValidation)
	}

	m.mu.Lock()
	pt, ok := m.pending[requesterID]
	if !ok || (pt.State != model.TradeAwaitingAmount && pt.State != model.TradeAwaitingConfirmation) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: no trade awaiting an amount", model.ErrValidation)
	}
	tradeID := pt.ID
	buyEx, sellEx, symbol := pt.BuyExchange, pt.SellExchange, pt.Symbol
	m.mu.Unlock()

	ask, bid, err := m.liveQuotes(ctx, symbol, buyEx, sellEx)
	if err != nil {
		return nil, err
	}

	buyHandle, _ := m.deps.Directory.Handle(buyEx)
	sellHandle, _ := m.deps.Directory.Handle(sellEx)
	estNet := (bid/ask-1)*100 - (buyHandle.TakerFee+sellHandle.TakerFee)*100

	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok = m.pending[requesterID]
	// The trade that was quoted must still be the trade being amended. A
	// re-selection during the quote round trip opened a fresh trade; writing
	// the old symbol's prices onto it would arm a confirm at the wrong book.
	if !ok || pt.ID != tradeID || (pt.State != model.TradeAwaitingAmount && pt.State != model.TradeAwaitingConfirmation) {
		return nil, fmt.Errorf("%w: trade changed while quoting, select it again", model.ErrValidation)
	}
	pt.AmountQuote = amount
	pt.QuotedBuyPrice = ask
	pt.QuotedSellPrice = bid
	pt.EstimatedNetProfitPct = estNet
	pt.State = model.TradeAwaitingConfirmation
	return m.viewLocked(pt), nil
}

// Cancel releases the requester's pending trade. Executing trades cannot be
// cancelled.
func (m *Machine) Cancel(requesterID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, ok := m.pending[requesterID]
	if !ok {
		return fmt.Errorf("%w: nothing to cancel", model.ErrValidation)
	}
	if pt.State == model.TradeExecuting {
		return fmt.Errorf("%w: trade is executing and cannot be cancelled", model.ErrValidation)
	}
	delete(m.pending, requesterID)
	return nil
}

// Confirm executes the pending trade: buy leg first, then the sell leg. All
// provider failures are converted into a reported outcome; nothing propagates
// past the machine boundary.
func (m *Machine) Confirm(ctx context.Context, requesterID string) (*model.TradeOutcome, error) {
	m.mu.Lock()
	pt, ok := m.pending[requesterID]
	if !ok || pt.State != model.TradeAwaitingConfirmation {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: no trade awaiting confirmation", model.ErrValidation)
	}
	pt.State = model.TradeExecuting
	snapshot := *pt
	m.mu.Unlock()

	outcome := m.execute(ctx, &snapshot)

	m.mu.Lock()
	delete(m.pending, requesterID)
	m.mu.Unlock()

	m.journal(ctx, &snapshot, outcome)
	return outcome, nil
}

// Pending returns the requester's current pending trade, if any.
func (m *Machine) Pending(requesterID string) (*model.PendingTradeView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pt, ok := m.pending[requesterID]
	if !ok {
		return nil, false
	}
	return m.viewLocked(pt), true
}

func (m *Machine) execute(ctx context.Context, pt *model.PendingTrade) *model.TradeOutcome {
	out := &model.TradeOutcome{
		TradeID:      pt.ID,
		RequesterID:  pt.RequesterID,
		Symbol:       pt.Symbol,
		BuyExchange:  pt.BuyExchange,
		SellExchange: pt.SellExchange,
	}
	base, quote := splitSymbol(pt.Symbol)
	buyHandle, _ := m.deps.Directory.Handle(pt.BuyExchange)
	sellHandle, _ := m.deps.Directory.Handle(pt.SellExchange)

	// Buy leg. Balance check happens before any order is placed, so a funding
	// problem is a clean failure, never a partial fill.
	fctx, cancel := context.WithTimeout(ctx, m.deps.RequestTimeout)
	balances, err := buyHandle.Provider.FetchBalance(fctx)
	cancel()
	if err != nil {
		return failOutcome(out, fmt.Errorf("%w: balance check failed on %s: %v", model.ErrProvider, pt.BuyExchange, firstLine(err)))
	}
	free := balances[quote].Free
	if free <= 0 {
		return failOutcome(out, fmt.Errorf("%w: no free %s on %s", model.ErrInsufficientFunds, quote, pt.BuyExchange))
	}

	spend := math.Min(pt.AmountQuote, free)
	baseEstimate := spend * (1 - buyHandle.TakerFee) / pt.QuotedBuyPrice
	buyAmount := truncateTo(baseEstimate, buyHandle.Provider.AmountPrecision(pt.Symbol))
	if buyAmount <= 0 {
		return failOutcome(out, fmt.Errorf("%w: amount %.8f below %s minimum precision", model.ErrInsufficientFunds, baseEstimate, pt.BuyExchange))
	}

	fctx, cancel = context.WithTimeout(ctx, m.deps.RequestTimeout)
	buyOrder, err := buyHandle.Provider.PlaceMarketOrder(fctx, pt.Symbol, model.SideBuy, buyAmount)
	cancel()
	if err != nil {
		return failOutcome(out, fmt.Errorf("%w: buy failed on %s: %v", model.ErrProvider, pt.BuyExchange, firstLine(err)))
	}
	out.BuyOrderID = buyOrder.ID
	out.BoughtAmount = buyOrder.FilledAmount
	log.Info().
		Str("requester", pt.RequesterID).
		Str("symbol", pt.Symbol).
		Str("exchange", pt.BuyExchange).
		Float64("amount", buyOrder.FilledAmount).
		Msg("buy leg filled")

	// Sell leg. From here on a failure leaves an open position: report it,
	// never unwind or retry automatically.
	fctx, cancel = context.WithTimeout(ctx, m.deps.RequestTimeout)
	sellBalances, err := sellHandle.Provider.FetchBalance(fctx)
	cancel()
	if err != nil {
		return partialOutcome(out, fmt.Errorf(
			"%w: buy filled on %s but balance check failed on %s: %v, reconcile manually",
			model.ErrPartialExecution, pt.BuyExchange, pt.SellExchange, firstLine(err)))
	}
	baseFree := sellBalances[base].Free
	sellAmount := truncateTo(math.Min(baseFree, out.BoughtAmount), sellHandle.Provider.AmountPrecision(pt.Symbol))
	if sellAmount <= 0 {
		return partialOutcome(out, fmt.Errorf(
			"%w: buy filled on %s but no free %s on %s, reconcile manually",
			model.ErrPartialExecution, pt.BuyExchange, base, pt.SellExchange))
	}

	fctx, cancel = context.WithTimeout(ctx, m.deps.RequestTimeout)
	sellOrder, err := sellHandle.Provider.PlaceMarketOrder(fctx, pt.Symbol, model.SideSell, sellAmount)
	cancel()
	if err != nil {
		return partialOutcome(out, fmt.Errorf(
			"%w: buy filled on %s but sell failed on %s: %v, reconcile manually",
			model.ErrPartialExecution, pt.BuyExchange, pt.SellExchange, firstLine(err)))
	}
	out.SellOrderID = sellOrder.ID
	out.SoldAmount = sellOrder.FilledAmount

	out.State = model.TradeCompleted
	out.Message = fmt.Sprintf("bought %.8f %s on %s, sold %.8f on %s",
		out.BoughtAmount, base, pt.BuyExchange, out.SoldAmount, pt.SellExchange)
	out.ClosedAt = time.Now()
	return out
}

func (m *Machine) liveQuotes(ctx context.Context, symbol, buyEx, sellEx string) (ask, bid float64, err error) {
	buyHandle, _ := m.deps.Directory.Handle(buyEx)
	sellHandle, _ := m.deps.Directory.Handle(sellEx)

	fctx, cancel := context.WithTimeout(ctx, m.deps.RequestTimeout)
	defer cancel()

	buyTicker, err := buyHandle.Provider.FetchTicker(fctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: quote fetch failed on %s: %v", model.ErrProvider, buyEx, firstLine(err))
	}
	sellTicker, err := sellHandle.Provider.FetchTicker(fctx, symbol)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: quote fetch failed on %s: %v", model.ErrProvider, sellEx, firstLine(err))
	}
	if buyTicker.Ask <= 0 || sellTicker.Bid <= 0 {
		return 0, 0, fmt.Errorf("%w: stale one-sided quote for %s", model.ErrProvider, symbol)
	}
	return buyTicker.Ask, sellTicker.Bid, nil
}

func (m *Machine) journal(ctx context.Context, pt *model.PendingTrade, out *model.TradeOutcome) {
	rec := &port.TradeRecord{
		ID:           pt.ID,
		RequesterID:  pt.RequesterID,
		Symbol:       pt.Symbol,
		BuyExchange:  pt.BuyExchange,
		SellExchange: pt.SellExchange,
		AmountQuote:  pt.AmountQuote,
		BoughtAmount: out.BoughtAmount,
		SoldAmount:   out.SoldAmount,
		BuyOrderID:   out.BuyOrderID,
		SellOrderID:  out.SellOrderID,
		Status:       string(out.State),
		Message:      out.Message,
		Ts:           time.Now().UnixMilli(),
	}
	if err := m.deps.Repo.SaveTrade(ctx, rec); err != nil {
		log.Error().Err(err).Str("trade", pt.ID).Msg("trade journal write failed")
	}
}

func (m *Machine) viewLocked(pt *model.PendingTrade) *model.PendingTradeView {
	return &model.PendingTradeView{
		ID:                    pt.ID,
		Symbol:                pt.Symbol,
		BuyExchange:           pt.BuyExchange,
		SellExchange:          pt.SellExchange,
		State:                 pt.State,
		AmountQuote:           pt.AmountQuote,
		QuotedBuyPrice:        pt.QuotedBuyPrice,
		QuotedSellPrice:       pt.QuotedSellPrice,
		EstimatedNetProfitPct: pt.EstimatedNetProfitPct,
		AmountPresets:         m.deps.AmountPresets,
	}
}

func failOutcome(out *model.TradeOutcome, err error) *model.TradeOutcome {
	out.State = model.TradeFailed
	out.Err = err
	out.Message = err.Error()
	out.ClosedAt = time.Now()
	return out
}

func partialOutcome(out *model.TradeOutcome, err error) *model.TradeOutcome {
	out.State = model.TradePartiallyFailed
	out.Err = err
	out.Message = err.Error()
	out.ClosedAt = time.Now()
	return out
}

// truncateTo floors an amount to the exchange's accepted decimals. Rounding
// up could exceed the available balance.
func truncateTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow10(decimals)
	return math.Floor(v*p) / p
}

func splitSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(symbol, "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

func firstLine(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const maxLen = 160
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

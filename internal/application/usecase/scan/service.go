package scan

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
	"spotarb/internal/domain/service"
)

// ErrCycleRunning is returned when a trigger fires while the previous cycle
// is still in flight. The new invocation is skipped, not queued.
var ErrCycleRunning = errors.New("scan cycle already running")

type ServiceDeps struct {
	Directory port.ExchangeDirectory
	Universe  *UniverseBuilder
	Agg       *Aggregator
	Evaluator *service.Evaluator
	Tracker   *service.Tracker
	Repo      port.Repository
	Sink      port.Sink
	TopK      int // cap on signals returned per cycle
}

// Service drives one scan cycle: universe -> quotes -> evaluation -> tracking
// -> persistence -> notification. Reentrant; overlapping triggers are skipped.
type Service struct {
	deps    ServiceDeps
	running atomic.Bool
}

func NewService(deps ServiceDeps) *Service {
	if deps.TopK <= 0 {
		deps.TopK = 10
	}
	if deps.Repo == nil {
		deps.Repo = port.NewNoopRepo()
	}
	return &Service{deps: deps}
}

// RunScanCycle executes one full scan and returns the enriched signal batch.
func (s *Service) RunScanCycle(ctx context.Context) ([]*model.Signal, error) {
	if !s.running.CompareAndSwap(false, true) {
		log.Warn().Msg("previous scan cycle still running, skipping")
		return nil, ErrCycleRunning
	}
	defer s.running.Store(false)

	started := time.Now()
	ready := s.deps.Directory.ReadyExchanges()
	if len(ready) < 2 {
		log.Warn().Int("ready", len(ready)).Msg("fewer than two ready exchanges, nothing to compare")
		return nil, nil
	}

	symbols := s.deps.Universe.Build(ctx, ready, func(exchange string, err error) {
		log.Error().Str("exchange", exchange).Err(err).Msg("ticker list fetch failed")
		_ = s.deps.Sink.ReportError(exchange, err)
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	quotes := s.deps.Agg.FetchAll(ctx, symbols, ready)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var signals []*model.Signal
	for symbol, perExchange := range quotes {
		if sig := s.evaluateSafe(symbol, perExchange); sig != nil {
			signals = append(signals, sig)
		}
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].NetProfitPct != signals[j].NetProfitPct {
			return signals[i].NetProfitPct > signals[j].NetProfitPct
		}
		return signals[i].Symbol < signals[j].Symbol
	})
	if len(signals) > s.deps.TopK {
		signals = signals[:s.deps.TopK]
	}

	signals = s.deps.Tracker.Reconcile(signals)

	for _, sig := range signals {
		if err := s.deps.Repo.SaveSignal(ctx, sig); err != nil {
			log.Error().Err(err).Str("symbol", sig.Symbol).Msg("save signal failed")
		}
	}

	if s.deps.Tracker.ShouldNotify(signals) {
		if err := s.deps.Sink.PublishSignals(signals); err != nil {
			log.Error().Err(err).Msg("publish signals failed")
		}
	} else if len(signals) > 0 {
		log.Debug().Int("signals", len(signals)).Msg("identical batch, notification suppressed")
	}

	log.Info().
		Int("exchanges", len(ready)).
		Int("symbols", len(symbols)).
		Int("signals", len(signals)).
		Dur("took", time.Since(started)).
		Msg("scan cycle done")

	return signals, nil
}

// evaluateSafe guards one symbol's evaluation: a panic skips the symbol, the
// cycle continues.
func (s *Service) evaluateSafe(symbol string, quotes map[string]model.Quote) (sig *model.Signal) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("symbol", symbol).Interface("panic", r).Msg("evaluation panicked, symbol skipped")
			sig = nil
		}
	}()
	return s.deps.Evaluator.Evaluate(symbol, quotes)
}

// Balances fetches free/total balances per asset across ready exchanges.
// Read-only, used for status displays; a failing exchange is omitted.
func (s *Service) Balances(ctx context.Context) map[string]map[string]model.Balance {
	out := make(map[string]map[string]model.Balance)
	for _, h := range s.deps.Directory.ReadyExchanges() {
		b, err := h.Provider.FetchBalance(ctx)
		if err != nil {
			log.Error().Str("exchange", h.Name).Err(err).Msg("balance fetch failed")
			_ = s.deps.Sink.ReportError(h.Name, err)
			continue
		}
		out[h.Name] = b
	}
	return out
}

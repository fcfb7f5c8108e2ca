package scan

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

// Aggregator fans out one ticker fetch per (symbol, exchange) pair under a
// bounded concurrency limit. Per-exchange ticker fetches dominate the cycle's
// I/O cost; the limit keeps rate-limited exchange APIs from being overwhelmed.
type Aggregator struct {
	concurrency int
	timeout     time.Duration
}

func NewAggregator(concurrency int, timeout time.Duration) *Aggregator {
	if concurrency <= 0 {
		concurrency = 16
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{concurrency: concurrency, timeout: timeout}
}

// FetchAll returns symbol -> exchange -> Quote for every pair that yielded a
// valid two-sided price. Timeouts and fetch errors leave the pair absent; a
// cancelled context discards the half-built map.
func (a *Aggregator) FetchAll(ctx context.Context, symbols []string, exchanges []port.ExchangeHandle) map[string]map[string]model.Quote {
	var (
		mu  sync.Mutex
		out = make(map[string]map[string]model.Quote, len(symbols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, symbol := range symbols {
		symbol := symbol
		for _, h := range exchanges {
			h := h
			g.Go(func() error {
				fctx, cancel := context.WithTimeout(gctx, a.timeout)
				defer cancel()

				t, err := h.Provider.FetchTicker(fctx, symbol)
				if err != nil || !t.Valid() {
					// missing this cycle, not retried
					return nil
				}

				q := model.Quote{
					Exchange:      h.Name,
					Symbol:        symbol,
					MidPrice:      (t.Bid + t.Ask) / 2,
					QuoteVolume1h: t.QuoteVolume,
				}

				mu.Lock()
				m := out[symbol]
				if m == nil {
					m = make(map[string]model.Quote, len(exchanges))
					out[symbol] = m
				}
				m[h.Name] = q
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return map[string]map[string]model.Quote{}
	}
	return out
}

// FetchQuotes aggregates a single symbol. Returns the partial map even when
// every exchange fails; the evaluator owns the <2 quotes short-circuit.
func (a *Aggregator) FetchQuotes(ctx context.Context, symbol string, exchanges []port.ExchangeHandle) map[string]model.Quote {
	all := a.FetchAll(ctx, []string{symbol}, exchanges)
	if m, ok := all[symbol]; ok {
		return m
	}
	return map[string]model.Quote{}
}

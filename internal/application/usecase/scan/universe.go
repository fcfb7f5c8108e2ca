package scan

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

// UniverseBuilder collects each ready exchange's most liquid quote-currency
// pairs and unions them into the cycle's candidate symbol set.
type UniverseBuilder struct {
	quote   string // e.g. "USDT"
	topN    int
	timeout time.Duration
}

func NewUniverseBuilder(quote string, topN int, timeout time.Duration) *UniverseBuilder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UniverseBuilder{
		quote:   strings.ToUpper(strings.TrimSpace(quote)),
		topN:    topN,
		timeout: timeout,
	}
}

// Build fetches all tickers from every ready exchange concurrently and unions
// the per-exchange top-N. A failing exchange is reported and contributes
// nothing; it never aborts the cycle. The result is sorted for reproducible
// downstream iteration.
func (b *UniverseBuilder) Build(ctx context.Context, exchanges []port.ExchangeHandle, report func(exchange string, err error)) []string {
	var (
		mu    sync.Mutex
		union = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, h := range exchanges {
		h := h
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, b.timeout)
			defer cancel()

			tickers, err := h.Provider.FetchAllTickers(fctx)
			if err != nil {
				if report != nil {
					report(h.Name, err)
				}
				return nil
			}

			top := b.rank(tickers)
			mu.Lock()
			for _, s := range top {
				union[s] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(union))
	for s := range union {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// rank filters one exchange's tickers to spot quote-currency pairs and keeps
// the top-N by quote volume. Volume ties break by symbol lexical order.
func (b *UniverseBuilder) rank(tickers map[string]model.Ticker) []string {
	suffix := "/" + b.quote

	type row struct {
		symbol string
		volume float64
	}
	rows := make([]row, 0, len(tickers))
	for symbol, t := range tickers {
		// ":" marks derivative/contract symbols, e.g. BTC/USDT:USDT
		if !strings.HasSuffix(symbol, suffix) || strings.Contains(symbol, ":") {
			continue
		}
		rows = append(rows, row{symbol: symbol, volume: t.QuoteVolume})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].volume != rows[j].volume {
			return rows[i].volume > rows[j].volume
		}
		return rows[i].symbol < rows[j].symbol
	})

	n := b.topN
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	out := make([]string, 0, n)
	for _, r := range rows[:n] {
		out = append(out, r.symbol)
	}
	return out
}

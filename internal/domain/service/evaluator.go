package service

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"spotarb/internal/domain/model"
)

// VolumeMode selects how the per-symbol volume filter aggregates across
// exchanges. Source deployments disagree on min vs average, so it is
// configurable rather than hard-coded.
type VolumeMode string

const (
	VolumeModeMin VolumeMode = "min"
	VolumeModeAvg VolumeMode = "avg"
)

// DefaultTakerFee is the fallback taker fee fraction when an exchange has no
// configured override.
const DefaultTakerFee = 0.001

// Evaluator computes fee-adjusted spreads and emits Signal candidates.
// Stateless and clock-free: timestamps are assigned by the Tracker.
type Evaluator struct {
	minProfitPct float64
	minVolume    float64
	volumeMode   VolumeMode
	order        []string // exchange configuration order, breaks min/max ties
	fees         map[string]float64
}

func NewEvaluator(minProfitPct, minVolume float64, mode VolumeMode, order []string, fees map[string]float64) *Evaluator {
	if mode != VolumeModeAvg {
		mode = VolumeModeMin
	}
	if fees == nil {
		fees = map[string]float64{}
	}
	return &Evaluator{
		minProfitPct: minProfitPct,
		minVolume:    minVolume,
		volumeMode:   mode,
		order:        order,
		fees:         fees,
	}
}

// FeeFor returns the taker fee fraction for an exchange.
func (e *Evaluator) FeeFor(exchange string) float64 {
	if f, ok := e.fees[exchange]; ok && f >= 0 {
		return f
	}
	return DefaultTakerFee
}

// Evaluate returns a Signal when the symbol's cross-exchange spread clears the
// volume and fee-adjusted profit filters, nil otherwise. Quotes from fewer
// than two exchanges never produce a signal. With more than two exchanges only
// the global min/max pair is reported.
func (e *Evaluator) Evaluate(symbol string, quotes map[string]model.Quote) *model.Signal {
	if len(quotes) < 2 {
		return nil
	}

	var (
		buyEx, sellEx string
		buyPx, sellPx float64
	)
	// First-registered exchange wins ties, so walk configuration order.
	for _, ex := range e.ordered(quotes) {
		q := quotes[ex]
		if q.MidPrice <= 0 {
			continue
		}
		if buyEx == "" || q.MidPrice < buyPx {
			buyEx, buyPx = ex, q.MidPrice
		}
		if sellEx == "" || q.MidPrice > sellPx {
			sellEx, sellPx = ex, q.MidPrice
		}
	}
	if buyEx == "" || sellEx == "" || buyEx == sellEx {
		return nil
	}

	grossPct := (sellPx/buyPx - 1) * 100
	if grossPct < e.minProfitPct {
		return nil
	}

	vol := e.aggregateVolume(quotes)
	if vol < e.minVolume {
		return nil
	}

	netPct := grossPct - (e.FeeFor(buyEx)+e.FeeFor(sellEx))*100
	if netPct < e.minProfitPct {
		return nil
	}

	return &model.Signal{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		BuyExchange:    buyEx,
		SellExchange:   sellEx,
		BuyPrice:       roundTo(buyPx, 6),
		SellPrice:      roundTo(sellPx, 6),
		GrossSpreadPct: roundTo(grossPct, 2),
		NetProfitPct:   roundTo(netPct, 2),
		MinVolume1h:    roundTo(vol, 2),
	}
}

// ordered returns the quote keys in exchange configuration order; exchanges
// missing from the configured order (stub setups in tests) follow after.
func (e *Evaluator) ordered(quotes map[string]model.Quote) []string {
	out := make([]string, 0, len(quotes))
	seen := make(map[string]struct{}, len(quotes))
	for _, ex := range e.order {
		if _, ok := quotes[ex]; ok {
			out = append(out, ex)
			seen[ex] = struct{}{}
		}
	}
	if len(out) < len(quotes) {
		rest := make([]string, 0, len(quotes)-len(out))
		for ex := range quotes {
			if _, ok := seen[ex]; !ok {
				rest = append(rest, ex)
			}
		}
		sort.Strings(rest)
		out = append(out, rest...)
	}
	return out
}

func (e *Evaluator) aggregateVolume(quotes map[string]model.Quote) float64 {
	if e.volumeMode == VolumeModeAvg {
		var sum float64
		for _, q := range quotes {
			sum += q.QuoteVolume1h
		}
		return sum / float64(len(quotes))
	}

	min := math.MaxFloat64
	for _, q := range quotes {
		if q.QuoteVolume1h < min {
			min = q.QuoteVolume1h
		}
	}
	return min
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotarb/internal/domain/model"
)

func quotesFor(mids map[string]float64, volume float64) map[string]model.Quote {
	out := make(map[string]model.Quote, len(mids))
	for ex, mid := range mids {
		out[ex] = model.Quote{Exchange: ex, Symbol: "ABC/USDT", MidPrice: mid, QuoteVolume1h: volume}
	}
	return out
}

func TestEvaluateDetectsSpread(t *testing.T) {
	e := NewEvaluator(1.2, 500_000, VolumeModeMin,
		[]string{"binance", "bybit", "mexc"},
		map[string]float64{"binance": 0.001, "mexc": 0.001})

	sig := e.Evaluate("ABC/USDT", quotesFor(map[string]float64{
		"binance": 100.0,
		"mexc":    103.0,
	}, 600_000))

	require.NotNil(t, sig)
	assert.Equal(t, "binance", sig.BuyExchange)
	assert.Equal(t, "mexc", sig.SellExchange)
	assert.InDelta(t, 100.0, sig.BuyPrice, 1e-9)
	assert.InDelta(t, 103.0, sig.SellPrice, 1e-9)
	assert.InDelta(t, 3.00, sig.GrossSpreadPct, 1e-9)
	// 3% gross minus 0.1% taker on each leg
	assert.InDelta(t, 2.80, sig.NetProfitPct, 1e-9)
	assert.NotEmpty(t, sig.ID)
}

func TestEvaluateNeedsTwoExchanges(t *testing.T) {
	e := NewEvaluator(1.2, 0, VolumeModeMin, nil, nil)

	assert.Nil(t, e.Evaluate("ABC/USDT", nil))
	assert.Nil(t, e.Evaluate("ABC/USDT", quotesFor(map[string]float64{"binance": 100}, 1e6)))
}

func TestEvaluateRejectsThinSpread(t *testing.T) {
	e := NewEvaluator(1.2, 0, VolumeModeMin, nil, nil)

	sig := e.Evaluate("ABC/USDT", quotesFor(map[string]float64{
		"binance": 100.0,
		"mexc":    101.0, // 1% gross, below 1.2%
	}, 1e6))
	assert.Nil(t, sig)
}

func TestEvaluateFeesCanKillASignal(t *testing.T) {
	// 1.3% gross clears the threshold, but 0.2% of fees drags net below it.
	e := NewEvaluator(1.2, 0, VolumeModeMin, nil,
		map[string]float64{"binance": 0.001, "mexc": 0.001})

	sig := e.Evaluate("ABC/USDT", quotesFor(map[string]float64{
		"binance": 100.0,
		"mexc":    101.3,
	}, 1e6))
	assert.Nil(t, sig)

	// Zero-fee exchanges let the same spread through.
	free := NewEvaluator(1.2, 0, VolumeModeMin, nil,
		map[string]float64{"binance": 0, "mexc": 0})
	assert.NotNil(t, free.Evaluate("ABC/USDT", quotesFor(map[string]float64{
		"binance": 100.0,
		"mexc":    101.3,
	}, 1e6)))
}

func TestEvaluateVolumeModes(t *testing.T) {
	quotes := map[string]model.Quote{
		"binance": {MidPrice: 100, QuoteVolume1h: 100_000},
		"mexc":    {MidPrice: 105, QuoteVolume1h: 2_000_000},
	}

	min := NewEvaluator(1.2, 500_000, VolumeModeMin, nil, map[string]float64{"binance": 0, "mexc": 0})
	assert.Nil(t, min.Evaluate("ABC/USDT", quotes), "min of both legs is below the floor")

	avg := NewEvaluator(1.2, 500_000, VolumeModeAvg, nil, map[string]float64{"binance": 0, "mexc": 0})
	sig := avg.Evaluate("ABC/USDT", quotes)
	require.NotNil(t, sig, "average clears the floor")
	assert.InDelta(t, 1_050_000, sig.MinVolume1h, 1e-6)
}

func TestEvaluateTieBreaksByConfigOrder(t *testing.T) {
	e := NewEvaluator(1.2, 0, VolumeModeMin,
		[]string{"binance", "bybit", "mexc"},
		map[string]float64{"binance": 0, "bybit": 0, "mexc": 0})

	// binance and bybit share the minimum; the first-configured one buys.
	sig := e.Evaluate("ABC/USDT", quotesFor(map[string]float64{
		"binance": 100.0,
		"bybit":   100.0,
		"mexc":    103.0,
	}, 1e6))
	require.NotNil(t, sig)
	assert.Equal(t, "binance", sig.BuyExchange)
	assert.Equal(t, "mexc", sig.SellExchange)
}

func TestEvaluateIgnoresNonPositiveMids(t *testing.T) {
	e := NewEvaluator(1.2, 0, VolumeModeMin, nil, map[string]float64{})

	sig := e.Evaluate("ABC/USDT", map[string]model.Quote{
		"binance": {MidPrice: 0, QuoteVolume1h: 1e6},
		"mexc":    {MidPrice: 103, QuoteVolume1h: 1e6},
	})
	assert.Nil(t, sig, "a single priced exchange cannot form a pair")
}

func TestEvaluateRoundsOutputs(t *testing.T) {
	e := NewEvaluator(1.0, 0, VolumeModeMin, nil, map[string]float64{"a": 0, "b": 0})

	sig := e.Evaluate("ABC/USDT", map[string]model.Quote{
		"a": {MidPrice: 0.123456789, QuoteVolume1h: 1e6},
		"b": {MidPrice: 0.130000001, QuoteVolume1h: 1e6},
	})
	require.NotNil(t, sig)
	assert.Equal(t, 0.123457, sig.BuyPrice)
	assert.Equal(t, 0.13, sig.SellPrice)
}

func TestFeeForFallsBack(t *testing.T) {
	e := NewEvaluator(1.2, 0, VolumeModeMin, nil, map[string]float64{"binance": 0.0008})

	assert.Equal(t, 0.0008, e.FeeFor("binance"))
	assert.Equal(t, DefaultTakerFee, e.FeeFor("unknown"))
}

package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotarb/internal/domain/model"
)

func sigFor(symbol string, net float64) *model.Signal {
	return &model.Signal{
		ID:           symbol + "-id",
		Symbol:       symbol,
		BuyExchange:  "binance",
		SellExchange: "mexc",
		BuyPrice:     100,
		SellPrice:    103,
		NetProfitPct: net,
	}
}

func trackerAt(ttl time.Duration, clock *time.Time) *Tracker {
	t := NewTracker(ttl)
	t.now = func() time.Time { return *clock }
	return t
}

func TestReconcileCarriesFirstSeenForward(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := trackerAt(0, &clock)

	first := tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.8)})
	require.Len(t, first, 1)
	assert.Equal(t, clock, first[0].FirstSeenAt)
	assert.Equal(t, 1, first[0].SeenCount)
	assert.Zero(t, first[0].AgeMinutes)

	clock = clock.Add(2 * time.Minute)
	second := tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.5)})
	require.Len(t, second, 1)
	assert.Equal(t, first[0].FirstSeenAt, second[0].FirstSeenAt)
	assert.Equal(t, 2, second[0].SeenCount)
	assert.InDelta(t, 2.0, second[0].AgeMinutes, 1e-9)
}

func TestReconcileDropsAbsentSymbols(t *testing.T) {
	clock := time.Now()
	tr := trackerAt(0, &clock)

	tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.8)})
	require.True(t, tr.Cached("BTC/USDT"))

	tr.Reconcile(nil)
	assert.False(t, tr.Cached("BTC/USDT"), "absent symbol drops immediately without TTL")

	// Reappearing after a drop starts a fresh streak.
	clock = clock.Add(5 * time.Minute)
	back := tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.8)})
	assert.Equal(t, 1, back[0].SeenCount)
	assert.Equal(t, clock, back[0].FirstSeenAt)
}

func TestReconcileTTLKeepsAbsentEntriesAlive(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := trackerAt(10*time.Minute, &clock)

	tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.8)})

	// Gone for one cycle, still inside the TTL.
	clock = clock.Add(4 * time.Minute)
	tr.Reconcile(nil)
	require.True(t, tr.Cached("BTC/USDT"))

	clock = clock.Add(4 * time.Minute)
	back := tr.Reconcile([]*model.Signal{sigFor("BTC/USDT", 2.8)})
	assert.Equal(t, 2, back[0].SeenCount, "streak survives a gap inside the TTL")
	assert.InDelta(t, 8.0, back[0].AgeMinutes, 1e-9)

	// Gone past the TTL drops the entry.
	clock = clock.Add(11 * time.Minute)
	tr.Reconcile(nil)
	assert.False(t, tr.Cached("BTC/USDT"))
}

func TestShouldNotifySuppressesIdenticalBatches(t *testing.T) {
	tr := NewTracker(0)

	batch := []*model.Signal{sigFor("BTC/USDT", 2.8), sigFor("ETH/USDT", 1.9)}
	assert.True(t, tr.ShouldNotify(batch))

	// Same content in fresh structs with new timestamps is still identical.
	again := []*model.Signal{sigFor("BTC/USDT", 2.8), sigFor("ETH/USDT", 1.9)}
	for _, s := range again {
		s.LastSeenAt = time.Now()
		s.SeenCount = 7
	}
	assert.False(t, tr.ShouldNotify(again))

	changed := []*model.Signal{sigFor("BTC/USDT", 2.9), sigFor("ETH/USDT", 1.9)}
	assert.True(t, tr.ShouldNotify(changed))
}

func TestShouldNotifyEmptyBatch(t *testing.T) {
	tr := NewTracker(0)
	assert.False(t, tr.ShouldNotify(nil))
	assert.False(t, tr.ShouldNotify([]*model.Signal{}))
}

func TestShouldNotifyHashSetStaysBounded(t *testing.T) {
	tr := NewTracker(0)

	for i := 0; i < maxBatchHashes+10; i++ {
		batch := []*model.Signal{sigFor(fmt.Sprintf("SYM%d/USDT", i), 2.0)}
		require.True(t, tr.ShouldNotify(batch))
	}
	assert.LessOrEqual(t, len(tr.hashes), maxBatchHashes+1)
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create repo failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSignalRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Millisecond)
	sig := &model.Signal{
		ID:             "sig-1",
		Symbol:         "BTC/USDT",
		BuyExchange:    "binance",
		SellExchange:   "mexc",
		BuyPrice:       100.123456,
		SellPrice:      103.0,
		GrossSpreadPct: 2.87,
		NetProfitPct:   2.67,
		MinVolume1h:    850000,
		FirstSeenAt:    now.Add(-4 * time.Minute),
		LastSeenAt:     now,
		SeenCount:      3,
	}
	if err := repo.SaveSignal(ctx, sig); err != nil {
		t.Fatalf("save signal failed: %v", err)
	}

	got, err := repo.LatestSignal(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("latest signal failed: %v", err)
	}
	if got == nil {
		t.Fatal("signal should not be nil")
	}
	if got.BuyExchange != "binance" || got.SellExchange != "mexc" {
		t.Errorf("exchange mismatch: %s / %s", got.BuyExchange, got.SellExchange)
	}
	if got.NetProfitPct != 2.67 {
		t.Errorf("net profit mismatch: got %v", got.NetProfitPct)
	}
	if got.SeenCount != 3 {
		t.Errorf("seen count mismatch: got %d", got.SeenCount)
	}
	if got.AgeMinutes < 3.9 || got.AgeMinutes > 4.1 {
		t.Errorf("age should be reconstructed from the timestamps, got %v", got.AgeMinutes)
	}
}

func TestSignalUpsertAdvancesStreak(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now()
	sig := &model.Signal{
		ID: "sig-1", Symbol: "BTC/USDT", BuyExchange: "binance", SellExchange: "mexc",
		BuyPrice: 100, SellPrice: 103, NetProfitPct: 2.8,
		FirstSeenAt: now, LastSeenAt: now, SeenCount: 1,
	}
	if err := repo.SaveSignal(ctx, sig); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	sig.LastSeenAt = now.Add(2 * time.Minute)
	sig.SeenCount = 2
	sig.NetProfitPct = 2.5
	if err := repo.SaveSignal(ctx, sig); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := repo.LatestSignal(ctx, "BTC/USDT")
	if err != nil {
		t.Fatalf("latest signal failed: %v", err)
	}
	if got.SeenCount != 2 || got.NetProfitPct != 2.5 {
		t.Errorf("upsert did not advance the row: %+v", got)
	}
}

func TestLatestSignalMissingSymbol(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.LatestSignal(context.Background(), "NOPE/USDT")
	if err != nil {
		t.Fatalf("missing symbol must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestSaveTrade(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rec := &port.TradeRecord{
		ID:           "trade-1",
		RequesterID:  "user-1",
		Symbol:       "BTC/USDT",
		BuyExchange:  "binance",
		SellExchange: "mexc",
		AmountQuote:  50,
		BoughtAmount: 0.4995,
		SoldAmount:   0.4995,
		BuyOrderID:   "b-1",
		SellOrderID:  "s-1",
		Status:       string(model.TradeCompleted),
		Message:      "bought 0.49950000 BTC on binance, sold 0.49950000 on mexc",
		Ts:           time.Now().UnixMilli(),
	}
	if err := repo.SaveTrade(ctx, rec); err != nil {
		t.Fatalf("save trade failed: %v", err)
	}

	var count int
	if err := repo.GetDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one trade row, got %d", count)
	}
}

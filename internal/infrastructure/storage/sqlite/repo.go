package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) GetDB() *sql.DB {
	return r.db
}

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS signals (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  buy_price REAL NOT NULL,
  sell_price REAL NOT NULL,
  gross_spread_pct REAL NOT NULL,
  net_profit_pct REAL NOT NULL,
  min_volume_1h REAL NOT NULL,
  first_seen_ms INTEGER NOT NULL,
  last_seen_ms INTEGER NOT NULL,
  seen_count INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_last_seen ON signals(last_seen_ms);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  amount_quote REAL NOT NULL,
  bought_amount REAL NOT NULL,
  sold_amount REAL NOT NULL,
  buy_order_id TEXT NOT NULL DEFAULT '',
  sell_order_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_requester ON trades(requester_id);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts_ms);
`)
	return err
}

func (r *Repo) SaveSignal(ctx context.Context, sig *model.Signal) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO signals(id, symbol, buy_exchange, sell_exchange, buy_price, sell_price,
  gross_spread_pct, net_profit_pct, min_volume_1h, first_seen_ms, last_seen_ms, seen_count, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  last_seen_ms = excluded.last_seen_ms,
  seen_count = excluded.seen_count,
  net_profit_pct = excluded.net_profit_pct`,
		sig.ID, sig.Symbol, sig.BuyExchange, sig.SellExchange, sig.BuyPrice, sig.SellPrice,
		sig.GrossSpreadPct, sig.NetProfitPct, sig.MinVolume1h,
		sig.FirstSeenAt.UnixMilli(), sig.LastSeenAt.UnixMilli(), sig.SeenCount,
		time.Now().UnixMilli())
	return err
}

func (r *Repo) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, symbol, buy_exchange, sell_exchange, buy_price, sell_price,
  gross_spread_pct, net_profit_pct, min_volume_1h, first_seen_ms, last_seen_ms, seen_count
FROM signals WHERE symbol = ? ORDER BY last_seen_ms DESC LIMIT 1`, symbol)

	var sig model.Signal
	var firstMs, lastMs int64
	err := row.Scan(&sig.ID, &sig.Symbol, &sig.BuyExchange, &sig.SellExchange,
		&sig.BuyPrice, &sig.SellPrice, &sig.GrossSpreadPct, &sig.NetProfitPct,
		&sig.MinVolume1h, &firstMs, &lastMs, &sig.SeenCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sig.FirstSeenAt = time.UnixMilli(firstMs)
	sig.LastSeenAt = time.UnixMilli(lastMs)
	sig.AgeMinutes = sig.LastSeenAt.Sub(sig.FirstSeenAt).Minutes()
	return &sig, nil
}

func (r *Repo) SaveTrade(ctx context.Context, rec *port.TradeRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO trades(id, requester_id, symbol, buy_exchange, sell_exchange, amount_quote,
  bought_amount, sold_amount, buy_order_id, sell_order_id, status, message, ts_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequesterID, rec.Symbol, rec.BuyExchange, rec.SellExchange, rec.AmountQuote,
		rec.BoughtAmount, rec.SoldAmount, rec.BuyOrderID, rec.SellOrderID, rec.Status, rec.Message,
		rec.Ts, time.Now().UnixMilli())
	return err
}

var _ port.Repository = (*Repo)(nil)

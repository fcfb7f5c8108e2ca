package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS signals (
  id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  buy_price DOUBLE PRECISION NOT NULL,
  sell_price DOUBLE PRECISION NOT NULL,
  gross_spread_pct DOUBLE PRECISION NOT NULL,
  net_profit_pct DOUBLE PRECISION NOT NULL,
  min_volume_1h DOUBLE PRECISION NOT NULL,
  first_seen_ms BIGINT NOT NULL,
  last_seen_ms BIGINT NOT NULL,
  seen_count INT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_last_seen ON signals(last_seen_ms);

CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  symbol TEXT NOT NULL,
  buy_exchange TEXT NOT NULL,
  sell_exchange TEXT NOT NULL,
  amount_quote DOUBLE PRECISION NOT NULL,
  bought_amount DOUBLE PRECISION NOT NULL,
  sold_amount DOUBLE PRECISION NOT NULL,
  buy_order_id TEXT NOT NULL DEFAULT '',
  sell_order_id TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  ts_ms BIGINT NOT NULL,
  created_at BIGINT NOT NULL
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
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT(id) DO UPDATE SET
  last_seen_ms = EXCLUDED.last_seen_ms,
  seen_count = EXCLUDED.seen_count,
  net_profit_pct = EXCLUDED.net_profit_pct`,
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
FROM signals WHERE symbol = $1 ORDER BY last_seen_ms DESC LIMIT 1`, symbol)

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
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		rec.ID, rec.RequesterID, rec.Symbol, rec.BuyExchange, rec.SellExchange, rec.AmountQuote,
		rec.BoughtAmount, rec.SoldAmount, rec.BuyOrderID, rec.SellOrderID, rec.Status, rec.Message,
		rec.Ts, time.Now().UnixMilli())
	return err
}

var _ port.Repository = (*Repo)(nil)

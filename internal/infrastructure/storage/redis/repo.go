package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

type Repo struct {
	rdb          *redis.Client
	prefix       string
	ttl          time.Duration
	keyLatest    string // prefix + ":signals:latest"
	signalStream string
	signalChan   string
	tradeStream  string
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, signalStream, signalChan string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "spotarb"
	}
	if strings.TrimSpace(signalStream) == "" {
		signalStream = prefix + ":signals"
	}
	if strings.TrimSpace(signalChan) == "" {
		signalChan = prefix + ":signals:pub"
	}
	return &Repo{
		rdb:          rdb,
		prefix:       prefix,
		ttl:          ttl,
		keyLatest:    prefix + ":signals:latest",
		signalStream: signalStream,
		signalChan:   signalChan,
		tradeStream:  prefix + ":trades",
	}
}

func (r *Repo) SaveSignal(ctx context.Context, sig *model.Signal) error {
	b, err := json.Marshal(sig)
	if err != nil {
		return err
	}

	// Hash: field = "BTC/USDT" -> json
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, sig.Symbol, string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: r.signalStream,
		Values: map[string]any{
			"ts_ms":   sig.LastSeenAt.UnixMilli(),
			"symbol":  sig.Symbol,
			"net_pct": sig.NetProfitPct,
			"payload": string(b),
		},
	})
	pipe.Publish(ctx, r.signalChan, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	raw, err := r.rdb.HGet(ctx, r.keyLatest, symbol).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sig model.Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (r *Repo) SaveTrade(ctx context.Context, rec *port.TradeRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.tradeStream,
		Values: map[string]any{
			"ts_ms":   rec.Ts,
			"symbol":  rec.Symbol,
			"status":  rec.Status,
			"payload": string(b),
		},
	}).Err()
}

func (r *Repo) Close() error { return r.rdb.Close() }

var _ port.Repository = (*Repo)(nil)

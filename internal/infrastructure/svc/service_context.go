package svc

import (
	"context"
	"fmt"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"spotarb/internal/application/port"
	"spotarb/internal/application/usecase/scan"
	"spotarb/internal/application/usecase/trade"
	domainservice "spotarb/internal/domain/service"
	"spotarb/internal/infrastructure/config"
	"spotarb/internal/infrastructure/exchange/binance"
	"spotarb/internal/infrastructure/exchange/bybit"
	"spotarb/internal/infrastructure/exchange/mexc"
	"spotarb/internal/infrastructure/factory"
	"spotarb/internal/infrastructure/storage/composite"
	postgresrepo "spotarb/internal/infrastructure/storage/postgres"
	redisrepo "spotarb/internal/infrastructure/storage/redis"
	sqliterepo "spotarb/internal/infrastructure/storage/sqlite"
	"spotarb/internal/interfaces/console"
)

// streamer is implemented by providers that can maintain a live book ticker
// feed alongside REST polling.
type streamer interface {
	StartStream(ctx context.Context, symbols []string)
}

type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	Registry *factory.Registry
	Repo     port.Repository
	Sink     port.Sink

	Scanner *scan.Service
	Trader  *trade.Machine

	closerChain []func() error
}

// New is the single entry point for application startup; every dependency is
// initialized here in order.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	if err := sc.initializeStorage(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageInitFailed, err)
	}

	sc.initializeRegistry()
	if len(sc.Registry.ReadyExchanges()) == 0 {
		return ErrNoExchangesReady
	}

	timeout := time.Duration(sc.Config.Scan.RequestTimeoutSeconds) * time.Second
	evaluator := domainservice.NewEvaluator(
		sc.Config.Scan.MinProfitPct,
		sc.Config.Scan.MinVolume1hUSD,
		domainservice.VolumeMode(sc.Config.Scan.VolumeMode),
		sc.Registry.Order(),
		sc.Registry.Fees(),
	)
	tracker := domainservice.NewTracker(time.Duration(sc.Config.Scan.SignalCacheTTLSeconds) * time.Second)

	sc.Scanner = scan.NewService(scan.ServiceDeps{
		Directory: sc.Registry,
		Universe:  scan.NewUniverseBuilder(sc.Config.Scan.QuoteCurrency, sc.Config.Scan.TopNPerExchange, timeout),
		Agg:       scan.NewAggregator(sc.Config.Scan.Concurrency, timeout),
		Evaluator: evaluator,
		Tracker:   tracker,
		Repo:      sc.Repo,
		Sink:      sc.Sink,
		TopK:      sc.Config.Scan.TopKResults,
	})

	if sc.Config.Trade.Enabled {
		sc.Trader = trade.NewMachine(trade.MachineDeps{
			Directory:      sc.Registry,
			Repo:           sc.Repo,
			RequestTimeout: timeout,
			AmountPresets:  sc.Config.Trade.AmountPresets,
		})
	}

	log.Info().
		Int("ready_exchanges", len(sc.Registry.ReadyExchanges())).
		Bool("trading", sc.Config.Trade.Enabled).
		Msg("all components initialized")
	return nil
}

// initializeRegistry builds one provider per enabled exchange and runs
// registry initialization. An exchange that fails stays registered as
// unavailable; the process continues with whatever is ready.
func (sc *ServiceContext) initializeRegistry() {
	quote := sc.Config.Scan.QuoteCurrency
	candidates := make([]factory.Candidate, 0, 3)

	for _, e := range sc.Config.EnabledExchanges() {
		var provider port.MarketDataProvider
		switch e.Name {
		case "binance":
			provider = binance.NewProvider(e.Cfg.HTTPURL, e.Cfg.WsURL, e.Cfg.APIKey, e.Cfg.APISecret, quote)
		case "bybit":
			provider = bybit.NewProvider(e.Cfg.HTTPURL, e.Cfg.APIKey, e.Cfg.APISecret, quote)
		case "mexc":
			provider = mexc.NewProvider(e.Cfg.HTTPURL, e.Cfg.APIKey, e.Cfg.APISecret, quote)
		default:
			log.Warn().Str("exchange", e.Name).Msg("unknown exchange in config, skipped")
			continue
		}
		candidates = append(candidates, factory.Candidate{
			Name:       e.Name,
			TakerFee:   e.Cfg.TakerFee,
			Configured: e.Cfg.Configured(),
			Provider:   provider,
		})
	}

	sc.Registry = factory.NewRegistry()
	sc.Registry.Initialize(sc.Ctx, candidates)
	sc.closerChain = append(sc.closerChain, func() error {
		sc.Registry.Shutdown()
		return nil
	})
}

// initializeStorage wires every enabled backend behind one composite journal.
// With nothing enabled a noop repository is used.
func (sc *ServiceContext) initializeStorage() error {
	repos := make([]port.Repository, 0, 3)

	if sc.Config.Storage.SQLite.Enabled {
		repo, err := sqliterepo.New(sc.Config.Storage.SQLite.Path)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		repos = append(repos, repo)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing sqlite connection")
			return repo.Close()
		})
		log.Info().Str("path", sc.Config.Storage.SQLite.Path).Msg("sqlite initialized")
	}

	if sc.Config.Storage.Redis.Enabled {
		rdb := redisclient.NewClient(&redisclient.Options{
			Addr:     sc.Config.Storage.Redis.Addr,
			Password: sc.Config.Storage.Redis.Password,
			DB:       sc.Config.Storage.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping: %w", err)
		}

		ttl := time.Duration(sc.Config.Storage.Redis.TTLSeconds) * time.Second
		repos = append(repos, redisrepo.New(rdb, sc.Config.Storage.Redis.Prefix, ttl, "", ""))
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing redis connection")
			return rdb.Close()
		})
		log.Info().Str("addr", sc.Config.Storage.Redis.Addr).Int("db", sc.Config.Storage.Redis.DB).Msg("redis initialized")
	}

	if sc.Config.Storage.Postgres.Enabled {
		repo, err := postgresrepo.New(sc.Config.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		repos = append(repos, repo)
		sc.closerChain = append(sc.closerChain, func() error {
			log.Info().Msg("closing postgres connection")
			return repo.Close()
		})
		log.Info().Msg("postgres initialized")
	}

	switch len(repos) {
	case 0:
		sc.Repo = port.NewNoopRepo()
	case 1:
		sc.Repo = repos[0]
	default:
		sc.Repo = composite.New(repos...)
	}
	return nil
}

// StartStreams launches live book ticker feeds on every ready provider that
// supports one. Safe to call again with a fresh symbol set.
func (sc *ServiceContext) StartStreams(ctx context.Context, symbols []string) {
	if len(symbols) == 0 {
		return
	}
	for _, h := range sc.Registry.ReadyExchanges() {
		if s, ok := h.Provider.(streamer); ok {
			s.StartStream(ctx, symbols)
			log.Info().Str("exchange", h.Name).Int("symbols", len(symbols)).Msg("book ticker stream started")
		}
	}
}

// Close releases all resources in reverse initialization order.
func (sc *ServiceContext) Close() error {
	var firstErr error
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("close failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

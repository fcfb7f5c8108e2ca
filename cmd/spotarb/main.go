package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spotarb/internal/application/usecase/scan"
	"spotarb/internal/infrastructure/config"
	"spotarb/internal/infrastructure/logger"
	"spotarb/internal/infrastructure/svc"

	"github.com/rs/zerolog/log"
)

func main() {
	logger.Setup(os.Getenv("LOG_LEVEL"))

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	once := flag.Bool("once", false, "run a single scan cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("shutdown incomplete")
		}
	}()

	_ = sc.Sink.PublishStatus(sc.Registry.Status())

	interval := time.Duration(cfg.Scan.IntervalSeconds) * time.Second
	log.Info().
		Str("config", *configPath).
		Dur("interval", interval).
		Float64("min_profit_pct", cfg.Scan.MinProfitPct).
		Float64("min_volume_1h", cfg.Scan.MinVolume1hUSD).
		Msg("spotarb started")

	runCycle := func() {
		signals, err := sc.Scanner.RunScanCycle(ctx)
		if err != nil {
			if errors.Is(err, scan.ErrCycleRunning) || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("scan cycle failed")
			return
		}
		// keep live book tops flowing for the symbols currently in play
		if len(signals) > 0 {
			symbols := make([]string, 0, len(signals))
			for _, sig := range signals {
				symbols = append(symbols, sig.Symbol)
			}
			sc.StartStreams(ctx, symbols)
		}
	}

	runCycle()
	if *once {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}

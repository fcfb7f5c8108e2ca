package scan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
	"spotarb/internal/domain/service"
	"spotarb/internal/infrastructure/exchange/exchangetest"
)

type stubDirectory struct {
	handles []port.ExchangeHandle
}

func (d *stubDirectory) ReadyExchanges() []port.ExchangeHandle { return d.handles }

func (d *stubDirectory) Handle(name string) (port.ExchangeHandle, bool) {
	for _, h := range d.handles {
		if h.Name == name {
			return h, true
		}
	}
	return port.ExchangeHandle{}, false
}

func (d *stubDirectory) Status() []model.ExchangeStatus { return nil }

type captureSink struct {
	mu      sync.Mutex
	batches [][]*model.Signal
	errs    []string
}

func (s *captureSink) PublishSignals(signals []*model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, signals)
	return nil
}

func (s *captureSink) PublishStatus(entries []model.ExchangeStatus) error { return nil }

func (s *captureSink) ReportError(scope string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, scope)
	return nil
}

type memRepo struct {
	mu      sync.Mutex
	signals []*model.Signal
	trades  []*port.TradeRecord
}

func (r *memRepo) SaveSignal(ctx context.Context, sig *model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return nil
}

func (r *memRepo) LatestSignal(ctx context.Context, symbol string) (*model.Signal, error) {
	return nil, nil
}

func (r *memRepo) SaveTrade(ctx context.Context, rec *port.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, rec)
	return nil
}

func (r *memRepo) Close() error { return nil }

func newTestService(dir port.ExchangeDirectory, repo port.Repository, sink port.Sink, topK int) *Service {
	order := []string{"binance", "mexc"}
	fees := map[string]float64{"binance": 0.001, "mexc": 0.001}
	return NewService(ServiceDeps{
		Directory: dir,
		Universe:  NewUniverseBuilder("USDT", 10, time.Second),
		Agg:       NewAggregator(4, time.Second),
		Evaluator: service.NewEvaluator(1.2, 500_000, service.VolumeModeMin, order, fees),
		Tracker:   service.NewTracker(0),
		Repo:      repo,
		Sink:      sink,
		TopK:      topK,
	})
}

func TestRunScanCycleEndToEnd(t *testing.T) {
	binance := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6}},
	}
	mexc := &exchangetest.StubProvider{
		ExchangeName: "mexc",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 102.9, Ask: 103.1, QuoteVolume: 9e5}},
	}
	dir := &stubDirectory{handles: handlesFor(binance, mexc)}
	repo := &memRepo{}
	sink := &captureSink{}

	svc := newTestService(dir, repo, sink, 10)

	signals, err := svc.RunScanCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(signals))
	}

	sig := signals[0]
	if sig.BuyExchange != "binance" || sig.SellExchange != "mexc" {
		t.Errorf("wrong direction: buy %s sell %s", sig.BuyExchange, sig.SellExchange)
	}
	if sig.NetProfitPct < 2.7 || sig.NetProfitPct > 2.9 {
		t.Errorf("net profit out of range: %v", sig.NetProfitPct)
	}
	if sig.SeenCount != 1 {
		t.Errorf("fresh signal should have seen_count 1, got %d", sig.SeenCount)
	}
	if len(repo.signals) != 1 {
		t.Errorf("expected one journaled signal, got %d", len(repo.signals))
	}
	if len(sink.batches) != 1 {
		t.Fatalf("expected one published batch, got %d", len(sink.batches))
	}

	// An identical second cycle persists again but stays silent.
	signals, err = svc.RunScanCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if len(signals) != 1 || signals[0].SeenCount != 2 {
		t.Fatalf("expected the streak to continue, got %+v", signals)
	}
	if len(sink.batches) != 1 {
		t.Errorf("identical batch must not be re-published, got %d batches", len(sink.batches))
	}
}

func TestRunScanCycleNeedsTwoReadyExchanges(t *testing.T) {
	only := &exchangetest.StubProvider{
		ExchangeName: "binance",
		Tickers:      map[string]model.Ticker{"BTC/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6}},
	}
	svc := newTestService(&stubDirectory{handles: handlesFor(only)}, &memRepo{}, &captureSink{}, 10)

	signals, err := svc.RunScanCycle(context.Background())
	if err != nil {
		t.Fatalf("degenerate cycle must not error: %v", err)
	}
	if signals != nil {
		t.Fatalf("expected no signals, got %v", signals)
	}
}

func TestRunScanCycleCapsAtTopK(t *testing.T) {
	cheap := map[string]model.Ticker{
		"AAA/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6},
		"BBB/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6},
		"CCC/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6},
	}
	dear := map[string]model.Ticker{
		"AAA/USDT": {Bid: 104.9, Ask: 105.1, QuoteVolume: 1e6}, // 5%
		"BBB/USDT": {Bid: 103.9, Ask: 104.1, QuoteVolume: 1e6}, // 4%
		"CCC/USDT": {Bid: 102.9, Ask: 103.1, QuoteVolume: 1e6}, // 3%
	}
	binance := &exchangetest.StubProvider{ExchangeName: "binance", Tickers: cheap}
	mexc := &exchangetest.StubProvider{ExchangeName: "mexc", Tickers: dear}

	svc := newTestService(&stubDirectory{handles: handlesFor(binance, mexc)}, &memRepo{}, &captureSink{}, 2)

	signals, err := svc.RunScanCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("expected top-2 cap, got %d", len(signals))
	}
	if signals[0].Symbol != "AAA/USDT" || signals[1].Symbol != "BBB/USDT" {
		t.Fatalf("expected best spreads first, got %s then %s", signals[0].Symbol, signals[1].Symbol)
	}
}

type slowProvider struct {
	*exchangetest.StubProvider
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *slowProvider) FetchAllTickers(ctx context.Context) (map[string]model.Ticker, error) {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.StubProvider.FetchAllTickers(ctx)
}

func TestRunScanCycleSkipsOverlappingTrigger(t *testing.T) {
	tickers := map[string]model.Ticker{"BTC/USDT": {Bid: 99.9, Ask: 100.1, QuoteVolume: 1e6}}
	slow := &slowProvider{
		StubProvider: &exchangetest.StubProvider{ExchangeName: "binance", Tickers: tickers},
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	fast := &exchangetest.StubProvider{ExchangeName: "mexc", Tickers: tickers}

	dir := &stubDirectory{handles: []port.ExchangeHandle{
		{Name: "binance", Provider: slow, TakerFee: 0.001},
		{Name: "mexc", Provider: fast, TakerFee: 0.001},
	}}
	svc := newTestService(dir, &memRepo{}, &captureSink{}, 10)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunScanCycle(context.Background())
	}()

	<-slow.started
	if _, err := svc.RunScanCycle(context.Background()); !errors.Is(err, ErrCycleRunning) {
		t.Fatalf("expected ErrCycleRunning, got %v", err)
	}

	close(slow.release)
	<-done

	// Once the first cycle drains, the guard releases.
	if _, err := svc.RunScanCycle(context.Background()); err != nil {
		t.Fatalf("post-drain cycle failed: %v", err)
	}
}

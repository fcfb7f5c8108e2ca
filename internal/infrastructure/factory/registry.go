package factory

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

// maxDiagnosticLen bounds the stored first-line diagnostic of a failed
// initialization.
const maxDiagnosticLen = 160

// Candidate is one configured exchange awaiting initialization. Provider may
// be nil only when Configured is false.
type Candidate struct {
	Name       string
	TakerFee   float64
	Configured bool
	Provider   port.MarketDataProvider
}

type handle struct {
	name      string
	provider  port.MarketDataProvider
	readiness model.Readiness
	lastError string
	takerFee  float64
}

// Registry owns every configured exchange connection and its health state.
// Readiness is evaluated during Initialize and mutated nowhere else; all
// other components only read through the ExchangeDirectory view.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	handles map[string]*handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*handle)}
}

// Initialize validates every candidate in order. Missing credentials mark the
// exchange unconfigured; a failed market-metadata load marks it unavailable
// with a truncated diagnostic. Neither is fatal to the process.
func (r *Registry) Initialize(ctx context.Context, candidates []Candidate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.handles = make(map[string]*handle, len(candidates))

	for _, c := range candidates {
		h := &handle{name: c.Name, provider: c.Provider, takerFee: c.TakerFee}
		r.order = append(r.order, c.Name)
		r.handles[c.Name] = h

		if !c.Configured {
			h.readiness = model.ReadinessUnconfigured
			h.lastError = "no API credentials"
			log.Warn().Str("exchange", c.Name).Msg("skipped, no API credentials")
			continue
		}

		if err := c.Provider.LoadMarkets(ctx); err != nil {
			h.readiness = model.ReadinessUnavailable
			h.lastError = truncateDiagnostic(err.Error())
			log.Error().Str("exchange", c.Name).Str("error", h.lastError).Msg("initialization failed")
			continue
		}

		h.readiness = model.ReadinessReady
		log.Info().Str("exchange", c.Name).Float64("taker_fee", c.TakerFee).Msg("exchange ready")
	}

	log.Info().
		Int("ready", len(r.readyLocked())).
		Int("configured", len(candidates)).
		Msg("exchange registry initialized")
}

// ReadyExchanges returns ready handles in configuration order.
func (r *Registry) ReadyExchanges() []port.ExchangeHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readyLocked()
}

func (r *Registry) readyLocked() []port.ExchangeHandle {
	out := make([]port.ExchangeHandle, 0, len(r.order))
	for _, name := range r.order {
		h := r.handles[name]
		if h.readiness != model.ReadinessReady {
			continue
		}
		out = append(out, port.ExchangeHandle{Name: h.name, Provider: h.provider, TakerFee: h.takerFee})
	}
	return out
}

// Handle looks up a ready exchange by name.
func (r *Registry) Handle(name string) (port.ExchangeHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[name]
	if !ok || h.readiness != model.ReadinessReady {
		return port.ExchangeHandle{}, false
	}
	return port.ExchangeHandle{Name: h.name, Provider: h.provider, TakerFee: h.takerFee}, true
}

// Status reports every configured exchange's health in configuration order.
func (r *Registry) Status() []model.ExchangeStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ExchangeStatus, 0, len(r.order))
	for _, name := range r.order {
		h := r.handles[name]
		out = append(out, model.ExchangeStatus{
			Name:      h.name,
			Readiness: h.readiness,
			LastError: h.lastError,
			TakerFee:  h.takerFee,
		})
	}
	return out
}

// Fees returns the taker fee per configured exchange.
func (r *Registry) Fees() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.handles))
	for name, h := range r.handles {
		out[name] = h.takerFee
	}
	return out
}

// Order returns the exchange names in configuration order.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Shutdown closes every provider. Close failures are logged and shutdown
// continues with the remaining handles.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range r.order {
		h := r.handles[name]
		if h.provider == nil {
			continue
		}
		if err := h.provider.Close(); err != nil {
			log.Error().Str("exchange", name).Err(err).Msg("close failed")
			continue
		}
		log.Info().Str("exchange", name).Msg("closed")
	}
}

func truncateDiagnostic(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxDiagnosticLen {
		s = s[:maxDiagnosticLen]
	}
	return s
}

var _ port.ExchangeDirectory = (*Registry)(nil)

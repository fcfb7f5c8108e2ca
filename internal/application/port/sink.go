package port

import "spotarb/internal/domain/model"

// Sink receives rendered engine output. The engine never assumes a specific
// transport; the console sink is the default, chat or webhook sinks plug in
// the same way.
type Sink interface {
	// PublishSignals renders one scan cycle's signal batch.
	PublishSignals(signals []*model.Signal) error

	// PublishStatus renders per-exchange connection health.
	PublishStatus(entries []model.ExchangeStatus) error

	// ReportError surfaces a contained failure (scope names the offending
	// exchange or symbol). Never called with raw provider internals.
	ReportError(scope string, err error) error
}

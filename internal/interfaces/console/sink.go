package console

import (
	"fmt"
	"strings"
	"time"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
)

type Sink struct{}

func NewSink() port.Sink { return &Sink{} }

func (s *Sink) PublishSignals(signals []*model.Signal) error {
	if len(signals) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s arbitrage signals (%d)\n",
		time.Now().Format("2006-01-02 15:04:05"), len(signals))
	for i, sig := range signals {
		fmt.Fprintf(&b, "%2d. %-12s buy %-8s @ %.6f  sell %-8s @ %.6f  net %+.2f%%  vol %.0f",
			i+1, sig.Symbol, sig.BuyExchange, sig.BuyPrice, sig.SellExchange, sig.SellPrice,
			sig.NetProfitPct, sig.MinVolume1h)
		if sig.SeenCount > 1 {
			fmt.Fprintf(&b, "  seen %dx over %.0fm", sig.SeenCount, sig.AgeMinutes)
		}
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
	return nil
}

func (s *Sink) PublishStatus(entries []model.ExchangeStatus) error {
	var b strings.Builder
	b.WriteString("\nexchange status\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "  %-8s %-13s fee %.2f%%", e.Name, e.Readiness, e.TakerFee*100)
		if e.LastError != "" {
			fmt.Fprintf(&b, "  (%s)", e.LastError)
		}
		b.WriteByte('\n')
	}
	fmt.Print(b.String())
	return nil
}

func (s *Sink) ReportError(scope string, err error) error {
	fmt.Printf("%s error: %s: %v\n", time.Now().Format("15:04:05"), scope, err)
	return nil
}

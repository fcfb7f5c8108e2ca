package exchange

import "strings"

// SymbolConverter translates between unified symbols ("BTC/USDT") and the
// concatenated native format most spot APIs use ("BTCUSDT").
type SymbolConverter struct {
	quote string
}

func NewSymbolConverter(quote string) *SymbolConverter {
	return &SymbolConverter{quote: strings.ToUpper(strings.TrimSpace(quote))}
}

func (c *SymbolConverter) Quote() string { return c.quote }

// ToNative converts BTC/USDT -> BTCUSDT.
func (c *SymbolConverter) ToNative(unified string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(unified)), "/", "")
}

// ToUnified converts BTCUSDT -> BTC/USDT. Only symbols quoted in the
// converter's quote currency translate; everything else is rejected.
func (c *SymbolConverter) ToUnified(native string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(native))
	if !strings.HasSuffix(n, c.quote) || len(n) <= len(c.quote) {
		return "", false
	}
	base := n[:len(n)-len(c.quote)]
	return base + "/" + c.quote, true
}

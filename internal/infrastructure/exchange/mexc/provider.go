package mexc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"spotarb/internal/application/port"
	"spotarb/internal/domain/model"
	"spotarb/internal/infrastructure/exchange"
)

type marketInfo struct {
	native     string
	unified    string
	amountPrec int
}

// Provider is the MEXC spot market data and trading client.
type Provider struct {
	*APIClient
	converter *exchange.SymbolConverter

	mu       sync.RWMutex
	markets  map[string]marketInfo // unified symbol -> info
	byNative map[string]string     // native symbol -> unified
}

var _ port.MarketDataProvider = (*Provider)(nil)

func NewProvider(httpURL, apiKey, apiSecret, quote string) *Provider {
	return &Provider{
		APIClient: NewAPIClient(httpURL, apiKey, apiSecret),
		converter: exchange.NewSymbolConverter(quote),
		markets:   make(map[string]marketInfo),
		byNative:  make(map[string]string),
	}
}

func (p *Provider) Name() string { return "mexc" }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol               string `json:"symbol"`
		Status               string `json:"status"`
		BaseAsset            string `json:"baseAsset"`
		QuoteAsset           string `json:"quoteAsset"`
		BaseSizePrecision    string `json:"baseSizePrecision"`
		IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
	} `json:"symbols"`
}

// LoadMarkets fetches the tradable symbol list and amount precisions.
func (p *Provider) LoadMarkets(ctx context.Context) error {
	body, err := p.publicRequest(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return err
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("mexc exchangeInfo decode: %w", err)
	}

	markets := make(map[string]marketInfo, len(resp.Symbols))
	byNative := make(map[string]string, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if !s.IsSpotTradingAllowed {
			continue
		}
		unified := s.BaseAsset + "/" + s.QuoteAsset
		markets[unified] = marketInfo{
			native:     s.Symbol,
			unified:    unified,
			amountPrec: exchange.StepPrecision(s.BaseSizePrecision),
		}
		byNative[s.Symbol] = unified
	}
	if len(markets) == 0 {
		return fmt.Errorf("mexc exchangeInfo: no tradable symbols")
	}

	p.mu.Lock()
	p.markets = markets
	p.byNative = byNative
	p.mu.Unlock()
	return nil
}

type ticker24hResponse struct {
	Symbol      string `json:"symbol"`
	BidPrice    string `json:"bidPrice"`
	AskPrice    string `json:"askPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// FetchAllTickers returns the full 24h ticker snapshot keyed by unified symbol.
func (p *Provider) FetchAllTickers(ctx context.Context) (map[string]model.Ticker, error) {
	body, err := p.publicRequest(ctx, "/api/v3/ticker/24hr", nil)
	if err != nil {
		return nil, err
	}

	var raw []ticker24hResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("mexc ticker decode: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]model.Ticker, len(raw))
	for _, t := range raw {
		unified, ok := p.byNative[t.Symbol]
		if !ok {
			continue
		}
		out[unified] = parseTicker(t)
	}
	return out, nil
}

// FetchTicker returns the current ticker for one unified symbol.
func (p *Provider) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", p.nativeSymbol(symbol))
	body, err := p.publicRequest(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return model.Ticker{}, err
	}

	var t ticker24hResponse
	if err := json.Unmarshal(body, &t); err != nil {
		return model.Ticker{}, fmt.Errorf("mexc ticker decode: %w", err)
	}
	return parseTicker(t), nil
}

type accountResponse struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// FetchBalance returns non-zero spot balances keyed by asset.
func (p *Provider) FetchBalance(ctx context.Context) (map[string]model.Balance, error) {
	body, err := p.signedRequest(ctx, "GET", "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mexc account decode: %w", err)
	}

	out := make(map[string]model.Balance)
	for _, b := range resp.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free+locked <= 0 {
			continue
		}
		out[b.Asset] = model.Balance{Free: free, Total: free + locked}
	}
	return out, nil
}

type orderResponse struct {
	OrderID             string `json:"orderId"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

// PlaceMarketOrder submits a market order for the given base amount.
func (p *Provider) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount float64) (*model.Order, error) {
	prec := p.AmountPrecision(symbol)

	params := url.Values{}
	params.Set("symbol", p.nativeSymbol(symbol))
	params.Set("side", strings.ToUpper(string(side)))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(amount, 'f', prec, 64))

	body, err := p.signedRequest(ctx, "POST", "/api/v3/order", params)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mexc order decode: %w", err)
	}

	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	if filled <= 0 {
		filled = amount
	}
	var avg float64
	if filled > 0 && quoteQty > 0 {
		avg = quoteQty / filled
	}
	return &model.Order{
		ID:           resp.OrderID,
		Symbol:       symbol,
		Side:         side,
		FilledAmount: filled,
		AvgPrice:     avg,
	}, nil
}

// AmountPrecision returns the amount decimal places for the symbol.
func (p *Provider) AmountPrecision(symbol string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if m, ok := p.markets[symbol]; ok {
		return m.amountPrec
	}
	return 6
}

func (p *Provider) Close() error { return nil }

func (p *Provider) nativeSymbol(unified string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if m, ok := p.markets[unified]; ok {
		return m.native
	}
	return p.converter.ToNative(unified)
}

func parseTicker(t ticker24hResponse) model.Ticker {
	bid, _ := strconv.ParseFloat(t.BidPrice, 64)
	ask, _ := strconv.ParseFloat(t.AskPrice, 64)
	vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
	return model.Ticker{Bid: bid, Ask: ask, QuoteVolume: vol}
}

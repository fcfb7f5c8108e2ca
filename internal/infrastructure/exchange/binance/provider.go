package binance

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

// Provider is the Binance spot market data and trading client.
type Provider struct {
	*APIClient
	converter *exchange.SymbolConverter
	stream    *bookTickerStream

	mu       sync.RWMutex
	markets  map[string]marketInfo // unified symbol -> info
	byNative map[string]string     // native symbol -> unified
	volumes  map[string]float64    // unified symbol -> last 24h quote volume
}

var _ port.MarketDataProvider = (*Provider)(nil)

func NewProvider(httpURL, wsURL, apiKey, apiSecret, quote string) *Provider {
	p := &Provider{
		APIClient: NewAPIClient(httpURL, apiKey, apiSecret),
		converter: exchange.NewSymbolConverter(quote),
		markets:   make(map[string]marketInfo),
		byNative:  make(map[string]string),
		volumes:   make(map[string]float64),
	}
	if wsURL != "" {
		p.stream = newBookTickerStream(wsURL)
	}
	return p
}

func (p *Provider) Name() string { return "binance" }

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		BaseAsset  string `json:"baseAsset"`
		QuoteAsset string `json:"quoteAsset"`
		Filters    []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
		} `json:"filters"`
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
		return fmt.Errorf("binance exchangeInfo decode: %w", err)
	}

	markets := make(map[string]marketInfo, len(resp.Symbols))
	byNative := make(map[string]string, len(resp.Symbols))
	for _, s := range resp.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		unified := s.BaseAsset + "/" + s.QuoteAsset
		prec := 6
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				prec = exchange.StepPrecision(f.StepSize)
				break
			}
		}
		markets[unified] = marketInfo{native: s.Symbol, unified: unified, amountPrec: prec}
		byNative[s.Symbol] = unified
	}
	if len(markets) == 0 {
		return fmt.Errorf("binance exchangeInfo: no tradable symbols")
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
		return nil, fmt.Errorf("binance ticker decode: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]model.Ticker, len(raw))
	for _, t := range raw {
		unified, ok := p.byNative[t.Symbol]
		if !ok {
			continue
		}
		tk := parseTicker(t)
		out[unified] = tk
		if tk.QuoteVolume > 0 {
			p.volumes[unified] = tk.QuoteVolume
		}
	}
	return out, nil
}

// FetchTicker returns the current ticker for one unified symbol. A live book
// ticker from the websocket stream is preferred over a REST round trip.
func (p *Provider) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	native := p.nativeSymbol(symbol)

	if p.stream != nil {
		if bid, ask, ok := p.stream.Top(native); ok {
			p.mu.RLock()
			vol := p.volumes[symbol]
			p.mu.RUnlock()
			return model.Ticker{Bid: bid, Ask: ask, QuoteVolume: vol}, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", native)
	body, err := p.publicRequest(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return model.Ticker{}, err
	}

	var t ticker24hResponse
	if err := json.Unmarshal(body, &t); err != nil {
		return model.Ticker{}, fmt.Errorf("binance ticker decode: %w", err)
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
		return nil, fmt.Errorf("binance account decode: %w", err)
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
	OrderID             int64  `json:"orderId"`
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
		return nil, fmt.Errorf("binance order decode: %w", err)
	}

	filled, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQty, 64)
	var avg float64
	if filled > 0 {
		avg = quoteQty / filled
	}
	return &model.Order{
		ID:           strconv.FormatInt(resp.OrderID, 10),
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

// StartStream subscribes the book ticker stream for the given unified symbols.
// A no-op when no websocket URL was configured.
func (p *Provider) StartStream(ctx context.Context, symbols []string) {
	if p.stream == nil {
		return
	}
	natives := make([]string, 0, len(symbols))
	for _, s := range symbols {
		natives = append(natives, p.nativeSymbol(s))
	}
	p.stream.Start(ctx, natives)
}

func (p *Provider) Close() error {
	if p.stream != nil {
		p.stream.Stop()
	}
	return nil
}

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

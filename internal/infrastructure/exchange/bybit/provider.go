package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
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

// Provider is the Bybit v5 spot market data and trading client.
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

func (p *Provider) Name() string { return "bybit" }

// envelope is the common v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func decodeResult(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	if env.RetCode != 0 {
		return fmt.Errorf("bybit api error %d: %s", env.RetCode, env.RetMsg)
	}
	return json.Unmarshal(env.Result, out)
}

type instrumentsResult struct {
	List []struct {
		Symbol        string `json:"symbol"`
		Status        string `json:"status"`
		BaseCoin      string `json:"baseCoin"`
		QuoteCoin     string `json:"quoteCoin"`
		LotSizeFilter struct {
			BasePrecision string `json:"basePrecision"`
		} `json:"lotSizeFilter"`
	} `json:"list"`
}

// LoadMarkets fetches the spot instrument list and amount precisions.
func (p *Provider) LoadMarkets(ctx context.Context) error {
	params := url.Values{}
	params.Set("category", "spot")
	body, err := p.publicRequest(ctx, "/v5/market/instruments-info", params)
	if err != nil {
		return err
	}

	var res instrumentsResult
	if err := decodeResult(body, &res); err != nil {
		return fmt.Errorf("bybit instruments decode: %w", err)
	}

	markets := make(map[string]marketInfo, len(res.List))
	byNative := make(map[string]string, len(res.List))
	for _, s := range res.List {
		if s.Status != "Trading" {
			continue
		}
		unified := s.BaseCoin + "/" + s.QuoteCoin
		markets[unified] = marketInfo{
			native:     s.Symbol,
			unified:    unified,
			amountPrec: exchange.StepPrecision(s.LotSizeFilter.BasePrecision),
		}
		byNative[s.Symbol] = unified
	}
	if len(markets) == 0 {
		return fmt.Errorf("bybit instruments: no tradable symbols")
	}

	p.mu.Lock()
	p.markets = markets
	p.byNative = byNative
	p.mu.Unlock()
	return nil
}

type tickersResult struct {
	List []struct {
		Symbol      string `json:"symbol"`
		Bid1Price   string `json:"bid1Price"`
		Ask1Price   string `json:"ask1Price"`
		Turnover24h string `json:"turnover24h"`
	} `json:"list"`
}

// FetchAllTickers returns the full spot ticker snapshot keyed by unified symbol.
func (p *Provider) FetchAllTickers(ctx context.Context) (map[string]model.Ticker, error) {
	params := url.Values{}
	params.Set("category", "spot")
	body, err := p.publicRequest(ctx, "/v5/market/tickers", params)
	if err != nil {
		return nil, err
	}

	var res tickersResult
	if err := decodeResult(body, &res); err != nil {
		return nil, fmt.Errorf("bybit tickers decode: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]model.Ticker, len(res.List))
	for _, t := range res.List {
		unified, ok := p.byNative[t.Symbol]
		if !ok {
			continue
		}
		bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
		ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
		vol, _ := strconv.ParseFloat(t.Turnover24h, 64)
		out[unified] = model.Ticker{Bid: bid, Ask: ask, QuoteVolume: vol}
	}
	return out, nil
}

// FetchTicker returns the current ticker for one unified symbol.
func (p *Provider) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", p.nativeSymbol(symbol))
	body, err := p.publicRequest(ctx, "/v5/market/tickers", params)
	if err != nil {
		return model.Ticker{}, err
	}

	var res tickersResult
	if err := decodeResult(body, &res); err != nil {
		return model.Ticker{}, fmt.Errorf("bybit tickers decode: %w", err)
	}
	if len(res.List) == 0 {
		return model.Ticker{}, fmt.Errorf("bybit ticker: %s not found", symbol)
	}

	t := res.List[0]
	bid, _ := strconv.ParseFloat(t.Bid1Price, 64)
	ask, _ := strconv.ParseFloat(t.Ask1Price, 64)
	vol, _ := strconv.ParseFloat(t.Turnover24h, 64)
	return model.Ticker{Bid: bid, Ask: ask, QuoteVolume: vol}, nil
}

type walletResult struct {
	List []struct {
		Coin []struct {
			Coin          string `json:"coin"`
			WalletBalance string `json:"walletBalance"`
			Locked        string `json:"locked"`
		} `json:"coin"`
	} `json:"list"`
}

// FetchBalance returns non-zero unified account balances keyed by asset.
func (p *Provider) FetchBalance(ctx context.Context) (map[string]model.Balance, error) {
	params := url.Values{}
	params.Set("accountType", "UNIFIED")
	body, err := p.signedGet(ctx, "/v5/account/wallet-balance", params)
	if err != nil {
		return nil, err
	}

	var res walletResult
	if err := decodeResult(body, &res); err != nil {
		return nil, fmt.Errorf("bybit wallet decode: %w", err)
	}

	out := make(map[string]model.Balance)
	for _, acct := range res.List {
		for _, c := range acct.Coin {
			total, _ := strconv.ParseFloat(c.WalletBalance, 64)
			locked, _ := strconv.ParseFloat(c.Locked, 64)
			if total <= 0 {
				continue
			}
			free := total - locked
			if free < 0 {
				free = 0
			}
			out[c.Coin] = model.Balance{Free: free, Total: total}
		}
	}
	return out, nil
}

type createOrderResult struct {
	OrderID string `json:"orderId"`
}

type orderDetailResult struct {
	List []struct {
		CumExecQty   string `json:"cumExecQty"`
		CumExecValue string `json:"cumExecValue"`
		AvgPrice     string `json:"avgPrice"`
	} `json:"list"`
}

// PlaceMarketOrder submits a market order for the given base amount. The fill
// is read back from the realtime order endpoint; when that read fails the
// requested amount is reported as filled.
func (p *Provider) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, amount float64) (*model.Order, error) {
	native := p.nativeSymbol(symbol)
	prec := p.AmountPrecision(symbol)

	payload, err := json.Marshal(map[string]string{
		"category":   "spot",
		"symbol":     native,
		"side":       titleSide(side),
		"orderType":  "Market",
		"qty":        strconv.FormatFloat(amount, 'f', prec, 64),
		"marketUnit": "baseCoin",
	})
	if err != nil {
		return nil, err
	}

	body, err := p.signedPost(ctx, "/v5/order/create", payload)
	if err != nil {
		return nil, err
	}

	var created createOrderResult
	if err := decodeResult(body, &created); err != nil {
		return nil, fmt.Errorf("bybit order decode: %w", err)
	}

	order := &model.Order{
		ID:           created.OrderID,
		Symbol:       symbol,
		Side:         side,
		FilledAmount: amount,
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("orderId", created.OrderID)
	if body, err = p.signedGet(ctx, "/v5/order/realtime", params); err == nil {
		var detail orderDetailResult
		if decodeResult(body, &detail) == nil && len(detail.List) > 0 {
			d := detail.List[0]
			if filled, _ := strconv.ParseFloat(d.CumExecQty, 64); filled > 0 {
				order.FilledAmount = filled
			}
			order.AvgPrice, _ = strconv.ParseFloat(d.AvgPrice, 64)
		}
	}
	return order, nil
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

func titleSide(side model.Side) string {
	if side == model.SideBuy {
		return "Buy"
	}
	return "Sell"
}

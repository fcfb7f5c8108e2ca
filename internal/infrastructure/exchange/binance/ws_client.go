package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Book tops older than this are considered stale and ignored.
const bookTopMaxAge = 3 * time.Second

type bookTop struct {
	bid float64
	ask float64
	ts  time.Time
}

// bookTickerStream maintains a live best bid/ask cache fed by the combined
// bookTicker websocket stream.
type bookTickerStream struct {
	wsURL  string // e.g. wss://stream.binance.com:9443
	cancel context.CancelFunc

	mu   sync.RWMutex
	tops map[string]bookTop // native symbol -> top of book
}

func newBookTickerStream(wsURL string) *bookTickerStream {
	return &bookTickerStream{
		wsURL: strings.TrimSpace(wsURL),
		tops:  make(map[string]bookTop),
	}
}

type binanceCombined struct {
	Stream string        `json:"stream"`
	Data   binanceTopMsg `json:"data"`
}
type binanceTopMsg struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

// Start launches the reconnecting read loop. Calling Start again replaces the
// previous subscription.
func (s *bookTickerStream) Start(ctx context.Context, natives []string) {
	wsURL, err := buildCombinedURL(s.wsURL, natives)
	if err != nil {
		log.Error().Str("feed", "binance").Err(err).Msg("ws stream not started")
		return
	}

	s.Stop()
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx, wsURL)
}

func (s *bookTickerStream) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Top returns the cached best bid/ask for a native symbol if fresh enough.
func (s *bookTickerStream) Top(native string) (bid, ask float64, ok bool) {
	s.mu.RLock()
	top, found := s.tops[native]
	s.mu.RUnlock()
	if !found || time.Since(top.ts) > bookTopMaxAge {
		return 0, 0, false
	}
	if top.bid <= 0 || top.ask <= 0 {
		return 0, 0, false
	}
	return top.bid, top.ask, true
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws_base empty")
	}
	if len(symbols) == 0 {
		return "", errors.New("symbols empty")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@bookTicker", s))
	}
	if len(streams) == 0 {
		return "", errors.New("no valid symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (s *bookTickerStream) run(ctx context.Context, wsURL string) {
	backoff := 500 * time.Millisecond
	maxBackoff := 10 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Warn().Str("feed", "binance").Str("url", wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", "binance").Err(err).Msg("ws dial failed")
			time.Sleep(backoff)
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 500 * time.Millisecond
		log.Info().Str("feed", "binance").Msg("ws connected")

		err = readLoop(ctx, conn, func(b []byte) {
			var msg binanceCombined
			if e := json.Unmarshal(b, &msg); e != nil {
				log.Error().Str("feed", "binance").Err(e).Msg("json unmarshal failed")
				return
			}
			sym := strings.ToUpper(msg.Data.Symbol)
			if sym == "" {
				return
			}
			bid, _ := strconv.ParseFloat(msg.Data.Bid, 64)
			ask, _ := strconv.ParseFloat(msg.Data.Ask, 64)
			s.mu.Lock()
			s.tops[sym] = bookTop{bid: bid, ask: ask, ts: time.Now()}
			s.mu.Unlock()
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", "binance").Err(err).Msg("ws disconnected, reconnecting")
		time.Sleep(backoff)
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, onMsg func([]byte)) error {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(25 * time.Second)
	defer pingTicker.Stop()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			_, b, err := conn.ReadMessage()
			if err == nil {
				_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			}
			if err != nil {
				errCh <- err
				return
			}
			onMsg(b)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case <-pingTicker.C:
			_ = conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		}
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

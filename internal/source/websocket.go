package source

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-systemv1/internal/model"
)

// wireCandle is the JSON frame the candle feed pushes.
type wireCandle struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	TS        int64   `json:"ts"` // unix seconds, bucket start
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// StreamConfig configures the websocket candle source.
type StreamConfig struct {
	URL string

	// Candles retained per pair for Fetch. Default 1000.
	BufferSize int

	// Reconnect backoff bounds.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Stream consumes a websocket candle feed into per-pair ring buffers and
// serves them through the CandleSource interface. The connection loop
// reconnects with exponential backoff until the context ends.
type Stream struct {
	cfg StreamConfig

	mu      sync.RWMutex
	candles map[string][]model.Candle

	// Optional hooks for metrics.
	OnConnect   func()
	OnReconnect func()
}

// NewStream creates a websocket candle source.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Stream{
		cfg:     cfg,
		candles: make(map[string][]model.Candle),
	}
}

// Run connects and consumes frames until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	backoff := s.cfg.ReconnectMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			log.Printf("[source] dial %s failed: %v (retrying in %s)", s.cfg.URL, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.cfg.ReconnectMax {
				backoff = s.cfg.ReconnectMax
			}
			if s.OnReconnect != nil {
				s.OnReconnect()
			}
			continue
		}

		log.Printf("[source] connected to %s", s.cfg.URL)
		if s.OnConnect != nil {
			s.OnConnect()
		}
		backoff = s.cfg.ReconnectMin

		if err := s.consume(ctx, conn); err != nil {
			log.Printf("[source] stream closed: %v", err)
		}
		conn.Close()
	}
}

func (s *Stream) consume(ctx context.Context, conn *websocket.Conn) error {
	// Unblock ReadMessage on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var w wireCandle
		if err := json.Unmarshal(data, &w); err != nil {
			log.Printf("[source] bad frame: %v", err)
			continue
		}
		s.push(model.Candle{
			Symbol:    w.Symbol,
			Timeframe: model.Timeframe(w.Timeframe),
			TS:        time.Unix(w.TS, 0).UTC(),
			Open:      w.Open,
			High:      w.High,
			Low:       w.Low,
			Close:     w.Close,
			Volume:    w.Volume,
		})
	}
}

// push inserts a candle into its pair buffer, replacing an existing
// timestamp (correction) and trimming to the buffer size.
func (s *Stream) push(c model.Candle) {
	key := c.Key()
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.candles[key]
	i := sort.Search(len(list), func(i int) bool { return !list[i].TS.Before(c.TS) })
	if i < len(list) && list[i].TS.Equal(c.TS) {
		list[i] = c
	} else {
		list = append(list, model.Candle{})
		copy(list[i+1:], list[i:])
		list[i] = c
	}
	if len(list) > s.cfg.BufferSize {
		list = list[len(list)-s.cfg.BufferSize:]
	}
	s.candles[key] = list
}

// Fetch returns buffered candles strictly after since.
func (s *Stream) Fetch(_ context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.candles[symbol+":"+string(tf)]
	i := sort.Search(len(list), func(i int) bool { return list[i].TS.After(since) })
	out := make([]model.Candle, len(list)-i)
	copy(out, list[i:])
	return out, nil
}

// Package source provides CandleSource implementations: a websocket
// streaming client for live data and a replay source for tests and
// backtesting.
package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

// Replay serves candles from an in-memory script. Tests stage candles
// with Append between ticks; backtests load a full history up front.
type Replay struct {
	mu      sync.Mutex
	candles map[string][]model.Candle // keyed by pair, ascending
	errs    map[string]error
}

// NewReplay creates an empty replay source.
func NewReplay() *Replay {
	return &Replay{
		candles: make(map[string][]model.Candle),
		errs:    make(map[string]error),
	}
}

// Append stages candles for later Fetch calls.
func (r *Replay) Append(candles ...model.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range candles {
		key := c.Key()
		r.candles[key] = append(r.candles[key], c)
		sort.SliceStable(r.candles[key], func(i, j int) bool {
			return r.candles[key][i].TS.Before(r.candles[key][j].TS)
		})
	}
}

// Amend replaces a staged candle with the same (symbol, timeframe, ts),
// simulating a venue correction. Missing timestamps are appended.
func (r *Replay) Amend(c model.Candle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.Key()
	for i, old := range r.candles[key] {
		if old.TS.Equal(c.TS) {
			r.candles[key][i] = c
			return
		}
	}
	r.candles[key] = append(r.candles[key], c)
}

// FailWith makes subsequent Fetch calls for the pair return err.
func (r *Replay) FailWith(symbol string, tf model.Timeframe, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[symbol+":"+string(tf)] = err
}

// Fetch returns staged candles strictly after since, in order.
func (r *Replay) Fetch(_ context.Context, symbol string, tf model.Timeframe, since time.Time) ([]model.Candle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := symbol + ":" + string(tf)
	if err := r.errs[key]; err != nil {
		return nil, err
	}
	var out []model.Candle
	for _, c := range r.candles[key] {
		if c.TS.After(since) {
			out = append(out, c)
		}
	}
	return out, nil
}

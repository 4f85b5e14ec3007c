package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Candle represents one OHLCV bar for a symbol/timeframe.
// Candles are immutable once stored; late corrections are idempotent
// upserts keyed by (symbol, timeframe, ts).
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	TS        time.Time `json:"ts"` // bucket start time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Key returns a unique key for this candle's pair: "symbol:timeframe".
func (c *Candle) Key() string {
	return c.Symbol + ":" + string(c.Timeframe)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Same reports whether the OHLCV values of both candles are identical.
// Used to detect late corrections on re-fetched timestamps.
func (c *Candle) Same(o Candle) bool {
	return c.Open == o.Open && c.High == o.High && c.Low == o.Low &&
		c.Close == o.Close && c.Volume == o.Volume
}

// Timeframe is a candle interval such as "15m", "1h", "4h", "1d", "1w".
type Timeframe string

// TimeframeClass partitions timeframes by bar duration.
type TimeframeClass string

const (
	ClassIntraday TimeframeClass = "Intraday" // bars <= 4h
	ClassSwing    TimeframeClass = "Swing"    // bars > 4h
)

// Duration parses the timeframe into a time.Duration.
// Unknown formats default to one hour.
func (tf Timeframe) Duration() time.Duration {
	s := string(tf)
	if s == "" {
		return time.Hour
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		// bare "D"/"W" forms
		switch strings.ToUpper(s) {
		case "D":
			return 24 * time.Hour
		case "W":
			return 7 * 24 * time.Hour
		}
		return time.Hour
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h', 'H':
		return time.Duration(n) * time.Hour
	case 'd', 'D':
		return time.Duration(n) * 24 * time.Hour
	case 'w', 'W':
		return time.Duration(n) * 7 * 24 * time.Hour
	}
	return time.Hour
}

// Class returns Intraday for bars of 4 hours or less, Swing otherwise.
func (tf Timeframe) Class() TimeframeClass {
	if tf.Duration() <= 4*time.Hour {
		return ClassIntraday
	}
	return ClassSwing
}

// IsIntraday reports whether the timeframe is below one day. Intraday
// timeframes reset VWAP at each calendar-day boundary.
func (tf Timeframe) IsIntraday() bool {
	return tf.Duration() < 24*time.Hour
}

// Pair identifies one (symbol, timeframe) pipeline unit.
type Pair struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// Key returns "symbol:timeframe".
func (p Pair) Key() string {
	return p.Symbol + ":" + string(p.Timeframe)
}

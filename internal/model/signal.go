package model

import (
	"encoding/json"
	"time"
)

// Tier classifies a total score into a discrete signal.
type Tier string

const (
	TierABuy     Tier = "A-BUY"
	TierBuy      Tier = "BUY"
	TierEarlyBuy Tier = "EARLY-BUY"
	TierWatch    Tier = "WATCH"
	TierCaution  Tier = "CAUTION"
	TierSell     Tier = "SELL"
)

// IsBuyClass reports whether the tier warrants an entry suggestion.
func (t Tier) IsBuyClass() bool {
	return t == TierABuy || t == TierBuy || t == TierEarlyBuy
}

// IsExitClass reports whether the tier forces an early exit of a tracked
// entry (signal-exit).
func (t Tier) IsExitClass() bool {
	return t == TierCaution || t == TierSell
}

// ScoreBreakdown holds the bounded per-indicator contributions.
type ScoreBreakdown struct {
	RSI         float64 `json:"rsi"`
	MACD        float64 `json:"macd"`
	BB          float64 `json:"bb"`
	EMAStack    float64 `json:"ema_stack"`
	SuperTrend  float64 `json:"supertrend"`
	VWAP        float64 `json:"vwap"`
	Volume      float64 `json:"volume"`
	ADX         float64 `json:"adx"`
	DI          float64 `json:"di"`
	OBV         float64 `json:"obv"`
	PriceAction float64 `json:"price_action"`
}

// Sum returns the total of all components including the price-action bonus.
func (b ScoreBreakdown) Sum() float64 {
	return b.RSI + b.MACD + b.BB + b.EMAStack + b.SuperTrend +
		b.VWAP + b.Volume + b.ADX + b.DI + b.OBV + b.PriceAction
}

// Signal is the scored classification derived from one candle's snapshot.
// Immutable once created; corrections produce a new row, never a mutation.
type Signal struct {
	Symbol    string         `json:"symbol"`
	Timeframe Timeframe      `json:"timeframe"`
	TS        time.Time      `json:"ts"`
	Class     TimeframeClass `json:"tf_class"`

	Scores   ScoreBreakdown `json:"scores"`
	Total    float64        `json:"score_total"`
	MaxScore float64        `json:"max_score"`
	Tier     Tier           `json:"tier"`

	// Entry suggestion, only valid for BUY-class tiers.
	EntryPrice  Float `json:"entry_price"`
	StopLoss    Float `json:"stop_loss"`
	TargetPrice Float `json:"target_price"`

	CurrentPrice float64 `json:"current_price"`
	ATR          Float   `json:"atr"`

	Support    Float `json:"support_level"`
	Resistance Float `json:"resistance_level"`
	MagicLine  Float `json:"magic_line_level"`
}

// Key returns "symbol:timeframe".
func (s *Signal) Key() string {
	return s.Symbol + ":" + string(s.Timeframe)
}

// JSON returns the JSON-encoded signal.
func (s *Signal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

package model

import (
	"encoding/json"
	"time"
)

// Float is an explicit optional float64. Valid=false means the value is not
// yet computable (indicator warm-up), which is distinct from a real zero.
type Float struct {
	Val   float64
	Valid bool
}

// F wraps a computed value.
func F(v float64) Float { return Float{Val: v, Valid: true} }

// Or returns the value if valid, else the fallback.
func (f Float) Or(fallback float64) float64 {
	if f.Valid {
		return f.Val
	}
	return fallback
}

// MarshalJSON encodes a valid value as a number and an invalid one as null.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Val)
}

// UnmarshalJSON decodes null as not-valid.
func (f *Float) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float{}
		return nil
	}
	f.Valid = true
	return json.Unmarshal(data, &f.Val)
}

// TrendDirection is the SuperTrend direction. Once an indicator's warm-up
// window has filled it is always UP or DOWN, never empty.
type TrendDirection string

const (
	TrendUp   TrendDirection = "UP"
	TrendDown TrendDirection = "DOWN"
)

// BBPosition labels which Bollinger zone the close sits in, from extreme
// oversold to extreme overbought.
type BBPosition string

const (
	BBBelow3  BBPosition = "BB3↓"
	BBBelow2  BBPosition = "BB2↓"
	BBBelow1  BBPosition = "BB1↓"
	BBNeutral BBPosition = "BB~"
	BBAbove1  BBPosition = "BB1↑"
	BBAbove2  BBPosition = "BB2↑"
	BBAbove3  BBPosition = "BB3↑"
	BBUnknown BBPosition = ""
)

// VolumeRegime buckets current volume against its moving average.
type VolumeRegime string

const (
	VolumeHigh    VolumeRegime = "H"
	VolumeNormal  VolumeRegime = "N"
	VolumeLow     VolumeRegime = "L"
	VolumeUnknown VolumeRegime = ""
)

// EMAStack labels the relative ordering of the three EMAs against price.
type EMAStack string

const (
	StackBullish EMAStack = "BULLISH"
	StackBearish EMAStack = "BEARISH"
	StackNeutral EMAStack = "NEUTRAL"
	StackUnknown EMAStack = ""
)

// IndicatorSnapshot holds the full indicator battery for one candle.
// It is owned by, and computed strictly after, its candle. Only the most
// recent snapshot for a pair may be recomputed (when its candle is amended).
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	TS        time.Time `json:"ts"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`

	RSI    Float `json:"rsi"`
	RSIEMA Float `json:"rsi_ema"`

	MACDLine      Float `json:"macd_line"`
	MACDSignal    Float `json:"macd_signal"`
	MACDHistogram Float `json:"macd_histogram"`

	ADX     Float `json:"adx"`
	DIPlus  Float `json:"di_plus"`
	DIMinus Float `json:"di_minus"`

	OBV   Float `json:"obv"`
	OBVMA Float `json:"obv_ma"`

	EMAFast Float    `json:"ema_fast"` // default period 44
	EMAMid  Float    `json:"ema_mid"`  // default period 100
	EMASlow Float    `json:"ema_slow"` // default period 200
	Stack   EMAStack `json:"ema_stack"`

	SuperTrend1    Float          `json:"supertrend_1"`
	SuperTrend1Dir TrendDirection `json:"supertrend_1_direction"`
	SuperTrend2    Float          `json:"supertrend_2"`
	SuperTrend2Dir TrendDirection `json:"supertrend_2_direction"`

	BBBasis    Float      `json:"bb_basis"`
	BBUpper1   Float      `json:"bb_upper_1"`
	BBLower1   Float      `json:"bb_lower_1"`
	BBUpper2   Float      `json:"bb_upper_2"`
	BBLower2   Float      `json:"bb_lower_2"`
	BBUpper3   Float      `json:"bb_upper_3"`
	BBLower3   Float      `json:"bb_lower_3"`
	BBSqueeze  bool       `json:"bb_squeeze"`
	BBPosition BBPosition `json:"bb_position"`

	VWAP Float `json:"vwap"`
	ATR  Float `json:"atr"`

	VolumeAvg    Float        `json:"volume_avg"`
	VolumeRegime VolumeRegime `json:"volume_regime"`
}

// Key returns "symbol:timeframe".
func (s *IndicatorSnapshot) Key() string {
	return s.Symbol + ":" + string(s.Timeframe)
}

// JSON returns the JSON-encoded snapshot.
func (s *IndicatorSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

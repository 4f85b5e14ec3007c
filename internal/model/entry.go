package model

import (
	"encoding/json"
	"time"
)

// EntryState is the lifecycle state of a tracked entry.
type EntryState string

const (
	// Non-terminal states.
	StateValidating EntryState = "VALIDATING"
	StateActive     EntryState = "ACTIVE"
	StateExit1      EntryState = "EXIT-1"
	StateExit2      EntryState = "EXIT-2"

	// Terminal states. A terminal entry releases its (symbol, timeframe)
	// slot for a new entry.
	StateExited      EntryState = "EXITED"
	StateStopLoss    EntryState = "STOP-LOSS"
	StateInvalidated EntryState = "INVALIDATED"
)

// Terminal reports whether the state ends the lifecycle.
func (s EntryState) Terminal() bool {
	switch s {
	case StateExited, StateStopLoss, StateInvalidated:
		return true
	}
	return false
}

// Exit reasons recorded on terminal transitions.
const (
	ExitReasonTarget       = "target"
	ExitReasonTrailingStop = "trailing-stop"
	ExitReasonStopLoss     = "stop-loss"
	ExitReasonSignal       = "signal-exit"
	ExitReasonInvalidated  = "invalidated"
)

// ExitStage records one progressive partial-exit zone hit. Hits are
// monotonic: once set they are never unset, and stage N+1 is never hit
// before stage N.
type ExitStage struct {
	Hit   bool      `json:"hit"`
	Price Float     `json:"price"`
	Time  time.Time `json:"time"`
}

// Entry is the position-lifecycle record for one (symbol, timeframe).
// At most one non-terminal Entry exists per pair at any time.
type Entry struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`

	State EntryState `json:"state"`

	// Snapshot taken from the origin signal.
	SignalTS    time.Time `json:"signal_ts"`
	EntryTier   Tier      `json:"entry_tier"`
	EntryTime   time.Time `json:"entry_time"`
	EntryPrice  float64   `json:"entry_price"`
	EntryScore  float64   `json:"entry_score"`
	StopLoss    float64   `json:"stop_loss"`
	TargetPrice float64   `json:"target_price"`
	ATRAtEntry  float64   `json:"atr_at_entry"`

	// Validation window.
	ValidationCandles int       `json:"validation_candles"`
	ValidatedAt       time.Time `json:"validated_at,omitempty"`

	// Running extrema, updated monotonically every candle.
	CurrentPrice float64   `json:"current_price"`
	PeakPrice    float64   `json:"peak_price"`
	PeakTime     time.Time `json:"peak_time"`
	TroughPrice  float64   `json:"trough_price"`

	CurrentProfitPct float64 `json:"current_profit_pct"`
	MaxProfitPct     float64 `json:"max_profit_pct"`
	FinalProfitPct   Float   `json:"final_profit_pct"`

	// Staged partial exits, index 0..2 for EXIT-1..EXIT-3.
	Exits [3]ExitStage `json:"exits"`

	TrailingActive bool  `json:"trailing_active"`
	TrailingStop   Float `json:"trailing_stop"`

	ExitPrice  Float     `json:"exit_price"`
	ExitTime   time.Time `json:"exit_time,omitempty"`
	ExitReason string    `json:"exit_reason,omitempty"`

	// Post-stop-loss observation; never re-opens the entry.
	RecoveryAttempt bool      `json:"recovery_attempt"`
	RecoveryLow     Float     `json:"recovery_low"`
	RecoveryTime    time.Time `json:"recovery_time,omitempty"`
	Recovered       bool      `json:"recovered"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns "symbol:timeframe".
func (e *Entry) Key() string {
	return e.Symbol + ":" + string(e.Timeframe)
}

// ProfitPct computes profit percentage of price against the entry price.
func (e *Entry) ProfitPct(price float64) float64 {
	if e.EntryPrice == 0 {
		return 0
	}
	return (price - e.EntryPrice) / e.EntryPrice * 100
}

// JSON returns the JSON-encoded entry.
func (e *Entry) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

package model

import "time"

// LevelSet holds support/resistance levels for one (symbol, timeframe).
// Manual values use 0 as the "unset" sentinel at the storage boundary;
// effective levels resolve manual-over-auto.
type LevelSet struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`

	ManualSupport    float64 `json:"manual_support"`    // 0 = unset
	ManualResistance float64 `json:"manual_resistance"` // 0 = unset

	AutoSupport    Float `json:"auto_support"`    // trailing-window low
	AutoResistance Float `json:"auto_resistance"` // trailing-window high

	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveSupport resolves the support actually used for scoring:
// manual override when set, else the auto level when auto mode is enabled.
// Returns an invalid Float when neither is available.
func (l *LevelSet) EffectiveSupport(autoEnabled bool) Float {
	if l.ManualSupport != 0 {
		return F(l.ManualSupport)
	}
	if autoEnabled && l.AutoSupport.Valid {
		return l.AutoSupport
	}
	return Float{}
}

// EffectiveResistance resolves the resistance actually used for scoring.
func (l *LevelSet) EffectiveResistance(autoEnabled bool) Float {
	if l.ManualResistance != 0 {
		return F(l.ManualResistance)
	}
	if autoEnabled && l.AutoResistance.Valid {
		return l.AutoResistance
	}
	return Float{}
}

// MagicLine is a user-defined reference price per symbol, independent of
// timeframe, used as a scoring bonus trigger.
type MagicLine struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Notes     string    `json:"notes,omitempty"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

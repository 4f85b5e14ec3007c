package model

import "fmt"

// Thresholds is the descending tier ladder for one timeframe class.
// A score equal to a threshold qualifies for that tier.
type Thresholds struct {
	ABuy     float64 `json:"a_buy"`
	Buy      float64 `json:"buy"`
	EarlyBuy float64 `json:"early_buy"`
	Watch    float64 `json:"watch"`
	Caution  float64 `json:"caution"`
}

// ClassParams groups the per-class tunables.
type ClassParams struct {
	Thresholds Thresholds `json:"thresholds"`
	MaxScore   float64    `json:"max_score"`

	StopATRMult   float64 `json:"stop_atr_mult"`
	TargetATRMult float64 `json:"target_atr_mult"`

	// Loss (negative percent) that invalidates a VALIDATING entry.
	InvalidationLossPct float64 `json:"invalidation_loss_pct"`
}

// IndicatorPeriods holds the indicator battery configuration.
type IndicatorPeriods struct {
	RSI    int `json:"rsi"`
	RSIEMA int `json:"rsi_ema"`

	MACDFast   int `json:"macd_fast"`
	MACDSlow   int `json:"macd_slow"`
	MACDSignal int `json:"macd_signal"`

	ADX int `json:"adx"`
	ATR int `json:"atr"`

	OBVMA int `json:"obv_ma"`

	EMAFast int `json:"ema_fast"`
	EMAMid  int `json:"ema_mid"`
	EMASlow int `json:"ema_slow"`

	ST1ATR    int     `json:"st1_atr"`
	ST1Factor float64 `json:"st1_factor"`
	ST2ATR    int     `json:"st2_atr"`
	ST2Factor float64 `json:"st2_factor"`

	BBLength     int     `json:"bb_length"`
	BBSqueezePct float64 `json:"bb_squeeze_pct"` // width percent below which squeeze is flagged

	VolumeAvg     int     `json:"volume_avg"`
	VolumeHighMul float64 `json:"volume_high_mul"`
	VolumeLowMul  float64 `json:"volume_low_mul"`
}

// Settings is the full mutable configuration, read once per tick per pair
// and treated as a consistent snapshot for that pair's entire run.
type Settings struct {
	Intraday ClassParams `json:"intraday"`
	Swing    ClassParams `json:"swing"`

	Periods IndicatorPeriods `json:"periods"`

	// Exit zones as fractions of (target - entry), ascending.
	ExitZones [3]float64 `json:"exit_zones"`

	// Validation window.
	ValidationProfitPct  float64 `json:"validation_profit_pct"`
	MaxValidationCandles int     `json:"max_validation_candles"`

	// Trailing stop offset in ATR multiples below the peak once armed.
	TrailingATRMult float64 `json:"trailing_atr_mult"`

	// Price rebound from the post-stop low that counts as a recovery.
	RecoveryReboundPct float64 `json:"recovery_rebound_pct"`

	PriceActionBonusMax float64 `json:"price_action_bonus_max"`
	VWAPNeutralZonePct  float64 `json:"vwap_neutral_zone_pct"`

	AutoSREnabled  bool `json:"auto_sr_enabled"`
	SRLookbackDays int  `json:"sr_lookback_days"`
}

// ForClass returns the parameter set for a timeframe class.
func (s *Settings) ForClass(c TimeframeClass) ClassParams {
	if c == ClassSwing {
		return s.Swing
	}
	return s.Intraday
}

// DefaultSettings returns the stock configuration.
func DefaultSettings() Settings {
	return Settings{
		Intraday: ClassParams{
			Thresholds:          Thresholds{ABuy: 29, Buy: 23, EarlyBuy: 18, Watch: 13, Caution: 9},
			MaxScore:            36,
			StopATRMult:         1.2,
			TargetATRMult:       2.0,
			InvalidationLossPct: -1.0,
		},
		Swing: ClassParams{
			Thresholds:          Thresholds{ABuy: 33, Buy: 26, EarlyBuy: 21, Watch: 15, Caution: 10},
			MaxScore:            41,
			StopATRMult:         2.0,
			TargetATRMult:       4.0,
			InvalidationLossPct: -2.0,
		},
		Periods: IndicatorPeriods{
			RSI:    14,
			RSIEMA: 21,

			MACDFast:   9,
			MACDSlow:   21,
			MACDSignal: 5,

			ADX: 14,
			ATR: 14,

			OBVMA: 21,

			EMAFast: 44,
			EMAMid:  100,
			EMASlow: 200,

			ST1ATR:    5,
			ST1Factor: 1.0,
			ST2ATR:    8,
			ST2Factor: 2.0,

			BBLength:     20,
			BBSqueezePct: 4.0,

			VolumeAvg:     20,
			VolumeHighMul: 1.5,
			VolumeLowMul:  0.5,
		},
		ExitZones:            [3]float64{0.3, 0.6, 1.0},
		ValidationProfitPct:  1.0,
		MaxValidationCandles: 3,
		TrailingATRMult:      1.0,
		RecoveryReboundPct:   2.0,
		PriceActionBonusMax:  2.0,
		VWAPNeutralZonePct:   0.5,
		AutoSREnabled:        true,
		SRLookbackDays:       30,
	}
}

// Validate rejects malformed settings before a tick uses them.
func (s *Settings) Validate() error {
	for _, cp := range []struct {
		name string
		p    ClassParams
	}{{"intraday", s.Intraday}, {"swing", s.Swing}} {
		t := cp.p.Thresholds
		if !(t.ABuy >= t.Buy && t.Buy >= t.EarlyBuy && t.EarlyBuy >= t.Watch && t.Watch >= t.Caution) {
			return &InvalidSettingsError{Field: cp.name + ".thresholds", Reason: "ladder must be descending"}
		}
		if cp.p.MaxScore <= 0 {
			return &InvalidSettingsError{Field: cp.name + ".max_score", Reason: "must be positive"}
		}
		if cp.p.StopATRMult <= 0 || cp.p.TargetATRMult <= 0 {
			return &InvalidSettingsError{Field: cp.name + ".atr_mult", Reason: "must be positive"}
		}
	}
	p := s.Periods
	for _, c := range []struct {
		name string
		v    int
	}{
		{"rsi", p.RSI}, {"rsi_ema", p.RSIEMA},
		{"macd_fast", p.MACDFast}, {"macd_slow", p.MACDSlow}, {"macd_signal", p.MACDSignal},
		{"adx", p.ADX}, {"atr", p.ATR}, {"obv_ma", p.OBVMA},
		{"ema_fast", p.EMAFast}, {"ema_mid", p.EMAMid}, {"ema_slow", p.EMASlow},
		{"st1_atr", p.ST1ATR}, {"st2_atr", p.ST2ATR},
		{"bb_length", p.BBLength}, {"volume_avg", p.VolumeAvg},
	} {
		if c.v <= 0 {
			return &InvalidSettingsError{Field: "periods." + c.name, Reason: "must be positive"}
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return &InvalidSettingsError{Field: "periods.macd", Reason: "fast must be below slow"}
	}
	prev := 0.0
	for i, z := range s.ExitZones {
		if z <= prev || z > 1.0 {
			return &InvalidSettingsError{Field: fmt.Sprintf("exit_zones[%d]", i), Reason: "must ascend within (0,1]"}
		}
		prev = z
	}
	if s.MaxValidationCandles <= 0 {
		return &InvalidSettingsError{Field: "max_validation_candles", Reason: "must be positive"}
	}
	return nil
}

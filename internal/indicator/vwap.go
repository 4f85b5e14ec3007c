package indicator

import (
	"time"

	"signal-systemv1/internal/model"
)

// VWAP accumulates the volume-weighted average price over typical prices.
// For intraday timeframes the accumulators reset at each UTC calendar-day
// boundary; for daily and above the session is cumulative.
type VWAP struct {
	daily bool

	day     string // "2006-01-02" of the active session
	sumPV   float64
	sumVol  float64
	hasData bool
}

// NewVWAP creates a VWAP. dailyReset should be true for intraday
// timeframes.
func NewVWAP(dailyReset bool) *VWAP {
	return &VWAP{daily: dailyReset}
}

func (v *VWAP) Update(c model.Candle) {
	if v.daily {
		day := c.TS.UTC().Format(time.DateOnly)
		if day != v.day {
			v.day = day
			v.sumPV, v.sumVol = 0, 0
		}
	}
	typical := (c.High + c.Low + c.Close) / 3
	v.sumPV += typical * c.Volume
	v.sumVol += c.Volume
	v.hasData = true
}

// Value returns the session VWAP. Undefined until Ready.
func (v *VWAP) Value() float64 {
	if v.sumVol == 0 {
		return 0
	}
	return v.sumPV / v.sumVol
}

// Ready is true once the active session has at least one candle with
// non-zero volume.
func (v *VWAP) Ready() bool { return v.hasData && v.sumVol > 0 }

// VWAPState serializes the VWAP state for checkpoint persistence.
type VWAPState struct {
	Daily   bool    `json:"daily"`
	Day     string  `json:"day"`
	SumPV   float64 `json:"sum_pv"`
	SumVol  float64 `json:"sum_vol"`
	HasData bool    `json:"has_data"`
}

// State serializes the VWAP state.
func (v *VWAP) State() VWAPState {
	return VWAPState{Daily: v.daily, Day: v.day, SumPV: v.sumPV, SumVol: v.sumVol, HasData: v.hasData}
}

// Restore replaces the VWAP state from a checkpoint.
func (v *VWAP) Restore(st VWAPState) {
	v.daily = st.Daily
	v.day = st.Day
	v.sumPV = st.SumPV
	v.sumVol = st.SumVol
	v.hasData = st.HasData
}

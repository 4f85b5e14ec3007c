package indicator

import "signal-systemv1/internal/model"

// SuperTrend tracks the ATR-band trend-following line. Bands carry over
// from the previous candle unless price action allows them to tighten,
// and the direction flips when the close crosses the active band.
type SuperTrend struct {
	atr        *ATR
	multiplier float64

	count     int
	prevClose float64
	upperBand float64
	lowerBand float64
	dir       model.TrendDirection
	value     float64
}

// NewSuperTrend creates a SuperTrend with the given ATR period and band
// multiplier.
func NewSuperTrend(atrPeriod int, multiplier float64) *SuperTrend {
	return &SuperTrend{
		atr:        NewATR(atrPeriod),
		multiplier: multiplier,
		dir:        model.TrendUp,
	}
}

func (s *SuperTrend) Update(c model.Candle) {
	s.atr.Update(c)
	s.count++

	if !s.atr.Ready() {
		s.prevClose = c.Close
		return
	}

	mid := (c.High + c.Low) / 2
	band := s.multiplier * s.atr.Value()
	basicUpper := mid + band
	basicLower := mid - band

	if s.upperBand == 0 && s.lowerBand == 0 {
		s.upperBand, s.lowerBand = basicUpper, basicLower
	} else {
		// Band carryover: only tighten, or reset after price closed
		// through the previous band.
		if basicUpper < s.upperBand || s.prevClose > s.upperBand {
			s.upperBand = basicUpper
		}
		if basicLower > s.lowerBand || s.prevClose < s.lowerBand {
			s.lowerBand = basicLower
		}
	}

	if s.dir == model.TrendUp && c.Close < s.lowerBand {
		s.dir = model.TrendDown
	} else if s.dir == model.TrendDown && c.Close > s.upperBand {
		s.dir = model.TrendUp
	}

	if s.dir == model.TrendUp {
		s.value = s.lowerBand
	} else {
		s.value = s.upperBand
	}
	s.prevClose = c.Close
}

// Value returns the active SuperTrend line (lower band in an uptrend,
// upper band in a downtrend).
func (s *SuperTrend) Value() float64 { return s.value }

// Direction returns the current trend direction.
func (s *SuperTrend) Direction() model.TrendDirection { return s.dir }

// Ready is true once the underlying ATR has a full window.
func (s *SuperTrend) Ready() bool { return s.atr.Ready() }

// SuperTrendState serializes the SuperTrend state for checkpoint
// persistence.
type SuperTrendState struct {
	ATR        ATRState             `json:"atr"`
	Multiplier float64              `json:"multiplier"`
	Count      int                  `json:"count"`
	PrevClose  float64              `json:"prev_close"`
	UpperBand  float64              `json:"upper_band"`
	LowerBand  float64              `json:"lower_band"`
	Dir        model.TrendDirection `json:"dir"`
	Value      float64              `json:"value"`
}

// State serializes the SuperTrend state.
func (s *SuperTrend) State() SuperTrendState {
	return SuperTrendState{
		ATR: s.atr.State(), Multiplier: s.multiplier, Count: s.count,
		PrevClose: s.prevClose, UpperBand: s.upperBand, LowerBand: s.lowerBand,
		Dir: s.dir, Value: s.value,
	}
}

// Restore replaces the SuperTrend state from a checkpoint.
func (s *SuperTrend) Restore(st SuperTrendState) {
	s.atr.Restore(st.ATR)
	s.multiplier = st.Multiplier
	s.count = st.Count
	s.prevClose = st.PrevClose
	s.upperBand, s.lowerBand = st.UpperBand, st.LowerBand
	s.dir = st.Dir
	s.value = st.Value
}

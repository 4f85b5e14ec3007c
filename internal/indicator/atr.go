package indicator

import "signal-systemv1/internal/model"

// ATR calculates the Average True Range with Wilder smoothing.
// The first value is an SMA of the first `period` true ranges, then
// ATR = (prev*(period-1) + TR) / period.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Update(c model.Candle) {
	a.count++

	tr := c.High - c.Low
	if a.count > 1 {
		tr = trueRange(c.High, c.Low, a.prevClose)
	}
	a.prevClose = c.Close

	if a.count <= a.period {
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(high, low, prevClose float64) float64 {
	tr := high - low
	if d := abs(high - prevClose); d > tr {
		tr = d
	}
	if d := abs(low - prevClose); d > tr {
		tr = d
	}
	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ATRState serializes the ATR state for checkpoint persistence.
type ATRState struct {
	Period    int     `json:"period"`
	Count     int     `json:"count"`
	PrevClose float64 `json:"prev_close"`
	Sum       float64 `json:"sum"`
	Current   float64 `json:"current"`
}

// State serializes the ATR state.
func (a *ATR) State() ATRState {
	return ATRState{Period: a.period, Count: a.count, PrevClose: a.prevClose, Sum: a.sum, Current: a.current}
}

// Restore replaces the ATR state from a checkpoint.
func (a *ATR) Restore(st ATRState) {
	a.period = st.Period
	a.count = st.Count
	a.prevClose = st.PrevClose
	a.sum = st.Sum
	a.current = st.Current
}

package indicator

import "signal-systemv1/internal/model"

// ADX calculates the Average Directional Index with DI+ and DI−, using
// Wilder's running-sum smoothing over directional movement and true range.
type ADX struct {
	period int
	count  int

	prevHigh  float64
	prevLow   float64
	prevClose float64

	// Warm-up accumulators, then Wilder running sums.
	smTR  float64
	smDMP float64
	smDMM float64

	diPlus  float64
	diMinus float64

	dxCount float64 // DX values folded into the ADX seed
	dxSum   float64
	adx     float64
}

// NewADX creates a new ADX/DI indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Update(c model.Candle) {
	a.count++

	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = c.High, c.Low, c.Close
		return
	}

	tr := trueRange(c.High, c.Low, a.prevClose)

	upMove := c.High - a.prevHigh
	downMove := a.prevLow - c.Low
	dmPlus, dmMinus := 0.0, 0.0
	if upMove > downMove && upMove > 0 {
		dmPlus = upMove
	}
	if downMove > upMove && downMove > 0 {
		dmMinus = downMove
	}

	a.prevHigh, a.prevLow, a.prevClose = c.High, c.Low, c.Close

	p := float64(a.period)
	if a.count <= a.period+1 {
		// Accumulation phase: straight sums for the Wilder seed
		a.smTR += tr
		a.smDMP += dmPlus
		a.smDMM += dmMinus
		if a.count < a.period+1 {
			return
		}
	} else {
		// Wilder running-sum smoothing
		a.smTR = a.smTR - a.smTR/p + tr
		a.smDMP = a.smDMP - a.smDMP/p + dmPlus
		a.smDMM = a.smDMM - a.smDMM/p + dmMinus
	}

	if a.smTR == 0 {
		a.diPlus, a.diMinus = 0, 0
	} else {
		a.diPlus = 100 * a.smDMP / a.smTR
		a.diMinus = 100 * a.smDMM / a.smTR
	}

	dx := 0.0
	if sum := a.diPlus + a.diMinus; sum != 0 {
		dx = 100 * abs(a.diPlus-a.diMinus) / sum
	}

	if a.dxCount < p {
		// Seed ADX with the average of the first `period` DX values
		a.dxSum += dx
		a.dxCount++
		if a.dxCount == p {
			a.adx = a.dxSum / p
		}
		return
	}

	a.adx = (a.adx*(p-1) + dx) / p
}

// Value returns the current ADX.
func (a *ADX) Value() float64 { return a.adx }

// DIPlus returns the positive directional index.
func (a *ADX) DIPlus() float64 { return a.diPlus }

// DIMinus returns the negative directional index.
func (a *ADX) DIMinus() float64 { return a.diMinus }

// DIReady is true once the smoothed DI lines have a full window.
func (a *ADX) DIReady() bool { return a.count > a.period }

// Ready is true once ADX itself has a full DX window on top of the DI
// warm-up (roughly two periods of candles).
func (a *ADX) Ready() bool { return a.dxCount >= float64(a.period) }

// ADXState serializes the ADX state for checkpoint persistence.
type ADXState struct {
	Period    int     `json:"period"`
	Count     int     `json:"count"`
	PrevHigh  float64 `json:"prev_high"`
	PrevLow   float64 `json:"prev_low"`
	PrevClose float64 `json:"prev_close"`
	SmTR      float64 `json:"sm_tr"`
	SmDMP     float64 `json:"sm_dmp"`
	SmDMM     float64 `json:"sm_dmm"`
	DIPlus    float64 `json:"di_plus"`
	DIMinus   float64 `json:"di_minus"`
	DXCount   float64 `json:"dx_count"`
	DXSum     float64 `json:"dx_sum"`
	ADX       float64 `json:"adx"`
}

// State serializes the ADX state.
func (a *ADX) State() ADXState {
	return ADXState{
		Period: a.period, Count: a.count,
		PrevHigh: a.prevHigh, PrevLow: a.prevLow, PrevClose: a.prevClose,
		SmTR: a.smTR, SmDMP: a.smDMP, SmDMM: a.smDMM,
		DIPlus: a.diPlus, DIMinus: a.diMinus,
		DXCount: a.dxCount, DXSum: a.dxSum, ADX: a.adx,
	}
}

// Restore replaces the ADX state from a checkpoint.
func (a *ADX) Restore(st ADXState) {
	a.period = st.Period
	a.count = st.Count
	a.prevHigh, a.prevLow, a.prevClose = st.PrevHigh, st.PrevLow, st.PrevClose
	a.smTR, a.smDMP, a.smDMM = st.SmTR, st.SmDMP, st.SmDMM
	a.diPlus, a.diMinus = st.DIPlus, st.DIMinus
	a.dxCount, a.dxSum = st.DXCount, st.DXSum
	a.adx = st.ADX
}

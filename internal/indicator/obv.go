package indicator

import "signal-systemv1/internal/model"

// OBV maintains the On-Balance Volume running total together with an EMA
// of it used as its signal line.
type OBV struct {
	count     int
	prevClose float64
	obv       float64
	ma        *EMA
}

// NewOBV creates an OBV indicator whose EMA signal line uses maPeriod.
func NewOBV(maPeriod int) *OBV {
	return &OBV{ma: NewEMA(maPeriod)}
}

func (o *OBV) Update(c model.Candle) {
	o.count++
	if o.count > 1 {
		switch {
		case c.Close > o.prevClose:
			o.obv += c.Volume
		case c.Close < o.prevClose:
			o.obv -= c.Volume
		}
	}
	o.prevClose = c.Close
	o.ma.Update(o.obv)
}

// Value returns the current OBV total.
func (o *OBV) Value() float64 { return o.obv }

// MA returns the EMA signal line of OBV.
func (o *OBV) MA() float64 { return o.ma.Value() }

// Ready is true after the first candle (OBV has a defined value from the
// start; callers should gate on MAReady for the signal line).
func (o *OBV) Ready() bool { return o.count >= 1 }

// MAReady is true once the signal line's EMA has seeded.
func (o *OBV) MAReady() bool { return o.ma.Ready() }

// OBVState serializes the OBV state for checkpoint persistence.
type OBVState struct {
	Count     int      `json:"count"`
	PrevClose float64  `json:"prev_close"`
	OBV       float64  `json:"obv"`
	MA        EMAState `json:"ma"`
}

// State serializes the OBV state.
func (o *OBV) State() OBVState {
	return OBVState{Count: o.count, PrevClose: o.prevClose, OBV: o.obv, MA: o.ma.State()}
}

// Restore replaces the OBV state from a checkpoint.
func (o *OBV) Restore(st OBVState) {
	o.count = st.Count
	o.prevClose = st.PrevClose
	o.obv = st.OBV
	o.ma.Restore(st.MA)
}

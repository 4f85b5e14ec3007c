package indicator

// EMA calculates an Exponential Moving Average, seeded with an SMA over the
// first period values. O(1) per update — no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Update(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// EMAState serializes the EMA state for checkpoint persistence.
type EMAState struct {
	Period  int     `json:"period"`
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Current float64 `json:"current"`
}

// State serializes the EMA state.
func (e *EMA) State() EMAState {
	return EMAState{Period: e.period, Count: e.count, Sum: e.sum, Current: e.current}
}

// Restore replaces the EMA state from a checkpoint.
func (e *EMA) Restore(st EMAState) {
	e.period = st.Period
	e.multiplier = 2.0 / float64(st.Period+1)
	e.count = st.Count
	e.sum = st.Sum
	e.current = st.Current
}

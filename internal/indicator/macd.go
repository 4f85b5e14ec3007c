package indicator

// MACD calculates the Moving Average Convergence Divergence:
// line = EMA(fast) − EMA(slow), signal = EMA(line), histogram = line − signal.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD with the given fast/slow/signal periods
// (defaults in this system: 9/21/5).
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.Update(m.fast.Value() - m.slow.Value())
	}
}

// Line returns the MACD line (fast − slow).
func (m *MACD) Line() float64 { return m.fast.Value() - m.slow.Value() }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns line − signal.
func (m *MACD) Histogram() float64 { return m.Line() - m.signal.Value() }

// Ready is true once the signal line has a full window.
func (m *MACD) Ready() bool { return m.signal.Ready() }

// LineReady is true once the MACD line itself is computable.
func (m *MACD) LineReady() bool { return m.fast.Ready() && m.slow.Ready() }

// MACDState serializes the MACD state for checkpoint persistence.
type MACDState struct {
	Fast   EMAState `json:"fast"`
	Slow   EMAState `json:"slow"`
	Signal EMAState `json:"signal"`
}

// State serializes the MACD state.
func (m *MACD) State() MACDState {
	return MACDState{Fast: m.fast.State(), Slow: m.slow.State(), Signal: m.signal.State()}
}

// Restore replaces the MACD state from a checkpoint.
func (m *MACD) Restore(st MACDState) {
	m.fast.Restore(st.Fast)
	m.slow.Restore(st.Slow)
	m.signal.Restore(st.Signal)
}

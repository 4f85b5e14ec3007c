package indicator

// SMA calculates a Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Update(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// SMAState serializes the SMA rolling window for checkpoint persistence.
type SMAState struct {
	Period  int       `json:"period"`
	Buf     []float64 `json:"buf"`
	Idx     int       `json:"idx"`
	Count   int       `json:"count"`
	Sum     float64   `json:"sum"`
	Current float64   `json:"current"`
}

// State serializes the SMA state.
func (s *SMA) State() SMAState {
	buf := make([]float64, len(s.buf))
	copy(buf, s.buf)
	return SMAState{Period: s.period, Buf: buf, Idx: s.idx, Count: s.count, Sum: s.sum, Current: s.current}
}

// Restore replaces the SMA state from a checkpoint.
func (s *SMA) Restore(st SMAState) {
	s.period = st.Period
	s.idx = st.Idx
	s.count = st.Count
	s.sum = st.Sum
	s.current = st.Current
	if len(st.Buf) > 0 {
		s.buf = make([]float64, len(st.Buf))
		copy(s.buf, st.Buf)
	} else {
		s.buf = make([]float64, st.Period)
	}
}

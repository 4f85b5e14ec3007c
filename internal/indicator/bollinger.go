package indicator

import (
	"math"

	"signal-systemv1/internal/model"
)

// Bollinger maintains Bollinger Bands at 1, 2 and 3 standard deviations
// around an SMA basis, plus the band-width squeeze flag and the price
// position bucket relative to the bands.
type Bollinger struct {
	period int
	buf    []float64
	head   int
	n      int
	sum    float64
	sumSq  float64

	squeezePct float64 // width below this percent of basis = squeeze
	lastClose  float64
}

// NewBollinger creates Bollinger Bands with the given period (typically
// 20) and squeeze threshold as a percentage of the basis (e.g. 4.0).
func NewBollinger(period int, squeezePct float64) *Bollinger {
	return &Bollinger{
		period:     period,
		buf:        make([]float64, period),
		squeezePct: squeezePct,
	}
}

func (b *Bollinger) Update(c model.Candle) {
	v := c.Close
	if b.n == b.period {
		old := b.buf[b.head]
		b.sum -= old
		b.sumSq -= old * old
	} else {
		b.n++
	}
	b.buf[b.head] = v
	b.head = (b.head + 1) % b.period
	b.sum += v
	b.sumSq += v * v
	b.lastClose = v
}

// Ready is true once the window holds a full period of closes.
func (b *Bollinger) Ready() bool { return b.n == b.period }

// Basis returns the SMA midline.
func (b *Bollinger) Basis() float64 { return b.sum / float64(b.period) }

// StdDev returns the sample standard deviation of the window.
func (b *Bollinger) StdDev() float64 {
	n := float64(b.period)
	variance := (b.sumSq - b.sum*b.sum/n) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// Band returns the lower and upper band at k standard deviations.
func (b *Bollinger) Band(k float64) (lower, upper float64) {
	basis := b.Basis()
	dev := k * b.StdDev()
	return basis - dev, basis + dev
}

// WidthPct returns the 2-sigma band width as a percentage of the basis.
func (b *Bollinger) WidthPct() float64 {
	basis := b.Basis()
	if basis == 0 {
		return 0
	}
	lower, upper := b.Band(2)
	return (upper - lower) / basis * 100
}

// Squeeze reports whether the bands have contracted below the squeeze
// threshold.
func (b *Bollinger) Squeeze() bool { return b.WidthPct() < b.squeezePct }

// Position buckets the latest close against the three band pairs.
func (b *Bollinger) Position() model.BBPosition {
	l1, u1 := b.Band(1)
	l2, u2 := b.Band(2)
	l3, u3 := b.Band(3)
	c := b.lastClose
	switch {
	case c <= l3:
		return model.BBBelow3
	case c <= l2:
		return model.BBBelow2
	case c <= l1:
		return model.BBBelow1
	case c >= u3:
		return model.BBAbove3
	case c >= u2:
		return model.BBAbove2
	case c >= u1:
		return model.BBAbove1
	default:
		return model.BBNeutral
	}
}

// BollingerState serializes the band state for checkpoint persistence.
type BollingerState struct {
	Period     int       `json:"period"`
	Buf        []float64 `json:"buf"`
	Head       int       `json:"head"`
	N          int       `json:"n"`
	Sum        float64   `json:"sum"`
	SumSq      float64   `json:"sum_sq"`
	SqueezePct float64   `json:"squeeze_pct"`
	LastClose  float64   `json:"last_close"`
}

// State serializes the band state.
func (b *Bollinger) State() BollingerState {
	buf := make([]float64, len(b.buf))
	copy(buf, b.buf)
	return BollingerState{
		Period: b.period, Buf: buf, Head: b.head, N: b.n,
		Sum: b.sum, SumSq: b.sumSq, SqueezePct: b.squeezePct, LastClose: b.lastClose,
	}
}

// Restore replaces the band state from a checkpoint.
func (b *Bollinger) Restore(st BollingerState) {
	b.period = st.Period
	b.buf = make([]float64, len(st.Buf))
	copy(b.buf, st.Buf)
	b.head = st.Head
	b.n = st.N
	b.sum = st.Sum
	b.sumSq = st.SumSq
	b.squeezePct = st.SqueezePct
	b.lastClose = st.LastClose
}

package indicator

import (
	"encoding/json"
	"fmt"

	"signal-systemv1/internal/model"
)

// Battery is the full indicator set for one (symbol, timeframe) pair.
// Each closed candle is fed exactly once; Snapshot then reads the whole
// battery in O(1). A one-step savepoint allows the most recent candle to
// be replayed when a late correction amends it.
type Battery struct {
	pair model.Pair

	rsi    *RSI
	rsiEMA *EMA

	macd *MACD
	adx  *ADX
	atr  *ATR
	obv  *OBV

	emaFast *EMA
	emaMid  *EMA
	emaSlow *EMA

	st1 *SuperTrend
	st2 *SuperTrend

	bb   *Bollinger
	vwap *VWAP
	vol  *VolumeProfile

	count int
	prev  []byte // savepoint taken before the latest Update
}

// NewBattery builds a battery for the pair using the configured periods.
func NewBattery(pair model.Pair, p model.IndicatorPeriods) *Battery {
	return &Battery{
		pair:    pair,
		rsi:     NewRSI(p.RSI),
		rsiEMA:  NewEMA(p.RSIEMA),
		macd:    NewMACD(p.MACDFast, p.MACDSlow, p.MACDSignal),
		adx:     NewADX(p.ADX),
		atr:     NewATR(p.ATR),
		obv:     NewOBV(p.OBVMA),
		emaFast: NewEMA(p.EMAFast),
		emaMid:  NewEMA(p.EMAMid),
		emaSlow: NewEMA(p.EMASlow),
		st1:     NewSuperTrend(p.ST1ATR, p.ST1Factor),
		st2:     NewSuperTrend(p.ST2ATR, p.ST2Factor),
		bb:      NewBollinger(p.BBLength, p.BBSqueezePct),
		vwap:    NewVWAP(pair.Timeframe.IsIntraday()),
		vol:     NewVolumeProfile(p.VolumeAvg, p.VolumeHighMul, p.VolumeLowMul),
	}
}

// Pair returns the pair this battery belongs to.
func (b *Battery) Pair() model.Pair { return b.pair }

// Count returns the number of candles fed so far.
func (b *Battery) Count() int { return b.count }

// Update feeds one closed candle into every indicator. A savepoint of
// the pre-update state is retained so Rewind can undo exactly this one
// candle.
func (b *Battery) Update(c model.Candle) {
	b.prev, _ = b.MarshalState()

	b.rsi.Update(c.Close)
	if b.rsi.Ready() {
		b.rsiEMA.Update(b.rsi.Value())
	}
	b.macd.Update(c.Close)
	b.adx.Update(c)
	b.atr.Update(c)
	b.obv.Update(c)
	b.emaFast.Update(c.Close)
	b.emaMid.Update(c.Close)
	b.emaSlow.Update(c.Close)
	b.st1.Update(c)
	b.st2.Update(c)
	b.bb.Update(c)
	b.vwap.Update(c)
	b.vol.Update(c)
	b.count++
}

// Rewind undoes the most recent Update, restoring the savepoint. It
// returns false when no savepoint is available (fresh battery, already
// rewound, or restored from a checkpoint).
func (b *Battery) Rewind() bool {
	if b.prev == nil {
		return false
	}
	if err := b.UnmarshalState(b.prev); err != nil {
		return false
	}
	b.prev = nil
	return true
}

// Snapshot reads the whole battery against the candle it was last fed.
// Indicators still in warm-up yield null values rather than zeros.
func (b *Battery) Snapshot(c model.Candle) model.IndicatorSnapshot {
	snap := model.IndicatorSnapshot{
		Symbol:    b.pair.Symbol,
		Timeframe: b.pair.Timeframe,
		TS:        c.TS,
		Close:     c.Close,
		Volume:    c.Volume,
	}

	if b.rsi.Ready() {
		snap.RSI = model.F(b.rsi.Value())
	}
	if b.rsiEMA.Ready() {
		snap.RSIEMA = model.F(b.rsiEMA.Value())
	}

	if b.macd.LineReady() {
		snap.MACDLine = model.F(b.macd.Line())
	}
	if b.macd.Ready() {
		snap.MACDSignal = model.F(b.macd.Signal())
		snap.MACDHistogram = model.F(b.macd.Histogram())
	}

	if b.adx.Ready() {
		snap.ADX = model.F(b.adx.Value())
	}
	if b.adx.DIReady() {
		snap.DIPlus = model.F(b.adx.DIPlus())
		snap.DIMinus = model.F(b.adx.DIMinus())
	}

	if b.obv.Ready() {
		snap.OBV = model.F(b.obv.Value())
	}
	if b.obv.MAReady() {
		snap.OBVMA = model.F(b.obv.MA())
	}

	if b.emaFast.Ready() {
		snap.EMAFast = model.F(b.emaFast.Value())
	}
	if b.emaMid.Ready() {
		snap.EMAMid = model.F(b.emaMid.Value())
	}
	if b.emaSlow.Ready() {
		snap.EMASlow = model.F(b.emaSlow.Value())
	}
	snap.Stack = stackLabel(snap.EMAFast, snap.EMAMid, snap.EMASlow)

	if b.st1.Ready() {
		snap.SuperTrend1 = model.F(b.st1.Value())
		snap.SuperTrend1Dir = b.st1.Direction()
	}
	if b.st2.Ready() {
		snap.SuperTrend2 = model.F(b.st2.Value())
		snap.SuperTrend2Dir = b.st2.Direction()
	}

	if b.bb.Ready() {
		snap.BBBasis = model.F(b.bb.Basis())
		l1, u1 := b.bb.Band(1)
		l2, u2 := b.bb.Band(2)
		l3, u3 := b.bb.Band(3)
		snap.BBLower1, snap.BBUpper1 = model.F(l1), model.F(u1)
		snap.BBLower2, snap.BBUpper2 = model.F(l2), model.F(u2)
		snap.BBLower3, snap.BBUpper3 = model.F(l3), model.F(u3)
		snap.BBSqueeze = b.bb.Squeeze()
		snap.BBPosition = b.bb.Position()
	} else {
		snap.BBPosition = model.BBUnknown
	}

	if b.vwap.Ready() {
		snap.VWAP = model.F(b.vwap.Value())
	}
	if b.atr.Ready() {
		snap.ATR = model.F(b.atr.Value())
	}

	if b.vol.Ready() {
		snap.VolumeAvg = model.F(b.vol.Avg())
	}
	snap.VolumeRegime = b.vol.Regime()

	return snap
}

func stackLabel(fast, mid, slow model.Float) model.EMAStack {
	if !fast.Valid || !mid.Valid || !slow.Valid {
		return model.StackUnknown
	}
	switch {
	case fast.Val > mid.Val && mid.Val > slow.Val:
		return model.StackBullish
	case fast.Val < mid.Val && mid.Val < slow.Val:
		return model.StackBearish
	default:
		return model.StackNeutral
	}
}

// BatteryState is the JSON checkpoint of a battery. Version guards
// against restoring checkpoints written by an incompatible layout.
type BatteryState struct {
	Version   int             `json:"version"`
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Count     int             `json:"count"`

	RSI    RSIState `json:"rsi"`
	RSIEMA EMAState `json:"rsi_ema"`

	MACD MACDState `json:"macd"`
	ADX  ADXState  `json:"adx"`
	ATR  ATRState  `json:"atr"`
	OBV  OBVState  `json:"obv"`

	EMAFast EMAState `json:"ema_fast"`
	EMAMid  EMAState `json:"ema_mid"`
	EMASlow EMAState `json:"ema_slow"`

	ST1 SuperTrendState `json:"st1"`
	ST2 SuperTrendState `json:"st2"`

	BB   BollingerState     `json:"bb"`
	VWAP VWAPState          `json:"vwap"`
	Vol  VolumeProfileState `json:"vol"`
}

// batteryStateVersion bumps whenever a state struct changes shape or
// meaning. v2: the OBV signal line became an EMA.
const batteryStateVersion = 2

// MarshalState serializes the battery to a JSON checkpoint.
func (b *Battery) MarshalState() ([]byte, error) {
	st := BatteryState{
		Version:   batteryStateVersion,
		Symbol:    b.pair.Symbol,
		Timeframe: b.pair.Timeframe,
		Count:     b.count,
		RSI:       b.rsi.State(),
		RSIEMA:    b.rsiEMA.State(),
		MACD:      b.macd.State(),
		ADX:       b.adx.State(),
		ATR:       b.atr.State(),
		OBV:       b.obv.State(),
		EMAFast:   b.emaFast.State(),
		EMAMid:    b.emaMid.State(),
		EMASlow:   b.emaSlow.State(),
		ST1:       b.st1.State(),
		ST2:       b.st2.State(),
		BB:        b.bb.State(),
		VWAP:      b.vwap.State(),
		Vol:       b.vol.State(),
	}
	return json.Marshal(st)
}

// UnmarshalState restores the battery from a JSON checkpoint. The
// savepoint is discarded: a restored battery cannot rewind past the
// checkpoint.
func (b *Battery) UnmarshalState(data []byte) error {
	var st BatteryState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("battery state decode: %w", err)
	}
	if st.Version != batteryStateVersion {
		return fmt.Errorf("battery state version %d, want %d", st.Version, batteryStateVersion)
	}
	b.count = st.Count
	b.rsi.Restore(st.RSI)
	b.rsiEMA.Restore(st.RSIEMA)
	b.macd.Restore(st.MACD)
	b.adx.Restore(st.ADX)
	b.atr.Restore(st.ATR)
	b.obv.Restore(st.OBV)
	b.emaFast.Restore(st.EMAFast)
	b.emaMid.Restore(st.EMAMid)
	b.emaSlow.Restore(st.EMASlow)
	b.st1.Restore(st.ST1)
	b.st2.Restore(st.ST2)
	b.bb.Restore(st.BB)
	b.vwap.Restore(st.VWAP)
	b.vol.Restore(st.Vol)
	b.prev = nil
	return nil
}

// Compute runs a fresh battery over a full candle history and returns
// the final snapshot. Incremental updates and a batch recompute over the
// same candles agree exactly.
func Compute(pair model.Pair, p model.IndicatorPeriods, candles []model.Candle) (model.IndicatorSnapshot, error) {
	if len(candles) == 0 {
		return model.IndicatorSnapshot{}, &model.InsufficientHistoryError{Pair: pair, Have: 0, Needed: 1}
	}
	b := NewBattery(pair, p)
	for _, c := range candles {
		b.Update(c)
	}
	return b.Snapshot(candles[len(candles)-1]), nil
}

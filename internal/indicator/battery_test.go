package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func testPeriods() model.IndicatorPeriods {
	p := model.DefaultSettings().Periods
	// Shrink warm-ups so tests run on short series
	p.RSI, p.RSIEMA = 5, 3
	p.MACDFast, p.MACDSlow, p.MACDSignal = 3, 7, 3
	p.ADX, p.ATR, p.OBVMA = 5, 5, 3
	p.EMAFast, p.EMAMid, p.EMASlow = 3, 5, 8
	p.ST1ATR, p.ST2ATR = 3, 5
	p.BBLength = 5
	p.VolumeAvg = 5
	return p
}

func trendCandles(n int, start time.Time, tf model.Timeframe) []model.Candle {
	out := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		p := 100.0 + float64(i)*0.7 + math.Sin(float64(i)/4)*2
		out = append(out, model.Candle{
			Symbol: "RELIANCE", Timeframe: tf,
			TS:   start.Add(time.Duration(i) * tf.Duration()),
			Open: p, High: p + 1.2, Low: p - 1.1, Close: p + 0.4,
			Volume: 1000 + float64(i%7)*150,
		})
	}
	return out
}

func TestBattery_WarmupYieldsNulls(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	b := NewBattery(pair, testPeriods())
	candles := trendCandles(2, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "1h")
	for _, c := range candles {
		b.Update(c)
	}
	snap := b.Snapshot(candles[len(candles)-1])

	if snap.RSI.Valid {
		t.Error("RSI should be null during warm-up")
	}
	if snap.ADX.Valid {
		t.Error("ADX should be null during warm-up")
	}
	if snap.BBPosition != model.BBUnknown {
		t.Errorf("BB position should be unknown during warm-up, got %q", snap.BBPosition)
	}
	if snap.Stack != model.StackUnknown {
		t.Errorf("EMA stack should be unknown during warm-up, got %q", snap.Stack)
	}
	if snap.VolumeRegime != model.VolumeUnknown {
		t.Errorf("volume regime should be unknown during warm-up, got %q", snap.VolumeRegime)
	}
}

func TestBattery_FullWarmupPopulatesEverything(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	b := NewBattery(pair, testPeriods())
	candles := trendCandles(60, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "1h")
	for _, c := range candles {
		b.Update(c)
	}
	snap := b.Snapshot(candles[len(candles)-1])

	for _, f := range []struct {
		name string
		v    model.Float
	}{
		{"rsi", snap.RSI}, {"rsi_ema", snap.RSIEMA},
		{"macd_line", snap.MACDLine}, {"macd_signal", snap.MACDSignal}, {"macd_histogram", snap.MACDHistogram},
		{"adx", snap.ADX}, {"di_plus", snap.DIPlus}, {"di_minus", snap.DIMinus},
		{"obv", snap.OBV}, {"obv_ma", snap.OBVMA},
		{"ema_fast", snap.EMAFast}, {"ema_mid", snap.EMAMid}, {"ema_slow", snap.EMASlow},
		{"supertrend_1", snap.SuperTrend1}, {"supertrend_2", snap.SuperTrend2},
		{"bb_basis", snap.BBBasis}, {"vwap", snap.VWAP}, {"atr", snap.ATR},
		{"volume_avg", snap.VolumeAvg},
	} {
		if !f.v.Valid {
			t.Errorf("%s should be populated after 60 candles", f.name)
		}
	}
	if snap.Stack == model.StackUnknown {
		t.Error("EMA stack should be labeled after warm-up")
	}
	if snap.BBPosition == model.BBUnknown {
		t.Error("BB position should be labeled after warm-up")
	}
	if snap.VolumeRegime == model.VolumeUnknown {
		t.Error("volume regime should be labeled after warm-up")
	}
}

func TestBattery_IncrementalMatchesBatch(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	candles := trendCandles(80, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "1h")

	b := NewBattery(pair, testPeriods())
	for _, c := range candles {
		b.Update(c)
	}
	inc := b.Snapshot(candles[len(candles)-1])

	batch, err := Compute(pair, testPeriods(), candles)
	if err != nil {
		t.Fatalf("batch compute: %v", err)
	}

	pairsEq := func(name string, a, z model.Float) {
		t.Helper()
		if a.Valid != z.Valid {
			t.Errorf("%s validity mismatch: incremental=%v batch=%v", name, a.Valid, z.Valid)
			return
		}
		if a.Valid && math.Abs(a.Val-z.Val) > 1e-9 {
			t.Errorf("%s divergence: incremental=%.9f batch=%.9f", name, a.Val, z.Val)
		}
	}
	pairsEq("rsi", inc.RSI, batch.RSI)
	pairsEq("macd_histogram", inc.MACDHistogram, batch.MACDHistogram)
	pairsEq("adx", inc.ADX, batch.ADX)
	pairsEq("obv", inc.OBV, batch.OBV)
	pairsEq("ema_slow", inc.EMASlow, batch.EMASlow)
	pairsEq("supertrend_2", inc.SuperTrend2, batch.SuperTrend2)
	pairsEq("bb_basis", inc.BBBasis, batch.BBBasis)
	pairsEq("vwap", inc.VWAP, batch.VWAP)
	pairsEq("atr", inc.ATR, batch.ATR)
}

func TestBattery_StateRoundTrip(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	candles := trendCandles(60, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "1h")

	b := NewBattery(pair, testPeriods())
	for _, c := range candles[:40] {
		b.Update(c)
	}
	state, err := b.MarshalState()
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}

	restored := NewBattery(pair, testPeriods())
	if err := restored.UnmarshalState(state); err != nil {
		t.Fatalf("restore: %v", err)
	}

	// Feed the tail into both; they must stay in lockstep.
	for _, c := range candles[40:] {
		b.Update(c)
		restored.Update(c)
	}
	a := b.Snapshot(candles[len(candles)-1])
	z := restored.Snapshot(candles[len(candles)-1])
	if a.RSI.Or(-1) != z.RSI.Or(-1) {
		t.Errorf("RSI divergence after restore: %.9f vs %.9f", a.RSI.Val, z.RSI.Val)
	}
	if a.SuperTrend2.Or(-1) != z.SuperTrend2.Or(-1) {
		t.Errorf("SuperTrend divergence after restore: %.9f vs %.9f", a.SuperTrend2.Val, z.SuperTrend2.Val)
	}
	if a.ADX.Or(-1) != z.ADX.Or(-1) {
		t.Errorf("ADX divergence after restore: %.9f vs %.9f", a.ADX.Val, z.ADX.Val)
	}
}

func TestBattery_StateRejectsWrongVersion(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	b := NewBattery(pair, testPeriods())
	if err := b.UnmarshalState([]byte(`{"version":99}`)); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestBattery_RewindReplaysAmendedCandle(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	candles := trendCandles(50, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), "1h")

	b := NewBattery(pair, testPeriods())
	for _, c := range candles {
		b.Update(c)
	}

	// The venue amends the last candle: rewind and feed the correction.
	amended := candles[len(candles)-1]
	amended.Close += 3
	amended.High += 3
	if !b.Rewind() {
		t.Fatal("rewind should succeed right after an update")
	}
	b.Update(amended)
	got := b.Snapshot(amended)

	// A fresh battery over the amended history must agree exactly.
	fixed := append(append([]model.Candle{}, candles[:len(candles)-1]...), amended)
	want, err := Compute(pair, testPeriods(), fixed)
	if err != nil {
		t.Fatalf("batch compute: %v", err)
	}
	if math.Abs(got.RSI.Or(-1)-want.RSI.Or(-1)) > 1e-9 {
		t.Errorf("RSI after rewind: got %.9f, want %.9f", got.RSI.Val, want.RSI.Val)
	}
	if math.Abs(got.ATR.Or(-1)-want.ATR.Or(-1)) > 1e-9 {
		t.Errorf("ATR after rewind: got %.9f, want %.9f", got.ATR.Val, want.ATR.Val)
	}

	// A second rewind has no savepoint left.
	if b.Rewind() {
		t.Error("double rewind should fail")
	}
}

func TestCompute_EmptyHistory(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	_, err := Compute(pair, testPeriods(), nil)
	if err == nil {
		t.Fatal("expected insufficient-history error")
	}
	var ih *model.InsufficientHistoryError
	if !errors.As(err, &ih) {
		t.Fatalf("wrong error type: %T", err)
	}
}

package signal

import (
	"testing"
	"time"

	"signal-systemv1/internal/model"
)

func baseSnapshot(tf model.Timeframe) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Symbol:    "RELIANCE",
		Timeframe: tf,
		TS:        time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Close:     100,
	}
}

func score(snap model.IndicatorSnapshot) model.Signal {
	return Score(Input{Snapshot: snap, Settings: model.DefaultSettings()})
}

func TestScore_EmptySnapshotContributesNothing(t *testing.T) {
	sig := score(baseSnapshot("1h"))
	if sig.Total != 0 {
		t.Errorf("warm-up snapshot should score 0, got %.2f", sig.Total)
	}
	if sig.Tier != model.TierSell {
		t.Errorf("zero score should classify SELL, got %s", sig.Tier)
	}
	if sig.EntryPrice.Valid {
		t.Error("no entry suggestion without a buy tier")
	}
}

func TestScore_RSIZones(t *testing.T) {
	cases := []struct {
		rsi  float64
		want float64
	}{
		{25, 4.5}, {30, 4.5}, {35, 3}, {45, 2}, {55, 1}, {65, 0}, {75, 0},
	}
	for _, c := range cases {
		snap := baseSnapshot("1h")
		snap.RSI = model.F(c.rsi)
		if got := score(snap).Scores.RSI; got != c.want {
			t.Errorf("RSI %.0f: got %.2f, want %.2f", c.rsi, got, c.want)
		}
	}
}

func TestScore_MACDStates(t *testing.T) {
	snap := baseSnapshot("1h")
	snap.MACDLine = model.F(0.5)
	snap.MACDHistogram = model.F(0.2)
	if got := score(snap).Scores.MACD; got != 5.0 {
		t.Errorf("full bullish MACD: got %.2f, want 5", got)
	}

	snap.MACDLine = model.F(-0.3)
	if got := score(snap).Scores.MACD; got != 3.5 {
		t.Errorf("early bullish MACD: got %.2f, want 3.5", got)
	}

	snap.MACDHistogram = model.F(-0.1)
	if got := score(snap).Scores.MACD; got != 0 {
		t.Errorf("bearish MACD: got %.2f, want 0", got)
	}
}

func TestScore_BollingerOversoldBands(t *testing.T) {
	for _, c := range []struct {
		pos  model.BBPosition
		want float64
	}{
		{model.BBBelow3, 6}, {model.BBBelow2, 4}, {model.BBBelow1, 2},
		{model.BBNeutral, 0}, {model.BBAbove2, 0}, {model.BBUnknown, 0},
	} {
		snap := baseSnapshot("1h")
		snap.BBPosition = c.pos
		if got := score(snap).Scores.BB; got != c.want {
			t.Errorf("position %q: got %.2f, want %.2f", c.pos, got, c.want)
		}
	}
}

func TestScore_EMAStackWeightsByClass(t *testing.T) {
	snap := baseSnapshot("1h")
	snap.EMAFast = model.F(95)
	snap.EMAMid = model.F(90)
	snap.EMASlow = model.F(85)
	if got := score(snap).Scores.EMAStack; got != 6.0 {
		t.Errorf("intraday full stack: got %.2f, want 6", got)
	}

	snap.Timeframe = "1d"
	if got := score(snap).Scores.EMAStack; got != 9.0 {
		t.Errorf("swing full stack: got %.2f, want 9", got)
	}

	// Price above only the slow EMA: 1.5 intraday, 5 swing.
	snap = baseSnapshot("1h")
	snap.EMAFast = model.F(110)
	snap.EMAMid = model.F(105)
	snap.EMASlow = model.F(95)
	if got := score(snap).Scores.EMAStack; got != 1.5 {
		t.Errorf("intraday slow-only: got %.2f, want 1.5", got)
	}
	snap.Timeframe = "1w"
	if got := score(snap).Scores.EMAStack; got != 5.0 {
		t.Errorf("swing slow-only: got %.2f, want 5", got)
	}
}

func TestScore_SuperTrendWeightsByClass(t *testing.T) {
	snap := baseSnapshot("1h")
	snap.SuperTrend1 = model.F(98)
	snap.SuperTrend1Dir = model.TrendUp
	snap.SuperTrend2 = model.F(96)
	snap.SuperTrend2Dir = model.TrendDown
	if got := score(snap).Scores.SuperTrend; got != 2.5 {
		t.Errorf("intraday ST1-only: got %.2f, want 2.5", got)
	}

	snap.Timeframe = "1d"
	if got := score(snap).Scores.SuperTrend; got != 1.0 {
		t.Errorf("swing ST1-only: got %.2f, want 1", got)
	}

	snap.SuperTrend2Dir = model.TrendUp
	if got := score(snap).Scores.SuperTrend; got != 5.0 {
		t.Errorf("swing both up: got %.2f, want 5", got)
	}
}

func TestScore_VWAPNeutralZone(t *testing.T) {
	snap := baseSnapshot("1h")
	snap.VWAP = model.F(99.6) // 100 is within the 0.5% neutral zone
	if got := score(snap).Scores.VWAP; got != 0 {
		t.Errorf("inside neutral zone: got %.2f, want 0", got)
	}
	snap.VWAP = model.F(99)
	if got := score(snap).Scores.VWAP; got != 2.0 {
		t.Errorf("clearly above VWAP: got %.2f, want 2", got)
	}
}

func TestScore_VolumeIntradayOnly(t *testing.T) {
	snap := baseSnapshot("1h")
	snap.VolumeRegime = model.VolumeHigh
	if got := score(snap).Scores.Volume; got != 2.0 {
		t.Errorf("intraday high volume: got %.2f, want 2", got)
	}
	snap.VolumeRegime = model.VolumeLow
	if got := score(snap).Scores.Volume; got != -1.5 {
		t.Errorf("intraday low volume: got %.2f, want -1.5", got)
	}

	snap.Timeframe = "1d"
	if got := score(snap).Scores.Volume; got != 0 {
		t.Errorf("swing volume should not score: got %.2f", got)
	}
}

func TestScore_PriceActionComponents(t *testing.T) {
	settings := model.DefaultSettings()

	// Breakout: close 0.5% or more above resistance.
	snap := baseSnapshot("1h")
	levels := model.LevelSet{AutoResistance: model.F(99)}
	sig := Score(Input{Snapshot: snap, Levels: levels, Settings: settings})
	if sig.Scores.PriceAction != 2.0 {
		t.Errorf("breakout bonus: got %.2f, want 2", sig.Scores.PriceAction)
	}

	// Support bounce: close within 2% above support.
	snap = baseSnapshot("1h")
	levels = model.LevelSet{AutoSupport: model.F(99)}
	sig = Score(Input{Snapshot: snap, Levels: levels, Settings: settings})
	if sig.Scores.PriceAction != 1.6 {
		t.Errorf("bounce bonus: got %.2f, want 1.6", sig.Scores.PriceAction)
	}

	// Magic-line cross: close just above the line.
	snap = baseSnapshot("1h")
	sig = Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: settings})
	if sig.Scores.PriceAction != 1.8 {
		t.Errorf("magic-line bonus: got %.2f, want 1.8", sig.Scores.PriceAction)
	}

	// A breakout dominates when every setup triggers at once.
	snap = baseSnapshot("1h")
	levels = model.LevelSet{AutoSupport: model.F(99), AutoResistance: model.F(99)}
	sig = Score(Input{Snapshot: snap, Levels: levels, MagicLine: model.F(99), Settings: settings})
	if sig.Scores.PriceAction != 2.0 {
		t.Errorf("stacked bonus: got %.2f, want breakout's 2", sig.Scores.PriceAction)
	}
}

func TestScore_PriceActionBonusAwardsOnlyStrongestSetup(t *testing.T) {
	settings := model.DefaultSettings()

	// Magic line at support, price bouncing off both: the bounce alone
	// counts, the magic-line cross does not stack on top.
	snap := baseSnapshot("1h")
	snap.Close = 100.5
	levels := model.LevelSet{AutoSupport: model.F(100)}
	sig := Score(Input{Snapshot: snap, Levels: levels, MagicLine: model.F(100), Settings: settings})
	if sig.Scores.PriceAction != 1.6 {
		t.Errorf("bounce + magic-line overlap: got %.2f, want 1.6", sig.Scores.PriceAction)
	}

	// Same overlap below the bounce band: only the magic-line cross fires.
	snap = baseSnapshot("1h")
	snap.Close = 104
	levels = model.LevelSet{AutoSupport: model.F(100)}
	sig = Score(Input{Snapshot: snap, Levels: levels, MagicLine: model.F(103), Settings: settings})
	if sig.Scores.PriceAction != 1.8 {
		t.Errorf("magic line past bounce band: got %.2f, want 1.8", sig.Scores.PriceAction)
	}
}

func TestScore_ManualLevelsDisableAutoDoesNotMatter(t *testing.T) {
	settings := model.DefaultSettings()
	settings.AutoSREnabled = false

	snap := baseSnapshot("1h")
	levels := model.LevelSet{ManualResistance: 99, AutoResistance: model.F(150)}
	sig := Score(Input{Snapshot: snap, Levels: levels, Settings: settings})
	if sig.Scores.PriceAction != 2.0 {
		t.Errorf("manual resistance breakout: got %.2f, want 2", sig.Scores.PriceAction)
	}

	levels = model.LevelSet{AutoResistance: model.F(99)}
	sig = Score(Input{Snapshot: snap, Levels: levels, Settings: settings})
	if sig.Scores.PriceAction != 0 {
		t.Errorf("auto disabled: got %.2f, want 0", sig.Scores.PriceAction)
	}
}

// fullBullSnapshot scores every bullish component except RSI.
func fullBullSnapshot(tf model.Timeframe) model.IndicatorSnapshot {
	snap := baseSnapshot(tf)
	snap.MACDLine = model.F(0.5)
	snap.MACDHistogram = model.F(0.2)
	snap.BBPosition = model.BBBelow2
	snap.EMAFast = model.F(95)
	snap.EMAMid = model.F(90)
	snap.EMASlow = model.F(85)
	snap.SuperTrend1 = model.F(97)
	snap.SuperTrend1Dir = model.TrendUp
	snap.SuperTrend2 = model.F(95)
	snap.SuperTrend2Dir = model.TrendUp
	snap.VWAP = model.F(98)
	snap.VolumeRegime = model.VolumeHigh
	snap.ADX = model.F(30)
	snap.DIPlus = model.F(28)
	snap.DIMinus = model.F(12)
	snap.OBV = model.F(5000)
	snap.OBVMA = model.F(4000)
	snap.ATR = model.F(2.5)
	return snap
}

func TestScore_ABuyScenario_MagicLineConfluence(t *testing.T) {
	// RSI settled at 75 (no oversold points, passes the safety gate),
	// everything else bullish, price just over the magic line.
	snap := fullBullSnapshot("1h")
	snap.RSI = model.F(75)

	sig := Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: model.DefaultSettings()})

	// 5 MACD + 4 BB + 6 EMA + 5 ST + 2 VWAP + 2 vol + 1.5 ADX + 1 DI +
	// 1 OBV + 1.8 magic line = 29.3
	if sig.Total < 29 {
		t.Fatalf("confluence should cross the A-BUY threshold: got %.2f", sig.Total)
	}
	if sig.Tier != model.TierABuy {
		t.Fatalf("tier: got %s, want %s", sig.Tier, model.TierABuy)
	}
	if !sig.EntryPrice.Valid || sig.EntryPrice.Val != 100 {
		t.Errorf("entry price: got %+v, want 100", sig.EntryPrice)
	}
	// Intraday stop/target: 1.2 and 2.0 ATR multiples.
	if sig.StopLoss.Val != 100-2.5*1.2 {
		t.Errorf("stop loss: got %.2f, want %.2f", sig.StopLoss.Val, 100-2.5*1.2)
	}
	if sig.TargetPrice.Val != 100+2.5*2.0 {
		t.Errorf("target: got %.2f, want %.2f", sig.TargetPrice.Val, 100+2.5*2.0)
	}
}

func TestScore_RSISafetyGateDemotes(t *testing.T) {
	snap := fullBullSnapshot("1h")
	snap.RSI = model.F(20) // deeply oversold: +4.5 points but fails the gate

	sig := Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: model.DefaultSettings()})
	if sig.Total < 29 {
		t.Fatalf("score should still clear the top threshold: got %.2f", sig.Total)
	}
	if sig.Tier != model.TierEarlyBuy {
		t.Errorf("RSI below 30 should demote past BUY: got %s", sig.Tier)
	}
}

func TestScore_MissingRSIPassesGate(t *testing.T) {
	snap := fullBullSnapshot("1h")
	// RSI not ready: treated as neutral for the gate.
	sig := Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: model.DefaultSettings()})
	if !sig.Tier.IsBuyClass() {
		t.Errorf("missing RSI should not veto a buy tier: got %s", sig.Tier)
	}
}

func TestScore_TotalNeverExceedsClassMax(t *testing.T) {
	snap := fullBullSnapshot("1h")
	snap.RSI = model.F(25)
	sig := Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: model.DefaultSettings()})
	if sig.Total > sig.MaxScore {
		t.Errorf("total %.2f exceeds class max %.2f", sig.Total, sig.MaxScore)
	}
}

func TestClassify_MonotonicAcrossScores(t *testing.T) {
	rank := map[model.Tier]int{
		model.TierSell: 0, model.TierCaution: 1, model.TierWatch: 2,
		model.TierEarlyBuy: 3, model.TierBuy: 4, model.TierABuy: 5,
	}
	th := model.DefaultSettings().Intraday.Thresholds
	prev := -1
	for total := 0.0; total <= 36; total += 0.5 {
		tier := classify(total, 50, th)
		if rank[tier] < prev {
			t.Fatalf("tier rank regressed at score %.1f: %s", total, tier)
		}
		prev = rank[tier]
	}
}

func TestClassify_ThresholdEqualityQualifies(t *testing.T) {
	th := model.DefaultSettings().Intraday.Thresholds
	for _, c := range []struct {
		total float64
		want  model.Tier
	}{
		{29, model.TierABuy}, {23, model.TierBuy}, {18, model.TierEarlyBuy},
		{13, model.TierWatch}, {9, model.TierCaution}, {8.9, model.TierSell},
	} {
		if got := classify(c.total, 50, th); got != c.want {
			t.Errorf("score %.1f: got %s, want %s", c.total, got, c.want)
		}
	}
}

func TestScore_SwingThresholds(t *testing.T) {
	snap := fullBullSnapshot("1d")
	snap.RSI = model.F(45) // +2, passes gate
	sig := Score(Input{Snapshot: snap, MagicLine: model.F(99), Settings: model.DefaultSettings()})

	// Swing: 5 MACD + 4 BB + 9 EMA + 5 ST + 2 VWAP + 0 vol + 1.5 ADX +
	// 1 DI + 1 OBV + 1.8 magic + 2 RSI = 32.3 → below A-BUY (33), BUY tier.
	if sig.Class != model.ClassSwing {
		t.Fatalf("class: got %s", sig.Class)
	}
	if sig.Tier != model.TierBuy {
		t.Errorf("tier: got %s (total %.2f), want %s", sig.Tier, sig.Total, model.TierBuy)
	}
	// Swing stop/target: 2.0 and 4.0 ATR multiples.
	if sig.StopLoss.Val != 100-2.5*2.0 {
		t.Errorf("swing stop: got %.2f", sig.StopLoss.Val)
	}
	if sig.TargetPrice.Val != 100+2.5*4.0 {
		t.Errorf("swing target: got %.2f", sig.TargetPrice.Val)
	}
}

// Package signal turns an indicator snapshot plus level context into a
// scored, tiered Signal. Scoring is a pure function: same inputs, same
// output, no clock and no I/O.
package signal

import "signal-systemv1/internal/model"

// Component caps. Each indicator contributes at most its cap; an
// indicator still warming up contributes nothing.
const (
	rsiOversoldMax   = 4.5
	macdBullishBoth  = 5.0
	macdBullishHist  = 3.5
	bbBelow3Pts      = 6.0
	bbBelow2Pts      = 4.0
	bbBelow1Pts      = 2.0
	adxTrendPts      = 1.5
	adxTrendMin      = 25.0
	diBullPts        = 1.0
	obvAboveMAPts    = 1.0
	vwapAbovePts     = 2.0
	volumeHighPts    = 2.0
	volumeLowPenalty = -1.5

	// RSI floor for the two strongest buy tiers.
	rsiSafetyFloor = 30.0
	// Missing RSI is neutral for the gate, not a veto.
	rsiNeutral = 50.0

	// Price-action tolerances, as fractions of the reference level.
	breakoutTol     = 0.005
	bounceTol       = 0.02
	magicLineTol    = 0.02
	breakoutWeight  = 1.0
	bounceWeight    = 0.8
	magicLineWeight = 0.9
)

// Input bundles everything one scoring run reads.
type Input struct {
	Snapshot  model.IndicatorSnapshot
	Levels    model.LevelSet
	MagicLine model.Float
	Settings  model.Settings
}

// Score classifies one candle's snapshot into a Signal.
func Score(in Input) model.Signal {
	snap := in.Snapshot
	class := snap.Timeframe.Class()
	params := in.Settings.ForClass(class)
	intraday := class == model.ClassIntraday
	price := snap.Close

	var b model.ScoreBreakdown

	// RSI zone: deeper oversold scores more.
	if snap.RSI.Valid {
		switch {
		case snap.RSI.Val <= 30:
			b.RSI = rsiOversoldMax
		case snap.RSI.Val <= 40:
			b.RSI = 3
		case snap.RSI.Val <= 50:
			b.RSI = 2
		case snap.RSI.Val <= 60:
			b.RSI = 1
		}
	}

	// MACD: histogram above zero is momentum; line above zero too is the
	// full bullish configuration.
	if snap.MACDHistogram.Valid && snap.MACDLine.Valid && snap.MACDHistogram.Val > 0 {
		if snap.MACDLine.Val > 0 {
			b.MACD = macdBullishBoth
		} else {
			b.MACD = macdBullishHist
		}
	}

	// Bollinger: reward closes stretched below the lower bands.
	switch snap.BBPosition {
	case model.BBBelow3:
		b.BB = bbBelow3Pts
	case model.BBBelow2:
		b.BB = bbBelow2Pts
	case model.BBBelow1:
		b.BB = bbBelow1Pts
	}

	// EMA stack: Intraday favors the fast end, Swing the slow end.
	if intraday {
		b.EMAStack = emaPoints(price, snap.EMAFast, 2.5) +
			emaPoints(price, snap.EMAMid, 2.0) +
			emaPoints(price, snap.EMASlow, 1.5)
	} else {
		b.EMAStack = emaPoints(price, snap.EMASlow, 5) +
			emaPoints(price, snap.EMAMid, 3) +
			emaPoints(price, snap.EMAFast, 1)
	}

	// SuperTrend: both configurations count, weighted by class.
	st1Up := snap.SuperTrend1.Valid && snap.SuperTrend1Dir == model.TrendUp
	st2Up := snap.SuperTrend2.Valid && snap.SuperTrend2Dir == model.TrendUp
	if intraday {
		if st1Up {
			b.SuperTrend += 2.5
		}
		if st2Up {
			b.SuperTrend += 2.5
		}
	} else {
		if st2Up {
			b.SuperTrend += 4
		}
		if st1Up {
			b.SuperTrend += 1
		}
	}

	// VWAP: price clearly above the session VWAP.
	if snap.VWAP.Valid {
		zone := 1 + in.Settings.VWAPNeutralZonePct/100
		if price > snap.VWAP.Val*zone {
			b.VWAP = vwapAbovePts
		}
	}

	// Volume regime matters intraday; swing moves carry their own volume.
	if intraday {
		switch snap.VolumeRegime {
		case model.VolumeHigh:
			b.Volume = volumeHighPts
		case model.VolumeLow:
			b.Volume = volumeLowPenalty
		}
	}

	if snap.ADX.Valid && snap.ADX.Val > adxTrendMin {
		b.ADX = adxTrendPts
	}
	if snap.DIPlus.Valid && snap.DIMinus.Valid && snap.DIPlus.Val > snap.DIMinus.Val {
		b.DI = diBullPts
	}
	if snap.OBV.Valid && snap.OBVMA.Valid && snap.OBV.Val > snap.OBVMA.Val {
		b.OBV = obvAboveMAPts
	}

	support := in.Levels.EffectiveSupport(in.Settings.AutoSREnabled)
	resistance := in.Levels.EffectiveResistance(in.Settings.AutoSREnabled)
	b.PriceAction = priceActionBonus(price, support, resistance, in.MagicLine, in.Settings.PriceActionBonusMax)

	total := b.Sum()
	if total > params.MaxScore {
		total = params.MaxScore
	}
	if total < 0 {
		total = 0
	}

	sig := model.Signal{
		Symbol:       snap.Symbol,
		Timeframe:    snap.Timeframe,
		TS:           snap.TS,
		Class:        class,
		Scores:       b,
		Total:        total,
		MaxScore:     params.MaxScore,
		Tier:         classify(total, snap.RSI.Or(rsiNeutral), params.Thresholds),
		CurrentPrice: price,
		ATR:          snap.ATR,
		Support:      support,
		Resistance:   resistance,
		MagicLine:    in.MagicLine,
	}

	if sig.Tier.IsBuyClass() && snap.ATR.Valid {
		sig.EntryPrice = model.F(price)
		sig.StopLoss = model.F(price - snap.ATR.Val*params.StopATRMult)
		sig.TargetPrice = model.F(price + snap.ATR.Val*params.TargetATRMult)
	}
	return sig
}

// emaPoints awards pts when price sits above a ready EMA.
func emaPoints(price float64, ema model.Float, pts float64) float64 {
	if ema.Valid && price > ema.Val {
		return pts
	}
	return 0
}

// priceActionBonus rewards a close at a structurally interesting price.
// Only the strongest matching setup counts: a resistance breakout, else a
// bounce off support, else a magic-line cross. Stacked setups (magic line
// sitting at support) never award more than the single strongest one.
func priceActionBonus(price float64, support, resistance, magic model.Float, max float64) float64 {
	if max <= 0 {
		return 0
	}
	switch {
	case resistance.Valid && resistance.Val > 0 && price >= resistance.Val*(1+breakoutTol):
		return max * breakoutWeight
	case support.Valid && support.Val > 0 &&
		price >= support.Val && price <= support.Val*(1+bounceTol):
		return max * bounceWeight
	case magic.Valid && magic.Val > 0 &&
		price > magic.Val && price <= magic.Val*(1+magicLineTol):
		return max * magicLineWeight
	}
	return 0
}

// classify walks the ladder top-down; equality qualifies. The two
// strongest tiers also require RSI at or above the safety floor — a
// deeply weak RSI demotes the signal one rung at a time.
func classify(total, rsi float64, t model.Thresholds) model.Tier {
	switch {
	case total >= t.ABuy && rsi >= rsiSafetyFloor:
		return model.TierABuy
	case total >= t.Buy && rsi >= rsiSafetyFloor:
		return model.TierBuy
	case total >= t.EarlyBuy:
		return model.TierEarlyBuy
	case total >= t.Watch:
		return model.TierWatch
	case total >= t.Caution:
		return model.TierCaution
	default:
		return model.TierSell
	}
}

package level

import (
	"context"
	"testing"
	"time"

	"signal-systemv1/internal/model"
	"signal-systemv1/internal/store/memory"
)

func seedDailyCandles(t *testing.T, st *memory.Store, symbol string, base time.Time, lows, highs []float64) {
	t.Helper()
	ctx := context.Background()
	for i := range lows {
		c := model.Candle{
			Symbol: symbol, Timeframe: "1d",
			TS:   base.AddDate(0, 0, i),
			Open: lows[i] + 1, High: highs[i], Low: lows[i], Close: highs[i] - 1,
		}
		if err := st.UpsertCandle(ctx, c); err != nil {
			t.Fatalf("seed candle: %v", err)
		}
	}
}

func testProvider(st *memory.Store, now time.Time) *Provider {
	p := NewProvider(st, 30, nil)
	p.now = func() time.Time { return now }
	return p
}

func TestLevels_AutoFromDailyWindow(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -10),
		[]float64{95, 92, 97, 94},
		[]float64{105, 103, 110, 104})

	p := testProvider(st, now)
	ls := p.Levels(context.Background(), model.Pair{Symbol: "INFY", Timeframe: "1h"})

	if !ls.AutoSupport.Valid || ls.AutoSupport.Val != 92 {
		t.Errorf("auto support: got %+v, want 92", ls.AutoSupport)
	}
	if !ls.AutoResistance.Valid || ls.AutoResistance.Val != 110 {
		t.Errorf("auto resistance: got %+v, want 110", ls.AutoResistance)
	}
}

func TestLevels_IgnoresCandlesOutsideWindow(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	// One ancient candle with an extreme low, then a recent pair.
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -90), []float64{10}, []float64{500})
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -5), []float64{95, 96}, []float64{105, 106})

	p := testProvider(st, now)
	ls := p.Levels(context.Background(), model.Pair{Symbol: "INFY", Timeframe: "1h"})

	if ls.AutoSupport.Val != 95 {
		t.Errorf("stale low leaked into the window: got %.2f", ls.AutoSupport.Val)
	}
	if ls.AutoResistance.Val != 106 {
		t.Errorf("stale high leaked into the window: got %.2f", ls.AutoResistance.Val)
	}
}

func TestLevels_HourlyFallbackWhenNoDailies(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		st.UpsertCandle(ctx, model.Candle{
			Symbol: "TCS", Timeframe: "1h",
			TS:   now.Add(time.Duration(-i) * time.Hour),
			High: 200 + float64(i), Low: 190 - float64(i), Close: 195,
		})
	}

	p := testProvider(st, now)
	ls := p.Levels(ctx, model.Pair{Symbol: "TCS", Timeframe: "15m"})

	if !ls.AutoSupport.Valid || ls.AutoSupport.Val != 186 {
		t.Errorf("fallback support: got %+v, want 186", ls.AutoSupport)
	}
	if ls.AutoResistance.Val != 204 {
		t.Errorf("fallback resistance: got %.2f, want 204", ls.AutoResistance.Val)
	}
}

func TestLevels_EmptyHistoryIsNotAnError(t *testing.T) {
	p := testProvider(memory.New(), time.Now())
	ls := p.Levels(context.Background(), model.Pair{Symbol: "GHOST", Timeframe: "1h"})

	if ls.AutoSupport.Valid || ls.AutoResistance.Valid {
		t.Errorf("empty history should give invalid auto levels: %+v", ls)
	}
	if ls.EffectiveSupport(true).Valid {
		t.Error("effective support should be unavailable")
	}
}

func TestManualOverridesAuto(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -5), []float64{95}, []float64{105})

	p := testProvider(st, now)
	pair := model.Pair{Symbol: "INFY", Timeframe: "1h"}
	if err := p.SetManualLevels(context.Background(), pair, 90, 120); err != nil {
		t.Fatalf("set manual: %v", err)
	}

	ls := p.Levels(context.Background(), pair)
	if got := ls.EffectiveSupport(true); got.Val != 90 {
		t.Errorf("manual support should win: got %.2f", got.Val)
	}
	if got := ls.EffectiveResistance(true); got.Val != 120 {
		t.Errorf("manual resistance should win: got %.2f", got.Val)
	}
	// Auto still computed underneath.
	if ls.AutoSupport.Val != 95 {
		t.Errorf("auto support lost: %+v", ls.AutoSupport)
	}
}

func TestEffectiveLevels_AutoDisabled(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -5), []float64{95}, []float64{105})

	p := testProvider(st, now)
	ls := p.Levels(context.Background(), model.Pair{Symbol: "INFY", Timeframe: "1h"})

	if ls.EffectiveSupport(false).Valid {
		t.Error("auto-disabled support should be unavailable without a manual level")
	}
}

func TestMagicLine_ActiveOnly(t *testing.T) {
	st := memory.New()
	p := testProvider(st, time.Now())
	ctx := context.Background()

	if got := p.MagicLine(ctx, "INFY"); got.Valid {
		t.Errorf("no magic line stored, got %+v", got)
	}

	if err := p.SetMagicLine(ctx, model.MagicLine{Symbol: "INFY", Price: 1500, Active: true}); err != nil {
		t.Fatalf("set magic line: %v", err)
	}
	if got := p.MagicLine(ctx, "INFY"); !got.Valid || got.Val != 1500 {
		t.Errorf("active magic line: got %+v, want 1500", got)
	}

	if err := p.SetMagicLine(ctx, model.MagicLine{Symbol: "INFY", Price: 1500, Active: false}); err != nil {
		t.Fatalf("disable magic line: %v", err)
	}
	if got := p.MagicLine(ctx, "INFY"); got.Valid {
		t.Errorf("disabled magic line should be invalid, got %+v", got)
	}
}

func TestRecalculate_RefreshesCache(t *testing.T) {
	st := memory.New()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -5), []float64{95}, []float64{105})

	p := testProvider(st, now)
	pair := model.Pair{Symbol: "INFY", Timeframe: "1h"}
	_ = p.Levels(context.Background(), pair) // prime the cache

	// New extreme candle arrives; cache still holds the old window.
	seedDailyCandles(t, st, "INFY", now.AddDate(0, 0, -1), []float64{80}, []float64{130})
	if ls := p.Levels(context.Background(), pair); ls.AutoSupport.Val != 95 {
		t.Fatalf("cache should still serve the old window, got %.2f", ls.AutoSupport.Val)
	}

	if err := p.Recalculate(context.Background(), pair); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	ls := p.Levels(context.Background(), pair)
	if ls.AutoSupport.Val != 80 || ls.AutoResistance.Val != 130 {
		t.Errorf("recalculated window: got %.2f/%.2f, want 80/130", ls.AutoSupport.Val, ls.AutoResistance.Val)
	}
}

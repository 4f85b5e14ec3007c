package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/level"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/source"
	"signal-systemv1/internal/store/memory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func hourly(symbol string, i int, close float64) model.Candle {
	return model.Candle{
		Symbol: symbol, Timeframe: "1h",
		TS:   t0.Add(time.Duration(i) * time.Hour),
		Open: close - 0.5, High: close + 1, Low: close - 1, Close: close,
		Volume: 1000,
	}
}

func stage(src *source.Replay, symbol string, n int) {
	for i := 0; i < n; i++ {
		src.Append(hourly(symbol, i, 100+float64(i)*0.3))
	}
}

type fixture struct {
	store *memory.Store
	src   *source.Replay
	orch  *Orchestrator
}

func newFixture(pairs ...model.Pair) *fixture {
	st := memory.New()
	src := source.NewReplay()
	lv := level.NewProvider(st, 30, nil)
	tr := entry.NewTracker(st, nil)
	orch := New(Config{
		Pairs:          pairs,
		Workers:        2,
		RetryAttempts:  2,
		RetryBaseDelay: time.Millisecond,
	}, st, src, lv, tr, nil, nil, nil)
	return &fixture{store: st, src: src, orch: orch}
}

func TestRunTick_ProcessesAllPairs(t *testing.T) {
	pairs := []model.Pair{
		{Symbol: "RELIANCE", Timeframe: "1h"},
		{Symbol: "INFY", Timeframe: "1h"},
	}
	f := newFixture(pairs...)
	stage(f.src, "RELIANCE", 30)
	stage(f.src, "INFY", 30)

	sum := f.orch.RunTick(context.Background())

	if sum.PairsProcessed != 2 || len(sum.PairsFailed) != 0 {
		t.Fatalf("summary: %+v", sum)
	}
	if sum.CandlesIngested != 60 {
		t.Errorf("candles ingested: got %d, want 60", sum.CandlesIngested)
	}
	if sum.SignalsEmitted != 60 {
		t.Errorf("signals emitted: got %d, want 60", sum.SignalsEmitted)
	}
	if n := f.store.SignalCount("RELIANCE", "1h"); n != 30 {
		t.Errorf("stored signals: got %d, want 30", n)
	}

	status := f.orch.Status()
	if status.LastSuccess.IsZero() || status.LastError != "" {
		t.Errorf("status after clean tick: %+v", status)
	}
}

func TestRunTick_IdempotentOnReRun(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 20)

	f.orch.RunTick(context.Background())
	before := f.store.SignalCount("RELIANCE", "1h")

	sum := f.orch.RunTick(context.Background())
	if sum.SignalsEmitted != 0 {
		t.Errorf("re-run emitted %d signals, want 0", sum.SignalsEmitted)
	}
	if sum.EntryTransitions != 0 {
		t.Errorf("re-run produced %d entry transitions, want 0", sum.EntryTransitions)
	}
	if after := f.store.SignalCount("RELIANCE", "1h"); after != before {
		t.Errorf("signal rows changed on re-run: %d -> %d", before, after)
	}
}

func TestRunTick_NewCandleAfterCatchUp(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 20)
	f.orch.RunTick(context.Background())

	f.src.Append(hourly("RELIANCE", 20, 107))
	sum := f.orch.RunTick(context.Background())

	if sum.SignalsEmitted != 1 {
		t.Errorf("signals for one new candle: got %d, want 1", sum.SignalsEmitted)
	}
	if n := f.store.SignalCount("RELIANCE", "1h"); n != 21 {
		t.Errorf("stored signals: got %d, want 21", n)
	}
}

func TestRunTick_AmendedCandleRewritesOwnSignalOnly(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 20)
	f.orch.RunTick(context.Background())

	lastTS := t0.Add(19 * time.Hour)
	sigBefore, ok := f.store.Signal("RELIANCE", "1h", lastTS)
	if !ok {
		t.Fatal("missing signal for the last candle")
	}

	amended := hourly("RELIANCE", 19, 120) // much higher close
	f.src.Amend(amended)
	sum := f.orch.RunTick(context.Background())

	if sum.SignalsEmitted != 1 {
		t.Errorf("amended candle: got %d signals, want 1", sum.SignalsEmitted)
	}
	if n := f.store.SignalCount("RELIANCE", "1h"); n != 20 {
		t.Errorf("signal rows: got %d, want 20 (replace, not append)", n)
	}
	sigAfter, _ := f.store.Signal("RELIANCE", "1h", lastTS)
	if sigAfter.CurrentPrice == sigBefore.CurrentPrice {
		t.Error("amended signal should reflect the corrected close")
	}
	snap, ok := f.store.Snapshot("RELIANCE", "1h", lastTS)
	if !ok || snap.Close != 120 {
		t.Errorf("amended snapshot close: got %+v", snap)
	}
}

func TestRunTick_FailureIsolation(t *testing.T) {
	pairs := []model.Pair{
		{Symbol: "RELIANCE", Timeframe: "1h"},
		{Symbol: "INFY", Timeframe: "1h"},
	}
	f := newFixture(pairs...)
	stage(f.src, "RELIANCE", 10)
	stage(f.src, "INFY", 10)
	f.src.FailWith("RELIANCE", "1h", errors.New("venue down"))

	sum := f.orch.RunTick(context.Background())

	if sum.PairsProcessed != 1 {
		t.Errorf("healthy pair should process: %+v", sum)
	}
	if len(sum.PairsFailed) != 1 || sum.PairsFailed[0].Pair.Symbol != "RELIANCE" {
		t.Errorf("failed pairs: %+v", sum.PairsFailed)
	}
	if n := f.store.SignalCount("INFY", "1h"); n != 10 {
		t.Errorf("healthy pair signals: got %d, want 10", n)
	}

	status := f.orch.Status()
	if status.LastError == "" {
		t.Error("status should carry the tick error")
	}
}

func TestRunTick_InvalidSettingsFailsAllPairs(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 5)

	bad := model.DefaultSettings()
	bad.Intraday.Thresholds.ABuy = 5 // below BUY: ladder no longer descends
	if err := f.store.SaveSettings(context.Background(), bad); err != nil {
		t.Fatal(err)
	}

	sum := f.orch.RunTick(context.Background())
	if sum.PairsProcessed != 0 || len(sum.PairsFailed) != 1 {
		t.Fatalf("summary: %+v", sum)
	}
	var ise *model.InvalidSettingsError
	if err := bad.Validate(); !errors.As(err, &ise) {
		t.Fatalf("expected InvalidSettingsError, got %v", err)
	}
}

func TestRunTick_DataGapIsTolerated(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	for _, i := range []int{0, 1, 2, 3, 4, 6} { // candle 5 missing
		f.src.Append(hourly("RELIANCE", i, 100+float64(i)))
	}

	sum := f.orch.RunTick(context.Background())
	if len(sum.PairsFailed) != 0 {
		t.Fatalf("gap must not fail the pair: %+v", sum.PairsFailed)
	}
	if sum.SignalsEmitted != 6 {
		t.Errorf("signals: got %d, want 6", sum.SignalsEmitted)
	}
}

func TestWarmRestart_ResumesFromCheckpoint(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 25)
	f.orch.RunTick(context.Background())

	// A fresh orchestrator over the same store restores the battery from
	// its checkpoint instead of replaying history into new signals.
	lv := level.NewProvider(f.store, 30, nil)
	tr := entry.NewTracker(f.store, nil)
	orch2 := New(Config{Pairs: []model.Pair{pair}, RetryAttempts: 2, RetryBaseDelay: time.Millisecond},
		f.store, f.src, lv, tr, nil, nil, nil)

	f.src.Append(hourly("RELIANCE", 25, 108))
	sum := orch2.RunTick(context.Background())

	if len(sum.PairsFailed) != 0 {
		t.Fatalf("restart tick failed: %+v", sum.PairsFailed)
	}
	if sum.SignalsEmitted != 1 {
		t.Errorf("restart should only score the new candle: got %d", sum.SignalsEmitted)
	}
	if n := f.store.SignalCount("RELIANCE", "1h"); n != 26 {
		t.Errorf("stored signals: got %d, want 26", n)
	}
}

func TestWarmRestart_AmendedCandleRebuildsFromHistory(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 25)
	f.orch.RunTick(context.Background())

	// A checkpoint-restored battery has no one-step savepoint, so a
	// correction must trigger a full replay of stored history rather
	// than scoring against the stale rolling state.
	lv := level.NewProvider(f.store, 30, nil)
	tr := entry.NewTracker(f.store, nil)
	orch2 := New(Config{Pairs: []model.Pair{pair}, RetryAttempts: 2, RetryBaseDelay: time.Millisecond},
		f.store, f.src, lv, tr, nil, nil, nil)

	lastTS := t0.Add(24 * time.Hour)
	amended := hourly("RELIANCE", 24, 120)
	f.src.Amend(amended)
	sum := orch2.RunTick(context.Background())

	if len(sum.PairsFailed) != 0 {
		t.Fatalf("tick failed: %+v", sum.PairsFailed)
	}
	snap, ok := f.store.Snapshot("RELIANCE", "1h", lastTS)
	if !ok {
		t.Fatal("missing snapshot for the amended candle")
	}

	ref := indicator.NewBattery(pair, model.DefaultSettings().Periods)
	for i := 0; i < 24; i++ {
		ref.Update(hourly("RELIANCE", i, 100+float64(i)*0.3))
	}
	ref.Update(amended)
	want := ref.Snapshot(amended)

	if snap.Close != 120 {
		t.Errorf("snapshot close: got %.2f, want 120", snap.Close)
	}
	if !snap.RSI.Valid || !want.RSI.Valid || snap.RSI.Val != want.RSI.Val {
		t.Errorf("snapshot RSI: got %+v, want %+v", snap.RSI, want.RSI)
	}
	if snap.BBBasis != want.BBBasis {
		t.Errorf("snapshot BB basis: got %+v, want %+v", snap.BBBasis, want.BBBasis)
	}
}

func TestProcessPair_Synchronous(t *testing.T) {
	pair := model.Pair{Symbol: "TCS", Timeframe: "15m"}
	f := newFixture(pair)
	f.src.Append(model.Candle{
		Symbol: "TCS", Timeframe: "15m", TS: t0,
		Open: 99, High: 101, Low: 98, Close: 100, Volume: 500,
	})

	if err := f.orch.ProcessPair(context.Background(), "TCS", "15m"); err != nil {
		t.Fatalf("process pair: %v", err)
	}
	if n := f.store.SignalCount("TCS", "15m"); n != 1 {
		t.Errorf("signals: got %d, want 1", n)
	}
}

func TestRecalculateLevels_OnDemand(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	ctx := context.Background()
	f.store.UpsertCandle(ctx, model.Candle{
		Symbol: "RELIANCE", Timeframe: "1d",
		TS: time.Now().UTC().AddDate(0, 0, -3), High: 110, Low: 90, Close: 100,
	})

	if err := f.orch.RecalculateLevels(ctx); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	ls, err := f.store.GetLevelSet(ctx, "RELIANCE", "1h")
	if err != nil || ls == nil {
		t.Fatalf("level set not persisted: %v", err)
	}
	if ls.AutoSupport.Val != 90 || ls.AutoResistance.Val != 110 {
		t.Errorf("auto levels: %+v", ls)
	}
}

func TestRunTick_Cancellation(t *testing.T) {
	pair := model.Pair{Symbol: "RELIANCE", Timeframe: "1h"}
	f := newFixture(pair)
	stage(f.src, "RELIANCE", 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := f.orch.RunTick(ctx)
	if sum.PairsProcessed != 0 {
		t.Errorf("cancelled tick should process nothing: %+v", sum)
	}
}

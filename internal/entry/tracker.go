// Package entry runs the position-lifecycle state machine. One tracker
// instance owns all entries; each (symbol, timeframe) key is advanced by
// exactly one candle at a time by its pipeline worker.
package entry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

// Event is one observable lifecycle transition, emitted for publishing
// and for the tick summary.
type Event struct {
	Type  string
	Entry model.Entry
}

// Event types.
const (
	EventOpened       = "opened"
	EventValidated    = "validated"
	EventExitStage    = "exit-stage"
	EventTargetExit   = "target-exit"
	EventTrailingStop = "trailing-stop"
	EventStopLoss     = "stop-loss"
	EventSignalExit   = "signal-exit"
	EventInvalidated  = "invalidated"
	EventRecovered    = "recovered"
)

// Tracker advances entries through their lifecycle. Stopped-out entries
// are kept under observation in memory for the recovery side-channel;
// that observation never re-opens the entry.
type Tracker struct {
	store model.EntryStore
	log   *slog.Logger

	mu       sync.Mutex
	watching map[string]model.Entry // post-stop-loss recovery observation per pair
}

// NewTracker creates a tracker backed by the given entry store.
func NewTracker(store model.EntryStore, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{
		store:    store,
		log:      log.With("component", "entry"),
		watching: make(map[string]model.Entry),
	}
}

// Process evaluates the state machine once for a new candle and its
// signal. It may open a new entry, advance an existing one, or both be
// no-ops. The entry write is a single upsert: a failed persist leaves the
// stored record untouched.
func (t *Tracker) Process(ctx context.Context, sig model.Signal, c model.Candle, settings model.Settings) ([]Event, error) {
	active, err := t.store.GetActiveEntry(ctx, sig.Symbol, sig.Timeframe)
	if err != nil {
		return nil, &model.PersistenceError{Op: "get active entry", Err: err}
	}

	if active == nil {
		t.observeRecovery(ctx, sig, c, settings)
		if !sig.Tier.IsBuyClass() || !sig.EntryPrice.Valid {
			return nil, nil
		}
		return t.open(ctx, sig, c)
	}

	events := t.advance(active, sig.Tier, c, settings)
	if len(events) == 0 && !touched(active, c) {
		return nil, nil
	}
	active.UpdatedAt = c.TS
	if active.State == model.StateStopLoss {
		active.RecoveryAttempt = true
		active.RecoveryLow = model.F(active.ExitPrice.Val)
	}
	if err := t.store.UpsertEntry(ctx, active); err != nil {
		return nil, &model.PersistenceError{Op: "upsert entry", Err: err}
	}
	if active.State == model.StateStopLoss {
		t.watch(*active)
	}
	for _, ev := range events {
		t.log.Info("entry transition", "pair", active.Key(), "event", ev.Type, "state", active.State)
	}
	return events, nil
}

// Open creates a VALIDATING entry from a buy-class signal. A second open
// while a non-terminal entry exists is rejected, never overwritten.
func (t *Tracker) Open(ctx context.Context, sig model.Signal, c model.Candle) (*model.Entry, error) {
	active, err := t.store.GetActiveEntry(ctx, sig.Symbol, sig.Timeframe)
	if err != nil {
		return nil, &model.PersistenceError{Op: "get active entry", Err: err}
	}
	if active != nil {
		return nil, &model.ConcurrentEntryConflict{
			Pair:       model.Pair{Symbol: sig.Symbol, Timeframe: sig.Timeframe},
			ExistingID: active.ID,
		}
	}
	events, err := t.open(ctx, sig, c)
	if err != nil {
		return nil, err
	}
	e := events[0].Entry
	return &e, nil
}

func (t *Tracker) open(ctx context.Context, sig model.Signal, c model.Candle) ([]Event, error) {
	e := &model.Entry{
		Symbol:      sig.Symbol,
		Timeframe:   sig.Timeframe,
		State:       model.StateValidating,
		SignalTS:    sig.TS,
		EntryTier:   sig.Tier,
		EntryTime:   c.TS,
		EntryPrice:  sig.EntryPrice.Val,
		EntryScore:  sig.Total,
		StopLoss:    sig.StopLoss.Val,
		TargetPrice: sig.TargetPrice.Val,
		ATRAtEntry:  sig.ATR.Val,

		CurrentPrice: c.Close,
		PeakPrice:    c.Close,
		PeakTime:     c.TS,
		TroughPrice:  c.Close,
		UpdatedAt:    c.TS,
	}
	if err := t.store.UpsertEntry(ctx, e); err != nil {
		return nil, &model.PersistenceError{Op: "insert entry", Err: err}
	}
	t.forget(e.Key())
	t.log.Info("entry opened", "pair", e.Key(), "tier", e.EntryTier,
		"entry", e.EntryPrice, "stop", e.StopLoss, "target", e.TargetPrice)
	return []Event{{Type: EventOpened, Entry: *e}}, nil
}

// advance mutates e in place for one candle and returns the transitions
// that occurred.
func (t *Tracker) advance(e *model.Entry, tier model.Tier, c model.Candle, settings model.Settings) []Event {
	updateExtrema(e, c)
	params := settings.ForClass(e.Timeframe.Class())

	var events []Event
	emit := func(typ string) { events = append(events, Event{Type: typ, Entry: *e}) }

	// Signal-based early exit: a CAUTION/SELL read closes the position.
	if tier.IsExitClass() {
		if e.State == model.StateValidating {
			terminate(e, model.StateInvalidated, model.ExitReasonSignal, c.Close, c.TS)
			emit(EventSignalExit)
		} else {
			terminate(e, model.StateExited, model.ExitReasonSignal, c.Close, c.TS)
			emit(EventSignalExit)
		}
		return events
	}

	// Hard stop applies in every non-terminal state.
	if c.Low <= e.StopLoss {
		terminate(e, model.StateStopLoss, model.ExitReasonStopLoss, e.StopLoss, c.TS)
		emit(EventStopLoss)
		return events
	}

	if e.State == model.StateValidating {
		e.ValidationCandles++
		profit := e.ProfitPct(c.Close)
		switch {
		case profit >= settings.ValidationProfitPct:
			e.State = model.StateActive
			e.ValidatedAt = c.TS
			emit(EventValidated)
		case profit <= params.InvalidationLossPct:
			terminate(e, model.StateInvalidated, model.ExitReasonInvalidated, c.Close, c.TS)
			emit(EventInvalidated)
			return events
		case e.ValidationCandles > settings.MaxValidationCandles:
			terminate(e, model.StateInvalidated, model.ExitReasonInvalidated, c.Close, c.TS)
			emit(EventInvalidated)
			return events
		default:
			return events
		}
	}

	// Progressive exit zones; a gapping candle may hit several at once.
	for i := range e.Exits {
		if e.Exits[i].Hit {
			continue
		}
		if i > 0 && !e.Exits[i-1].Hit {
			break
		}
		zone := stageTarget(e, settings.ExitZones[i])
		if c.High < zone {
			break
		}
		e.Exits[i].Hit = true
		e.Exits[i].Price = model.F(zone)
		e.Exits[i].Time = c.TS
		emit(EventExitStage)
	}

	switch {
	case e.Exits[2].Hit:
		terminate(e, model.StateExited, model.ExitReasonTarget, e.Exits[2].Price.Val, c.TS)
		emit(EventTargetExit)
		return events
	case e.Exits[1].Hit:
		e.State = model.StateExit2
	case e.Exits[0].Hit:
		e.State = model.StateExit1
	}

	// Trailing stop: arms at breakeven on EXIT-1, trails the peak by an
	// ATR offset after EXIT-2. The stop only ever rises.
	if e.Exits[0].Hit && !e.TrailingActive {
		e.TrailingActive = true
		e.TrailingStop = model.F(e.EntryPrice)
	}
	if e.Exits[1].Hit && e.TrailingActive {
		candidate := e.PeakPrice - settings.TrailingATRMult*e.ATRAtEntry
		if candidate > e.TrailingStop.Val {
			e.TrailingStop = model.F(candidate)
		}
	}
	if e.TrailingActive && c.Close <= e.TrailingStop.Val {
		terminate(e, model.StateExited, model.ExitReasonTrailingStop, e.TrailingStop.Val, c.TS)
		emit(EventTrailingStop)
	}
	return events
}

// stageTarget is the price for one exit zone: entry + zone x (target-entry).
func stageTarget(e *model.Entry, zone float64) float64 {
	return e.EntryPrice + zone*(e.TargetPrice-e.EntryPrice)
}

// updateExtrema applies the monotonic peak/trough rules for one candle.
func updateExtrema(e *model.Entry, c model.Candle) {
	e.CurrentPrice = c.Close
	e.CurrentProfitPct = e.ProfitPct(c.Close)
	if c.High > e.PeakPrice {
		e.PeakPrice = c.High
		e.PeakTime = c.TS
	}
	if c.Low < e.TroughPrice || e.TroughPrice == 0 {
		e.TroughPrice = c.Low
	}
	if p := e.ProfitPct(e.PeakPrice); p > e.MaxProfitPct {
		e.MaxProfitPct = p
	}
}

func terminate(e *model.Entry, state model.EntryState, reason string, price float64, ts time.Time) {
	e.State = state
	e.ExitReason = reason
	e.ExitPrice = model.F(price)
	e.ExitTime = ts
	e.FinalProfitPct = model.F(e.ProfitPct(price))
}

// touched reports whether advance changed the running fields even without
// a transition (it always does for a new candle).
func touched(e *model.Entry, c model.Candle) bool {
	return !e.UpdatedAt.Equal(c.TS)
}

// ── Recovery observation ──

// watch begins post-stop-loss observation for a pair.
func (t *Tracker) watch(e model.Entry) {
	t.mu.Lock()
	t.watching[e.Key()] = e
	t.mu.Unlock()
}

func (t *Tracker) forget(key string) {
	t.mu.Lock()
	delete(t.watching, key)
	t.mu.Unlock()
}

// observeRecovery updates the stopped entry's post-exit low and flags a
// rebound from that low past the configured threshold. Once recovered
// (or replaced by a new entry) the observation ends.
func (t *Tracker) observeRecovery(ctx context.Context, sig model.Signal, c model.Candle, settings model.Settings) {
	key := sig.Symbol + ":" + string(sig.Timeframe)
	t.mu.Lock()
	e, ok := t.watching[key]
	t.mu.Unlock()
	if !ok {
		return
	}

	changed := false
	if !e.RecoveryLow.Valid || c.Low < e.RecoveryLow.Val {
		e.RecoveryLow = model.F(c.Low)
		changed = true
	}
	rebound := e.RecoveryLow.Val * (1 + settings.RecoveryReboundPct/100)
	if !e.Recovered && e.RecoveryLow.Valid && c.Close >= rebound {
		e.Recovered = true
		e.RecoveryTime = c.TS
		changed = true
	}

	if !changed {
		return
	}
	e.UpdatedAt = c.TS
	if err := t.store.UpsertEntry(ctx, &e); err != nil {
		t.log.Warn("recovery update failed", "pair", key, "err", err)
		return
	}
	t.mu.Lock()
	t.watching[key] = e
	t.mu.Unlock()
	if e.Recovered {
		t.log.Info("post-stop recovery", "pair", key, "low", e.RecoveryLow.Val, "close", c.Close)
		t.forget(key)
	}
}

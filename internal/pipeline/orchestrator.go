// Package pipeline runs the per-tick orchestration: fetch candles,
// advance the indicator battery, score, persist the signal, and step the
// entry state machine — independently for every (symbol, timeframe)
// pair, with failure isolation between pairs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/level"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/signal"
)

// Config holds the orchestrator tunables.
type Config struct {
	Pairs []model.Pair

	// Workers bounds tick parallelism. Zero or negative means serial.
	Workers int

	// Persistence retry policy.
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// PairFailure is one failed pair in a tick summary.
type PairFailure struct {
	Pair   model.Pair `json:"pair"`
	Reason string     `json:"reason"`
}

// TickSummary reports one orchestrator tick for logging and alerting.
type TickSummary struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	PairsProcessed int           `json:"pairs_processed"`
	PairsFailed    []PairFailure `json:"pairs_failed,omitempty"`

	CandlesIngested  int `json:"candles_ingested"`
	SignalsEmitted   int `json:"signals_emitted"`
	EntriesOpened    int `json:"entries_opened"`
	EntriesClosed    int `json:"entries_closed"`
	EntryTransitions int `json:"entry_transitions"`
}

// Status is the orchestrator staleness surface.
type Status struct {
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// pairState is the in-memory processing state for one pair. Access is
// serialized through its mutex: one writer per key at a time.
type pairState struct {
	mu      sync.Mutex
	battery *indicator.Battery
	lastTS  time.Time    // newest candle folded into the battery
	last    model.Candle // that candle's values, for correction detection
}

// Orchestrator drives the whole pipeline.
type Orchestrator struct {
	cfg     Config
	store   model.Store
	source  model.CandleSource
	levels  *level.Provider
	tracker *entry.Tracker
	pub     model.Publisher
	prom    *metrics.Metrics
	log     *slog.Logger

	mu    sync.Mutex
	pairs map[string]*pairState

	statusMu    sync.RWMutex
	lastSuccess time.Time
	lastErr     error
}

// New wires an orchestrator. Publisher and metrics may be nil.
func New(cfg Config, store model.Store, source model.CandleSource, levels *level.Provider,
	tracker *entry.Tracker, pub model.Publisher, prom *metrics.Metrics, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		source:  source,
		levels:  levels,
		tracker: tracker,
		pub:     pub,
		prom:    prom,
		log:     log.With("component", "pipeline"),
		pairs:   make(map[string]*pairState),
	}
}

// RunTick processes every configured pair once. Settings are read and
// validated once and used as a consistent snapshot for the whole tick.
// A pair failure is captured in the summary, never propagated.
func (o *Orchestrator) RunTick(ctx context.Context) TickSummary {
	started := time.Now()
	summary := TickSummary{Started: started}

	settings, err := o.store.GetSettings(ctx)
	if err == nil {
		err = settings.Validate()
	}
	if err != nil {
		for _, p := range o.cfg.Pairs {
			summary.PairsFailed = append(summary.PairsFailed, PairFailure{Pair: p, Reason: err.Error()})
		}
		summary.Duration = time.Since(started)
		o.recordTick(summary, err)
		return summary
	}

	workers := o.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(o.cfg.Pairs) && len(o.cfg.Pairs) > 0 {
		workers = len(o.cfg.Pairs)
	}

	jobs := make(chan model.Pair)
	results := make(chan pairResult)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pair := range jobs {
				results <- o.runPair(ctx, pair, settings)
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, pair := range o.cfg.Pairs {
			// Cooperative cancellation between pairs.
			select {
			case <-ctx.Done():
				return
			case jobs <- pair:
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.err != nil {
			summary.PairsFailed = append(summary.PairsFailed, PairFailure{Pair: r.pair, Reason: r.err.Error()})
			if o.prom != nil {
				o.prom.PairFailures.WithLabelValues(failureReason(r.err)).Inc()
			}
			o.log.Warn("pair failed", "pair", r.pair.Key(), "err", r.err)
			continue
		}
		summary.PairsProcessed++
		summary.CandlesIngested += r.candles
		summary.SignalsEmitted += r.signals
		summary.EntriesOpened += r.opened
		summary.EntriesClosed += r.closed
		summary.EntryTransitions += r.transitions
	}

	summary.Duration = time.Since(started)
	var tickErr error
	if n := len(summary.PairsFailed); n > 0 {
		tickErr = fmt.Errorf("%d of %d pairs failed", n, len(o.cfg.Pairs))
	}
	o.recordTick(summary, tickErr)
	return summary
}

// ProcessPair runs the pipeline for one pair synchronously, outside the
// tick loop (admin action, newly added symbol).
func (o *Orchestrator) ProcessPair(ctx context.Context, symbol string, tf model.Timeframe) error {
	settings, err := o.store.GetSettings(ctx)
	if err != nil {
		return &model.PersistenceError{Op: "get settings", Err: err}
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	r := o.runPair(ctx, model.Pair{Symbol: symbol, Timeframe: tf}, settings)
	return r.err
}

// RecalculateLevels recomputes auto support/resistance for all pairs.
func (o *Orchestrator) RecalculateLevels(ctx context.Context) error {
	if o.prom != nil {
		o.prom.LevelRecalcs.Inc()
	}
	return o.levels.RecalculateAll(ctx, o.cfg.Pairs)
}

// Status returns the last-success timestamp and last error for staleness
// indicators.
func (o *Orchestrator) Status() Status {
	o.statusMu.RLock()
	defer o.statusMu.RUnlock()
	s := Status{LastSuccess: o.lastSuccess}
	if o.lastErr != nil {
		s.LastError = o.lastErr.Error()
	}
	return s
}

func (o *Orchestrator) recordTick(s TickSummary, err error) {
	o.statusMu.Lock()
	if err == nil {
		o.lastSuccess = s.Started
	}
	o.lastErr = err
	o.statusMu.Unlock()

	if o.prom != nil {
		o.prom.TicksTotal.Inc()
		o.prom.TickDur.Observe(s.Duration.Seconds())
		if err == nil {
			o.prom.LastTickTime.Set(float64(s.Started.Unix()))
		}
	}
	o.log.Info("tick complete",
		"pairs_ok", s.PairsProcessed, "pairs_failed", len(s.PairsFailed),
		"candles", s.CandlesIngested, "signals", s.SignalsEmitted,
		"entries_opened", s.EntriesOpened, "entries_closed", s.EntriesClosed,
		"duration", s.Duration)
}

type pairResult struct {
	pair        model.Pair
	candles     int
	signals     int
	opened      int
	closed      int
	transitions int
	err         error
}

// runPair executes fetch → ingest → battery → score → entry for one
// pair under its per-key lock.
func (o *Orchestrator) runPair(ctx context.Context, pair model.Pair, settings model.Settings) pairResult {
	res := pairResult{pair: pair}
	start := time.Now()
	defer func() {
		if o.prom != nil {
			o.prom.PairDur.Observe(time.Since(start).Seconds())
			if res.err == nil {
				o.prom.PairsOK.Inc()
			}
		}
	}()

	st := o.state(pair)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := o.ensureBattery(ctx, pair, st, settings); err != nil {
		res.err = err
		return res
	}

	ingested, err := o.ingest(ctx, pair)
	if err != nil {
		res.err = err
		return res
	}
	res.candles = ingested
	if o.prom != nil && ingested > 0 {
		o.prom.CandlesTotal.Add(float64(ingested))
	}

	// Everything at or after the battery's last folded candle. The first
	// element, if it matches lastTS, is checked for a late correction.
	candles, err := o.store.ReadCandles(ctx, pair.Symbol, pair.Timeframe, st.lastTS.Add(-time.Nanosecond))
	if err != nil {
		res.err = &model.PersistenceError{Op: "read candles", Err: err}
		return res
	}

	lastSignalTS, err := o.store.LastSignalTS(ctx, pair.Symbol, pair.Timeframe)
	if err != nil {
		res.err = &model.PersistenceError{Op: "last signal ts", Err: err}
		return res
	}

	for _, c := range candles {
		if ctx.Err() != nil {
			res.err = ctx.Err()
			return res
		}
		switch {
		case c.TS.Equal(st.lastTS):
			if c.Same(st.last) {
				continue // already processed, no correction
			}
			if err := o.reprocessAmended(ctx, pair, st, c, settings); err != nil {
				res.err = err
				return res
			}
			res.signals++
		case c.TS.After(st.lastTS):
			n, err := o.processNew(ctx, pair, st, c, settings, lastSignalTS, &res)
			if err != nil {
				res.err = err
				return res
			}
			res.signals += n
		}
	}

	if err := o.checkpoint(ctx, pair, st); err != nil {
		// Checkpoint loss is recoverable (full rebuild); log, don't fail.
		o.log.Warn("battery checkpoint failed", "pair", pair.Key(), "err", err)
	}
	return res
}

// processNew folds one new candle into the battery and, when it has not
// been scored before, persists its snapshot/signal and advances the entry
// state machine. Returns the number of signals emitted (0 or 1).
func (o *Orchestrator) processNew(ctx context.Context, pair model.Pair, st *pairState,
	c model.Candle, settings model.Settings, lastSignalTS time.Time, res *pairResult) (int, error) {

	if !st.lastTS.IsZero() {
		expected := st.lastTS.Add(pair.Timeframe.Duration())
		if c.TS.After(expected) {
			gap := &model.DataGapError{Pair: pair, LastSeen: st.lastTS, Next: c.TS}
			o.log.Warn("data gap", "pair", pair.Key(), "err", gap.Error())
		}
	}

	st.battery.Update(c)
	st.lastTS = c.TS
	st.last = c

	if !c.TS.After(lastSignalTS) {
		return 0, nil // already scored in a previous run
	}

	sig, err := o.scoreAndPersist(ctx, pair, st, c, settings)
	if err != nil {
		return 0, err
	}

	events, err := o.tracker.Process(ctx, sig, c, settings)
	if err != nil {
		return 1, err
	}
	for _, ev := range events {
		res.transitions++
		switch ev.Type {
		case entry.EventOpened:
			res.opened++
			if o.prom != nil {
				o.prom.EntriesOpened.Inc()
			}
		case entry.EventTargetExit, entry.EventTrailingStop, entry.EventStopLoss,
			entry.EventSignalExit, entry.EventInvalidated:
			res.closed++
			if o.prom != nil {
				o.prom.EntriesClosed.WithLabelValues(ev.Entry.ExitReason).Inc()
			}
		}
		o.publishEntry(ctx, ev)
	}
	return 1, nil
}

// reprocessAmended replays a corrected candle through the battery and
// rewrites only that candle's snapshot and signal. State already carried
// forward by later candles is not rippled; with per-tick polling the
// amended candle is normally still the newest one.
func (o *Orchestrator) reprocessAmended(ctx context.Context, pair model.Pair, st *pairState,
	c model.Candle, settings model.Settings) error {

	o.log.Info("late correction", "pair", pair.Key(), "ts", c.TS)
	if st.battery.Rewind() {
		st.battery.Update(c)
	} else {
		// No one-step savepoint (battery came from a checkpoint); the
		// corrected row is already stored, so replay history through it.
		if err := o.rebuildThrough(ctx, pair, st, c, settings); err != nil {
			return err
		}
	}
	st.last = c

	_, err := o.scoreAndPersist(ctx, pair, st, c, settings)
	return err
}

// rebuildThrough reconstructs the battery from stored candles up to and
// including ts of the corrected candle.
func (o *Orchestrator) rebuildThrough(ctx context.Context, pair model.Pair, st *pairState,
	c model.Candle, settings model.Settings) error {

	candles, err := o.store.ReadCandles(ctx, pair.Symbol, pair.Timeframe, time.Time{})
	if err != nil {
		return &model.PersistenceError{Op: "read candles", Err: err}
	}
	b := indicator.NewBattery(pair, settings.Periods)
	for _, h := range candles {
		if h.TS.After(c.TS) {
			break
		}
		b.Update(h)
	}
	st.battery = b
	st.lastTS = c.TS
	o.log.Info("battery rebuilt for correction", "pair", pair.Key(), "candles", b.Count())
	return nil
}

// scoreAndPersist computes and stores the snapshot and signal for the
// battery's current candle.
func (o *Orchestrator) scoreAndPersist(ctx context.Context, pair model.Pair, st *pairState,
	c model.Candle, settings model.Settings) (model.Signal, error) {

	snap := st.battery.Snapshot(c)
	if err := o.withRetry(ctx, func() error { return o.store.UpsertSnapshot(ctx, snap) }); err != nil {
		return model.Signal{}, &model.PersistenceError{Op: "upsert snapshot", Err: err}
	}

	sig := signal.Score(signal.Input{
		Snapshot:  snap,
		Levels:    o.levels.Levels(ctx, pair),
		MagicLine: o.levels.MagicLine(ctx, pair.Symbol),
		Settings:  settings,
	})
	if err := o.withRetry(ctx, func() error { return o.store.InsertSignal(ctx, sig) }); err != nil {
		return model.Signal{}, &model.PersistenceError{Op: "insert signal", Err: err}
	}

	if o.prom != nil {
		o.prom.SignalsTotal.WithLabelValues(string(sig.Tier)).Inc()
	}
	if o.pub != nil {
		if err := o.pub.PublishSignal(ctx, sig); err != nil {
			if o.prom != nil {
				o.prom.PublishErrors.Inc()
			}
			o.log.Warn("signal publish failed", "pair", pair.Key(), "err", err)
		}
	}
	return sig, nil
}

func (o *Orchestrator) publishEntry(ctx context.Context, ev entry.Event) {
	if o.pub == nil {
		return
	}
	if err := o.pub.PublishEntry(ctx, ev.Entry, ev.Type); err != nil {
		if o.prom != nil {
			o.prom.PublishErrors.Inc()
		}
		o.log.Warn("entry publish failed", "pair", ev.Entry.Key(), "event", ev.Type, "err", err)
	}
}

// ingest pulls candles from the source after the newest stored timestamp
// and upserts them. Duplicates and re-fetches are idempotent.
func (o *Orchestrator) ingest(ctx context.Context, pair model.Pair) (int, error) {
	last, err := o.store.LastCandleTS(ctx, pair.Symbol, pair.Timeframe)
	if err != nil {
		return 0, &model.PersistenceError{Op: "last candle ts", Err: err}
	}
	// Re-fetch the newest stored bucket too, so late corrections to it
	// are picked up.
	since := last
	if !last.IsZero() {
		since = last.Add(-pair.Timeframe.Duration())
	}

	candles, err := o.source.Fetch(ctx, pair.Symbol, pair.Timeframe, since)
	if err != nil {
		return 0, fmt.Errorf("fetch %s: %w", pair.Key(), err)
	}

	n := 0
	for _, c := range candles {
		if err := o.withRetry(ctx, func() error { return o.store.UpsertCandle(ctx, c) }); err != nil {
			return n, &model.PersistenceError{Op: "upsert candle", Err: err}
		}
		n++
	}
	return n, nil
}

// batteryCheckpoint wraps the serialized battery with the candle position
// it covers.
type batteryCheckpoint struct {
	LastTS time.Time       `json:"last_ts"`
	Last   model.Candle    `json:"last_candle"`
	State  json.RawMessage `json:"state"`
}

// ensureBattery makes sure the pair has a live battery: reuse the
// in-memory one, else restore the stored checkpoint, else rebuild from
// full candle history.
func (o *Orchestrator) ensureBattery(ctx context.Context, pair model.Pair, st *pairState, settings model.Settings) error {
	if st.battery != nil {
		return nil
	}

	data, err := o.store.LoadBatteryState(ctx, pair)
	if err != nil {
		o.log.Warn("battery state load failed", "pair", pair.Key(), "err", err)
	}
	if data != nil {
		var cp batteryCheckpoint
		if err := json.Unmarshal(data, &cp); err == nil {
			b := indicator.NewBattery(pair, settings.Periods)
			if err := b.UnmarshalState(cp.State); err == nil {
				st.battery = b
				st.lastTS = cp.LastTS
				st.last = cp.Last
				o.log.Info("battery restored", "pair", pair.Key(), "candles", b.Count())
				return nil
			}
			o.log.Warn("battery state incompatible, rebuilding", "pair", pair.Key(), "err", err)
		}
	}

	// Cold start: rebuild from everything we have.
	b := indicator.NewBattery(pair, settings.Periods)
	candles, err := o.store.ReadCandles(ctx, pair.Symbol, pair.Timeframe, time.Time{})
	if err != nil {
		return &model.PersistenceError{Op: "read candles", Err: err}
	}
	for _, c := range candles {
		b.Update(c)
	}
	st.battery = b
	if len(candles) > 0 {
		st.lastTS = candles[len(candles)-1].TS
		st.last = candles[len(candles)-1]
	}
	o.log.Info("battery rebuilt", "pair", pair.Key(), "candles", len(candles))
	return nil
}

// checkpoint persists the battery state for warm restarts.
func (o *Orchestrator) checkpoint(ctx context.Context, pair model.Pair, st *pairState) error {
	state, err := st.battery.MarshalState()
	if err != nil {
		return err
	}
	data, err := json.Marshal(batteryCheckpoint{LastTS: st.lastTS, Last: st.last, State: state})
	if err != nil {
		return err
	}
	return o.withRetry(ctx, func() error { return o.store.SaveBatteryState(ctx, pair, data) })
}

// withRetry runs a store operation with exponential backoff.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := o.cfg.RetryBaseDelay
	for attempt := 0; attempt < o.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			if o.prom != nil {
				o.prom.StoreRetries.Inc()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (o *Orchestrator) state(pair model.Pair) *pairState {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.pairs[pair.Key()]
	if !ok {
		st = &pairState{}
		o.pairs[pair.Key()] = st
	}
	return st
}

// failureReason maps an error to a stable metric label.
func failureReason(err error) string {
	var pe *model.PersistenceError
	var is *model.InvalidSettingsError
	var gap *model.DataGapError
	switch {
	case errors.As(err, &pe):
		return "persistence"
	case errors.As(err, &is):
		return "settings"
	case errors.As(err, &gap):
		return "data-gap"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "source"
	}
}

// Package memory is an in-memory Store used by tests and by ephemeral
// runs where persistence is not wanted. It mirrors the semantics of the
// SQL stores: idempotent candle upserts, replace-on-conflict signals,
// single active entry per pair.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

// Store implements model.Store entirely in process memory.
type Store struct {
	mu sync.RWMutex

	candles   map[string][]model.Candle // keyed by pair, ascending by TS
	snapshots map[string]map[int64]model.IndicatorSnapshot
	battery   map[string][]byte
	signals   map[string]map[int64]model.Signal
	entries   map[int64]model.Entry
	nextEntry int64
	levels    map[string]model.LevelSet
	magic     map[string]model.MagicLine
	settings  model.Settings
}

// New creates an empty in-memory store seeded with default settings.
func New() *Store {
	return &Store{
		candles:   make(map[string][]model.Candle),
		snapshots: make(map[string]map[int64]model.IndicatorSnapshot),
		battery:   make(map[string][]byte),
		signals:   make(map[string]map[int64]model.Signal),
		entries:   make(map[int64]model.Entry),
		nextEntry: 1,
		levels:    make(map[string]model.LevelSet),
		magic:     make(map[string]model.MagicLine),
		settings:  model.DefaultSettings(),
	}
}

func pairKey(symbol string, tf model.Timeframe) string {
	return symbol + ":" + string(tf)
}

// ── CandleStore ──

func (s *Store) UpsertCandle(_ context.Context, c model.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Key()
	list := s.candles[key]
	i := sort.Search(len(list), func(i int) bool { return !list[i].TS.Before(c.TS) })
	if i < len(list) && list[i].TS.Equal(c.TS) {
		list[i] = c
		return nil
	}
	list = append(list, model.Candle{})
	copy(list[i+1:], list[i:])
	list[i] = c
	s.candles[key] = list
	return nil
}

func (s *Store) ReadCandles(_ context.Context, symbol string, tf model.Timeframe, after time.Time) ([]model.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.candles[pairKey(symbol, tf)]
	out := make([]model.Candle, 0, len(list))
	for _, c := range list {
		if c.TS.After(after) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) LastCandleTS(_ context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.candles[pairKey(symbol, tf)]
	if len(list) == 0 {
		return time.Time{}, nil
	}
	return list[len(list)-1].TS, nil
}

// ── SnapshotStore ──

func (s *Store) UpsertSnapshot(_ context.Context, snap model.IndicatorSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := snap.Key()
	if s.snapshots[key] == nil {
		s.snapshots[key] = make(map[int64]model.IndicatorSnapshot)
	}
	s.snapshots[key][snap.TS.UnixNano()] = snap
	return nil
}

// Snapshot returns a stored snapshot for inspection in tests.
func (s *Store) Snapshot(symbol string, tf model.Timeframe, ts time.Time) (model.IndicatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[pairKey(symbol, tf)][ts.UnixNano()]
	return snap, ok
}

func (s *Store) SaveBatteryState(_ context.Context, pair model.Pair, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.battery[pair.Key()] = cp
	return nil
}

func (s *Store) LoadBatteryState(_ context.Context, pair model.Pair) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.battery[pair.Key()]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// ── SignalStore ──

func (s *Store) InsertSignal(_ context.Context, sig model.Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(sig.Symbol, sig.Timeframe)
	if s.signals[key] == nil {
		s.signals[key] = make(map[int64]model.Signal)
	}
	s.signals[key][sig.TS.UnixNano()] = sig
	return nil
}

func (s *Store) LastSignalTS(_ context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for ns := range s.signals[pairKey(symbol, tf)] {
		if ts := time.Unix(0, ns).UTC(); ts.After(last) {
			last = ts
		}
	}
	return last, nil
}

// Signal returns a stored signal for inspection in tests.
func (s *Store) Signal(symbol string, tf model.Timeframe, ts time.Time) (model.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[pairKey(symbol, tf)][ts.UnixNano()]
	return sig, ok
}

// SignalCount returns how many signals a pair has stored.
func (s *Store) SignalCount(symbol string, tf model.Timeframe) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.signals[pairKey(symbol, tf)])
}

// ── EntryStore ──

func (s *Store) GetActiveEntry(_ context.Context, symbol string, tf model.Timeframe) (*model.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Symbol == symbol && e.Timeframe == tf && !e.State.Terminal() {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpsertEntry(_ context.Context, e *model.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == 0 {
		e.ID = s.nextEntry
		s.nextEntry++
	}
	s.entries[e.ID] = *e
	return nil
}

// Entries returns all stored entries for inspection in tests.
func (s *Store) Entries() []model.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ── LevelStore ──

func (s *Store) GetLevelSet(_ context.Context, symbol string, tf model.Timeframe) (*model.LevelSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ls, ok := s.levels[pairKey(symbol, tf)]
	if !ok {
		return nil, nil
	}
	cp := ls
	return &cp, nil
}

func (s *Store) UpsertLevelSet(_ context.Context, l model.LevelSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels[pairKey(l.Symbol, l.Timeframe)] = l
	return nil
}

func (s *Store) GetMagicLine(_ context.Context, symbol string) (*model.MagicLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.magic[symbol]
	if !ok {
		return nil, nil
	}
	cp := m
	return &cp, nil
}

func (s *Store) UpsertMagicLine(_ context.Context, m model.MagicLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.magic[m.Symbol] = m
	return nil
}

// ── SettingsStore ──

func (s *Store) GetSettings(_ context.Context) (model.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, set model.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = set
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

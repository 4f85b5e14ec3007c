package model

import (
	"context"
	"time"
)

// ── Port interfaces ──
// These decouple the pipeline from concrete collaborators (exchange
// adapters, SQLite, PostgreSQL, Redis). Each implementation satisfies one
// or more of these interfaces.

// CandleSource fetches candles from an external market-data collaborator.
// Results may be partial or empty and may contain duplicates; the pipeline
// tolerates both.
type CandleSource interface {
	// Fetch returns candles for the pair strictly ordered by timestamp,
	// starting after since. The source owns its own timeouts.
	Fetch(ctx context.Context, symbol string, tf Timeframe, since time.Time) ([]Candle, error)
}

// CandleStore persists candles.
type CandleStore interface {
	// UpsertCandle is idempotent, keyed by (symbol, timeframe, ts).
	UpsertCandle(ctx context.Context, c Candle) error

	// ReadCandles returns candles for a pair after a timestamp, ascending.
	ReadCandles(ctx context.Context, symbol string, tf Timeframe, after time.Time) ([]Candle, error)

	// LastCandleTS returns the newest stored candle time for a pair.
	// Zero time when none exist.
	LastCandleTS(ctx context.Context, symbol string, tf Timeframe) (time.Time, error)
}

// SnapshotStore persists per-candle indicator snapshots and the battery's
// rolling state for warm restarts.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, s IndicatorSnapshot) error

	// SaveBatteryState persists the JSON-encoded rolling state per pair.
	SaveBatteryState(ctx context.Context, pair Pair, data []byte) error

	// LoadBatteryState returns the most recent rolling state for a pair.
	// nil, nil when none exists.
	LoadBatteryState(ctx context.Context, pair Pair) ([]byte, error)
}

// SignalStore persists derived signals.
type SignalStore interface {
	// InsertSignal stores a signal; re-inserting the same (symbol,
	// timeframe, ts) replaces the previous row (late-correction rewrite).
	InsertSignal(ctx context.Context, s Signal) error

	// LastSignalTS returns the newest signal time for a pair. Zero when
	// none exist.
	LastSignalTS(ctx context.Context, symbol string, tf Timeframe) (time.Time, error)
}

// EntryStore persists entry lifecycle records with read-modify-write
// semantics (no lost updates).
type EntryStore interface {
	// GetActiveEntry returns the single non-terminal entry for a pair,
	// or nil when none exists.
	GetActiveEntry(ctx context.Context, symbol string, tf Timeframe) (*Entry, error)

	// UpsertEntry inserts or fully replaces an entry record. New entries
	// (ID == 0) are assigned an ID by the store.
	UpsertEntry(ctx context.Context, e *Entry) error
}

// LevelStore persists level sets and magic lines.
type LevelStore interface {
	GetLevelSet(ctx context.Context, symbol string, tf Timeframe) (*LevelSet, error)
	UpsertLevelSet(ctx context.Context, l LevelSet) error

	GetMagicLine(ctx context.Context, symbol string) (*MagicLine, error)
	UpsertMagicLine(ctx context.Context, m MagicLine) error
}

// SettingsStore reads the mutable configuration. Changes take effect on the
// next tick, never mid-cycle.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Store is the full persistence surface the pipeline requires.
type Store interface {
	CandleStore
	SnapshotStore
	SignalStore
	EntryStore
	LevelStore
	SettingsStore

	// Close releases underlying resources.
	Close() error
}

// Publisher emits signals and entry transitions to downstream consumers
// (dashboards, alerting). Publishing is best-effort: a publish failure is
// logged and counted, never fatal to the tick.
type Publisher interface {
	PublishSignal(ctx context.Context, s Signal) error
	PublishEntry(ctx context.Context, e Entry, event string) error
	Close() error
}

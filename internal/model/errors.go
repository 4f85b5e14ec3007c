package model

import (
	"fmt"
	"time"
)

// DataGapError indicates missing candles that break indicator continuity.
// The pipeline recomputes from the last known good state; it never crashes
// the tick.
type DataGapError struct {
	Pair     Pair
	LastSeen time.Time
	Next     time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("data gap for %s: last candle %s, next %s",
		e.Pair.Key(), e.LastSeen.Format(time.RFC3339), e.Next.Format(time.RFC3339))
}

// InsufficientHistoryError indicates fewer candles than an indicator's
// warm-up period. It produces the explicit insufficient-data state rather
// than a pipeline failure.
type InsufficientHistoryError struct {
	Pair   Pair
	Have   int
	Needed int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: have %d candles, need %d",
		e.Pair.Key(), e.Have, e.Needed)
}

// InvalidSettingsError indicates malformed threshold configuration. It fails
// the tick for affected pairs only.
type InvalidSettingsError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %s: %s", e.Field, e.Reason)
}

// ConcurrentEntryConflict indicates an attempt to open a second active entry
// for a (symbol, timeframe) that already has one. The attempt is rejected,
// never overwritten.
type ConcurrentEntryConflict struct {
	Pair       Pair
	ExistingID int64
}

func (e *ConcurrentEntryConflict) Error() string {
	return fmt.Sprintf("active entry #%d already exists for %s", e.ExistingID, e.Pair.Key())
}

// PersistenceError wraps a store failure. The current pair retries with
// backoff; the tick continues for other pairs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

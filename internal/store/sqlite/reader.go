package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"signal-systemv1/internal/model"
)

// ReadCandles returns candles for a pair after a timestamp, ascending.
func (s *Store) ReadCandles(ctx context.Context, symbol string, tf model.Timeframe, after time.Time) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, tf, ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, string(tf), after.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tfStr string
		var tsNano int64
		if err := rows.Scan(&c.Symbol, &tfStr, &tsNano, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candle: %w", err)
		}
		c.Timeframe = model.Timeframe(tfStr)
		c.TS = time.Unix(0, tsNano).UTC()
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// LastCandleTS returns the newest stored candle time for a pair.
// Zero time when none exist.
func (s *Store) LastCandleTS(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite last candle ts: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ts.Int64).UTC(), nil
}

// LoadBatteryState returns the most recent rolling indicator state for a
// pair, or nil when no checkpoint exists.
func (s *Store) LoadBatteryState(ctx context.Context, pair model.Pair) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM battery_state WHERE symbol = ? AND tf = ?`,
		pair.Symbol, string(pair.Timeframe),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load battery state: %w", err)
	}
	return []byte(data), nil
}

// LastSignalTS returns the newest signal time for a pair. Zero when none
// exist.
func (s *Store) LastSignalTS(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM signals WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite last signal ts: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ts.Int64).UTC(), nil
}

// ReadSignals returns signals for a pair after a timestamp, ascending.
// Serves dashboard backfill.
func (s *Store) ReadSignals(ctx context.Context, symbol string, tf model.Timeframe, after time.Time) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM signals
		WHERE symbol = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, symbol, string(tf), after.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite query signals: %w", err)
	}
	defer rows.Close()

	var sigs []model.Signal
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("sqlite scan signal: %w", err)
		}
		var sig model.Signal
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return nil, fmt.Errorf("unmarshal signal: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// GetActiveEntry returns the single non-terminal entry for a pair, or nil.
func (s *Store) GetActiveEntry(ctx context.Context, symbol string, tf model.Timeframe) (*model.Entry, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM entries
		WHERE symbol = ? AND tf = ? AND state NOT IN (?, ?, ?)
		ORDER BY id DESC
		LIMIT 1
	`, symbol, string(tf),
		string(model.StateExited), string(model.StateStopLoss), string(model.StateInvalidated),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite active entry: %w", err)
	}

	var e model.Entry
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &e, nil
}

func (s *Store) GetLevelSet(ctx context.Context, symbol string, tf model.Timeframe) (*model.LevelSet, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM level_sets WHERE symbol = ? AND tf = ?`,
		symbol, string(tf),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite level set: %w", err)
	}

	var l model.LevelSet
	if err := json.Unmarshal([]byte(data), &l); err != nil {
		return nil, fmt.Errorf("unmarshal level set: %w", err)
	}
	return &l, nil
}

func (s *Store) GetMagicLine(ctx context.Context, symbol string) (*model.MagicLine, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM magic_lines WHERE symbol = ?`, symbol,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite magic line: %w", err)
	}

	var m model.MagicLine
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal magic line: %w", err)
	}
	return &m, nil
}

// GetSettings returns the stored settings, or the defaults when the row
// has never been written.
func (s *Store) GetSettings(ctx context.Context) (model.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return model.Settings{}, fmt.Errorf("sqlite settings: %w", err)
	}

	var set model.Settings
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		return model.Settings{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return set, nil
}

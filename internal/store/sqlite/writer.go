package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/signals.db"
}

// Store is a single-writer SQLite implementation of model.Store. WAL mode
// keeps reads from blocking the writer; the pool is pinned to one
// connection so writes never contend.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS indicator_snapshots (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			data       TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS battery_state (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, tf)
		);

		CREATE TABLE IF NOT EXISTS signals (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			tier       TEXT    NOT NULL,
			total      REAL    NOT NULL,
			data       TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf, ts)
		);

		CREATE TABLE IF NOT EXISTS entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			state      TEXT    NOT NULL,
			data       TEXT    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS entries_active
			ON entries (symbol, tf, state);

		CREATE TABLE IF NOT EXISTS level_sets (
			symbol     TEXT    NOT NULL,
			tf         TEXT    NOT NULL,
			data       TEXT    NOT NULL,
			PRIMARY KEY (symbol, tf)
		);

		CREATE TABLE IF NOT EXISTS magic_lines (
			symbol     TEXT    PRIMARY KEY,
			data       TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS settings (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			data       TEXT    NOT NULL
		);
	`)
	return err
}

// UpsertCandle is idempotent on (symbol, tf, ts).
func (s *Store) UpsertCandle(ctx context.Context, c model.Candle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Symbol, string(c.Timeframe), c.TS.UnixNano(), c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("sqlite upsert candle: %w", err)
	}
	return nil
}

// InsertCandleBatch inserts candles in a single transaction. Used for
// backfill; per-candle upserts go through UpsertCandle.
func (s *Store) InsertCandleBatch(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	start := time.Now()
	for _, c := range candles {
		if _, err := stmt.Exec(c.Symbol, string(c.Timeframe), c.TS.UnixNano(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite batch insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit: %w", err)
	}
	log.Printf("[sqlite] committed %d candles in %v", len(candles), time.Since(start))
	return nil
}

func (s *Store) UpsertSnapshot(ctx context.Context, snap model.IndicatorSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO indicator_snapshots (symbol, tf, ts, data)
		VALUES (?, ?, ?, ?)
	`, snap.Symbol, string(snap.Timeframe), snap.TS.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("sqlite upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) SaveBatteryState(ctx context.Context, pair model.Pair, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO battery_state (symbol, tf, data, updated_at)
		VALUES (?, ?, ?, ?)
	`, pair.Symbol, string(pair.Timeframe), string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("sqlite save battery state: %w", err)
	}
	return nil
}

// InsertSignal replaces any previous row for the same (symbol, tf, ts) so
// a late candle correction rewrites its signal in place.
func (s *Store) InsertSignal(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO signals (symbol, tf, ts, tier, total, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sig.Symbol, string(sig.Timeframe), sig.TS.UnixNano(), string(sig.Tier), sig.Total, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert signal: %w", err)
	}
	return nil
}

func (s *Store) UpsertEntry(ctx context.Context, e *model.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if e.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO entries (symbol, tf, state, data) VALUES (?, ?, ?, ?)
		`, e.Symbol, string(e.Timeframe), string(e.State), string(data))
		if err != nil {
			return fmt.Errorf("sqlite insert entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite entry id: %w", err)
		}
		e.ID = id
		// Rewrite the row so the JSON document carries the assigned ID.
		data, _ = json.Marshal(e)
		if _, err := s.db.ExecContext(ctx,
			`UPDATE entries SET data = ? WHERE id = ?`, string(data), id); err != nil {
			return fmt.Errorf("sqlite rewrite entry: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE entries SET state = ?, data = ? WHERE id = ?
	`, string(e.State), string(data), e.ID)
	if err != nil {
		return fmt.Errorf("sqlite update entry: %w", err)
	}
	return nil
}

func (s *Store) UpsertLevelSet(ctx context.Context, l model.LevelSet) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal level set: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO level_sets (symbol, tf, data) VALUES (?, ?, ?)
	`, l.Symbol, string(l.Timeframe), string(data))
	if err != nil {
		return fmt.Errorf("sqlite upsert level set: %w", err)
	}
	return nil
}

func (s *Store) UpsertMagicLine(ctx context.Context, m model.MagicLine) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal magic line: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO magic_lines (symbol, data) VALUES (?, ?)
	`, m.Symbol, string(data))
	if err != nil {
		return fmt.Errorf("sqlite upsert magic line: %w", err)
	}
	return nil
}

func (s *Store) SaveSettings(ctx context.Context, set model.Settings) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (id, data) VALUES (1, ?)
	`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite save settings: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

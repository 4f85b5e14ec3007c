// Package level resolves the support/resistance and magic-line context a
// pair is scored against. Manual levels always win; auto levels come from
// a trailing window of daily candles and are cached until recalculated.
package level

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"signal-systemv1/internal/model"
)

// store is the persistence slice the provider needs.
type store interface {
	model.LevelStore
	model.CandleStore
}

// Provider serves effective levels for scoring. Reads are lock-cheap; a
// recalculation builds the new set aside and swaps it in under the write
// lock.
type Provider struct {
	store        store
	log          *slog.Logger
	lookbackDays int

	now func() time.Time

	mu     sync.RWMutex
	levels map[string]model.LevelSet // keyed by pair
	magic  map[string]model.MagicLine
}

// NewProvider creates a level provider with the given auto-level lookback
// window in days.
func NewProvider(st store, lookbackDays int, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		store:        st,
		log:          log.With("component", "level"),
		lookbackDays: lookbackDays,
		now:          time.Now,
		levels:       make(map[string]model.LevelSet),
		magic:        make(map[string]model.MagicLine),
	}
}

// Levels returns the level set for a pair. A pair with no stored or
// computed levels gets an empty set: scoring then simply skips the
// price-action bonus.
func (p *Provider) Levels(ctx context.Context, pair model.Pair) model.LevelSet {
	p.mu.RLock()
	ls, ok := p.levels[pair.Key()]
	p.mu.RUnlock()
	if ok {
		return ls
	}

	ls = p.build(ctx, pair)
	p.mu.Lock()
	p.levels[pair.Key()] = ls
	p.mu.Unlock()
	return ls
}

// MagicLine returns the active magic-line price for a symbol, invalid when
// none is set or the line is disabled.
func (p *Provider) MagicLine(ctx context.Context, symbol string) model.Float {
	p.mu.RLock()
	m, ok := p.magic[symbol]
	p.mu.RUnlock()
	if !ok {
		stored, err := p.store.GetMagicLine(ctx, symbol)
		if err != nil {
			p.log.Warn("magic line read failed", "symbol", symbol, "err", err)
			return model.Float{}
		}
		if stored == nil {
			m = model.MagicLine{Symbol: symbol}
		} else {
			m = *stored
		}
		p.mu.Lock()
		p.magic[symbol] = m
		p.mu.Unlock()
	}
	if !m.Active || m.Price <= 0 {
		return model.Float{}
	}
	return model.F(m.Price)
}

// SetManualLevels stores a manual support/resistance override (0 clears)
// and refreshes the cache entry.
func (p *Provider) SetManualLevels(ctx context.Context, pair model.Pair, support, resistance float64) error {
	ls := p.build(ctx, pair)
	ls.ManualSupport = support
	ls.ManualResistance = resistance
	ls.UpdatedAt = p.now().UTC()
	if err := p.store.UpsertLevelSet(ctx, ls); err != nil {
		return &model.PersistenceError{Op: "upsert level set", Err: err}
	}
	p.mu.Lock()
	p.levels[pair.Key()] = ls
	p.mu.Unlock()
	return nil
}

// SetMagicLine stores a magic line for a symbol and refreshes the cache.
func (p *Provider) SetMagicLine(ctx context.Context, m model.MagicLine) error {
	m.UpdatedAt = p.now().UTC()
	if err := p.store.UpsertMagicLine(ctx, m); err != nil {
		return &model.PersistenceError{Op: "upsert magic line", Err: err}
	}
	p.mu.Lock()
	p.magic[m.Symbol] = m
	p.mu.Unlock()
	return nil
}

// Recalculate recomputes the auto levels for one pair and persists them.
func (p *Provider) Recalculate(ctx context.Context, pair model.Pair) error {
	ls := p.build(ctx, pair)
	if err := p.store.UpsertLevelSet(ctx, ls); err != nil {
		return &model.PersistenceError{Op: "upsert level set", Err: err}
	}
	p.mu.Lock()
	p.levels[pair.Key()] = ls
	p.mu.Unlock()
	p.log.Info("levels recalculated", "pair", pair.Key(),
		"auto_support", ls.AutoSupport.Or(0), "auto_resistance", ls.AutoResistance.Or(0))
	return nil
}

// RecalculateAll recomputes auto levels for every pair, continuing past
// per-pair failures and returning the first error encountered.
func (p *Provider) RecalculateAll(ctx context.Context, pairs []model.Pair) error {
	var first error
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.Recalculate(ctx, pair); err != nil {
			p.log.Warn("level recalculation failed", "pair", pair.Key(), "err", err)
			if first == nil {
				first = fmt.Errorf("recalculate %s: %w", pair.Key(), err)
			}
		}
	}
	return first
}

// Invalidate drops the cached set for a pair so the next read rebuilds it.
func (p *Provider) Invalidate(pair model.Pair) {
	p.mu.Lock()
	delete(p.levels, pair.Key())
	delete(p.magic, pair.Symbol)
	p.mu.Unlock()
}

// build assembles a level set from stored manual overrides plus a fresh
// auto computation. Failures degrade to an empty set instead of erroring:
// a missing level costs the score nothing.
func (p *Provider) build(ctx context.Context, pair model.Pair) model.LevelSet {
	ls := model.LevelSet{Symbol: pair.Symbol, Timeframe: pair.Timeframe}

	stored, err := p.store.GetLevelSet(ctx, pair.Symbol, pair.Timeframe)
	if err != nil {
		p.log.Warn("level set read failed", "pair", pair.Key(), "err", err)
	} else if stored != nil {
		ls.ManualSupport = stored.ManualSupport
		ls.ManualResistance = stored.ManualResistance
	}

	lo, hi, ok := p.autoWindow(ctx, pair.Symbol)
	if ok {
		ls.AutoSupport = model.F(lo)
		ls.AutoResistance = model.F(hi)
	}
	ls.UpdatedAt = p.now().UTC()
	return ls
}

// autoWindow scans the trailing lookback window of daily candles (hourly
// as a fallback for symbols without daily history) for the extreme low
// and high.
func (p *Provider) autoWindow(ctx context.Context, symbol string) (lo, hi float64, ok bool) {
	since := p.now().UTC().AddDate(0, 0, -p.lookbackDays)

	candles, err := p.store.ReadCandles(ctx, symbol, "1d", since)
	if err != nil {
		p.log.Warn("auto level scan failed", "symbol", symbol, "err", err)
		return 0, 0, false
	}
	if len(candles) == 0 {
		candles, err = p.store.ReadCandles(ctx, symbol, "1h", since)
		if err != nil || len(candles) == 0 {
			return 0, 0, false
		}
	}

	lo, hi = candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	return lo, hi, true
}

// Package indicator provides incremental technical indicator calculations
// over candle data.
//
// Every indicator consumes candles (or closes) one at a time in O(1)
// amortized work and exposes Value()/Ready(). Ready() is false during the
// warm-up window; callers must treat a not-ready indicator as
// non-contributing, never as a real zero. The Battery type groups the full
// indicator set for one (symbol, timeframe) and emits one
// model.IndicatorSnapshot per candle.
package indicator

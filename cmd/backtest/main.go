// cmd/backtest replays historical candles from SQLite through the scoring
// pipeline to inspect tier distribution and entry outcomes without live
// market data.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/signals.db --symbol=RELIANCE --tf=1h
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/level"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/signal"
	"signal-systemv1/internal/store/memory"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	dbPath := flag.String("db", "data/signals.db", "Path to SQLite database")
	symbol := flag.String("symbol", "", "Symbol to replay (required)")
	tfStr := flag.String("tf", "1h", "Timeframe to replay")
	fromStr := flag.String("from", "", "RFC3339 start time (default: all)")
	verbose := flag.Bool("v", false, "Print every BUY-class signal")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}

	var from time.Time
	if *fromStr != "" {
		t, err := time.Parse(time.RFC3339, *fromStr)
		if err != nil {
			log.Fatalf("[backtest] bad --from: %v", err)
		}
		from = t
	}

	src, err := sqlitestore.New(sqlitestore.Config{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	pair := model.Pair{Symbol: *symbol, Timeframe: model.Timeframe(*tfStr)}

	candles, err := src.ReadCandles(ctx, pair.Symbol, pair.Timeframe, from)
	if err != nil {
		log.Fatalf("[backtest] read candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[backtest] no candles for %s", pair.Key())
	}
	log.Printf("[backtest] replaying %d candles for %s", len(candles), pair.Key())

	settings, err := src.GetSettings(ctx)
	if err != nil {
		log.Fatalf("[backtest] settings: %v", err)
	}
	if err := settings.Validate(); err != nil {
		log.Fatalf("[backtest] settings: %v", err)
	}

	// Replay against a scratch store so entry records from the run never
	// touch the source database. Levels still come from the source.
	scratch := memory.New()
	levels := level.NewProvider(src, settings.SRLookbackDays, nil)
	tracker := entry.NewTracker(scratch, nil)

	battery := indicator.NewBattery(pair, settings.Periods)
	ls := levels.Levels(ctx, pair)
	magic := levels.MagicLine(ctx, pair.Symbol)

	tiers := map[model.Tier]int{}
	eventCounts := map[string]int{}
	var opened, closed int
	var totalProfit float64

	for _, c := range candles {
		battery.Update(c)
		sig := signal.Score(signal.Input{
			Snapshot:  battery.Snapshot(c),
			Levels:    ls,
			MagicLine: magic,
			Settings:  settings,
		})
		tiers[sig.Tier]++

		if *verbose && sig.Tier.IsBuyClass() {
			fmt.Printf("  [%s] %-9s score %5.1f/%.0f close %.2f\n",
				c.TS.Format("2006-01-02 15:04"), sig.Tier, sig.Total, sig.MaxScore, c.Close)
		}

		events, err := tracker.Process(ctx, sig, c, settings)
		if err != nil {
			log.Fatalf("[backtest] entry tracking: %v", err)
		}
		for _, ev := range events {
			eventCounts[ev.Type]++
			switch ev.Type {
			case entry.EventOpened:
				opened++
			case entry.EventTargetExit, entry.EventTrailingStop,
				entry.EventStopLoss, entry.EventSignalExit, entry.EventInvalidated:
				closed++
				if ev.Entry.FinalProfitPct.Valid {
					totalProfit += ev.Entry.FinalProfitPct.Val
				}
			}
		}
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles processed: %-16d ║\n", len(candles))
	fmt.Printf("║  Entries opened:    %-16d ║\n", opened)
	fmt.Printf("║  Entries closed:    %-16d ║\n", closed)
	if closed > 0 {
		fmt.Printf("║  Avg final profit:  %-15.2f%% ║\n", totalProfit/float64(closed))
	}
	fmt.Println("╚══════════════════════════════════════╝")

	fmt.Println("\nTier distribution:")
	for _, tier := range []model.Tier{
		model.TierABuy, model.TierBuy, model.TierEarlyBuy,
		model.TierWatch, model.TierCaution, model.TierSell,
	} {
		if n := tiers[tier]; n > 0 {
			fmt.Printf("  %-9s %6d\n", tier, n)
		}
	}
	if len(eventCounts) > 0 {
		fmt.Println("\nEntry events:")
		for _, ev := range []string{
			entry.EventOpened, entry.EventValidated, entry.EventExitStage,
			entry.EventTargetExit, entry.EventTrailingStop, entry.EventStopLoss,
			entry.EventSignalExit, entry.EventInvalidated, entry.EventRecovered,
		} {
			if n := eventCounts[ev]; n > 0 {
				fmt.Printf("  %-14s %6d\n", ev, n)
			}
		}
	}
}

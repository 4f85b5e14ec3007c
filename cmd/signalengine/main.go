package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signal-systemv1/config"
	"signal-systemv1/internal/api"
	"signal-systemv1/internal/entry"
	"signal-systemv1/internal/level"
	"signal-systemv1/internal/logger"
	"signal-systemv1/internal/markethours"
	"signal-systemv1/internal/metrics"
	"signal-systemv1/internal/model"
	"signal-systemv1/internal/notification"
	"signal-systemv1/internal/pipeline"
	"signal-systemv1/internal/source"
	"signal-systemv1/internal/store/memory"
	"signal-systemv1/internal/store/postgres"
	redisstore "signal-systemv1/internal/store/redis"
	sqlitestore "signal-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalengine] starting...")

	_ = godotenv.Load()

	cfg := config.Load()
	slogger := logger.Init("signal-engine", parseLevel(cfg.LogLevel))

	pairs := cfg.ParsePairs()
	if len(pairs) == 0 {
		log.Fatal("[signalengine] no valid pairs configured (PAIRS)")
	}
	log.Printf("[signalengine] tracking %d pairs, tick every %s", len(pairs), cfg.TickInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("[signalengine] shutdown signal received")
		cancel()
	}()

	// ---- Persistence ----
	st, db, err := openStore(cfg)
	if err != nil {
		log.Fatalf("[signalengine] store init: %v", err)
	}
	defer st.Close()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	if db != nil {
		health.StartLivenessChecker(ctx, db, 15*time.Second)
	}
	msrv := metrics.NewServer(cfg.MetricsAddr, health)
	msrv.Start()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		msrv.Stop(stopCtx)
	}()

	// ---- Redis publishing (optional) ----
	var pub model.Publisher
	if cfg.RedisAddr != "" {
		rp, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("[signalengine] redis init: %v", err)
		}
		cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			log.Printf("[signalengine] redis circuit %s -> %s", from, to)
			health.SetRedisOK(to == redisstore.StateClosed)
		}
		pub = redisstore.NewBufferedPublisher(rp, cb, 10000)
	}

	// ---- Notifications (optional) ----
	notifier := buildNotifier(cfg)
	if notifier != nil {
		pub = chainPublisher(pub, notifier)
	}
	if pub != nil {
		defer pub.Close()
	}

	// ---- Market data source ----
	var src model.CandleSource
	if cfg.WSURL != "" {
		stream := source.NewStream(source.StreamConfig{URL: cfg.WSURL})
		stream.OnConnect = func() { health.SetSourceOK(true) }
		stream.OnReconnect = func() { health.SetSourceOK(false) }
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				slogger.Error("stream stopped", "err", err)
			}
		}()
		src = stream
	} else {
		// Store-only mode: reprocess persisted candles, ingest nothing.
		log.Println("[signalengine] no WS_URL set, running store-only")
		src = source.NewReplay()
	}

	// ---- Pipeline ----
	levels := level.NewProvider(st, cfg.LevelLookbackDays, slogger)
	tracker := entry.NewTracker(st, slogger)
	orch := pipeline.New(pipeline.Config{
		Pairs:   pairs,
		Workers: cfg.Workers,
	}, st, src, levels, tracker, pub, prom, slogger)

	if err := orch.RecalculateLevels(ctx); err != nil {
		slogger.Warn("initial level calculation", "err", err)
	}

	// ---- Admin API ----
	admin := api.NewServer(st, levels, orch, slogger)
	adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: admin.Router()}
	go func() {
		log.Printf("[signalengine] admin API on %s", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[signalengine] admin API: %v", err)
		}
	}()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		adminSrv.Shutdown(stopCtx)
	}()

	// ---- Tick loop ----
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()
	levelTicker := time.NewTicker(24 * time.Hour)
	defer levelTicker.Stop()

	runOnce := func() {
		if cfg.MarketHoursOnly && !markethours.IsMarketOpen(time.Now()) {
			slogger.Debug("market closed, skipping tick",
				"status", markethours.StatusString(time.Now()))
			return
		}
		sum := orch.RunTick(ctx)
		health.RecordTick(sum.Started, tickError(sum))
	}
	runOnce()

	for {
		select {
		case <-ctx.Done():
			log.Println("[signalengine] stopped")
			return
		case <-levelTicker.C:
			if err := orch.RecalculateLevels(ctx); err != nil {
				slogger.Warn("level recalculation", "err", err)
			}
		case <-ticker.C:
			runOnce()
		}
	}
}

// openStore selects the persistence backend. Returns the sql.DB when one
// backs the store, for liveness probes.
func openStore(cfg *config.Config) (model.Store, *sql.DB, error) {
	switch cfg.StoreBackend {
	case "postgres":
		st, err := postgres.New(postgres.Config{DSN: cfg.PostgresDSN})
		if err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	case "memory":
		return memory.New(), nil, nil
	default:
		st, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, nil, err
		}
		return st, st.DB(), nil
	}
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	var backends []notification.Notifier
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(backends) == 0 {
		return nil
	}
	return notification.NewMulti(backends...)
}

func tickError(sum pipeline.TickSummary) error {
	if len(sum.PairsFailed) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(sum.PairsFailed))
	for _, f := range sum.PairsFailed {
		reasons = append(reasons, f.Pair.Key()+": "+f.Reason)
	}
	return &tickFailure{msg: strings.Join(reasons, "; ")}
}

type tickFailure struct{ msg string }

func (e *tickFailure) Error() string { return e.msg }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"alertbot-systemv1/config"
	"alertbot-systemv1/internal/bot"
	"alertbot-systemv1/internal/demand"
	"alertbot-systemv1/internal/evaluate"
	"alertbot-systemv1/internal/logger"
	"alertbot-systemv1/internal/metrics"
	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/internal/notify"
	"alertbot-systemv1/internal/pump"
	"alertbot-systemv1/internal/scheduler"
	"alertbot-systemv1/internal/snapshot"
	redisstore "alertbot-systemv1/internal/store/redis"
	sqlitestore "alertbot-systemv1/internal/store/sqlite"
	"alertbot-systemv1/pkg/hyperliquid"
	"alertbot-systemv1/pkg/telegram"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	logger.Init("alertbot", slog.LevelInfo)
	log.Println("[alertbot] starting...")

	cfg := config.Load()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[alertbot] sqlite init failed: %v", err)
	}
	defer store.Close()
	health.SetSQLiteOK(true)
	log.Println("[alertbot] sqlite store ready")

	// ---- Redis price mirror (optional) ----
	var mirror *redisstore.Mirror
	if cfg.RedisAddr != "" {
		health.SetRedisEnabled(true)
		mirror, err = redisstore.New(redisstore.MirrorConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[alertbot] WARNING: redis init failed: %v (continuing without redis)", err)
		} else {
			defer mirror.Close()
			log.Println("[alertbot] redis mirror ready")
		}
	}

	// ---- Periodic liveness checks ----
	if mirror != nil {
		health.StartLivenessChecker(ctx, mirror.Client(), store.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, store.DB(), 10*time.Second)
	}

	// ---- Telegram client ----
	tg, err := telegram.New(telegram.Config{Token: cfg.TelegramToken})
	if err != nil {
		log.Fatalf("[alertbot] telegram init failed: %v", err)
	}
	botID, err := tg.BotID()
	if err != nil {
		log.Fatalf("[alertbot] telegram token: %v", err)
	}
	health.SetTelegramOK(true)

	// ---- Notification fan-out & escalation ----
	notifier := notify.New(notify.NewTelegramSender(tg))
	notifier.OnSendError = prom.NotifyFailures.Inc
	notifier.OnBroadcastError = prom.BroadcastSendFails.Inc
	escalator := notify.NewEscalator(notifier, cfg.ModeratorChat)

	// ---- Market snapshot cache ----
	fetcher := snapshot.NewHyperliquidFetcher(hyperliquid.New(hyperliquid.Config{
		InfoURL: cfg.HyperliquidURL,
	}))
	fetcher.OnFetch = func(d time.Duration) { prom.FetchDur.Observe(d.Seconds()) }
	cache := snapshot.New(fetcher)

	// ---- Demand service ----
	counts := demand.NewCounts(cfg.AdminChat)
	demands := demand.NewService(store, counts)
	if err := demands.Reload(); err != nil {
		log.Fatalf("[alertbot] demand count reload failed: %v", err)
	}

	// ---- Evaluator & pump detector ----
	evaluator := evaluate.New(store, store, notifier, escalator)
	evaluator.OnNotify = prom.NotifiesSent.Inc
	evaluator.OnEvaluate = prom.DemandEvaluations.Inc

	detector := pump.New(store, notifier, escalator)
	detector.OnAlert = prom.PumpAlerts.Inc

	// ---- Scheduler ----
	sched := scheduler.New(cache, detector, evaluator, store, escalator)
	sched.OnTick = func() {
		prom.TicksTotal.Inc()
		health.SetLastTickTime(time.Now())
	}
	sched.OnTickDone = func(d time.Duration) { prom.TickDur.Observe(d.Seconds()) }
	sched.OnFetchFailure = prom.FetchFailures.Inc
	sched.OnHistoryRetry = prom.HistoryRetries.Inc
	if mirror != nil {
		sched.OnSnapshot = func(ctx context.Context, current model.TokenMap) {
			mirror.Write(ctx, current)
		}
	}

	// Prime the snapshot so /setalert validation works before the
	// first scheduled tick.
	if err := cache.Refresh(ctx); err != nil {
		log.Printf("[alertbot] WARNING: initial market fetch failed: %v", err)
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("[alertbot] scheduler start failed: %v", err)
	}

	// ---- Telegram command loop ----
	front := bot.New(tg, demands, cache, escalator, botID)
	go front.Run(ctx)

	log.Println("[alertbot] ready")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[alertbot] shutting down...")
	cancel()
	sched.Stop()
	notifier.Drain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[alertbot] stopped")
}

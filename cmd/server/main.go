package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wagerhouse/wager-engine/internal/api"
	"github.com/wagerhouse/wager-engine/internal/bingo"
	"github.com/wagerhouse/wager-engine/internal/blackjack"
	"github.com/wagerhouse/wager-engine/internal/config"
	"github.com/wagerhouse/wager-engine/internal/escrow"
	"github.com/wagerhouse/wager-engine/internal/events"
	"github.com/wagerhouse/wager-engine/internal/metrics"
	"github.com/wagerhouse/wager-engine/internal/oracle"
	"github.com/wagerhouse/wager-engine/internal/raffle"
	"github.com/wagerhouse/wager-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Escrow ledger ---
	ledger := escrow.NewLedger(escrow.LogSink{}, st)
	if err := ledger.Restore(context.Background()); err != nil {
		slog.Error("ledger restore failed", "err", err)
		os.Exit(1)
	}

	// --- Randomness oracle ---
	var adapter *oracle.Adapter
	if cfg.OracleMode == "local" {
		coord := oracle.NewLocalCoordinator(cfg.OracleDelay)
		adapter = oracle.NewAdapter(coord)
		coord.Bind(adapter)
		slog.Info("local randomness coordinator", "delay", cfg.OracleDelay)
	} else {
		adapter = oracle.NewAdapter(oracle.ExternalCoordinator{})
		slog.Info("awaiting external randomness fulfillments")
	}

	// --- Event hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Game engines ---
	lottery := raffle.NewEngine(raffle.Config{
		Operator:        cfg.OperatorAddress,
		PlatformAddress: cfg.PlatformAddress,
		CharityAddress:  cfg.CharityAddress,
		TicketPrice:     cfg.TicketPrice,
		MaxPerPlayer:    cfg.MaxTicketsPerPlayer,
	}, ledger, adapter, st, hub)

	duels := blackjack.NewEngine(blackjack.Config{
		Operator: cfg.OperatorAddress,
		MinBet:   cfg.MinBet,
		MaxBet:   cfg.MaxBet,
	}, ledger, adapter, hub)

	numberMatch := bingo.NewEngine(bingo.Config{
		Operator:  cfg.OperatorAddress,
		CardPrice: cfg.CardPrice,
	}, ledger, adapter, hub)

	// --- Scheduled jobs ---
	// Expired open rounds are closed on behalf of the operator so winner
	// selection does not depend on a player calling the end operation.
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		slog.Error("scheduler init failed", "err", err)
		os.Exit(1)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(15*time.Second),
		gocron.NewTask(func() {
			if !lottery.Expired() {
				return
			}
			if err := lottery.EndLottery(cfg.OperatorAddress); err != nil {
				slog.Warn("auto-close failed", "err", err)
			} else {
				slog.Info("expired lottery round auto-closed")
			}
		}),
	)
	if err != nil {
		slog.Error("auto-close job registration failed", "err", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer func() { _ = scheduler.Shutdown() }()

	// --- API server ---
	srv := &api.Server{
		Lottery:   lottery,
		Blackjack: duels,
		Bingo:     numberMatch,
		Escrow:    ledger,
		Oracle:    adapter,
		Hub:       hub,
		Store:     st,
		Operator:  cfg.OperatorAddress,
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"wager-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", srv.Routes())

	// --- Server ---
	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("wager-engine listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down wager-engine...")
	if err := httpSrv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("wager-engine stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/solstake/stake-engine/internal/engine"
	"github.com/solstake/stake-engine/internal/limits"
	"github.com/solstake/stake-engine/internal/metrics"
	"github.com/solstake/stake-engine/internal/protocol"
	"github.com/solstake/stake-engine/internal/store"
)

// envUint reads a base-unit integer from the environment, falling back
// to def when unset.
func envUint(key string, def uint64) uint64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		slog.Error("invalid value", "key", key, "value", raw, "err", err)
		os.Exit(1)
	}
	return v
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
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

	// --- Protocol state ---
	cfg := protocol.Config{
		LiquidityTarget: envUint("LIQUIDITY_TARGET", 100_000_000_000), // 100 tokens
		MinFeeBps:       uint32(envUint("MIN_FEE_BPS", 30)),
		MaxFeeBps:       uint32(envUint("MAX_FEE_BPS", 300)),
		Caps: limits.Caps{
			StakingCap:   envUint("STAKING_CAP", 0),
			LiquidityCap: envUint("LIQUIDITY_CAP", 0),
		},
	}

	state, err := protocol.NewState(cfg)
	if err != nil {
		slog.Error("invalid pool configuration", "err", err)
		os.Exit(1)
	}

	// Resume from a persisted snapshot if one exists.
	if snap, err := st.GetPoolState(context.Background()); err == nil {
		state.Pool = *snap
		slog.Info("resumed pool state",
			"reserve", snap.AvailableReserveBalance,
			"derivative_supply", snap.DerivativeSupply,
			"sol_leg", snap.LiqPool.SolLegBalance,
		)
	} else if !errors.Is(err, store.ErrNotFound) {
		slog.Error("loading pool state failed", "err", err)
		os.Exit(1)
	}

	// --- WebSocket hub ---
	wsHub := engine.NewWSHub()
	go wsHub.Run()

	// --- Engine service ---
	svc := engine.NewService(state, st, wsHub)

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
		w.Write([]byte(`{"status":"ok","service":"stake-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time pool updates.
		r.Get("/ws", wsHub.HandleWS)

		// Participant operations.
		r.Post("/deposit", svc.Deposit)
		r.Post("/unstake", svc.LiquidUnstake)
		r.Post("/liquidity/add", svc.AddLiquidity)
		r.Post("/liquidity/remove", svc.RemoveLiquidity)

		// External collaborator hooks.
		r.Post("/admin/rate", svc.AdvanceRate)
		r.Post("/admin/settle", svc.SettleWithdrawal)

		// Read API.
		r.Get("/pool", svc.GetPool)
		r.Get("/accounts/{participantID}", svc.GetAccount)
		r.Get("/accounts/{participantID}/history", svc.GetAccountHistory)
		r.Get("/operations", svc.ListOperations)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("stake-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	slog.Info("shutting down stake-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("stake-engine stopped")
}

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/mbetancur/convoca/internal/auth"
	"github.com/mbetancur/convoca/internal/cache"
	"github.com/mbetancur/convoca/internal/clock"
	"github.com/mbetancur/convoca/internal/config"
	"github.com/mbetancur/convoca/internal/db"
	"github.com/mbetancur/convoca/internal/domain/inscription"
	httpx "github.com/mbetancur/convoca/internal/http"
	"github.com/mbetancur/convoca/internal/http/middlewares"
	"github.com/mbetancur/convoca/internal/management"
	"github.com/mbetancur/convoca/internal/observability"
	"github.com/mbetancur/convoca/internal/registration"
	"github.com/mbetancur/convoca/internal/repo/postgres"
)

func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	log = slog.New(observability.NewTraceHandler(log.Handler()))
	slog.SetDefault(log)

	ctx := context.Background()

	// tracing
	shutdownTracer, err := observability.InitTracer(ctx, "convoca", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	// metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(promReg)

	// postgres
	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	// redis: shared rate-limit counters. Optional; the limiter falls
	// back to per-process counters when unreachable.
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable, rate limiting is per-process", "err", err)
			rdb = nil
		}
		cancel()
	}

	// repositories
	users := postgres.NewUsersRepo(pool, prom)
	events := postgres.NewEventsRepo(pool, prom)
	subevents := postgres.NewSubEventsRepo(pool, prom)
	inscriptions := postgres.NewInscriptionsRepo(pool, prom)
	roles := postgres.NewRolesRepo(pool, prom)

	clk := clock.Real{}

	engine := registration.NewEngine(users, events, subevents, inscriptions, clk, prom)
	guard := management.NewGuard(roles)
	svc := management.NewService(guard, users, events, subevents, roles, clk)

	jwt := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	authMw := middlewares.NewAuthMiddleware(jwt)
	limiter := middlewares.NewRateLimiter(rdb, cfg.RateLimitRPS, time.Second)

	router := httpx.NewRouter(httpx.Deps{
		Engine:     engine,
		Management: svc,
		Auth:       authMw,
		Limiter:    limiter,
		Prom:       prom,
		PromReg:    promReg,
		DB:         pool,
		StatsCache: cache.New[inscription.Stats](cfg.StatsCacheTTL),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

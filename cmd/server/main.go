package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"google.golang.org/grpc"

	"appointment-scheduler/internal/appointment"
	"appointment-scheduler/internal/config"
	"appointment-scheduler/internal/directory"
	"appointment-scheduler/internal/grpcweb"
	"appointment-scheduler/internal/handler"
	"appointment-scheduler/internal/metrics"
	"appointment-scheduler/internal/middleware"
	"appointment-scheduler/internal/rpc"
	"appointment-scheduler/internal/store"
	"appointment-scheduler/internal/web"
)

// engines idle this long are signed out
const engineIdle = 30 * time.Minute

// backend is the persistence both transports share.
type backend interface {
	handler.Store
	web.Backend
}

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// storage
	var st backend
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		st = store.NewMemory(cfg.PublicURL)
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		logger.Info("connected to postgres")

		pg := store.New(pool, cfg.PublicURL)
		// run migrations
		if applied, err := pg.Migrate(ctx, cfg.MigrationsPath); err != nil {
			logger.Warn("migration warning", "error", err)
		} else if applied {
			logger.Info("migration applied")
		} else {
			logger.Info("migration file not found, skipping", "path", cfg.MigrationsPath)
		}
		st = pg
	}

	// metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// display names, optionally shared through redis
	lookupOpts := []directory.LookupOption{directory.WithLogger(logger), directory.WithMissRecorder(m)}
	if cfg.RedisURL != "" {
		client, err := directory.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, names cached in process only", "error", err)
		} else {
			defer client.Close()
			lookupOpts = append(lookupOpts, directory.WithCache(directory.NewRedisCache(client, time.Hour)))
			logger.Info("name cache on redis")
		}
	}

	h := handler.New(st, cfg.JWTSecret,
		handler.WithLookup(directory.NewLookup(st, lookupOpts...)),
		handler.WithLogger(logger),
		handler.WithMetrics(m),
		handler.WithEngineOptions(
			appointment.WithLocation(loc),
			appointment.WithActionTimeout(cfg.ActionTimeout),
		),
	)

	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst,
		middleware.WithRateMetrics(m), middleware.WithRateLogger(logger))
	if err := rl.Start(); err != nil {
		return err
	}
	defer rl.Stop()

	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@every 5m", func() {
		if n := h.Engines().Evict(engineIdle); n > 0 {
			logger.Info("evicted idle sessions", "count", n)
		}
	}); err != nil {
		return err
	}
	housekeeping.Start()
	defer func() { <-housekeeping.Stop().Done() }()

	// grpc server
	srv := grpc.NewServer(
		grpc.ForceServerCodec(rpc.Codec{}),
		grpc.ChainUnaryInterceptor(
			middleware.RateLimit(rl),
			middleware.Auth(cfg.JWTSecret),
		),
	)
	rpc.RegisterScheduleServiceServer(srv, h)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}
	errc := make(chan error, 2)
	go func() {
		logger.Info("grpc listening", "port", cfg.GRPCPort)
		errc <- srv.Serve(lis)
	}()

	// rest, grpc-web, media and metrics on the web port
	bridge := grpcweb.New(h, middleware.Chain(middleware.RateLimit(rl), middleware.Auth(cfg.JWTSecret)), logger)
	ws := web.New(h, st, cfg.JWTSecret,
		web.WithRateLimiter(rl),
		web.WithBridge(bridge.Handler()),
		web.WithGatherer(reg),
		web.WithSecureCookies(strings.HasPrefix(cfg.PublicURL, "https://")),
		web.WithLogger(logger),
	)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.WebPort,
		Handler:           ws.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http listening", "port", cfg.WebPort, "public_url", cfg.PublicURL)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-ch:
	case err := <-errc:
		logger.Error("listener failed", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	srv.GracefulStop()
	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lulukarama/izmirdisestetigi/internal/config"
	"github.com/lulukarama/izmirdisestetigi/internal/handler"
	"github.com/lulukarama/izmirdisestetigi/internal/middleware"
	"github.com/lulukarama/izmirdisestetigi/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel).With("app", "server")
	ctx := context.Background()

	// database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}
	logger.Info("connected to postgres")

	hub, closeHub, err := config.OpenHub(cfg, pool, logger)
	if err != nil {
		log.Fatalf("realtime: %v", err)
	}
	defer closeHub()

	st := store.New(pool, hub, logger.With("component", "store"))
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	logger.Info("migration applied")

	// grpc health
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	go func() {
		logger.Info("grpc health listening", "port", cfg.GRPCPort)
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc", "err", err)
		}
	}()

	// public http
	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rl.Stop()

	e := echo.New()
	e.HideBanner = true
	handler.RegisterPublic(e, handler.NewPublic(st, st, st, logger.With("component", "http")), rl)

	go func() {
		logger.Info("http listening", "port", cfg.Port, "env", cfg.Env)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", "err", err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	logger.Info("shutting down")
	hs.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	srv.GracefulStop()
}

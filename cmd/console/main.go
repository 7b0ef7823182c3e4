package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/lulukarama/izmirdisestetigi/internal/admin"
	"github.com/lulukarama/izmirdisestetigi/internal/auth"
	"github.com/lulukarama/izmirdisestetigi/internal/config"
	"github.com/lulukarama/izmirdisestetigi/internal/handler"
	"github.com/lulukarama/izmirdisestetigi/internal/middleware"
	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
	"github.com/lulukarama/izmirdisestetigi/internal/store"
)

func main() {
	createAdmin := flag.String("create-admin", "", "create an operator account (email:password[:name]) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel).With("app", "console")
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	hub, closeHub, err := config.OpenHub(cfg, pool, logger)
	if err != nil {
		log.Fatalf("realtime: %v", err)
	}
	defer closeHub()

	st := store.New(pool, hub, logger.With("component", "store"))
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	if *createAdmin != "" {
		if err := addOperator(ctx, st, *createAdmin, cfg.BcryptCost); err != nil {
			log.Fatalf("create-admin: %v", err)
		}
		logger.Info("operator created")
		return
	}

	client := remote.NewLocal(st, hub, remote.NewFileTokenStore(cfg.SessionFile), remote.LocalConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}, logger.With("component", "remote"))

	console := admin.NewConsole(client, logger)
	defer console.Close()

	rl := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer rl.Stop()

	e := echo.New()
	e.HideBanner = true
	handler.RegisterConsole(e, handler.NewConsole(console, client, cfg.JWTSecret, logger.With("component", "http")), rl)

	go func() {
		logger.Info("console listening", "port", cfg.ConsolePort, "driver", cfg.RealtimeDriver)
		if err := e.Start(":" + cfg.ConsolePort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", "err", err)
		}
	}()

	// restore a previous session once the API is up; until then it answers 503
	go console.Start(ctx)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
}

func addOperator(ctx context.Context, st *store.Store, arg string, cost int) error {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) < 2 || parts[0] == "" || len(parts[1]) < 8 {
		return errors.New("want email:password[:name] with a password of at least 8 characters")
	}
	hash, err := auth.HashPassword(parts[1], cost)
	if err != nil {
		return err
	}
	u := &model.User{Email: strings.TrimSpace(parts[0]), PasswordHash: hash}
	if len(parts) == 3 {
		u.Name = parts[2]
	}
	return st.CreateUser(ctx, u)
}

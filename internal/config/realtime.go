package config

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
)

// OpenHub builds the change-feed hub named by REALTIME_DRIVER. The returned
// close func releases the hub and any client it opened.
func OpenHub(cfg Config, pool *pgxpool.Pool, log *slog.Logger) (realtime.Hub, func(), error) {
	var rdb *redis.Client
	if cfg.RealtimeDriver == "redis" {
		c, err := NewRedisClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		rdb = c
	}
	hub, err := realtime.Open(realtime.Options{
		Driver:  cfg.RealtimeDriver,
		Pool:    pool,
		Redis:   rdb,
		AMQPURL: cfg.AMQPURL,
		Log:     log.With("component", "realtime", "driver", cfg.RealtimeDriver),
	})
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, nil, err
	}
	// the redis hub owns rdb from here and closes it with itself
	return hub, func() {
		if err := hub.Close(); err != nil {
			log.Warn("close realtime hub", "err", err)
		}
	}, nil
}

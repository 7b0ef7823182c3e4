package realtime

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Driver  string
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	AMQPURL string
	Log     *slog.Logger
}

// Open returns the hub for opts.Driver. Drivers whose backing client is
// missing from opts are reported as errors rather than silently falling back.
func Open(opts Options) (Hub, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	switch opts.Driver {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		if opts.Pool == nil {
			return nil, fmt.Errorf("realtime postgres: no pool")
		}
		return NewPostgres(opts.Pool, log), nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("realtime redis: no client")
		}
		return NewRedis(opts.Redis, log), nil
	case "amqp":
		h, err := DialAMQP(opts.AMQPURL, log)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
}

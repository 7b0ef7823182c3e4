package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis fans events out with PUBLISH/SUBSCRIBE.
type Redis struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedis(rdb *redis.Client, log *slog.Logger) *Redis {
	return &Redis{rdb: rdb, log: log}
}

func (r *Redis) Publish(ctx context.Context, channel string, e Event) error {
	b, err := encode(e)
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, channel, b).Err()
}

func (r *Redis) Subscribe(ctx context.Context, channel string, scope Scope, h Handler) (Subscription, error) {
	ps := r.rdb.Subscribe(ctx, channel)
	// wait for the subscribe confirmation so failures surface here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	s := &redisSub{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for msg := range ps.Channel() {
			e, err := decode([]byte(msg.Payload))
			if err != nil {
				r.log.Warn("realtime bad payload", "channel", channel, "err", err)
				continue
			}
			if scope.Matches(e) {
				h(e)
			}
		}
	}()
	return s, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

type redisSub struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSub) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}

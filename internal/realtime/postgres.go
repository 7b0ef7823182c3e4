package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres uses LISTEN/NOTIFY. Every subscription takes a connection out of
// the pool for its lifetime and closes it on Unsubscribe.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewPostgres(pool *pgxpool.Pool, log *slog.Logger) *Postgres {
	return &Postgres{pool: pool, log: log}
}

func (p *Postgres) Publish(ctx context.Context, channel string, e Event) error {
	b, err := encode(e)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, channel, string(b))
	return err
}

func (p *Postgres) Subscribe(ctx context.Context, channel string, scope Scope, h Handler) (Subscription, error) {
	pc, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listener: %w", err)
	}
	conn := pc.Hijack()
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	s := &pgSub{conn: conn, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			n, err := conn.WaitForNotification(lctx)
			if err != nil {
				if lctx.Err() == nil {
					p.log.Warn("realtime listener stopped", "channel", channel, "err", err)
				}
				return
			}
			e, err := decode([]byte(n.Payload))
			if err != nil {
				p.log.Warn("realtime bad payload", "channel", channel, "err", err)
				continue
			}
			if scope.Matches(e) {
				h(e)
			}
		}
	}()
	return s, nil
}

func (p *Postgres) Close() error { return nil }

type pgSub struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *pgSub) Unsubscribe() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.err = s.conn.Close(ctx)
	})
	return s.err
}

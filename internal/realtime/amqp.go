package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP maps each channel onto a fanout exchange. Subscribers get an exclusive
// auto-deleted queue bound to it.
type AMQP struct {
	conn *amqp.Connection
	log  *slog.Logger

	mu  sync.Mutex
	pub *amqp.Channel
}

func DialAMQP(url string, log *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	return &AMQP{conn: conn, log: log}, nil
}

func declare(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	)
}

func (a *AMQP) Publish(ctx context.Context, channel string, e Event) error {
	b, err := encode(e)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pub == nil || a.pub.IsClosed() {
		ch, err := a.conn.Channel()
		if err != nil {
			return fmt.Errorf("channel open: %w", err)
		}
		a.pub = ch
	}
	if err := declare(a.pub, channel); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return a.pub.PublishWithContext(ctx, channel, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Body:        b,
	})
}

func (a *AMQP) Subscribe(_ context.Context, channel string, scope Scope, h Handler) (Subscription, error) {
	ch, err := a.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	fail := func(err error) (Subscription, error) {
		_ = ch.Close()
		return nil, err
	}
	if err := declare(ch, channel); err != nil {
		return fail(fmt.Errorf("exchange declare: %w", err))
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fail(fmt.Errorf("queue declare: %w", err))
	}
	if err := ch.QueueBind(q.Name, "", channel, false, nil); err != nil {
		return fail(fmt.Errorf("queue bind: %w", err))
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("queue consume: %w", err))
	}

	s := &amqpSub{ch: ch, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for d := range msgs {
			e, err := decode(d.Body)
			if err != nil {
				a.log.Warn("realtime bad payload", "channel", channel, "err", err)
				continue
			}
			if scope.Matches(e) {
				h(e)
			}
		}
	}()
	return s, nil
}

func (a *AMQP) Close() error {
	a.mu.Lock()
	if a.pub != nil {
		_ = a.pub.Close()
	}
	a.mu.Unlock()
	return a.conn.Close()
}

type amqpSub struct {
	ch   *amqp.Channel
	done chan struct{}
	once sync.Once
	err  error
}

func (s *amqpSub) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ch.Close()
		<-s.done
	})
	return s.err
}

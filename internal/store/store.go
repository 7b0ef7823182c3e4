package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrStatusConflict = errors.New("status changed concurrently")
	ErrSlugTaken      = errors.New("slug already in use")
)

// AppointmentsChannel is where appointment writes are announced.
const AppointmentsChannel = "appointments_changes"

//go:embed migrations/001_init.sql
var initSQL string

type Store struct {
	pool *pgxpool.Pool
	pub  realtime.Publisher
	log  *slog.Logger
}

// New wraps pool. pub may be nil, in which case writes are not announced.
func New(pool *pgxpool.Pool, pub realtime.Publisher, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, pub: pub, log: log}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, initSQL)
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// announce publishes a change on the appointments table. The record carries
// only the row id so the event stays far below the 8000 byte NOTIFY limit
// whatever the row holds. Failures are logged only: the write already
// committed.
func (s *Store) announce(ctx context.Context, op, id string) {
	if s.pub == nil {
		return
	}
	raw, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		s.log.Warn("announce marshal", "op", op, "err", err)
		return
	}
	ev := realtime.Event{Type: op, Schema: "public", Table: "appointments", Record: raw}
	if err := s.pub.Publish(ctx, AppointmentsChannel, ev); err != nil {
		s.log.Warn("announce publish", "op", op, "id", id, "err", err)
	}
}

// validID filters ids that postgres would reject as uuid input.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

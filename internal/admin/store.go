package admin

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/remote"
)

// Gate tells the store whether an operator is signed in.
type Gate interface {
	IsAuthenticated() bool
}

// Snapshot is one complete fetched view of the appointments table.
type Snapshot struct {
	Appointments []model.Appointment `json:"appointments"`
	FetchedAt    time.Time           `json:"fetched_at"`
	Version      uint64              `json:"version"`
}

// AppointmentStore owns the console's copy of the appointments table. The
// copy is only ever replaced wholesale by a fetch, never patched, so it is
// always exactly one remote result. Concurrent fetches are not ordered: the
// one that resolves last wins.
type AppointmentStore struct {
	remote remote.Appointments
	gate   Gate
	log    *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	rows      []model.Appointment
	fetchedAt time.Time
	version   uint64
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewAppointmentStore(r remote.Appointments, gate Gate, log *slog.Logger) *AppointmentStore {
	if log == nil {
		log = slog.Default()
	}
	return &AppointmentStore{
		remote:    r,
		gate:      gate,
		log:       log,
		now:       time.Now,
		listeners: make(map[int]func(Snapshot)),
	}
}

// FetchAll replaces the local rows with a full remote read, newest first.
// On failure the previous rows stay in place.
func (s *AppointmentStore) FetchAll(ctx context.Context) error {
	if !s.gate.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	rows, err := s.remote.ListAppointments(ctx)
	if err != nil {
		s.log.Warn("fetch appointments failed", "err", err)
		return &PersistenceError{Op: "fetch", Err: err}
	}

	fresh := make([]model.Appointment, len(rows))
	for i, a := range rows {
		fresh[i] = a.Clone()
	}
	slices.SortStableFunc(fresh, func(a, b model.Appointment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	s.mu.Lock()
	s.rows = fresh
	s.fetchedAt = s.now()
	s.version++
	snap := s.snapshotLocked()
	notify := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		notify = append(notify, fn)
	}
	s.mu.Unlock()

	s.log.Debug("appointments fetched", "count", len(fresh), "version", snap.Version)
	for _, fn := range notify {
		fn(snap)
	}
	return nil
}

// SetStatus confirms or cancels a pending appointment and then resyncs.
// Only pending rows may move; the remote write is conditional on the row
// still being pending, so a racing admin gets InvalidTransitionError rather
// than a silent overwrite.
func (s *AppointmentStore) SetStatus(ctx context.Context, id string, to model.Status) error {
	if !s.gate.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	if !to.Terminal() {
		return &InvalidTransitionError{ID: id, From: model.StatusPending, To: to}
	}
	if cur, ok := s.Get(id); ok && cur.Status.Terminal() {
		return &InvalidTransitionError{ID: id, From: cur.Status, To: to}
	}

	err := s.remote.UpdateAppointmentStatus(ctx, id, model.StatusPending, to)
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrStatusConflict):
		return &InvalidTransitionError{ID: id, To: to}
	default:
		s.log.Warn("update appointment failed", "id", id, "status", to, "err", err)
		return &PersistenceError{Op: "update", ID: id, Err: err}
	}

	s.log.Info("appointment status changed", "id", id, "status", to)
	return s.FetchAll(ctx)
}

// Snapshot returns a copy of the current rows.
func (s *AppointmentStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Get returns a copy of the row with id, if the last fetch had it.
func (s *AppointmentStore) Get(id string) (model.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.rows {
		if a.ID == id {
			return a.Clone(), true
		}
	}
	return model.Appointment{}, false
}

// OnChange calls fn with every snapshot produced after it is registered.
// fn runs on the goroutine that completed the fetch.
func (s *AppointmentStore) OnChange(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close drops every listener.
func (s *AppointmentStore) Close() {
	s.mu.Lock()
	s.listeners = make(map[int]func(Snapshot))
	s.mu.Unlock()
}

func (s *AppointmentStore) snapshotLocked() Snapshot {
	rows := make([]model.Appointment, len(s.rows))
	for i, a := range s.rows {
		rows[i] = a.Clone()
	}
	return Snapshot{Appointments: rows, FetchedAt: s.fetchedAt, Version: s.version}
}

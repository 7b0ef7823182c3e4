package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lulukarama/izmirdisestetigi/internal/model"
	"github.com/lulukarama/izmirdisestetigi/internal/realtime"
)

const appointmentCols = `id, full_name, email, phone, service, message, preferred_date, status, created_at`

func scanAppointment(row pgx.Row, a *model.Appointment) error {
	return row.Scan(&a.ID, &a.FullName, &a.Email, &a.Phone, &a.Service,
		&a.Message, &a.PreferredDate.Time, &a.Status, &a.CreatedAt)
}

// CreateAppointment records a booking request. New rows always start pending.
func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Status = model.StatusPending

	err := s.pool.QueryRow(ctx,
		`INSERT INTO appointments (id, full_name, email, phone, service, message, preferred_date, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at`,
		a.ID, a.FullName, a.Email, a.Phone, a.Service, a.Message, a.PreferredDate.Time, a.Status,
	).Scan(&a.CreatedAt)
	if err != nil {
		return err
	}
	s.announce(ctx, realtime.EventInsert, a.ID)
	return nil
}

// ListAppointments returns every appointment, newest first.
func (s *Store) ListAppointments(ctx context.Context) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appointmentCols+` FROM appointments ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		var a model.Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	a := &model.Appointment{}
	err := scanAppointment(s.pool.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id), a)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAppointmentStatus moves id from one status to another. The write only
// applies while the row still holds from; otherwise ErrStatusConflict, or
// ErrNotFound when the row does not exist.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, from, to model.Status) error {
	if !validID(id) {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetAppointment(ctx, id); err != nil {
			return err
		}
		return ErrStatusConflict
	}
	s.announce(ctx, realtime.EventUpdate, id)
	return nil
}

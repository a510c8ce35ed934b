package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"appointment-scheduler/internal/apperr"
	"appointment-scheduler/internal/model"
)

const appointmentCols = `id, title, description, date, time,
	scheduler_id, counterparty_id, status, audio_url, created_at`

func (s *Store) CreateAppointment(ctx context.Context, a *model.NewAppointment) (string, error) {
	id := uuid.New().String()
	status := a.Status
	if status == "" {
		status = model.StatusPending
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO appointments (id,title,description,date,time,scheduler_id,counterparty_id,status,audio_url,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, a.Title, a.Description, a.Date, a.Time,
		a.SchedulerID, a.CounterpartyID, string(status), a.AudioURL, created,
	)
	if err != nil {
		return "", writeErr("create appointment", err)
	}
	return id, nil
}

func (s *Store) ListByScheduler(ctx context.Context, principalID string) ([]model.Appointment, error) {
	return s.listWhere(ctx, "list by scheduler", "scheduler_id", principalID)
}

func (s *Store) ListByCounterparty(ctx context.Context, principalID string) ([]model.Appointment, error) {
	return s.listWhere(ctx, "list by counterparty", "counterparty_id", principalID)
}

// col is one of the two fixed party columns, never caller input.
func (s *Store) listWhere(ctx context.Context, op, col, principalID string) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+appointmentCols+`
		 FROM appointments
		 WHERE `+col+` = $1
		 ORDER BY date, time`, principalID,
	)
	if err != nil {
		return nil, readErr(op, err)
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		var a model.Appointment
		if err := scanAppointment(rows, &a); err != nil {
			return nil, readErr(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr(op, err)
	}
	return out, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a := &model.Appointment{}
	row := s.pool.QueryRow(ctx,
		`SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	if err := scanAppointment(row, a); err != nil {
		return nil, readErr("get appointment", err)
	}
	return a, nil
}

func (s *Store) SetStatus(ctx context.Context, id string, st model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2`, string(st), id)
	if err != nil {
		return writeErr("set status", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Write("set status", apperr.NotFound("appointment "+id))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner, a *model.Appointment) error {
	var status string
	if err := row.Scan(
		&a.ID, &a.Title, &a.Description, &a.Date, &a.Time,
		&a.SchedulerID, &a.CounterpartyID, &status, &a.AudioURL, &a.CreatedAt,
	); err != nil {
		return err
	}
	a.Status = model.Status(status)
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// AppointmentRepository handles citas data access
type AppointmentRepository struct {
	db *pgxpool.Pool
}

const appointmentSelect = `
	SELECT c.id, c.empresa_id, c.lead_id, c.assigned_to, c.titulo, c.notas, c.starts_at, c.ends_at, c.status, c.source,
	       c.reminder_sent_at, c.created_at, c.updated_at, l.nombre
	FROM citas c
	JOIN lead l ON l.id = c.lead_id`

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	a := &domain.Appointment{}
	err := row.Scan(&a.ID, &a.EmpresaID, &a.LeadID, &a.AssignedTo, &a.Title, &a.Notes, &a.StartsAt, &a.EndsAt, &a.Status, &a.Source,
		&a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt, &a.LeadName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]*domain.Appointment, error) {
	defer rows.Close()
	var out []*domain.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// List returns appointments starting in [from, to).
func (r *AppointmentRepository) List(ctx context.Context, empresaID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error) {
	rows, err := r.db.Query(ctx, appointmentSelect+`
		WHERE c.empresa_id = $1 AND c.starts_at >= $2 AND c.starts_at < $3
		ORDER BY c.starts_at
	`, empresaID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListByLead(ctx context.Context, empresaID, leadID uuid.UUID) ([]*domain.Appointment, error) {
	rows, err := r.db.Query(ctx, appointmentSelect+`
		WHERE c.empresa_id = $1 AND c.lead_id = $2 ORDER BY c.starts_at DESC
	`, empresaID, leadID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, appointmentSelect+` WHERE c.empresa_id = $1 AND c.id = $2`, empresaID, id))
}

func (r *AppointmentRepository) Create(ctx context.Context, a *domain.Appointment) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO citas (empresa_id, lead_id, assigned_to, titulo, notas, starts_at, ends_at, status, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, a.EmpresaID, a.LeadID, a.AssignedTo, a.Title, a.Notes, a.StartsAt, a.EndsAt, a.Status, a.Source,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE citas SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return err
}

func (r *AppointmentRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM citas WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

// DueForReminder returns open appointments starting in (now, until] that
// were not reminded yet.
func (r *AppointmentRepository) DueForReminder(ctx context.Context, now, until time.Time) ([]*domain.Appointment, error) {
	rows, err := r.db.Query(ctx, appointmentSelect+`
		WHERE c.status IN ('scheduled', 'confirmed') AND c.reminder_sent_at IS NULL
		  AND c.starts_at > $1 AND c.starts_at <= $2
		ORDER BY c.starts_at LIMIT 500
	`, now, until)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE citas SET reminder_sent_at = $1 WHERE id = $2`, at, id)
	return err
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// TaskRepository handles tareas data access
type TaskRepository struct {
	db *pgxpool.Pool
}

const taskSelect = `
	SELECT t.id, t.empresa_id, t.lead_id, t.assigned_to, t.titulo, t.descripcion, t.due_at, t.prioridad, t.status,
	       t.completed_at, t.reminder_sent_at, t.created_by, t.created_at, t.updated_at, l.nombre
	FROM tareas t
	LEFT JOIN lead l ON l.id = t.lead_id`

func scanTask(row pgx.Row) (*domain.Task, error) {
	t := &domain.Task{}
	err := row.Scan(&t.ID, &t.EmpresaID, &t.LeadID, &t.AssignedTo, &t.Title, &t.Description, &t.DueAt, &t.Priority, &t.Status,
		&t.CompletedAt, &t.ReminderSentAt, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.LeadName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func collectTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()
	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepository) List(ctx context.Context, empresaID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, error) {
	where := []string{"t.empresa_id = $1"}
	args := []interface{}{empresaID}
	if filter.LeadID != nil {
		args = append(args, *filter.LeadID)
		where = append(where, fmt.Sprintf("t.lead_id = $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		where = append(where, fmt.Sprintf("t.assigned_to = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("t.status = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit, filter.Offset)

	rows, err := r.db.Query(ctx, fmt.Sprintf(`%s WHERE %s ORDER BY t.due_at ASC NULLS LAST, t.created_at DESC LIMIT $%d OFFSET $%d`,
		taskSelect, strings.Join(where, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Task, error) {
	return scanTask(r.db.QueryRow(ctx, taskSelect+` WHERE t.empresa_id = $1 AND t.id = $2`, empresaID, id))
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO tareas (empresa_id, lead_id, assigned_to, titulo, descripcion, due_at, prioridad, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, t.EmpresaID, t.LeadID, t.AssignedTo, t.Title, t.Description, t.DueAt, t.Priority, t.Status, t.CreatedBy,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// Update rewrites the editable fields; a changed due date re-arms the reminder.
func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	return r.db.QueryRow(ctx, `
		UPDATE tareas SET lead_id = $1, assigned_to = $2, titulo = $3, descripcion = $4, prioridad = $5,
			reminder_sent_at = CASE WHEN due_at IS DISTINCT FROM $6 THEN NULL ELSE reminder_sent_at END,
			due_at = $6, updated_at = NOW()
		WHERE id = $7 AND empresa_id = $8
		RETURNING reminder_sent_at, updated_at
	`, t.LeadID, t.AssignedTo, t.Title, t.Description, t.Priority, t.DueAt, t.ID, t.EmpresaID).Scan(&t.ReminderSentAt, &t.UpdatedAt)
}

func (r *TaskRepository) SetStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE tareas SET status = $1, completed_at = $2, updated_at = NOW() WHERE id = $3
	`, status, completedAt, id)
	return err
}

func (r *TaskRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tareas WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

// DueForReminder returns pending, not yet reminded tasks due before until.
func (r *TaskRepository) DueForReminder(ctx context.Context, until time.Time) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, taskSelect+`
		WHERE t.status = 'pending' AND t.reminder_sent_at IS NULL AND t.due_at IS NOT NULL AND t.due_at <= $1
		ORDER BY t.due_at LIMIT 500
	`, until)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (r *TaskRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE tareas SET reminder_sent_at = $1 WHERE id = $2`, at, id)
	return err
}

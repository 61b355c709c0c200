package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
	"github.com/shopspring/decimal"
)

// AnalyticsRepository runs the dashboard aggregate queries
type AnalyticsRepository struct {
	db *pgxpool.Pool
}

// CountLeads counts all leads and those created since the given time.
func (r *AnalyticsRepository) CountLeads(ctx context.Context, empresaID uuid.UUID, since time.Time) (total, recent int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE created_at >= $2) FROM lead WHERE empresa_id = $1
	`, empresaID, since).Scan(&total, &recent)
	return total, recent, err
}

// LeadsByStage groups the pipeline's leads per stage, empty stages included.
func (r *AnalyticsRepository) LeadsByStage(ctx context.Context, empresaID, pipelineID uuid.UUID) ([]*domain.StageCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.nombre, s.color, s.posicion, COUNT(l.id), COALESCE(SUM(l.valor), 0)
		FROM etapas s
		JOIN pipeline p ON p.id = s.pipeline_id
		LEFT JOIN lead l ON l.etapa_id = s.id
		WHERE p.empresa_id = $1 AND p.id = $2
		GROUP BY s.id, s.nombre, s.color, s.posicion
		ORDER BY s.posicion
	`, empresaID, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.StageCount
	for rows.Next() {
		sc := &domain.StageCount{}
		if err := rows.Scan(&sc.StageID, &sc.Name, &sc.Color, &sc.Position, &sc.Count, &sc.Value); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// PipelineValue sums the value of open leads and of leads in a won stage.
func (r *AnalyticsRepository) PipelineValue(ctx context.Context, empresaID uuid.UUID) (open, won decimal.Decimal, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.valor) FILTER (WHERE NOT COALESCE(s.is_won, FALSE) AND NOT COALESCE(s.is_lost, FALSE)), 0),
		       COALESCE(SUM(l.valor) FILTER (WHERE s.is_won), 0)
		FROM lead l LEFT JOIN etapas s ON s.id = l.etapa_id
		WHERE l.empresa_id = $1
	`, empresaID).Scan(&open, &won)
	return open, won, err
}

func (r *AnalyticsRepository) CountMessages(ctx context.Context, empresaID uuid.UUID, since time.Time) (inbound, outbound int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE sender = 'lead'), COUNT(*) FILTER (WHERE sender = 'team')
		FROM mensajes WHERE empresa_id = $1 AND created_at >= $2
	`, empresaID, since).Scan(&inbound, &outbound)
	return inbound, outbound, err
}

func (r *AnalyticsRepository) CountTasks(ctx context.Context, empresaID uuid.UUID, now time.Time) (pending, overdue int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE due_at IS NOT NULL AND due_at < $2)
		FROM tareas WHERE empresa_id = $1 AND status = 'pending'
	`, empresaID, now).Scan(&pending, &overdue)
	return pending, overdue, err
}

func (r *AnalyticsRepository) CountUpcomingAppointments(ctx context.Context, empresaID uuid.UUID, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM citas
		WHERE empresa_id = $1 AND starts_at >= $2 AND status IN ('scheduled', 'confirmed')
	`, empresaID, now).Scan(&n)
	return n, err
}

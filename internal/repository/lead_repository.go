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

// LeadRepository handles lead data access
type LeadRepository struct {
	db *pgxpool.Pool
}

const leadSelect = `
	SELECT l.id, l.empresa_id, l.pipeline_id, l.etapa_id, l.nombre, l.telefono, l.email, l.chat_id, l.channel,
	       l.source, l.notas, l.valor, l.assigned_to, l.instancia_id, l.last_message_at, l.created_at, l.updated_at,
	       s.nombre, s.color
	FROM lead l
	LEFT JOIN etapas s ON s.id = l.etapa_id`

func scanLead(row pgx.Row) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := row.Scan(
		&l.ID, &l.EmpresaID, &l.PipelineID, &l.StageID, &l.Name, &l.Phone, &l.Email, &l.ChatID, &l.Channel,
		&l.Source, &l.Notes, &l.Value, &l.AssignedTo, &l.PreferredInstanceID, &l.LastMessageAt, &l.CreatedAt, &l.UpdatedAt,
		&l.StageName, &l.StageColor,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (r *LeadRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, leadSelect+` WHERE l.empresa_id = $1 AND l.id = $2`, empresaID, id))
	if err != nil || lead == nil {
		return lead, err
	}
	if err := r.attachTags(ctx, []*domain.Lead{lead}); err != nil {
		return nil, err
	}
	return lead, nil
}

// List returns a page of leads plus the total count for the filter.
func (r *LeadRepository) List(ctx context.Context, empresaID uuid.UUID, filter domain.LeadFilter) ([]*domain.Lead, int, error) {
	where := []string{"l.empresa_id = $1"}
	args := []interface{}{empresaID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.PipelineID != nil {
		add("l.pipeline_id = $%d", *filter.PipelineID)
	}
	if filter.StageID != nil {
		add("l.etapa_id = $%d", *filter.StageID)
	}
	if filter.AssignedTo != nil {
		add("l.assigned_to = $%d", *filter.AssignedTo)
	}
	if filter.TagID != nil {
		add("EXISTS (SELECT 1 FROM lead_etiquetas lt WHERE lt.lead_id = l.id AND lt.etiqueta_id = $%d)", *filter.TagID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+s+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(l.nombre ILIKE $%d OR l.telefono ILIKE $%d OR l.email ILIKE $%d)", n, n, n))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM lead l WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY COALESCE(l.last_message_at, l.created_at) DESC LIMIT $%d OFFSET $%d`,
		leadSelect, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	var leads []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			rows.Close()
			return nil, 0, err
		}
		leads = append(leads, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachTags(ctx, leads); err != nil {
		return nil, 0, err
	}
	return leads, total, nil
}

func (r *LeadRepository) attachTags(ctx context.Context, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(leads))
	byID := make(map[uuid.UUID]*domain.Lead, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
		byID[l.ID] = l
	}

	rows, err := r.db.Query(ctx, `
		SELECT lt.lead_id, e.id, e.empresa_id, e.nombre, e.color, e.created_at
		FROM lead_etiquetas lt JOIN etiquetas e ON e.id = lt.etiqueta_id
		WHERE lt.lead_id = ANY($1)
		ORDER BY e.nombre
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var leadID uuid.UUID
		t := &domain.Tag{}
		if err := rows.Scan(&leadID, &t.ID, &t.EmpresaID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return err
		}
		if l := byID[leadID]; l != nil {
			l.Tags = append(l.Tags, t)
		}
	}
	return rows.Err()
}

func (r *LeadRepository) Create(ctx context.Context, l *domain.Lead) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO lead (empresa_id, pipeline_id, etapa_id, nombre, telefono, email, chat_id, channel, source, notas, valor, assigned_to, instancia_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`, l.EmpresaID, l.PipelineID, l.StageID, l.Name, l.Phone, l.Email, l.ChatID, l.Channel, l.Source, l.Notes,
		l.Value, l.AssignedTo, l.PreferredInstanceID,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

// Update writes the editable fields. Stage, assignee and instance have
// their own methods.
func (r *LeadRepository) Update(ctx context.Context, l *domain.Lead) error {
	return r.db.QueryRow(ctx, `
		UPDATE lead SET nombre = $1, telefono = $2, email = $3, chat_id = $4, channel = $5, source = $6,
			notas = $7, valor = $8, updated_at = NOW()
		WHERE id = $9 AND empresa_id = $10
		RETURNING updated_at
	`, l.Name, l.Phone, l.Email, l.ChatID, l.Channel, l.Source, l.Notes, l.Value, l.ID, l.EmpresaID).Scan(&l.UpdatedAt)
}

func (r *LeadRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM lead WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

// MoveStage sets the lead's single stage and the pipeline it belongs to.
func (r *LeadRepository) MoveStage(ctx context.Context, id, pipelineID, stageID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE lead SET pipeline_id = $1, etapa_id = $2, updated_at = NOW() WHERE id = $3
	`, pipelineID, stageID, id)
	return err
}

func (r *LeadRepository) Assign(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE lead SET assigned_to = $1, updated_at = NOW() WHERE id = $2`, userID, id)
	return err
}

func (r *LeadRepository) SetPreferredInstance(ctx context.Context, id, instanceID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE lead SET instancia_id = $1, updated_at = NOW() WHERE id = $2`, instanceID, id)
	return err
}

func (r *LeadRepository) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE lead SET last_message_at = GREATEST(COALESCE(last_message_at, $1), $1), updated_at = NOW() WHERE id = $2
	`, at, id)
	return err
}

// FindByPhone returns the most recently updated lead whose phone contains the
// normalized digits. A nil empresaID searches every empresa.
func (r *LeadRepository) FindByPhone(ctx context.Context, empresaID *uuid.UUID, digits string) (*domain.Lead, error) {
	if digits == "" {
		return nil, nil
	}
	pattern := "%" + digits + "%"
	if empresaID != nil {
		return scanLead(r.db.QueryRow(ctx, leadSelect+`
			WHERE l.empresa_id = $1 AND regexp_replace(COALESCE(l.telefono, ''), '\D', '', 'g') ILIKE $2
			ORDER BY l.updated_at DESC LIMIT 1
		`, *empresaID, pattern))
	}
	return scanLead(r.db.QueryRow(ctx, leadSelect+`
		WHERE regexp_replace(COALESCE(l.telefono, ''), '\D', '', 'g') ILIKE $1
		ORDER BY l.updated_at DESC LIMIT 1
	`, pattern))
}

func (r *LeadRepository) AddTag(ctx context.Context, leadID, tagID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO lead_etiquetas (lead_id, etiqueta_id) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, leadID, tagID)
	return err
}

func (r *LeadRepository) RemoveTag(ctx context.Context, leadID, tagID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM lead_etiquetas WHERE lead_id = $1 AND etiqueta_id = $2`, leadID, tagID)
	return err
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// MessageRepository handles mensajes data access
type MessageRepository struct {
	db *pgxpool.Pool
}

const messageColumns = `id, empresa_id, lead_id, sender, contenido, channel, media_url, media_type, external_id, metadata, user_id, status, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(&m.ID, &m.EmpresaID, &m.LeadID, &m.Sender, &m.Content, &m.Channel, &m.MediaURL, &m.MediaType,
		&m.ExternalID, &m.Metadata, &m.UserID, &m.Status, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) Create(ctx context.Context, m *domain.Message) error {
	if m.Metadata == nil {
		m.Metadata = map[string]interface{}{}
	}
	if m.Status == "" {
		m.Status = "sent"
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO mensajes (empresa_id, lead_id, sender, contenido, channel, media_url, media_type, external_id, metadata, user_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`, m.EmpresaID, m.LeadID, m.Sender, m.Content, m.Channel, m.MediaURL, m.MediaType, m.ExternalID, m.Metadata, m.UserID, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *MessageRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM mensajes WHERE empresa_id = $1 AND id = $2`, empresaID, id))
}

// LastInbound returns the newest message the lead sent.
func (r *MessageRepository) LastInbound(ctx context.Context, leadID uuid.UUID) (*domain.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM mensajes
		WHERE lead_id = $1 AND sender = $2
		ORDER BY created_at DESC LIMIT 1
	`, leadID, domain.SenderLead))
}

// ListByLead pages backwards from before (exclusive), newest first.
func (r *MessageRepository) ListByLead(ctx context.Context, leadID uuid.UUID, limit int, before *time.Time) ([]*domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+` FROM mensajes
		WHERE lead_id = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC LIMIT $3
	`, leadID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

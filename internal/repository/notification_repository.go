package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// NotificationRepository handles notificaciones data access
type NotificationRepository struct {
	db *pgxpool.Pool
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO notificaciones (empresa_id, user_id, tipo, titulo, cuerpo, entity_type, entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_read, created_at
	`, n.EmpresaID, n.UserID, n.Type, n.Title, n.Body, n.EntityType, n.EntityID).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

// List returns the user's notifications plus the empresa-wide ones (user_id NULL).
func (r *NotificationRepository) List(ctx context.Context, empresaID, userID uuid.UUID, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, empresa_id, user_id, tipo, titulo, cuerpo, entity_type, entity_id, is_read, created_at
		FROM notificaciones
		WHERE empresa_id = $1 AND (user_id = $2 OR user_id IS NULL) AND (NOT $3 OR is_read = FALSE)
		ORDER BY created_at DESC LIMIT $4
	`, empresaID, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.ID, &n.EmpresaID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.EntityType, &n.EntityID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) CountUnread(ctx context.Context, empresaID, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM notificaciones
		WHERE empresa_id = $1 AND (user_id = $2 OR user_id IS NULL) AND is_read = FALSE
	`, empresaID, userID).Scan(&n)
	return n, err
}

// MarkRead reports false when no visible notification had that id.
func (r *NotificationRepository) MarkRead(ctx context.Context, empresaID, userID, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notificaciones SET is_read = TRUE
		WHERE id = $1 AND empresa_id = $2 AND (user_id = $3 OR user_id IS NULL)
	`, id, empresaID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, empresaID, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notificaciones SET is_read = TRUE
		WHERE empresa_id = $1 AND (user_id = $2 OR user_id IS NULL) AND is_read = FALSE
	`, empresaID, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// InvitationRepository handles equipo_invitaciones data access
type InvitationRepository struct {
	db *pgxpool.Pool
}

const invitationSelect = `
	SELECT i.id, i.empresa_id, i.email, i.nombre, i.role, i.token, i.status, i.invited_by,
	       i.expires_at, i.accepted_at, i.created_at, e.nombre
	FROM equipo_invitaciones i
	JOIN empresa e ON e.id = i.empresa_id`

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	err := row.Scan(&inv.ID, &inv.EmpresaID, &inv.Email, &inv.Name, &inv.Role, &inv.Token, &inv.Status,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt, &inv.EmpresaName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetPending returns the pending, unexpired invitation for the email.
func (r *InvitationRepository) GetPending(ctx context.Context, empresaID uuid.UUID, email string) (*domain.Invitation, error) {
	return scanInvitation(r.db.QueryRow(ctx, invitationSelect+`
		WHERE i.empresa_id = $1 AND lower(i.email) = lower($2) AND i.status = 'pending' AND i.expires_at > NOW()
	`, empresaID, strings.TrimSpace(email)))
}

// ExpireStaleFor flips a lapsed pending invitation for the email so the
// partial unique index admits a new one before the sweeper gets to it.
func (r *InvitationRepository) ExpireStaleFor(ctx context.Context, empresaID uuid.UUID, email string, now time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE equipo_invitaciones SET status = 'expired'
		WHERE empresa_id = $1 AND lower(email) = lower($2) AND status = 'pending' AND expires_at <= $3
	`, empresaID, strings.TrimSpace(email), now)
	return err
}

// Create inserts a pending invitation. A concurrent pending invitation for
// the same email trips the partial unique index and yields ErrDuplicate.
func (r *InvitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	if inv.Status == "" {
		inv.Status = domain.InvitationPending
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO equipo_invitaciones (empresa_id, email, nombre, role, token, status, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, inv.EmpresaID, strings.ToLower(strings.TrimSpace(inv.Email)), inv.Name, inv.Role, inv.Token, inv.Status,
		inv.InvitedBy, inv.ExpiresAt).Scan(&inv.ID, &inv.CreatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (r *InvitationRepository) GetByID(ctx context.Context, empresaID, id uuid.UUID) (*domain.Invitation, error) {
	return scanInvitation(r.db.QueryRow(ctx, invitationSelect+` WHERE i.empresa_id = $1 AND i.id = $2`, empresaID, id))
}

func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*domain.Invitation, error) {
	return scanInvitation(r.db.QueryRow(ctx, invitationSelect+` WHERE i.token = $1`, token))
}

func (r *InvitationRepository) ListPending(ctx context.Context, empresaID uuid.UUID) ([]*domain.Invitation, error) {
	rows, err := r.db.Query(ctx, invitationSelect+`
		WHERE i.empresa_id = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC
	`, empresaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *InvitationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.db.Exec(ctx, `UPDATE equipo_invitaciones SET status = $1 WHERE id = $2`, status, id)
	return err
}

// Renew gives a pending invitation a fresh expiry, used when resending.
func (r *InvitationRepository) Renew(ctx context.Context, id uuid.UUID, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE equipo_invitaciones SET expires_at = $1 WHERE id = $2 AND status = 'pending'`, expiresAt, id)
	return err
}

// Accept adds the membership and marks the invitation accepted atomically.
func (r *InvitationRepository) Accept(ctx context.Context, inv *domain.Invitation, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO empresa_miembros (empresa_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (empresa_id, user_id) DO NOTHING
	`, inv.EmpresaID, userID, inv.Role); err != nil {
		return err
	}
	if err := tx.QueryRow(ctx, `
		UPDATE equipo_invitaciones SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1
		RETURNING status, accepted_at
	`, inv.ID).Scan(&inv.Status, &inv.AcceptedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ExpireStale flips pending invitations past their expiry to expired.
func (r *InvitationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE equipo_invitaciones SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// InstanceRepository handles instancias data access
type InstanceRepository struct {
	db *pgxpool.Pool
}

const instanceColumns = `id, empresa_id, nombre, channel, client_id, api_token, phone_number, is_active, created_at, updated_at`

func scanInstance(row pgx.Row) (*domain.Instance, error) {
	i := &domain.Instance{}
	err := row.Scan(&i.ID, &i.EmpresaID, &i.Name, &i.Channel, &i.ClientID, &i.APIToken, &i.PhoneNumber, &i.IsActive, &i.CreatedAt, &i.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return i, nil
}

func collectInstances(rows pgx.Rows) ([]*domain.Instance, error) {
	defer rows.Close()
	var out []*domain.Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Get looks an instance up by id without tenant scoping; callers check
// EmpresaID themselves.
func (r *InstanceRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	return scanInstance(r.db.QueryRow(ctx, `SELECT `+instanceColumns+` FROM instancias WHERE id = $1`, id))
}

// FindByClient resolves the gateway client id of a webhook to its instance.
func (r *InstanceRepository) FindByClient(ctx context.Context, clientID string) (*domain.Instance, error) {
	return scanInstance(r.db.QueryRow(ctx, `
		SELECT `+instanceColumns+` FROM instancias WHERE client_id = $1
		ORDER BY is_active DESC, created_at LIMIT 1
	`, clientID))
}

// ListActive returns the empresa's active instances for a channel, oldest first.
func (r *InstanceRepository) ListActive(ctx context.Context, empresaID uuid.UUID, channel string) ([]*domain.Instance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+instanceColumns+` FROM instancias
		WHERE empresa_id = $1 AND channel = $2 AND is_active = TRUE
		ORDER BY created_at
	`, empresaID, channel)
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

func (r *InstanceRepository) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Instance, error) {
	rows, err := r.db.Query(ctx, `SELECT `+instanceColumns+` FROM instancias WHERE empresa_id = $1 ORDER BY created_at`, empresaID)
	if err != nil {
		return nil, err
	}
	return collectInstances(rows)
}

func (r *InstanceRepository) Create(ctx context.Context, i *domain.Instance) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO instancias (empresa_id, nombre, channel, client_id, api_token, phone_number, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, i.EmpresaID, i.Name, i.Channel, i.ClientID, i.APIToken, i.PhoneNumber, i.IsActive).Scan(&i.ID, &i.CreatedAt, &i.UpdatedAt)
}

// Update keeps the stored token when i.APIToken is empty.
func (r *InstanceRepository) Update(ctx context.Context, i *domain.Instance) error {
	return r.db.QueryRow(ctx, `
		UPDATE instancias SET nombre = $1, channel = $2, client_id = $3,
			api_token = COALESCE(NULLIF($4, ''), api_token), phone_number = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7 AND empresa_id = $8
		RETURNING updated_at
	`, i.Name, i.Channel, i.ClientID, i.APIToken, i.PhoneNumber, i.IsActive, i.ID, i.EmpresaID).Scan(&i.UpdatedAt)
}

func (r *InstanceRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM instancias WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

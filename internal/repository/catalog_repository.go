package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// TagRepository handles etiquetas data access
type TagRepository struct {
	db *pgxpool.Pool
}

func (r *TagRepository) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Tag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, empresa_id, nombre, color, created_at FROM etiquetas WHERE empresa_id = $1 ORDER BY nombre
	`, empresaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []*domain.Tag
	for rows.Next() {
		t := &domain.Tag{}
		if err := rows.Scan(&t.ID, &t.EmpresaID, &t.Name, &t.Color, &t.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *TagRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Tag, error) {
	t := &domain.Tag{}
	err := r.db.QueryRow(ctx, `
		SELECT id, empresa_id, nombre, color, created_at FROM etiquetas WHERE empresa_id = $1 AND id = $2
	`, empresaID, id).Scan(&t.ID, &t.EmpresaID, &t.Name, &t.Color, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TagRepository) Create(ctx context.Context, t *domain.Tag) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO etiquetas (empresa_id, nombre, color) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, t.EmpresaID, t.Name, t.Color).Scan(&t.ID, &t.CreatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (r *TagRepository) Update(ctx context.Context, t *domain.Tag) error {
	_, err := r.db.Exec(ctx, `UPDATE etiquetas SET nombre = $1, color = $2 WHERE id = $3 AND empresa_id = $4`,
		t.Name, t.Color, t.ID, t.EmpresaID)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

func (r *TagRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM etiquetas WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

// CatalogRepository handles catalogo_items data access
type CatalogRepository struct {
	db *pgxpool.Pool
}

const catalogColumns = `id, empresa_id, nombre, descripcion, sku, precio, moneda, is_active, created_at, updated_at`

func scanCatalogItem(row pgx.Row) (*domain.CatalogItem, error) {
	c := &domain.CatalogItem{}
	err := row.Scan(&c.ID, &c.EmpresaID, &c.Name, &c.Description, &c.SKU, &c.Price, &c.Currency, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CatalogRepository) List(ctx context.Context, empresaID uuid.UUID, activeOnly bool) ([]*domain.CatalogItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+catalogColumns+` FROM catalogo_items
		WHERE empresa_id = $1 AND (NOT $2 OR is_active)
		ORDER BY nombre
	`, empresaID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.CatalogItem
	for rows.Next() {
		c, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *CatalogRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.CatalogItem, error) {
	return scanCatalogItem(r.db.QueryRow(ctx, `SELECT `+catalogColumns+` FROM catalogo_items WHERE empresa_id = $1 AND id = $2`, empresaID, id))
}

func (r *CatalogRepository) Create(ctx context.Context, c *domain.CatalogItem) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO catalogo_items (empresa_id, nombre, descripcion, sku, precio, moneda, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, c.EmpresaID, c.Name, c.Description, c.SKU, c.Price, c.Currency, c.IsActive).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *CatalogRepository) Update(ctx context.Context, c *domain.CatalogItem) error {
	return r.db.QueryRow(ctx, `
		UPDATE catalogo_items SET nombre = $1, descripcion = $2, sku = $3, precio = $4, moneda = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7 AND empresa_id = $8
		RETURNING updated_at
	`, c.Name, c.Description, c.SKU, c.Price, c.Currency, c.IsActive, c.ID, c.EmpresaID).Scan(&c.UpdatedAt)
}

func (r *CatalogRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM catalogo_items WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

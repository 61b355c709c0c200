package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

// PipelineRepository handles pipeline and etapas data access
type PipelineRepository struct {
	db *pgxpool.Pool
}

func (r *PipelineRepository) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Pipeline, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, empresa_id, nombre, descripcion, is_default, created_at, updated_at
		FROM pipeline WHERE empresa_id = $1 ORDER BY is_default DESC, created_at
	`, empresaID)
	if err != nil {
		return nil, err
	}

	var pipelines []*domain.Pipeline
	for rows.Next() {
		p := &domain.Pipeline{}
		if err := rows.Scan(&p.ID, &p.EmpresaID, &p.Name, &p.Description, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range pipelines {
		stages, err := r.GetStages(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to get stages for pipeline %s: %w", p.ID, err)
		}
		p.Stages = stages
	}
	return pipelines, nil
}

func (r *PipelineRepository) GetStages(ctx context.Context, pipelineID uuid.UUID) ([]*domain.Stage, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, pipeline_id, nombre, color, posicion, is_won, is_lost, created_at
		FROM etapas WHERE pipeline_id = $1 ORDER BY posicion
	`, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*domain.Stage
	for rows.Next() {
		s := &domain.Stage{}
		if err := rows.Scan(&s.ID, &s.PipelineID, &s.Name, &s.Color, &s.Position, &s.IsWon, &s.IsLost, &s.CreatedAt); err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, rows.Err()
}

func (r *PipelineRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.Pipeline, error) {
	p := &domain.Pipeline{}
	err := r.db.QueryRow(ctx, query, args...).Scan(&p.ID, &p.EmpresaID, &p.Name, &p.Description, &p.IsDefault, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stages, err := r.GetStages(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Stages = stages
	return p, nil
}

func (r *PipelineRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Pipeline, error) {
	return r.getOne(ctx, `
		SELECT id, empresa_id, nombre, descripcion, is_default, created_at, updated_at
		FROM pipeline WHERE empresa_id = $1 AND id = $2
	`, empresaID, id)
}

// GetDefault returns the default pipeline, falling back to the oldest one.
func (r *PipelineRepository) GetDefault(ctx context.Context, empresaID uuid.UUID) (*domain.Pipeline, error) {
	return r.getOne(ctx, `
		SELECT id, empresa_id, nombre, descripcion, is_default, created_at, updated_at
		FROM pipeline WHERE empresa_id = $1
		ORDER BY is_default DESC, created_at LIMIT 1
	`, empresaID)
}

func insertPipeline(ctx context.Context, tx pgx.Tx, p *domain.Pipeline) error {
	if p.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE pipeline SET is_default = FALSE WHERE empresa_id = $1`, p.EmpresaID); err != nil {
			return err
		}
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO pipeline (empresa_id, nombre, descripcion, is_default)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, p.EmpresaID, p.Name, p.Description, p.IsDefault).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	for i, s := range p.Stages {
		s.PipelineID = p.ID
		s.Position = i
		if err := tx.QueryRow(ctx, `
			INSERT INTO etapas (pipeline_id, nombre, color, posicion, is_won, is_lost)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, s.PipelineID, s.Name, s.Color, s.Position, s.IsWon, s.IsLost).Scan(&s.ID, &s.CreatedAt); err != nil {
			return fmt.Errorf("failed to create stage %s: %w", s.Name, err)
		}
	}
	return nil
}

// Create inserts the pipeline together with its stages.
func (r *PipelineRepository) Create(ctx context.Context, p *domain.Pipeline) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := insertPipeline(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PipelineRepository) Update(ctx context.Context, p *domain.Pipeline) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if p.IsDefault {
		if _, err := tx.Exec(ctx, `UPDATE pipeline SET is_default = FALSE WHERE empresa_id = $1 AND id <> $2`, p.EmpresaID, p.ID); err != nil {
			return err
		}
	}
	if err := tx.QueryRow(ctx, `
		UPDATE pipeline SET nombre = $1, descripcion = $2, is_default = $3, updated_at = NOW()
		WHERE id = $4 AND empresa_id = $5
		RETURNING updated_at
	`, p.Name, p.Description, p.IsDefault, p.ID, p.EmpresaID).Scan(&p.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PipelineRepository) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	// leads keep existing without a stage; FK ON DELETE SET NULL covers etapa_id
	_, err := r.db.Exec(ctx, `DELETE FROM pipeline WHERE id = $1 AND empresa_id = $2`, id, empresaID)
	return err
}

// GetStage returns the stage if its pipeline belongs to the empresa.
func (r *PipelineRepository) GetStage(ctx context.Context, empresaID, stageID uuid.UUID) (*domain.Stage, error) {
	s := &domain.Stage{}
	err := r.db.QueryRow(ctx, `
		SELECT s.id, s.pipeline_id, s.nombre, s.color, s.posicion, s.is_won, s.is_lost, s.created_at
		FROM etapas s JOIN pipeline p ON p.id = s.pipeline_id
		WHERE s.id = $1 AND p.empresa_id = $2
	`, stageID, empresaID).Scan(&s.ID, &s.PipelineID, &s.Name, &s.Color, &s.Position, &s.IsWon, &s.IsLost, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CreateStage appends the stage at the end of the pipeline.
func (r *PipelineRepository) CreateStage(ctx context.Context, s *domain.Stage) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO etapas (pipeline_id, nombre, color, posicion, is_won, is_lost)
		VALUES ($1, $2, $3, COALESCE((SELECT MAX(posicion) + 1 FROM etapas WHERE pipeline_id = $1), 0), $4, $5)
		RETURNING id, posicion, created_at
	`, s.PipelineID, s.Name, s.Color, s.IsWon, s.IsLost).Scan(&s.ID, &s.Position, &s.CreatedAt)
}

func (r *PipelineRepository) UpdateStage(ctx context.Context, s *domain.Stage) error {
	_, err := r.db.Exec(ctx, `
		UPDATE etapas SET nombre = $1, color = $2, is_won = $3, is_lost = $4 WHERE id = $5
	`, s.Name, s.Color, s.IsWon, s.IsLost, s.ID)
	return err
}

func (r *PipelineRepository) DeleteStage(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM etapas WHERE id = $1`, id)
	return err
}

// ReorderStages assigns positions following the order of stageIDs.
func (r *PipelineRepository) ReorderStages(ctx context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, stageID := range stageIDs {
		if _, err := tx.Exec(ctx, `UPDATE etapas SET posicion = $1 WHERE id = $2 AND pipeline_id = $3`, i, stageID, pipelineID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

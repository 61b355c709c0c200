package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
)

// PipelineService handles pipelines and their stages
type PipelineService struct {
	pipelines PipelineStore
}

func NewPipelineService(pipelines PipelineStore) *PipelineService {
	return &PipelineService{pipelines: pipelines}
}

type StageInput struct {
	Name   string `json:"name" validate:"required,max=255"`
	Color  string `json:"color" validate:"omitempty,hexcolor"`
	IsWon  bool   `json:"is_won"`
	IsLost bool   `json:"is_lost"`
}

type PipelineInput struct {
	Name        string       `json:"name" validate:"required,max=255"`
	Description *string      `json:"description"`
	IsDefault   bool         `json:"is_default"`
	Stages      []StageInput `json:"stages" validate:"dive"`
}

func (in StageInput) toStage() *domain.Stage {
	color := in.Color
	if color == "" {
		color = "#6366f1"
	}
	return &domain.Stage{Name: strings.TrimSpace(in.Name), Color: color, IsWon: in.IsWon, IsLost: in.IsLost && !in.IsWon}
}

func (s *PipelineService) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Pipeline, error) {
	return s.pipelines.List(ctx, empresaID)
}

func (s *PipelineService) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Pipeline, error) {
	p, err := s.pipelines.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperrors.ErrPipelineNotFound
	}
	return p, nil
}

// Create seeds the default stages when none are given.
func (s *PipelineService) Create(ctx context.Context, empresaID uuid.UUID, in PipelineInput) (*domain.Pipeline, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p := &domain.Pipeline{EmpresaID: empresaID, Name: in.Name, Description: in.Description, IsDefault: in.IsDefault}
	if len(in.Stages) == 0 {
		p.Stages = domain.DefaultStages()
	}
	for _, st := range in.Stages {
		p.Stages = append(p.Stages, st.toStage())
	}
	if err := s.pipelines.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PipelineService) Update(ctx context.Context, empresaID, id uuid.UUID, in PipelineInput) (*domain.Pipeline, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	p.Name, p.Description, p.IsDefault = in.Name, in.Description, in.IsDefault
	if err := s.pipelines.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PipelineService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	p, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return err
	}
	if p.IsDefault {
		return &apperrors.ValidationError{Message: "the default pipeline cannot be deleted"}
	}
	return s.pipelines.Delete(ctx, empresaID, id)
}

func (s *PipelineService) CreateStage(ctx context.Context, empresaID, pipelineID uuid.UUID, in StageInput) (*domain.Stage, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, empresaID, pipelineID); err != nil {
		return nil, err
	}
	st := in.toStage()
	st.PipelineID = pipelineID
	if err := s.pipelines.CreateStage(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PipelineService) getStage(ctx context.Context, empresaID, stageID uuid.UUID) (*domain.Stage, error) {
	st, err := s.pipelines.GetStage(ctx, empresaID, stageID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperrors.ErrStageNotFound
	}
	return st, nil
}

func (s *PipelineService) UpdateStage(ctx context.Context, empresaID, stageID uuid.UUID, in StageInput) (*domain.Stage, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	st, err := s.getStage(ctx, empresaID, stageID)
	if err != nil {
		return nil, err
	}
	upd := in.toStage()
	st.Name, st.Color, st.IsWon, st.IsLost = upd.Name, upd.Color, upd.IsWon, upd.IsLost
	if err := s.pipelines.UpdateStage(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *PipelineService) DeleteStage(ctx context.Context, empresaID, stageID uuid.UUID) error {
	if _, err := s.getStage(ctx, empresaID, stageID); err != nil {
		return err
	}
	return s.pipelines.DeleteStage(ctx, stageID)
}

// ReorderStages requires the full set of the pipeline's stage ids.
func (s *PipelineService) ReorderStages(ctx context.Context, empresaID, pipelineID uuid.UUID, stageIDs []uuid.UUID) error {
	p, err := s.Get(ctx, empresaID, pipelineID)
	if err != nil {
		return err
	}
	if len(stageIDs) != len(p.Stages) {
		return &apperrors.ValidationError{Field: "stage_ids", Message: "must list every stage of the pipeline"}
	}
	known := make(map[uuid.UUID]bool, len(p.Stages))
	for _, st := range p.Stages {
		known[st.ID] = true
	}
	for _, id := range stageIDs {
		if !known[id] {
			return &apperrors.ValidationError{Field: "stage_ids", Message: "contains a stage of another pipeline"}
		}
		delete(known, id)
	}
	return s.pipelines.ReorderStages(ctx, pipelineID, stageIDs)
}

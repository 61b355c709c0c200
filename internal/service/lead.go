package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/phone"
	"github.com/naperu/embudo/internal/ws"
	"github.com/shopspring/decimal"
)

// LeadService handles leads, their stage, tags and message history
type LeadService struct {
	leads     LeadStore
	pipelines PipelineStore
	tags      TagStore
	messages  MessageStore
	members   MemberStore
	hub       Broadcaster
}

func NewLeadService(leads LeadStore, pipelines PipelineStore, tags TagStore, messages MessageStore, members MemberStore, hub Broadcaster) *LeadService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &LeadService{leads: leads, pipelines: pipelines, tags: tags, messages: messages, members: members, hub: hub}
}

type LeadInput struct {
	Name       string           `json:"name" validate:"max=255"`
	Phone      *string          `json:"phone"`
	Email      *string          `json:"email" validate:"omitempty,email"`
	ChatID     *string          `json:"chat_id"`
	Channel    string           `json:"channel" validate:"omitempty,oneof=whatsapp instagram facebook"`
	Source     *string          `json:"source"`
	Notes      *string          `json:"notes"`
	Value      *decimal.Decimal `json:"value"`
	PipelineID *uuid.UUID       `json:"pipeline_id"`
	StageID    *uuid.UUID       `json:"stage_id"`
	AssignedTo *uuid.UUID       `json:"assigned_to"`
}

func (s *LeadService) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Lead, error) {
	l, err := s.leads.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperrors.ErrLeadNotFound
	}
	return l, nil
}

func (s *LeadService) List(ctx context.Context, empresaID uuid.UUID, filter domain.LeadFilter) ([]*domain.Lead, int, error) {
	return s.leads.List(ctx, empresaID, filter)
}

// normalizePhone keeps the digits of a phone so webhook and booking lookups match it.
func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	digits := phone.Normalize(*p)
	if digits == "" {
		return nil
	}
	return &digits
}

// Create places the lead in the given stage, or the first stage of the
// default pipeline.
func (s *LeadService) Create(ctx context.Context, empresaID uuid.UUID, in LeadInput) (*domain.Lead, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	l := &domain.Lead{
		EmpresaID: empresaID,
		Name:      strings.TrimSpace(in.Name),
		Phone:     normalizePhone(in.Phone),
		Email:     in.Email,
		ChatID:    in.ChatID,
		Channel:   in.Channel,
		Source:    in.Source,
		Notes:     in.Notes,
	}
	if l.Channel == "" {
		l.Channel = phone.ChannelWhatsApp
	}
	if l.Name == "" && l.Phone == nil {
		return nil, &apperrors.ValidationError{Field: "name", Message: "name or phone is required"}
	}
	if in.Value != nil {
		l.Value = *in.Value
	}
	if l.Value.IsNegative() {
		return nil, &apperrors.ValidationError{Field: "value", Message: "must not be negative"}
	}
	if in.AssignedTo != nil {
		if err := s.checkMember(ctx, empresaID, *in.AssignedTo); err != nil {
			return nil, err
		}
		l.AssignedTo = in.AssignedTo
	}

	stage, err := s.resolveStage(ctx, empresaID, in.PipelineID, in.StageID)
	if err != nil {
		return nil, err
	}
	if stage != nil {
		l.PipelineID, l.StageID = &stage.PipelineID, &stage.ID
	}

	if err := s.leads.Create(ctx, l); err != nil {
		return nil, err
	}
	if stage != nil {
		l.StageName, l.StageColor = &stage.Name, &stage.Color
	}
	s.hub.BroadcastToEmpresa(empresaID, ws.EventLeadUpdate, l)
	return l, nil
}

func (s *LeadService) resolveStage(ctx context.Context, empresaID uuid.UUID, pipelineID, stageID *uuid.UUID) (*domain.Stage, error) {
	if stageID != nil {
		st, err := s.pipelines.GetStage(ctx, empresaID, *stageID)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, apperrors.ErrStageNotFound
		}
		return st, nil
	}

	var p *domain.Pipeline
	var err error
	if pipelineID != nil {
		p, err = s.pipelines.Get(ctx, empresaID, *pipelineID)
		if err == nil && p == nil {
			return nil, apperrors.ErrPipelineNotFound
		}
	} else {
		p, err = s.pipelines.GetDefault(ctx, empresaID)
	}
	if err != nil || p == nil || len(p.Stages) == 0 {
		return nil, err
	}
	return p.Stages[0], nil
}

func (s *LeadService) checkMember(ctx context.Context, empresaID, userID uuid.UUID) error {
	return checkAssignee(ctx, s.members, empresaID, &userID)
}

// checkAssignee rejects assignees outside the empresa; nil means unassigned.
func checkAssignee(ctx context.Context, members MemberStore, empresaID uuid.UUID, userID *uuid.UUID) error {
	if userID == nil {
		return nil
	}
	role, err := members.GetRole(ctx, empresaID, *userID)
	if err != nil {
		return err
	}
	if role == "" {
		return &apperrors.ValidationError{Field: "assigned_to", Message: "is not a member of the empresa"}
	}
	return nil
}

// Update overwrites the editable fields; stage and assignee are moved with
// MoveStage and Assign.
func (s *LeadService) Update(ctx context.Context, empresaID, id uuid.UUID, in LeadInput) (*domain.Lead, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	l, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	l.Name = strings.TrimSpace(in.Name)
	l.Phone = normalizePhone(in.Phone)
	l.Email, l.ChatID, l.Source, l.Notes = in.Email, in.ChatID, in.Source, in.Notes
	if in.Channel != "" {
		l.Channel = in.Channel
	}
	if in.Value != nil {
		if in.Value.IsNegative() {
			return nil, &apperrors.ValidationError{Field: "value", Message: "must not be negative"}
		}
		l.Value = *in.Value
	}
	if err := s.leads.Update(ctx, l); err != nil {
		return nil, err
	}
	s.hub.BroadcastToEmpresa(empresaID, ws.EventLeadUpdate, l)
	return l, nil
}

func (s *LeadService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, id); err != nil {
		return err
	}
	return s.leads.Delete(ctx, empresaID, id)
}

// MoveStage replaces the lead's stage; the pipeline follows the stage.
func (s *LeadService) MoveStage(ctx context.Context, empresaID, id, stageID uuid.UUID) (*domain.Lead, error) {
	l, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	st, err := s.pipelines.GetStage(ctx, empresaID, stageID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperrors.ErrStageNotFound
	}
	if err := s.leads.MoveStage(ctx, l.ID, st.PipelineID, st.ID); err != nil {
		return nil, err
	}
	l.PipelineID, l.StageID = &st.PipelineID, &st.ID
	l.StageName, l.StageColor = &st.Name, &st.Color
	s.hub.BroadcastToEmpresa(empresaID, ws.EventLeadUpdate, l)
	return l, nil
}

// Assign sets or clears (userID nil) the lead owner.
func (s *LeadService) Assign(ctx context.Context, empresaID, id uuid.UUID, userID *uuid.UUID) (*domain.Lead, error) {
	l, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		if err := s.checkMember(ctx, empresaID, *userID); err != nil {
			return nil, err
		}
	}
	if err := s.leads.Assign(ctx, l.ID, userID); err != nil {
		return nil, err
	}
	l.AssignedTo = userID
	s.hub.BroadcastToEmpresa(empresaID, ws.EventLeadUpdate, l)
	return l, nil
}

func (s *LeadService) AddTag(ctx context.Context, empresaID, leadID, tagID uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, leadID); err != nil {
		return err
	}
	t, err := s.tags.Get(ctx, empresaID, tagID)
	if err != nil {
		return err
	}
	if t == nil {
		return apperrors.ErrTagNotFound
	}
	return s.leads.AddTag(ctx, leadID, tagID)
}

func (s *LeadService) RemoveTag(ctx context.Context, empresaID, leadID, tagID uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, leadID); err != nil {
		return err
	}
	return s.leads.RemoveTag(ctx, leadID, tagID)
}

func (s *LeadService) Messages(ctx context.Context, empresaID, leadID uuid.UUID, limit int, before *time.Time) ([]*domain.Message, error) {
	if _, err := s.Get(ctx, empresaID, leadID); err != nil {
		return nil, err
	}
	return s.messages.ListByLead(ctx, leadID, limit, before)
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
)

// TaskService manages to-do items
type TaskService struct {
	tasks   TaskStore
	leads   LeadStore
	members MemberStore
	now     func() time.Time
}

func NewTaskService(tasks TaskStore, leads LeadStore, members MemberStore) *TaskService {
	return &TaskService{tasks: tasks, leads: leads, members: members, now: time.Now}
}

type TaskInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description *string    `json:"description"`
	LeadID      *uuid.UUID `json:"lead_id"`
	AssignedTo  *uuid.UUID `json:"assigned_to"`
	DueAt       *time.Time `json:"due_at"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low medium high"`
}

func (s *TaskService) List(ctx context.Context, empresaID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, error) {
	return s.tasks.List(ctx, empresaID, filter)
}

func (s *TaskService) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Task, error) {
	t, err := s.tasks.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperrors.ErrTaskNotFound
	}
	return t, nil
}

func (s *TaskService) checkLead(ctx context.Context, empresaID uuid.UUID, leadID *uuid.UUID) error {
	if leadID == nil {
		return nil
	}
	l, err := s.leads.Get(ctx, empresaID, *leadID)
	if err != nil {
		return err
	}
	if l == nil {
		return apperrors.ErrLeadNotFound
	}
	return nil
}

// Create assigns the task to its creator unless someone else is named.
func (s *TaskService) Create(ctx context.Context, empresaID, userID uuid.UUID, in TaskInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := s.checkLead(ctx, empresaID, in.LeadID); err != nil {
		return nil, err
	}
	if err := checkAssignee(ctx, s.members, empresaID, in.AssignedTo); err != nil {
		return nil, err
	}
	t := &domain.Task{
		EmpresaID:   empresaID,
		LeadID:      in.LeadID,
		AssignedTo:  in.AssignedTo,
		Title:       in.Title,
		Description: in.Description,
		DueAt:       in.DueAt,
		Priority:    in.Priority,
		Status:      domain.TaskStatusPending,
		CreatedBy:   &userID,
	}
	if t.Priority == "" {
		t.Priority = domain.TaskPriorityMedium
	}
	if t.AssignedTo == nil {
		t.AssignedTo = &userID
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TaskService) Update(ctx context.Context, empresaID, id uuid.UUID, in TaskInput) (*domain.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	t, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkLead(ctx, empresaID, in.LeadID); err != nil {
		return nil, err
	}
	if err := checkAssignee(ctx, s.members, empresaID, in.AssignedTo); err != nil {
		return nil, err
	}
	t.Title, t.Description, t.LeadID, t.DueAt = in.Title, in.Description, in.LeadID, in.DueAt
	if in.AssignedTo != nil {
		t.AssignedTo = in.AssignedTo
	}
	if in.Priority != "" {
		t.Priority = in.Priority
	}
	if err := s.tasks.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Complete marks the task done; Reopen reverses it.
func (s *TaskService) Complete(ctx context.Context, empresaID, id uuid.UUID) (*domain.Task, error) {
	t, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if t.Status == domain.TaskStatusDone {
		return t, nil
	}
	now := s.now()
	if err := s.tasks.SetStatus(ctx, t.ID, domain.TaskStatusDone, &now); err != nil {
		return nil, err
	}
	t.Status, t.CompletedAt = domain.TaskStatusDone, &now
	return t, nil
}

func (s *TaskService) Reopen(ctx context.Context, empresaID, id uuid.UUID) (*domain.Task, error) {
	t, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.SetStatus(ctx, t.ID, domain.TaskStatusPending, nil); err != nil {
		return nil, err
	}
	t.Status, t.CompletedAt = domain.TaskStatusPending, nil
	return t, nil
}

func (s *TaskService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, id); err != nil {
		return err
	}
	return s.tasks.Delete(ctx, empresaID, id)
}

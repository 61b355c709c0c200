package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/ws"
)

// AppointmentService manages appointments created from the dashboard
type AppointmentService struct {
	appointments AppointmentStore
	leads        LeadStore
	members      MemberStore
	hub          Broadcaster
}

func NewAppointmentService(appointments AppointmentStore, leads LeadStore, members MemberStore, hub Broadcaster) *AppointmentService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &AppointmentService{appointments: appointments, leads: leads, members: members, hub: hub}
}

type AppointmentInput struct {
	LeadID     uuid.UUID  `json:"lead_id" validate:"required"`
	AssignedTo *uuid.UUID `json:"assigned_to"`
	Title      string     `json:"title" validate:"max=255"`
	Notes      *string    `json:"notes"`
	StartsAt   time.Time  `json:"starts_at" validate:"required"`
	EndsAt     *time.Time `json:"ends_at"`
}

var appointmentStatuses = map[string]bool{
	domain.AppointmentScheduled: true,
	domain.AppointmentConfirmed: true,
	domain.AppointmentCancelled: true,
	domain.AppointmentCompleted: true,
}

// List defaults to the next 30 days.
func (s *AppointmentService) List(ctx context.Context, empresaID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error) {
	if from.IsZero() {
		from = time.Now().Truncate(24 * time.Hour)
	}
	if to.IsZero() || !to.After(from) {
		to = from.AddDate(0, 0, 30)
	}
	return s.appointments.List(ctx, empresaID, from, to)
}

func (s *AppointmentService) ListByLead(ctx context.Context, empresaID, leadID uuid.UUID) ([]*domain.Appointment, error) {
	return s.appointments.ListByLead(ctx, empresaID, leadID)
}

func (s *AppointmentService) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Appointment, error) {
	a, err := s.appointments.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperrors.ErrAppointmentNotFound
	}
	return a, nil
}

func (s *AppointmentService) Create(ctx context.Context, empresaID uuid.UUID, in AppointmentInput) (*domain.Appointment, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	lead, err := s.leads.Get(ctx, empresaID, in.LeadID)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, apperrors.ErrLeadNotFound
	}
	if err := checkAssignee(ctx, s.members, empresaID, in.AssignedTo); err != nil {
		return nil, err
	}
	ends := in.StartsAt.Add(defaultBookingDuration)
	if in.EndsAt != nil {
		if !in.EndsAt.After(in.StartsAt) {
			return nil, &apperrors.ValidationError{Field: "ends_at", Message: "must be after starts_at"}
		}
		ends = *in.EndsAt
	}
	a := &domain.Appointment{
		EmpresaID:  empresaID,
		LeadID:     lead.ID,
		AssignedTo: in.AssignedTo,
		Title:      strings.TrimSpace(in.Title),
		Notes:      in.Notes,
		StartsAt:   in.StartsAt.UTC(),
		EndsAt:     ends.UTC(),
		Status:     domain.AppointmentScheduled,
		Source:     domain.AppointmentSourceManual,
	}
	if a.Title == "" {
		a.Title = "Cita con " + displayName(lead)
	}
	if a.AssignedTo == nil {
		a.AssignedTo = lead.AssignedTo
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	name := displayName(lead)
	a.LeadName = &name
	s.hub.BroadcastToEmpresa(empresaID, ws.EventAppointment, a)
	return a, nil
}

func (s *AppointmentService) UpdateStatus(ctx context.Context, empresaID, id uuid.UUID, status string) (*domain.Appointment, error) {
	if !appointmentStatuses[status] {
		return nil, &apperrors.ValidationError{Field: "status", Message: "must be one of: scheduled confirmed cancelled completed"}
	}
	a, err := s.Get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, a.ID, status); err != nil {
		return nil, err
	}
	a.Status = status
	s.hub.BroadcastToEmpresa(empresaID, ws.EventAppointment, a)
	return a, nil
}

func (s *AppointmentService) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	if _, err := s.Get(ctx, empresaID, id); err != nil {
		return err
	}
	return s.appointments.Delete(ctx, empresaID, id)
}

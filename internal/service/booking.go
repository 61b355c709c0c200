package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/phone"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/logger"
)

const defaultBookingDuration = 30 * time.Minute

// BookingInput is the body of book-appointment.
type BookingInput struct {
	EmpresaID       uuid.UUID `json:"empresaId"`
	Token           string    `json:"token,omitempty"`
	Phone           string    `json:"phone"`
	StartsAt        time.Time `json:"startsAt"`
	DurationMinutes int       `json:"durationMinutes,omitempty"`
	Title           string    `json:"title,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

type BookingLead struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type BookingResult struct {
	Appointment *domain.Appointment `json:"appointment"`
	Lead        BookingLead         `json:"lead"`
	Warning     string              `json:"warning,omitempty"`
}

// LeadNotFoundError carries the normalized phone that matched nothing.
type LeadNotFoundError struct {
	PhoneSearched string
}

func (e *LeadNotFoundError) Error() string {
	return "Lead not found"
}

func (e *LeadNotFoundError) Unwrap() error {
	return apperrors.ErrLeadNotFound
}

// BookingService books appointments from the public booking page.
type BookingService struct {
	empresas      EmpresaStore
	leads         LeadStore
	appointments  AppointmentStore
	members       MemberStore
	notifications NotificationStore
	hub           Broadcaster
	metrics       *metrics.Metrics
	now           func() time.Time
	log           *logger.Logger
}

func NewBookingService(empresas EmpresaStore, leads LeadStore, appointments AppointmentStore, members MemberStore, notifications NotificationStore, hub Broadcaster, m *metrics.Metrics) *BookingService {
	if hub == nil {
		hub = noopBroadcaster{}
	}
	return &BookingService{
		empresas:      empresas,
		leads:         leads,
		appointments:  appointments,
		members:       members,
		notifications: notifications,
		hub:           hub,
		metrics:       m,
		now:           time.Now,
		log:           logger.Component("book-appointment"),
	}
}

// Book authenticates the shared token, finds the lead by phone and creates
// the appointment. The notification is best effort.
func (s *BookingService) Book(ctx context.Context, in BookingInput) (*BookingResult, error) {
	result, err := s.book(ctx, in)
	switch {
	case err == nil:
		s.metrics.Booking("created")
	default:
		s.metrics.Booking(fmt.Sprintf("%d", apperrors.StatusCode(err)))
	}
	return result, err
}

func (s *BookingService) book(ctx context.Context, in BookingInput) (*BookingResult, error) {
	token := strings.TrimSpace(in.Token)
	if token == "" {
		return nil, &apperrors.AuthenticationError{Message: "missing booking token"}
	}
	if in.EmpresaID == uuid.Nil {
		return nil, &apperrors.ValidationError{Field: "empresaId", Message: "is required"}
	}

	empresa, err := s.empresas.GetByID(ctx, in.EmpresaID)
	if err != nil {
		return nil, err
	}
	if empresa == nil {
		return nil, apperrors.ErrEmpresaNotFound
	}
	if empresa.BookingToken == "" || subtle.ConstantTimeCompare([]byte(empresa.BookingToken), []byte(token)) != 1 {
		return nil, &apperrors.AuthorizationError{Message: "invalid booking token"}
	}

	digits := phone.Normalize(in.Phone)
	if digits == "" {
		return nil, &apperrors.ValidationError{Field: "phone", Message: "is required"}
	}

	lead, err := s.leads.FindByPhone(ctx, &empresa.ID, digits)
	if err != nil {
		return nil, err
	}
	if lead == nil {
		return nil, &LeadNotFoundError{PhoneSearched: digits}
	}

	if in.StartsAt.IsZero() {
		return nil, &apperrors.ValidationError{Field: "startsAt", Message: "is required"}
	}
	if in.StartsAt.Before(s.now().Add(-time.Minute)) {
		return nil, &apperrors.ValidationError{Field: "startsAt", Message: "must be in the future"}
	}
	duration := defaultBookingDuration
	if in.DurationMinutes < 0 || in.DurationMinutes > 24*60 {
		return nil, &apperrors.ValidationError{Field: "durationMinutes", Message: "must be between 1 and 1440"}
	}
	if in.DurationMinutes > 0 {
		duration = time.Duration(in.DurationMinutes) * time.Minute
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Cita con " + displayName(lead)
	}
	appt := &domain.Appointment{
		EmpresaID:  empresa.ID,
		LeadID:     lead.ID,
		AssignedTo: lead.AssignedTo,
		Title:      title,
		StartsAt:   in.StartsAt.UTC(),
		EndsAt:     in.StartsAt.UTC().Add(duration),
		Status:     domain.AppointmentScheduled,
		Source:     domain.AppointmentSourceBooking,
	}
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		appt.Notes = &notes
	}
	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, err
	}
	name := displayName(lead)
	appt.LeadName = &name

	result := &BookingResult{
		Appointment: appt,
		Lead:        BookingLead{ID: lead.ID, Name: name},
	}
	if err := s.notify(ctx, empresa.ID, lead, appt); err != nil {
		s.log.WithError(err).WithField("appointment_id", appt.ID).Warn("appointment booked but notification failed")
		result.Warning = fmt.Sprintf("appointment booked but notification failed: %v", err)
	}
	return result, nil
}

// notify writes one notification for the lead owner, or one per owner/admin
// when the lead is unassigned.
func (s *BookingService) notify(ctx context.Context, empresaID uuid.UUID, lead *domain.Lead, appt *domain.Appointment) error {
	var recipients []uuid.UUID
	if lead.AssignedTo != nil {
		recipients = []uuid.UUID{*lead.AssignedTo}
	} else {
		managers, err := s.members.ListByRole(ctx, empresaID, domain.RoleOwner, domain.RoleAdmin)
		if err != nil {
			return err
		}
		for _, m := range managers {
			recipients = append(recipients, m.UserID)
		}
	}

	entity := "appointment"
	for _, uid := range recipients {
		uid := uid
		n := &domain.Notification{
			EmpresaID:  empresaID,
			UserID:     &uid,
			Type:       domain.NotificationAppointmentBooked,
			Title:      "Nueva cita agendada",
			Body:       fmt.Sprintf("%s agendó una cita para el %s", displayName(lead), appt.StartsAt.Format("02/01/2006 15:04")),
			EntityType: &entity,
			EntityID:   &appt.ID,
		}
		if err := s.notifications.Create(ctx, n); err != nil {
			return err
		}
		s.hub.BroadcastToEmpresa(empresaID, ws.EventNotification, n)
	}
	return nil
}

func displayName(l *domain.Lead) string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	if l.Phone != nil {
		return *l.Phone
	}
	return "lead"
}

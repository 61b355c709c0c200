package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	empresa       *domain.Empresa
	lead          *domain.Lead
	members       *fakeMembers
	appointments  *fakeAppointments
	notifications *fakeNotifications
	hub           *fakeHub
	svc           *BookingService
}

func newBookingFixture() *bookingFixture {
	f := &bookingFixture{
		empresa:       &domain.Empresa{ID: uuid.New(), Name: "Clínica Sol", BookingToken: "book-token"},
		members:       newFakeMembers(),
		appointments:  &fakeAppointments{},
		notifications: &fakeNotifications{},
		hub:           &fakeHub{},
	}
	p := "51987654321"
	f.lead = &domain.Lead{ID: uuid.New(), EmpresaID: f.empresa.ID, Name: "Ana Pérez", Phone: &p}
	f.svc = NewBookingService(newFakeEmpresas(f.empresa), newFakeLeads(f.lead), f.appointments, f.members, f.notifications, f.hub, nil)
	return f
}

func (f *bookingFixture) input() BookingInput {
	return BookingInput{
		EmpresaID: f.empresa.ID,
		Token:     "book-token",
		Phone:     "+51 987-654-321",
		StartsAt:  time.Now().Add(24 * time.Hour),
	}
}

func TestBook_CreatesAppointmentAndNotifiesAssignee(t *testing.T) {
	f := newBookingFixture()
	sellerID := uuid.New()
	f.lead.AssignedTo = &sellerID

	res, err := f.svc.Book(context.Background(), f.input())
	require.NoError(t, err)

	assert.Equal(t, f.lead.ID, res.Lead.ID)
	assert.Equal(t, "Ana Pérez", res.Lead.Name)
	assert.Empty(t, res.Warning)

	require.Len(t, f.appointments.created, 1)
	appt := f.appointments.created[0]
	assert.Equal(t, domain.AppointmentSourceBooking, appt.Source)
	assert.Equal(t, domain.AppointmentScheduled, appt.Status)
	assert.Equal(t, 30*time.Minute, appt.EndsAt.Sub(appt.StartsAt))
	assert.Equal(t, "Cita con Ana Pérez", appt.Title)
	assert.Equal(t, &sellerID, appt.AssignedTo)

	require.Len(t, f.notifications.created, 1)
	assert.Equal(t, &sellerID, f.notifications.created[0].UserID)
	assert.Equal(t, domain.NotificationAppointmentBooked, f.notifications.created[0].Type)
	require.Len(t, f.hub.events, 1)
	assert.Equal(t, ws.EventNotification, f.hub.events[0].event)
}

func TestBook_UnassignedLeadNotifiesManagers(t *testing.T) {
	f := newBookingFixture()
	f.members.add(f.empresa.ID, uuid.New(), domain.RoleOwner, "o@sol.pe")
	f.members.add(f.empresa.ID, uuid.New(), domain.RoleAdmin, "a@sol.pe")
	f.members.add(f.empresa.ID, uuid.New(), domain.RoleMember, "m@sol.pe")

	_, err := f.svc.Book(context.Background(), f.input())
	require.NoError(t, err)
	assert.Len(t, f.notifications.created, 2)
}

func TestBook_NotificationFailureIsWarning(t *testing.T) {
	f := newBookingFixture()
	sellerID := uuid.New()
	f.lead.AssignedTo = &sellerID
	f.notifications.err = errors.New("insert failed")

	res, err := f.svc.Book(context.Background(), f.input())
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "insert failed")
	assert.Len(t, f.appointments.created, 1)
}

func TestBook_Auth(t *testing.T) {
	ctx := context.Background()

	t.Run("missing token", func(t *testing.T) {
		f := newBookingFixture()
		in := f.input()
		in.Token = ""
		_, err := f.svc.Book(ctx, in)
		assert.Equal(t, http.StatusUnauthorized, apperrors.StatusCode(err))
	})

	t.Run("wrong token", func(t *testing.T) {
		f := newBookingFixture()
		in := f.input()
		in.Token = "guess"
		_, err := f.svc.Book(ctx, in)
		assert.Equal(t, http.StatusForbidden, apperrors.StatusCode(err))
		assert.Empty(t, f.appointments.created)
	})

	t.Run("unknown empresa", func(t *testing.T) {
		f := newBookingFixture()
		in := f.input()
		in.EmpresaID = uuid.New()
		_, err := f.svc.Book(ctx, in)
		assert.ErrorIs(t, err, apperrors.ErrEmpresaNotFound)
	})
}

func TestBook_LeadNotFoundCarriesPhone(t *testing.T) {
	f := newBookingFixture()
	in := f.input()
	in.Phone = "+51 999 000 111"

	_, err := f.svc.Book(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
	assert.ErrorIs(t, err, apperrors.ErrLeadNotFound)

	var nf *LeadNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "51999000111", nf.PhoneSearched)
}

func TestBook_UnknownPhoneWinsOverMissingTime(t *testing.T) {
	f := newBookingFixture()
	in := BookingInput{EmpresaID: f.empresa.ID, Token: "book-token", Phone: "+51 999 000 111"}

	_, err := f.svc.Book(context.Background(), in)
	var nf *LeadNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "51999000111", nf.PhoneSearched)

	in.Phone = f.input().Phone
	_, err = f.svc.Book(context.Background(), in)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
}

func TestBook_Validation(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture()

	in := f.input()
	in.Phone = "   "
	_, err := f.svc.Book(ctx, in)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	in = f.input()
	in.StartsAt = time.Now().Add(-time.Hour)
	_, err = f.svc.Book(ctx, in)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	in = f.input()
	in.DurationMinutes = 5000
	_, err = f.svc.Book(ctx, in)
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	in = f.input()
	in.DurationMinutes = 60
	_, err = f.svc.Book(ctx, in)
	require.NoError(t, err)
	appt := f.appointments.created[len(f.appointments.created)-1]
	assert.Equal(t, time.Hour, appt.EndsAt.Sub(appt.StartsAt))
}

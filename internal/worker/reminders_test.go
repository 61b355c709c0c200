package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTasks struct {
	service.TaskStore
	due      []*domain.Task
	until    time.Time
	reminded []uuid.UUID
}

func (f *fakeTasks) DueForReminder(_ context.Context, until time.Time) ([]*domain.Task, error) {
	f.until = until
	return f.due, nil
}

func (f *fakeTasks) MarkReminded(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.reminded = append(f.reminded, id)
	return nil
}

type fakeAppointments struct {
	service.AppointmentStore
	due      []*domain.Appointment
	err      error
	reminded []uuid.UUID
}

func (f *fakeAppointments) DueForReminder(context.Context, time.Time, time.Time) ([]*domain.Appointment, error) {
	return f.due, f.err
}

func (f *fakeAppointments) MarkReminded(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.reminded = append(f.reminded, id)
	return nil
}

type fakeNotifications struct {
	service.NotificationStore
	mu      sync.Mutex
	created []*domain.Notification
}

func (f *fakeNotifications) Create(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uuid.New()
	f.created = append(f.created, n)
	return nil
}

type fakeExpirer struct{ n int64 }

func (f fakeExpirer) ExpireStale(context.Context) (int64, error) { return f.n, nil }

type fakeHub struct{ events []string }

func (f *fakeHub) BroadcastToEmpresa(_ uuid.UUID, event string, _ interface{}) {
	f.events = append(f.events, event)
}

func TestRunOnce_RemindsTasksAndAppointments(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	empresaID, owner, creator := uuid.New(), uuid.New(), uuid.New()
	due := now.Add(20 * time.Minute)
	lead := "Ana"

	tasks := &fakeTasks{due: []*domain.Task{
		{ID: uuid.New(), EmpresaID: empresaID, Title: "Llamar", AssignedTo: &owner, DueAt: &due, LeadName: &lead},
		{ID: uuid.New(), EmpresaID: empresaID, Title: "Enviar cotización", CreatedBy: &creator},
		{ID: uuid.New(), EmpresaID: empresaID, Title: "Huérfana"},
	}}
	appts := &fakeAppointments{due: []*domain.Appointment{
		{ID: uuid.New(), EmpresaID: empresaID, Title: "Limpieza", StartsAt: due, LeadName: &lead},
	}}
	notifications := &fakeNotifications{}
	hub := &fakeHub{}

	r := NewReminders(tasks, appts, notifications, fakeExpirer{n: 2}, hub, nil, Config{Window: 30 * time.Minute})
	r.now = func() time.Time { return now }

	st := r.RunOnce(context.Background())
	assert.Equal(t, 3, st.TasksReminded)
	assert.Equal(t, 1, st.AppointmentsDue)
	assert.Equal(t, int64(2), st.InvitationsGone)
	assert.Empty(t, st.LastError)
	assert.Equal(t, now.Add(30*time.Minute), tasks.until)

	// the task without owner or creator is marked but notifies nobody
	assert.Len(t, tasks.reminded, 3)
	require.Len(t, notifications.created, 3)
	assert.Equal(t, owner, *notifications.created[0].UserID)
	assert.Equal(t, domain.NotificationTaskDue, notifications.created[0].Type)
	assert.Contains(t, notifications.created[0].Body, "Ana")
	assert.Equal(t, creator, *notifications.created[1].UserID)

	apptNote := notifications.created[2]
	assert.Nil(t, apptNote.UserID)
	assert.Equal(t, domain.NotificationAppointmentSoon, apptNote.Type)
	assert.Equal(t, appts.due[0].ID, *apptNote.EntityID)
	assert.Len(t, hub.events, 3)
}

func TestRunOnce_ContinuesAfterFailure(t *testing.T) {
	tasks := &fakeTasks{due: []*domain.Task{{ID: uuid.New(), EmpresaID: uuid.New(), Title: "x"}}}
	appts := &fakeAppointments{err: errors.New("connection reset")}

	r := NewReminders(tasks, appts, &fakeNotifications{}, fakeExpirer{n: 1}, nil, nil, Config{})
	st := r.RunOnce(context.Background())

	assert.Equal(t, 1, st.TasksReminded)
	assert.Equal(t, int64(1), st.InvitationsGone)
	assert.Contains(t, st.LastError, "connection reset")
	require.NotNil(t, st.LastRun)
}

func TestStartStop(t *testing.T) {
	tasks := &fakeTasks{}
	appts := &fakeAppointments{}
	r := NewReminders(tasks, appts, &fakeNotifications{}, nil, nil, nil, Config{Interval: 10 * time.Millisecond})

	r.Start()
	r.Start()
	assert.True(t, r.GetStatus().Running)

	assert.Eventually(t, func() bool {
		return r.GetStatus().LastRun != nil
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop()
	assert.False(t, r.GetStatus().Running)
}

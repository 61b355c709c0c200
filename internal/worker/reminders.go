package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/internal/metrics"
	"github.com/naperu/embudo/internal/service"
	"github.com/naperu/embudo/internal/ws"
	"github.com/naperu/embudo/pkg/logger"
)

// InvitationExpirer flips pending invitations past their expiry.
type InvitationExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

type Config struct {
	Interval time.Duration
	Window   time.Duration
}

// Status reports what the last sweep did.
type Status struct {
	Running         bool       `json:"running"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	TasksReminded   int        `json:"tasks_reminded"`
	AppointmentsDue int        `json:"appointments_reminded"`
	InvitationsGone int64      `json:"invitations_expired"`
	LastError       string     `json:"last_error,omitempty"`
}

// Reminders periodically notifies assignees of due tasks and upcoming
// appointments, and expires stale invitations.
type Reminders struct {
	tasks         service.TaskStore
	appointments  service.AppointmentStore
	notifications service.NotificationStore
	invitations   InvitationExpirer
	hub           service.Broadcaster
	metrics       *metrics.Metrics
	cfg           Config
	now           func() time.Time
	log           *logger.Logger

	stopCh  chan struct{}
	stopped chan struct{}
	mu      sync.RWMutex
	status  Status
	running bool
}

func NewReminders(tasks service.TaskStore, appointments service.AppointmentStore, notifications service.NotificationStore, invitations InvitationExpirer, hub service.Broadcaster, m *metrics.Metrics, cfg Config) *Reminders {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 30 * time.Minute
	}
	return &Reminders{
		tasks:         tasks,
		appointments:  appointments,
		notifications: notifications,
		invitations:   invitations,
		hub:           hub,
		metrics:       m,
		cfg:           cfg,
		now:           time.Now,
		log:           logger.Component("reminders"),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start launches the ticker loop. Calling it twice is a no-op.
func (r *Reminders) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.status.Running = true
	r.mu.Unlock()

	go r.loop()
	r.log.WithFields(map[string]interface{}{
		"interval": r.cfg.Interval.String(),
		"window":   r.cfg.Window.String(),
	}).Info("reminder worker started")
}

// Stop waits for the current sweep to finish.
func (r *Reminders) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.status.Running = false
	r.mu.Unlock()
	close(r.stopCh)
	<-r.stopped
	r.log.Info("reminder worker stopped")
}

func (r *Reminders) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Reminders) loop() {
	defer close(r.stopped)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
			r.RunOnce(ctx)
			cancel()
		}
	}
}

// RunOnce performs a single sweep. Each part runs even if another failed.
func (r *Reminders) RunOnce(ctx context.Context) Status {
	now := r.now()
	var errs []error

	tasks, err := r.remindTasks(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("tasks: %w", err))
	}
	appts, err := r.remindAppointments(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("appointments: %w", err))
	}
	var expired int64
	if r.invitations != nil {
		if expired, err = r.invitations.ExpireStale(ctx); err != nil {
			errs = append(errs, fmt.Errorf("invitations: %w", err))
		}
	}

	r.mu.Lock()
	r.status.LastRun = &now
	r.status.TasksReminded = tasks
	r.status.AppointmentsDue = appts
	r.status.InvitationsGone = expired
	r.status.LastError = ""
	for _, e := range errs {
		r.log.WithError(e).Error("reminder sweep failed")
		r.status.LastError = e.Error()
	}
	st := r.status
	r.mu.Unlock()

	if tasks+appts > 0 || expired > 0 {
		r.log.WithFields(map[string]interface{}{
			"tasks":        tasks,
			"appointments": appts,
			"expired":      expired,
		}).Info("reminder sweep done")
	}
	return st
}

func (r *Reminders) remindTasks(ctx context.Context, now time.Time) (int, error) {
	due, err := r.tasks.DueForReminder(ctx, now.Add(r.cfg.Window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, t := range due {
		recipient := t.AssignedTo
		if recipient == nil {
			recipient = t.CreatedBy
		}
		body := "Vence pronto"
		if t.DueAt != nil {
			body = "Vence el " + t.DueAt.Format("02/01/2006 15:04")
		}
		if t.LeadName != nil {
			body += " · " + *t.LeadName
		}
		if recipient != nil {
			if err := r.notify(ctx, t.EmpresaID, recipient, domain.NotificationTaskDue, "Tarea: "+t.Title, body, "task", t.ID); err != nil {
				return sent, err
			}
		}
		if err := r.tasks.MarkReminded(ctx, t.ID, now); err != nil {
			return sent, err
		}
		r.metrics.ReminderFired("task")
		sent++
	}
	return sent, nil
}

func (r *Reminders) remindAppointments(ctx context.Context, now time.Time) (int, error) {
	due, err := r.appointments.DueForReminder(ctx, now, now.Add(r.cfg.Window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, a := range due {
		title := "Cita próxima: " + a.Title
		body := "Empieza a las " + a.StartsAt.Format("15:04")
		if a.LeadName != nil {
			body += " con " + *a.LeadName
		}
		// unassigned appointments notify the whole empresa
		if err := r.notify(ctx, a.EmpresaID, a.AssignedTo, domain.NotificationAppointmentSoon, title, body, "appointment", a.ID); err != nil {
			return sent, err
		}
		if err := r.appointments.MarkReminded(ctx, a.ID, now); err != nil {
			return sent, err
		}
		r.metrics.ReminderFired("appointment")
		sent++
	}
	return sent, nil
}

func (r *Reminders) notify(ctx context.Context, empresaID uuid.UUID, userID *uuid.UUID, kind, title, body, entity string, entityID uuid.UUID) error {
	n := &domain.Notification{
		EmpresaID:  empresaID,
		UserID:     userID,
		Type:       kind,
		Title:      title,
		Body:       body,
		EntityType: &entity,
		EntityID:   &entityID,
	}
	if err := r.notifications.Create(ctx, n); err != nil {
		return err
	}
	if r.hub != nil {
		r.hub.BroadcastToEmpresa(empresaID, ws.EventNotification, n)
	}
	return nil
}

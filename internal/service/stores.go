package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/internal/mailer"
	"github.com/naperu/embudo/internal/superapi"
	"github.com/shopspring/decimal"
)

// The store interfaces below are satisfied by the pgx repositories in
// internal/repository. Lookups return (nil, nil) when nothing matches.

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type EmpresaStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Empresa, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Empresa, error)
	Update(ctx context.Context, e *domain.Empresa) error
	SetBookingToken(ctx context.Context, id uuid.UUID, token string) error
	CreateWithOwner(ctx context.Context, e *domain.Empresa, ownerID uuid.UUID, pipeline *domain.Pipeline) error
}

type MemberStore interface {
	GetRole(ctx context.Context, empresaID, userID uuid.UUID) (string, error)
	List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Member, error)
	ListByRole(ctx context.Context, empresaID uuid.UUID, roles ...string) ([]*domain.Member, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Member, error)
	GetByEmail(ctx context.Context, empresaID uuid.UUID, email string) (*domain.Member, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
	Remove(ctx context.Context, id uuid.UUID) error
}

type InvitationStore interface {
	GetPending(ctx context.Context, empresaID uuid.UUID, email string) (*domain.Invitation, error)
	ExpireStaleFor(ctx context.Context, empresaID uuid.UUID, email string, now time.Time) error
	Create(ctx context.Context, inv *domain.Invitation) error
	GetByID(ctx context.Context, empresaID, id uuid.UUID) (*domain.Invitation, error)
	GetByToken(ctx context.Context, token string) (*domain.Invitation, error)
	ListPending(ctx context.Context, empresaID uuid.UUID) ([]*domain.Invitation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Renew(ctx context.Context, id uuid.UUID, expiresAt time.Time) error
	Accept(ctx context.Context, inv *domain.Invitation, userID uuid.UUID) error
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type PipelineStore interface {
	List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Pipeline, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Pipeline, error)
	GetDefault(ctx context.Context, empresaID uuid.UUID) (*domain.Pipeline, error)
	Create(ctx context.Context, p *domain.Pipeline) error
	Update(ctx context.Context, p *domain.Pipeline) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
	GetStage(ctx context.Context, empresaID, stageID uuid.UUID) (*domain.Stage, error)
	CreateStage(ctx context.Context, s *domain.Stage) error
	UpdateStage(ctx context.Context, s *domain.Stage) error
	DeleteStage(ctx context.Context, id uuid.UUID) error
	ReorderStages(ctx context.Context, pipelineID uuid.UUID, stageIDs []uuid.UUID) error
}

type LeadStore interface {
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Lead, error)
	List(ctx context.Context, empresaID uuid.UUID, filter domain.LeadFilter) ([]*domain.Lead, int, error)
	Create(ctx context.Context, l *domain.Lead) error
	Update(ctx context.Context, l *domain.Lead) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
	MoveStage(ctx context.Context, id, pipelineID, stageID uuid.UUID) error
	Assign(ctx context.Context, id uuid.UUID, userID *uuid.UUID) error
	SetPreferredInstance(ctx context.Context, id, instanceID uuid.UUID) error
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
	FindByPhone(ctx context.Context, empresaID *uuid.UUID, digits string) (*domain.Lead, error)
	AddTag(ctx context.Context, leadID, tagID uuid.UUID) error
	RemoveTag(ctx context.Context, leadID, tagID uuid.UUID) error
}

type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Message, error)
	LastInbound(ctx context.Context, leadID uuid.UUID) (*domain.Message, error)
	ListByLead(ctx context.Context, leadID uuid.UUID, limit int, before *time.Time) ([]*domain.Message, error)
}

type InstanceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Instance, error)
	FindByClient(ctx context.Context, clientID string) (*domain.Instance, error)
	ListActive(ctx context.Context, empresaID uuid.UUID, channel string) ([]*domain.Instance, error)
	List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Instance, error)
	Create(ctx context.Context, i *domain.Instance) error
	Update(ctx context.Context, i *domain.Instance) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
}

type TaskStore interface {
	List(ctx context.Context, empresaID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Task, error)
	Create(ctx context.Context, t *domain.Task) error
	Update(ctx context.Context, t *domain.Task) error
	SetStatus(ctx context.Context, id uuid.UUID, status string, completedAt *time.Time) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
	DueForReminder(ctx context.Context, until time.Time) ([]*domain.Task, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type AppointmentStore interface {
	List(ctx context.Context, empresaID uuid.UUID, from, to time.Time) ([]*domain.Appointment, error)
	ListByLead(ctx context.Context, empresaID, leadID uuid.UUID) ([]*domain.Appointment, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Appointment, error)
	Create(ctx context.Context, a *domain.Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
	DueForReminder(ctx context.Context, now, until time.Time) ([]*domain.Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type TagStore interface {
	List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Tag, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Tag, error)
	Create(ctx context.Context, t *domain.Tag) error
	Update(ctx context.Context, t *domain.Tag) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
}

type CatalogStore interface {
	List(ctx context.Context, empresaID uuid.UUID, activeOnly bool) ([]*domain.CatalogItem, error)
	Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.CatalogItem, error)
	Create(ctx context.Context, c *domain.CatalogItem) error
	Update(ctx context.Context, c *domain.CatalogItem) error
	Delete(ctx context.Context, empresaID, id uuid.UUID) error
}

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, empresaID, userID uuid.UUID, unreadOnly bool, limit int) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, empresaID, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, empresaID, userID, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, empresaID, userID uuid.UUID) (int64, error)
}

type AnalyticsStore interface {
	CountLeads(ctx context.Context, empresaID uuid.UUID, since time.Time) (total, recent int, err error)
	LeadsByStage(ctx context.Context, empresaID, pipelineID uuid.UUID) ([]*domain.StageCount, error)
	PipelineValue(ctx context.Context, empresaID uuid.UUID) (open, won decimal.Decimal, err error)
	CountMessages(ctx context.Context, empresaID uuid.UUID, since time.Time) (inbound, outbound int, err error)
	CountTasks(ctx context.Context, empresaID uuid.UUID, now time.Time) (pending, overdue int, err error)
	CountUpcomingAppointments(ctx context.Context, empresaID uuid.UUID, now time.Time) (int, error)
}

// Gateway delivers an outbound message through the messaging provider.
type Gateway interface {
	SendMessage(ctx context.Context, token string, req superapi.SendRequest) (*superapi.SendResponse, error)
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, email mailer.Email) (string, error)
}

// Broadcaster pushes realtime events to the dashboards of an empresa.
type Broadcaster interface {
	BroadcastToEmpresa(empresaID uuid.UUID, event string, data interface{})
}

// JSONCache is the subset of pkg/cache used for read-through caching.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type noopBroadcaster struct{}

func (noopBroadcaster) BroadcastToEmpresa(uuid.UUID, string, interface{}) {}

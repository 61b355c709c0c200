package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Empresa represents a tenant in the multi-tenant system
type Empresa struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Plan         string    `json:"plan"`
	BookingToken string    `json:"-"`
	Timezone     string    `json:"timezone"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Populated on demand
	Role        string `json:"role,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
}

// User represents a login identity
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Member role constants
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// CanManageTeam reports whether a role may invite and manage members
func CanManageTeam(role string) bool {
	return role == RoleOwner || role == RoleAdmin
}

// Member is a user's membership in an empresa
type Member struct {
	ID        uuid.UUID `json:"id"`
	EmpresaID uuid.UUID `json:"empresa_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`

	// Populated via JOIN
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Invitation status constants
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
	InvitationExpired  = "expired"
)

// Invitation is a pending offer to join an empresa team
type Invitation struct {
	ID         uuid.UUID  `json:"id"`
	EmpresaID  uuid.UUID  `json:"empresa_id"`
	Email      string     `json:"email"`
	Name       *string    `json:"name,omitempty"`
	Role       string     `json:"role"`
	Token      string     `json:"-"`
	Status     string     `json:"status"`
	InvitedBy  *uuid.UUID `json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// Populated on demand
	EmpresaName string `json:"empresa_name,omitempty"`
}

// IsExpired reports whether the invitation can no longer be accepted
func (i *Invitation) IsExpired(now time.Time) bool {
	return i.Status == InvitationExpired || !now.Before(i.ExpiresAt)
}

// Pipeline represents a sales pipeline
type Pipeline struct {
	ID          uuid.UUID `json:"id"`
	EmpresaID   uuid.UUID `json:"empresa_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	Stages      []*Stage  `json:"stages,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Stage ("etapa") is one ordered bucket of a pipeline
type Stage struct {
	ID         uuid.UUID `json:"id"`
	PipelineID uuid.UUID `json:"pipeline_id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	Position   int       `json:"position"`
	IsWon      bool      `json:"is_won"`
	IsLost     bool      `json:"is_lost"`
	CreatedAt  time.Time `json:"created_at"`
}

// DefaultStages seeds a new empresa's default pipeline
func DefaultStages() []*Stage {
	return []*Stage{
		{Name: "Nuevo", Color: "#6366f1", Position: 0},
		{Name: "Contactado", Color: "#0ea5e9", Position: 1},
		{Name: "Propuesta", Color: "#f59e0b", Position: 2},
		{Name: "Ganado", Color: "#22c55e", Position: 3, IsWon: true},
		{Name: "Perdido", Color: "#ef4444", Position: 4, IsLost: true},
	}
}

// Lead represents a sales opportunity
type Lead struct {
	ID                  uuid.UUID       `json:"id"`
	EmpresaID           uuid.UUID       `json:"empresa_id"`
	PipelineID          *uuid.UUID      `json:"pipeline_id,omitempty"`
	StageID             *uuid.UUID      `json:"stage_id,omitempty"`
	Name                string          `json:"name"`
	Phone               *string         `json:"phone,omitempty"`
	Email               *string         `json:"email,omitempty"`
	ChatID              *string         `json:"chat_id,omitempty"`
	Channel             string          `json:"channel"`
	Source              *string         `json:"source,omitempty"`
	Notes               *string         `json:"notes,omitempty"`
	Value               decimal.Decimal `json:"value"`
	AssignedTo          *uuid.UUID      `json:"assigned_to,omitempty"`
	PreferredInstanceID *uuid.UUID      `json:"preferred_instance_id,omitempty"`
	LastMessageAt       *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`

	// Populated via JOIN
	StageName  *string `json:"stage_name,omitempty"`
	StageColor *string `json:"stage_color,omitempty"`
	Tags       []*Tag  `json:"tags,omitempty"`
}

// LeadFilter defines filter options for listing leads
type LeadFilter struct {
	PipelineID *uuid.UUID
	StageID    *uuid.UUID
	AssignedTo *uuid.UUID
	TagID      *uuid.UUID
	Search     string
	Limit      int
	Offset     int
}

// Message sender roles
const (
	SenderLead   = "lead"
	SenderTeam   = "team"
	SenderSystem = "system"
)

// Metadata keys stored on mensajes.metadata
const (
	MetaInstanceID = "instance_id"
	MetaReplyTo    = "reply_to"
	MetaEvent      = "event"
	MetaPlatform   = "platform"
)

// Message ("mensaje") is one chat message exchanged with a lead
type Message struct {
	ID         uuid.UUID              `json:"id"`
	EmpresaID  uuid.UUID              `json:"empresa_id"`
	LeadID     uuid.UUID              `json:"lead_id"`
	Sender     string                 `json:"sender"`
	Content    string                 `json:"content"`
	Channel    string                 `json:"channel"`
	MediaURL   *string                `json:"media_url,omitempty"`
	MediaType  *string                `json:"media_type,omitempty"`
	ExternalID *string                `json:"external_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	UserID     *uuid.UUID             `json:"user_id,omitempty"`
	Status     string                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
}

// InstanceID returns the instance recorded in the message metadata, if any
func (m *Message) InstanceID() (uuid.UUID, bool) {
	if m == nil || m.Metadata == nil {
		return uuid.Nil, false
	}
	raw, ok := m.Metadata[MetaInstanceID]
	if !ok || raw == nil {
		return uuid.Nil, false
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case uuid.UUID:
		return v, v != uuid.Nil
	default:
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Instance ("instancia") is a messaging credential set for one channel
type Instance struct {
	ID          uuid.UUID `json:"id"`
	EmpresaID   uuid.UUID `json:"empresa_id"`
	Name        string    `json:"name"`
	Channel     string    `json:"channel"`
	ClientID    string    `json:"client_id"`
	APIToken    string    `json:"-"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task status/priority constants
const (
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"

	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task ("tarea") is a to-do item, optionally tied to a lead
type Task struct {
	ID             uuid.UUID  `json:"id"`
	EmpresaID      uuid.UUID  `json:"empresa_id"`
	LeadID         *uuid.UUID `json:"lead_id,omitempty"`
	AssignedTo     *uuid.UUID `json:"assigned_to,omitempty"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	DueAt          *time.Time `json:"due_at,omitempty"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedBy      *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Populated via JOIN
	LeadName *string `json:"lead_name,omitempty"`
}

// TaskFilter defines filter options for listing tasks
type TaskFilter struct {
	LeadID     *uuid.UUID
	AssignedTo *uuid.UUID
	Status     string
	Limit      int
	Offset     int
}

// Appointment status/source constants
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"

	AppointmentSourceBooking = "booking"
	AppointmentSourceManual  = "manual"
)

// Appointment ("cita") is a meeting booked with a lead
type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	EmpresaID      uuid.UUID  `json:"empresa_id"`
	LeadID         uuid.UUID  `json:"lead_id"`
	AssignedTo     *uuid.UUID `json:"assigned_to,omitempty"`
	Title          string     `json:"title"`
	Notes          *string    `json:"notes,omitempty"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Populated via JOIN
	LeadName *string `json:"lead_name,omitempty"`
}

// Tag ("etiqueta") is a colored label for leads
type Tag struct {
	ID        uuid.UUID `json:"id"`
	EmpresaID uuid.UUID `json:"empresa_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// CatalogItem is a product or service an empresa sells
type CatalogItem struct {
	ID          uuid.UUID       `json:"id"`
	EmpresaID   uuid.UUID       `json:"empresa_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	SKU         *string         `json:"sku,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Notification types
const (
	NotificationAppointmentBooked = "appointment_booked"
	NotificationAppointmentSoon   = "appointment_reminder"
	NotificationTaskDue           = "task_due"
	NotificationNewMessage        = "new_message"
)

// Notification is an in-app notice for one user
type Notification struct {
	ID         uuid.UUID  `json:"id"`
	EmpresaID  uuid.UUID  `json:"empresa_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	Type       string     `json:"type"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	EntityType *string    `json:"entity_type,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

// StageCount is the number and value of leads in one stage
type StageCount struct {
	StageID  uuid.UUID       `json:"stage_id"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
	Position int             `json:"position"`
	Count    int             `json:"count"`
	Value    decimal.Decimal `json:"value"`
}

// Analytics summarizes an empresa's activity
type Analytics struct {
	LeadsTotal           int             `json:"leads_total"`
	LeadsNew             int             `json:"leads_new"`
	LeadsByStage         []*StageCount   `json:"leads_by_stage"`
	PipelineValue        decimal.Decimal `json:"pipeline_value"`
	WonValue             decimal.Decimal `json:"won_value"`
	MessagesInbound      int             `json:"messages_inbound"`
	MessagesOutbound     int             `json:"messages_outbound"`
	TasksPending         int             `json:"tasks_pending"`
	TasksOverdue         int             `json:"tasks_overdue"`
	AppointmentsUpcoming int             `json:"appointments_upcoming"`
	PeriodDays           int             `json:"period_days"`
}
